// Package pwm describes the PWM outputs a servo can be driven from and
// provides backends for the boards servoswing runs on.
package pwm

import (
	"errors"
	"fmt"
)

// Channel is a single opened PWM output.
type Channel interface {
	// SetFrequencyHz sets the PWM frequency.
	SetFrequencyHz(hz float64) error

	// SetEnabled turns the output on or off.
	SetEnabled(enabled bool) error

	// SetDutyCyclePercent sets the duty cycle (0 - 100).
	SetDutyCyclePercent(percent float64) error

	// Close releases the output.
	Close() error
}

// Opener opens PWM channels by name. Names are backend specific.
type Opener interface {
	Open(name string) (Channel, error)
}

// ErrUnknownChannel is returned when a backend can't map a name to an output.
var ErrUnknownChannel = errors.New("unknown pwm channel")

// ErrClosed is returned by channels that have already been closed.
var ErrClosed = errors.New("pwm channel is closed")

func unknownChannel(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

func checkPercent(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %v%% out of range", percent)
	}

	return nil
}
