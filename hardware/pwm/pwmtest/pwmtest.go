// Package pwmtest provides an in-memory pwm.Opener that records every call
// made on its channels.
package pwmtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gloworm-vision/servoswing/hardware/pwm"
)

// Op identifies a channel call.
type Op string

const (
	OpFrequency Op = "frequency"
	OpEnable    Op = "enable"
	OpDuty      Op = "duty"
	OpClose     Op = "close"
)

// Event is one recorded call. Value holds the frequency, the duty cycle, or
// 1/0 for enable/disable.
type Event struct {
	Op    Op
	Value float64
	At    time.Time
}

// Opener hands out recording channels. Names listed in Missing fail to open.
// OnOpen, when set, sees every channel before it is returned.
type Opener struct {
	Clock   clock.Clock
	Missing map[string]bool
	OnOpen  func(*Channel)

	mu       sync.Mutex
	channels map[string]*Channel
}

var _ pwm.Opener = (*Opener)(nil)

// NewOpener returns an Opener stamping events with clk (the real clock if nil).
func NewOpener(clk clock.Clock) *Opener {
	if clk == nil {
		clk = clock.New()
	}

	return &Opener{Clock: clk, Missing: map[string]bool{}, channels: map[string]*Channel{}}
}

func (o *Opener) Open(name string) (pwm.Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Missing[name] {
		return nil, fmt.Errorf("%w: %q", pwm.ErrUnknownChannel, name)
	}

	c := &Channel{Name: name, clock: o.Clock}
	if o.channels == nil {
		o.channels = map[string]*Channel{}
	}
	o.channels[name] = c

	if o.OnOpen != nil {
		o.OnOpen(c)
	}

	return c, nil
}

// Channel returns the channel most recently opened under name.
func (o *Opener) Channel(name string) *Channel {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.channels[name]
}

// Channel records calls. The Fail* hooks, when set, decide whether a call
// returns an error; the call is recorded either way.
type Channel struct {
	Name string

	FailFrequency func() error
	FailEnable    func(enabled bool) error
	FailDuty      func(percent float64) error
	FailClose     func() error

	clock clock.Clock

	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *Channel) record(op Op, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var at time.Time
	if c.clock != nil {
		at = c.clock.Now()
	}
	c.events = append(c.events, Event{Op: op, Value: v, At: at})
}

func (c *Channel) SetFrequencyHz(hz float64) error {
	c.record(OpFrequency, hz)
	if c.FailFrequency != nil {
		return c.FailFrequency()
	}

	return nil
}

func (c *Channel) SetEnabled(enabled bool) error {
	v := 0.0
	if enabled {
		v = 1
	}
	c.record(OpEnable, v)
	if c.FailEnable != nil {
		return c.FailEnable(enabled)
	}

	return nil
}

func (c *Channel) SetDutyCyclePercent(percent float64) error {
	c.record(OpDuty, percent)
	if c.FailDuty != nil {
		return c.FailDuty(percent)
	}

	return nil
}

func (c *Channel) Close() error {
	c.record(OpClose, 0)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.FailClose != nil {
		return c.FailClose()
	}

	return nil
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Events returns a copy of everything recorded so far.
func (c *Channel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Event(nil), c.events...)
}

// Reset drops the recorded events.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = nil
}

// Duties returns the recorded duty cycle writes in order.
func (c *Channel) Duties() []float64 {
	var duties []float64
	for _, e := range c.Events() {
		if e.Op == OpDuty {
			duties = append(duties, e.Value)
		}
	}

	return duties
}

// Count returns how many events of op were recorded.
func (c *Channel) Count(op Op) int {
	n := 0
	for _, e := range c.Events() {
		if e.Op == op {
			n++
		}
	}

	return n
}
