// Package hardware selects the PWM backend servoswing drives its servo
// through.
//
// The backend is described by a Config, which is what gets stored and edited;
// New turns it into a pwm.Opener. Channel names are interpreted by the chosen
// backend (PWM0 for pigpio, pwmchip0/pwm0 for sysfs, pca9685:0 for a PCA9685).
package hardware

import (
	"fmt"

	"github.com/gloworm-vision/servoswing/hardware/pwm"
)

// Backend names.
const (
	Pigpio  = "pigpio"
	Sysfs   = "sysfs"
	PCA9685 = "pca9685"
)

// Config defines which backend to use and how to reach it. Only the section
// for the named backend is read.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`

	Pigpio  *PigpioConfig  `json:"pigpio,omitempty" yaml:"pigpio,omitempty"`
	Sysfs   *SysfsConfig   `json:"sysfs,omitempty" yaml:"sysfs,omitempty"`
	PCA9685 *PCA9685Config `json:"pca9685,omitempty" yaml:"pca9685,omitempty"`
}

type PigpioConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type SysfsConfig struct {
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

type PCA9685Config struct {
	Bus     string `json:"bus,omitempty" yaml:"bus,omitempty"`
	Address uint16 `json:"address,omitempty" yaml:"address,omitempty"`
}

const defaultPigpioAddr = "localhost:8888"

type ErrUnsupportedBackend struct {
	error
}

func (err ErrUnsupportedBackend) Is(target error) bool {
	_, ok := target.(ErrUnsupportedBackend)
	return ok
}

// New returns an opener for the configured backend.
func New(config Config) (pwm.Opener, error) {
	switch config.Backend {
	case Pigpio:
		addr := defaultPigpioAddr
		if config.Pigpio != nil && config.Pigpio.Addr != "" {
			addr = config.Pigpio.Addr
		}
		return pwm.Pigpio{Addr: addr}, nil
	case Sysfs:
		root := pwm.DefaultSysfsRoot
		if config.Sysfs != nil && config.Sysfs.Root != "" {
			root = config.Sysfs.Root
		}
		return pwm.Sysfs{Root: root}, nil
	case PCA9685:
		var p pwm.PCA9685
		if config.PCA9685 != nil {
			p.Bus = config.PCA9685.Bus
			p.Address = config.PCA9685.Address
		}
		return p, nil
	case "":
		return nil, ErrUnsupportedBackend{fmt.Errorf("no hardware backend configured")}
	default:
		return nil, ErrUnsupportedBackend{fmt.Errorf("backend %q not implemented", config.Backend)}
	}
}
