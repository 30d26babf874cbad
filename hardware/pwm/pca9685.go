package pwm

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// PCA9685 opens channels on a PCA9685 16 channel PWM driver attached over
// I2C. Names look like "pca9685:3".
type PCA9685 struct {
	// Bus is the periph I2C bus name, empty for the first bus found.
	Bus string
	// Address defaults to pca9685.I2CAddr.
	Address uint16
}

var _ Opener = PCA9685{}

const pca9685Steps = 4096

func pca9685Channel(name string) (int, error) {
	n, ok := strings.CutPrefix(strings.ToLower(name), "pca9685:")
	if !ok {
		return 0, unknownChannel(name)
	}

	ch, err := strconv.Atoi(n)
	if err != nil || ch < 0 || ch > 15 {
		return 0, unknownChannel(name)
	}

	return ch, nil
}

// Open initializes the periph host drivers, opens the bus and talks to the
// chip. Each channel owns its own bus handle.
func (p PCA9685) Open(name string) (Channel, error) {
	ch, err := pca9685Channel(name)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("unable to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(p.Bus)
	if err != nil {
		return nil, fmt.Errorf("unable to open i2c bus %q: %w", p.Bus, err)
	}

	addr := p.Address
	if addr == 0 {
		addr = pca9685.I2CAddr
	}

	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("unable to set up pca9685 at %#x: %w", addr, err)
	}

	return &pcaChannel{dev: dev, bus: bus, channel: ch}, nil
}

type pcaDevice interface {
	SetPwmFreq(freqHz physic.Frequency) error
	SetPwm(channel int, on, off gpio.Duty) error
}

type pcaChannel struct {
	mu      sync.Mutex
	dev     pcaDevice
	bus     i2c.BusCloser
	channel int

	off     gpio.Duty
	enabled bool
}

func (c *pcaChannel) SetFrequencyHz(hz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return ErrClosed
	}

	return c.dev.SetPwmFreq(physic.Frequency(hz * float64(physic.Hertz)))
}

func (c *pcaChannel) SetDutyCyclePercent(percent float64) error {
	if err := checkPercent(percent); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return ErrClosed
	}

	c.off = gpio.Duty(percent / 100 * pca9685Steps)
	if !c.enabled {
		return nil
	}

	return c.dev.SetPwm(c.channel, 0, c.off)
}

func (c *pcaChannel) SetEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return ErrClosed
	}

	c.enabled = enabled
	if !enabled {
		return c.dev.SetPwm(c.channel, 0, 0)
	}

	return c.dev.SetPwm(c.channel, 0, c.off)
}

func (c *pcaChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return ErrClosed
	}

	err := c.dev.SetPwm(c.channel, 0, 0)
	c.dev = nil
	if c.bus != nil {
		if closeErr := c.bus.Close(); err == nil {
			err = closeErr
		}
	}

	return err
}
