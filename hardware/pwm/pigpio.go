package pwm

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Pigpio opens hardware PWM channels over the pigpio socket interface
// (normally running on port 8888).
type Pigpio struct {
	Addr string
}

// compile-time check for whether Pigpio satisfies the Opener interface
var _ Opener = Pigpio{}

// pigpioPins maps the Raspberry Pi hardware PWM names to their BCM pins.
var pigpioPins = map[string]uint32{
	"PWM0": 18,
	"PWM1": 13,
}

func pigpioPin(name string) (uint32, error) {
	if pin, ok := pigpioPins[strings.ToUpper(name)]; ok {
		return pin, nil
	}

	pin, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(name), "BCM"), 10, 32)
	if err != nil || pin > 53 {
		return 0, unknownChannel(name)
	}

	return uint32(pin), nil
}

// Open dials into pigpio and returns a channel for the named output. Names are
// PWM0, PWM1 or a BCM pin number.
func (p Pigpio) Open(name string) (Channel, error) {
	pin, err := pigpioPin(name)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("tcp", p.Addr)
	if err != nil {
		return nil, fmt.Errorf("couldn't dial into pigpio socket: %w", err)
	}

	return &pigpioChannel{conn: conn, pin: pin}, nil
}

type pigpioChannel struct {
	mu   sync.Mutex
	conn net.Conn
	pin  uint32

	frequency uint32
	duty      uint32
	enabled   bool
}

// Close turns the output off, drives the pin low and closes the socket.
func (c *pigpioChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	offErr := c.off()
	closeErr := c.conn.Close()
	c.conn = nil

	if offErr != nil {
		return fmt.Errorf("unable to turn off pin %d: %w", c.pin, offErr)
	}

	return closeErr
}

func (c *pigpioChannel) SetFrequencyHz(hz float64) error {
	if hz < 0 || hz > 125000000 {
		return fmt.Errorf("frequency %v out of range", hz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	c.frequency = uint32(hz)
	if !c.enabled {
		return nil
	}

	return c.hp(c.pin, c.frequency, c.duty)
}

func (c *pigpioChannel) SetDutyCyclePercent(percent float64) error {
	if err := checkPercent(percent); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	c.duty = uint32(math.Round(percent * 10000))
	if !c.enabled {
		return nil
	}

	return c.hp(c.pin, c.frequency, c.duty)
}

func (c *pigpioChannel) SetEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	c.enabled = enabled
	if !enabled {
		return c.off()
	}

	return c.hp(c.pin, c.frequency, c.duty)
}

func (c *pigpioChannel) off() error {
	if err := c.hp(c.pin, 0, 0); err != nil {
		return err
	}

	return c.writeGPIO(c.pin, 0)
}

type cmd struct {
	Cmd uint32
	P1  uint32
	P2  uint32
	P3  uint32
}

const (
	write uint32 = 4
	hp    uint32 = 86
)

// request sends a command (with an optional extension) and checks the result
// pigpio echoes back in P3.
func (c *pigpioChannel) request(request interface{}) error {
	if err := binary.Write(c.conn, binary.LittleEndian, request); err != nil {
		return fmt.Errorf("unable to write request to socket: %w", err)
	}

	var response cmd
	if err := binary.Read(c.conn, binary.LittleEndian, &response); err != nil {
		return fmt.Errorf("unable to read response from socket: %w", err)
	}

	if res := int32(response.P3); res < 0 {
		return fmt.Errorf("pigpio command %d failed with code %d", response.Cmd, res)
	}

	return nil
}

func (c *pigpioChannel) writeGPIO(pin, level uint32) error {
	return c.request(cmd{
		Cmd: write,
		P1:  pin,
		P2:  level,
	})
}

// hp sets frequency (0 - off, 1-125,000,000) and duty cycle (0-1000000) for
// hardware PWM on the specified pin.
func (c *pigpioChannel) hp(pin, frequency, duty uint32) error {
	return c.request(struct {
		Cmd uint32
		P1  uint32
		P2  uint32
		P3  uint32
		Ext uint32
	}{
		Cmd: hp,
		P1:  pin,
		P2:  frequency,
		P3:  4,
		Ext: duty,
	})
}
