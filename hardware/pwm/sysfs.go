package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
)

// DefaultSysfsRoot is where the kernel exposes PWM chips.
const DefaultSysfsRoot = "/sys/class/pwm"

// Sysfs opens PWM lines exposed by the kernel under Root. Names look like
// "pwmchip0/pwm1".
type Sysfs struct {
	Root string
}

var _ Opener = Sysfs{}

var sysfsName = regexp.MustCompile(`^(pwmchip\d+)/pwm(\d+)$`)

// Open exports the line if the kernel hasn't already.
func (s Sysfs) Open(name string) (Channel, error) {
	m := sysfsName.FindStringSubmatch(name)
	if m == nil {
		return nil, unknownChannel(name)
	}

	root := s.Root
	if root == "" {
		root = DefaultSysfsRoot
	}

	line, _ := strconv.Atoi(m[2])
	chipPath := filepath.Join(root, m[1])
	c := &sysfsChannel{
		chipPath: chipPath,
		line:     line,
		linePath: filepath.Join(chipPath, fmt.Sprintf("pwm%d", line)),
	}

	if _, err := os.Stat(chipPath); err != nil {
		return nil, fmt.Errorf("unable to find pwm chip %q: %w", m[1], err)
	}

	if _, err := os.Stat(c.linePath); errors.Is(err, os.ErrNotExist) {
		if err := writeValue(c.chipFile("export"), uint64(line)); err != nil {
			return nil, fmt.Errorf("unable to export pwm line %d: %w", line, err)
		}
		c.exported = true
	}

	return c, nil
}

func writeValue(path string, value uint64) error {
	// The mode only matters if the file has to be created, which the kernel
	// never needs us to do.
	return os.WriteFile(path, []byte(strconv.FormatUint(value, 10)), 0o660)
}

type sysfsChannel struct {
	chipPath string
	line     int
	linePath string

	mu sync.Mutex

	periodNs         uint64
	activeDurationNs uint64
	percent          float64
	exported         bool
	enabled          bool
	closed           bool
}

func (c *sysfsChannel) chipFile(name string) string {
	return filepath.Join(c.chipPath, name)
}

func (c *sysfsChannel) lineFile(name string) string {
	return filepath.Join(c.linePath, name)
}

func (c *sysfsChannel) SetFrequencyHz(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("frequency %v out of range", hz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	return c.apply(uint64(1e9/hz), c.percent)
}

func (c *sysfsChannel) SetDutyCyclePercent(percent float64) error {
	if err := checkPercent(percent); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.periodNs == 0 {
		return errors.New("pwm period not set")
	}

	return c.apply(c.periodNs, percent)
}

// apply writes the period and the active duration. sysfs calls the active
// duration "duty_cycle", and never allows it to exceed the period, so the
// order of the two writes depends on whether the period shrinks.
func (c *sysfsChannel) apply(periodNs uint64, percent float64) error {
	activeNs := uint64(float64(periodNs) * percent / 100)

	writePeriod := func() error {
		if periodNs == c.periodNs {
			return nil
		}
		if err := writeValue(c.lineFile("period"), periodNs); err != nil {
			return fmt.Errorf("unable to set period: %w", err)
		}
		c.periodNs = periodNs
		return nil
	}
	writeActive := func() error {
		if err := writeValue(c.lineFile("duty_cycle"), activeNs); err != nil {
			return fmt.Errorf("unable to set duty cycle: %w", err)
		}
		c.activeDurationNs = activeNs
		c.percent = percent
		return nil
	}

	if periodNs < c.activeDurationNs {
		if err := writeActive(); err != nil {
			return err
		}
		return writePeriod()
	}

	if err := writePeriod(); err != nil {
		return err
	}
	return writeActive()
}

func (c *sysfsChannel) SetEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	return c.setEnabled(enabled)
}

func (c *sysfsChannel) setEnabled(enabled bool) error {
	var v uint64
	if enabled {
		v = 1
	}

	if err := writeValue(c.lineFile("enable"), v); err != nil {
		return fmt.Errorf("unable to set enable to %d: %w", v, err)
	}
	c.enabled = enabled

	return nil
}

// Close disables the line and unexports it if Open exported it.
func (c *sysfsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.closed = true

	if c.enabled {
		if err := c.setEnabled(false); err != nil {
			return err
		}
	}

	if !c.exported {
		return nil
	}

	if err := writeValue(c.chipFile("unexport"), uint64(c.line)); err != nil {
		return fmt.Errorf("unable to unexport pwm line %d: %w", c.line, err)
	}

	return nil
}
