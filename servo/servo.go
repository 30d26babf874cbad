// Package servo drives an SG90 class hobby servo from a single PWM channel.
//
// A Controller moves the servo to absolute angles, either at full speed or
// paced by a flat gap after every pulse, and can swing it between two angles
// on a background goroutine until told to stop.
//
// I/O failures never abort a motion. Every pulse is attempted, the output is
// always disabled at the end, and the failures are logged and returned
// together once the motion has finished.
package servo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/gloworm-vision/servoswing/hardware/pwm"
)

const (
	MinAngle  = 0.0
	MaxAngle  = 180.0
	HomeAngle = 90.0

	// FrequencyHz gives the 20ms period SG90 servos expect.
	FrequencyHz = 50.0

	// PulseCount pulses are sent for every move, each held for PulseHold, so
	// the horn has time to settle.
	PulseCount = 18
	PulseHold  = 20 * time.Millisecond

	minDuty  = 2.5
	dutySpan = 10.0
)

// DutyCycle maps an angle in [0, 180] onto a duty cycle in [2.5, 12.5]
// percent. It reports false for angles outside that range.
func DutyCycle(angle float64) (float64, bool) {
	if !validAngle(angle) {
		return 0, false
	}

	return minDuty + dutySpan*angle/MaxAngle, true
}

func validAngle(angle float64) bool {
	return angle >= MinAngle && angle <= MaxAngle
}

// State is whether a swing is running.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Option func(*Controller)

// WithLogger sets the logger, logrus.StandardLogger() by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock sets the clock pulses are timed with.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// Controller drives one servo. It is safe for concurrent use.
type Controller struct {
	name   string
	logger logrus.FieldLogger
	clock  clock.Clock
	err    error

	// motion is held for a whole move so moves never interleave on the channel.
	motion sync.Mutex

	mu       sync.Mutex
	channel  pwm.Channel
	closed   bool
	worker   *worker
	draining *worker

	running atomic.Bool
}

// MaxSwingErrors is how many I/O failures a swing keeps for StopSwing. Later
// ones are only logged and counted.
const MaxSwingErrors = 64

// worker is the handle of a swing goroutine. err is written before done is
// closed.
type worker struct {
	done chan struct{}
	err  error

	errs    []error
	dropped int
}

func (w *worker) record(err error) {
	for _, e := range multierr.Errors(err) {
		if len(w.errs) < MaxSwingErrors {
			w.errs = append(w.errs, e)
			continue
		}
		w.dropped++
	}
}

func (w *worker) finish() {
	w.err = multierr.Combine(w.errs...)
	if w.dropped > 0 {
		w.err = multierr.Append(w.err, fmt.Errorf("%d more swing errors not kept", w.dropped))
	}
	close(w.done)
}

// New opens the named channel and sets it up for a servo. Failing to do so is
// logged and leaves the controller without an output: every move is then a
// no-op. Err reports the failure.
func New(opener pwm.Opener, name string, opts ...Option) *Controller {
	c := &Controller{
		name:   name,
		logger: logrus.StandardLogger(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("channel", name)

	ch, err := opener.Open(name)
	if err != nil {
		c.err = fmt.Errorf("unable to open pwm channel %q: %w", name, err)
		c.logger.WithError(err).Warn("unable to access pwm")
		return c
	}

	if err := ch.SetFrequencyHz(FrequencyHz); err != nil {
		c.err = fmt.Errorf("unable to set pwm frequency on %q: %w", name, err)
		c.logger.WithError(err).Warn("unable to access pwm")
		if err := ch.Close(); err != nil {
			c.logger.WithError(err).Warn("unable to release pwm")
		}
		return c
	}

	c.channel = ch
	c.logger.Debug("pwm ready")

	return c
}

// Err returns why the channel couldn't be set up, or nil.
func (c *Controller) Err() error {
	return c.err
}

// Channel returns the channel name the controller was built for.
func (c *Controller) Channel() string {
	return c.name
}

// State returns Running while a swing goroutine is owned by the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.worker != nil {
		return Running
	}

	return Stopped
}

func (c *Controller) output() pwm.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel
}

// SetAngle moves to angle at full speed, blocking for PulseCount*PulseHold.
// Angles outside [0, 180] are ignored. The returned error combines every
// failed step; the motion itself is never cut short.
func (c *Controller) SetAngle(angle float64) error {
	duty, ok := DutyCycle(angle)
	if !ok {
		c.logger.WithField("angle", angle).Debug("ignoring angle out of range")
		return nil
	}

	return c.move(duty, 0)
}

// SetAngleWithGap moves to angle like SetAngle but sends a flat signal for gap
// after every pulse, slowing the move down. A zero gap behaves exactly like
// SetAngle; a negative gap is ignored like an out of range angle.
func (c *Controller) SetAngleWithGap(angle float64, gap time.Duration) error {
	duty, ok := DutyCycle(angle)
	if !ok || gap < 0 {
		c.logger.WithFields(logrus.Fields{"angle": angle, "gap": gap}).Debug("ignoring move out of range")
		return nil
	}

	return c.move(duty, gap)
}

func (c *Controller) move(duty float64, gap time.Duration) error {
	c.motion.Lock()
	defer c.motion.Unlock()

	ch := c.output()
	if ch == nil {
		c.logger.Debug("no pwm output, skipping move")
		return nil
	}

	var errs error
	step := func(name string, pulse int, err error) {
		if err == nil {
			return
		}
		c.logger.WithError(err).WithFields(logrus.Fields{"step": name, "pulse": pulse}).Warn("pwm step failed")
		errs = multierr.Append(errs, fmt.Errorf("%s (pulse %d): %w", name, pulse, err))
	}

	step("enable", 0, ch.SetEnabled(true))
	for pulse := 1; pulse <= PulseCount; pulse++ {
		step("duty", pulse, ch.SetDutyCyclePercent(duty))
		c.clock.Sleep(PulseHold)

		if gap > 0 {
			step("flat", pulse, ch.SetDutyCyclePercent(0))
			c.clock.Sleep(gap)
		}
	}
	step("disable", PulseCount, ch.SetEnabled(false))

	return errs
}

// StartSwing starts swinging between begin and end on a new goroutine: first
// home to 90 degrees, then paced moves to begin and end until StopSwing. It
// returns false and does nothing if the arguments are out of range, a swing
// is already running, or the controller has no output.
func (c *Controller) StartSwing(begin, end float64, gap time.Duration) bool {
	log := c.logger.WithFields(logrus.Fields{"begin": begin, "end": end, "gap": gap})
	if !validAngle(begin) || !validAngle(end) || gap < 0 {
		log.Debug("ignoring swing out of range")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.channel == nil || c.worker != nil {
		return false
	}

	if c.draining != nil {
		select {
		case <-c.draining.done:
			c.draining = nil
		default:
			log.Warn("previous swing is still finishing, not starting another")
			return false
		}
	}

	w := &worker{done: make(chan struct{})}
	c.worker = w
	c.running.Store(true)

	go c.swing(w, begin, end, gap)
	log.Info("swing started")

	return true
}

// swing checks the running flag before every leg, so a stop request lets the
// leg in progress finish.
func (c *Controller) swing(w *worker, begin, end float64, gap time.Duration) {
	defer w.finish()

	w.record(c.SetAngle(HomeAngle))

	legs := [2]float64{begin, end}
	for leg := 0; c.running.Load(); leg++ {
		w.record(c.SetAngleWithGap(legs[leg%2], gap))
	}
}

// StopSwing stops a running swing and waits for its goroutine to exit. It
// returns the I/O failures the swing ran into, at most MaxSwingErrors of them
// plus one counting the rest. If ctx ends first the error is
// returned and the swing is released anyway; it finishes its current leg on
// its own and StartSwing refuses to start another until it has.
func (c *Controller) StopSwing(ctx context.Context) error {
	c.mu.Lock()
	w := c.worker
	if w == nil {
		c.mu.Unlock()
		return nil
	}
	c.running.Store(false)
	c.mu.Unlock()

	c.logger.Debug("waiting for swing to exit")

	select {
	case <-w.done:
	case <-ctx.Done():
		c.mu.Lock()
		if c.worker == w {
			c.worker = nil
			c.draining = w
		}
		c.mu.Unlock()

		err := fmt.Errorf("unable to wait for swing to exit: %w", ctx.Err())
		c.logger.WithError(err).Warn("swing released before exiting")
		return err
	}

	c.mu.Lock()
	if c.worker == w {
		c.worker = nil
	}
	c.mu.Unlock()

	c.logger.Info("swing stopped")

	return w.err
}

// Close stops any swing, waiting for it to exit, then releases the channel.
// Calling Close again does nothing.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	draining := c.draining
	c.mu.Unlock()

	// The swing's I/O failures have been logged already.
	_ = c.StopSwing(context.Background())
	if draining != nil {
		<-draining.done
	}

	c.motion.Lock()
	defer c.motion.Unlock()

	c.mu.Lock()
	ch := c.channel
	c.channel = nil
	c.draining = nil
	c.mu.Unlock()

	if ch == nil {
		return nil
	}

	if err := ch.Close(); err != nil {
		c.logger.WithError(err).Warn("unable to close pwm")
		return fmt.Errorf("unable to close pwm channel %q: %w", c.name, err)
	}

	c.logger.Debug("pwm closed")

	return nil
}
