package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gloworm-vision/servoswing/config"
	"github.com/gloworm-vision/servoswing/hardware"
	"github.com/gloworm-vision/servoswing/servo"
)

type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return err
	}

	g.Logger.WithField("path", root.Config).Info("configuration written")
	return nil
}

type AngleCmd struct {
	Angle   float64       `arg:"" help:"Target angle in degrees (0 - 180)"`
	Gap     time.Duration `help:"Flat signal held after every pulse to slow the move down" default:"0s"`
	Channel string        `help:"PWM channel, defaults to the configured one"`
}

func (a *AngleCmd) Run(g *Global, root *CLI) error {
	if _, ok := servo.DutyCycle(a.Angle); !ok {
		return fmt.Errorf("angle %v out of range", a.Angle)
	}
	if a.Gap < 0 {
		return fmt.Errorf("gap can't be negative, have %s", a.Gap)
	}

	c, err := g.controller(root, a.Channel)
	if err != nil {
		return err
	}
	defer closeServo(g, c)

	if err := c.SetAngleWithGap(a.Angle, a.Gap); err != nil {
		g.Logger.WithError(err).Warn("move finished with errors")
	}

	return nil
}

type SwingCmd struct {
	Begin   float64       `help:"First angle of every cycle" default:"0"`
	End     float64       `help:"Second angle of every cycle" default:"180"`
	Gap     time.Duration `help:"Flat signal held after every pulse" default:"100ms"`
	For     time.Duration `help:"How long to swing for, 0 swings until interrupted" default:"1m"`
	Channel string        `help:"PWM channel, defaults to the configured one"`
}

func (s *SwingCmd) Run(g *Global, root *CLI) error {
	c, err := g.controller(root, s.Channel)
	if err != nil {
		return err
	}

	return swing(g, c, s.Begin, s.End, s.Gap, s.For)
}

// DemoCmd swings PWM0 the way the servo was first exercised.
type DemoCmd struct{}

func (d *DemoCmd) Run(g *Global, root *CLI) error {
	c, err := g.controller(root, "PWM0")
	if err != nil {
		return err
	}

	return swing(g, c, 0, 180, 100*time.Millisecond, time.Minute)
}

func closeServo(g *Global, c *servo.Controller) {
	if err := c.Close(); err != nil {
		g.Logger.WithError(err).Warn("unable to close servo")
	}
}

func swing(g *Global, c *servo.Controller, begin, end float64, gap, d time.Duration) error {
	defer closeServo(g, c)

	if !c.StartSwing(begin, end, gap) {
		return fmt.Errorf("unable to swing between %v and %v with a %s gap", begin, end, gap)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if d > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	<-ctx.Done()
	g.Logger.Info("stopping swing")

	if err := c.StopSwing(context.Background()); err != nil {
		g.Logger.WithError(err).Warn("swing finished with errors")
	}

	return nil
}

type HardwareCmd struct {
	Show HardwareShowCmd `cmd:"" help:"Print the hardware config in use"`
	Save HardwareSaveCmd `cmd:"" help:"Store the config file's hardware section and channel"`
}

type HardwareShowCmd struct{}

func (h *HardwareShowCmd) Run(g *Global, root *CLI) error {
	cfg, err := g.loadConfig(root)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	hw, channel := resolveHardware(cfg, s, g.Logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Channel  string          `json:"channel"`
		Hardware hardware.Config `json:"hardware"`
	}{channel, hw})
}

type HardwareSaveCmd struct{}

func (h *HardwareSaveCmd) Run(g *Global, root *CLI) error {
	cfg, err := g.loadConfig(root)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.PutHardwareConfig(cfg.Hardware); err != nil {
		return err
	}
	if err := s.PutDefaultChannel(cfg.Channel); err != nil {
		return err
	}

	g.Logger.WithField("backend", cfg.Hardware.Backend).WithField("channel", cfg.Channel).Info("hardware config stored")
	return nil
}
