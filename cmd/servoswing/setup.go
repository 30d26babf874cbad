package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/gloworm-vision/servoswing/config"
	"github.com/gloworm-vision/servoswing/hardware"
	"github.com/gloworm-vision/servoswing/servo"
	"github.com/gloworm-vision/servoswing/store"
)

// loadConfig reads the config file, falling back to the defaults when there
// is none, and applies its log level unless -v was given.
func (g *Global) loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if errors.Is(err, os.ErrNotExist) {
		g.Logger.WithField("path", root.Config).Warn("no config file found, using defaults")
		def := config.Default()
		cfg, err = &def, nil
	}
	if err != nil {
		return nil, err
	}

	if !root.Verbose {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		g.Logger.SetLevel(level)
	}

	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.OpenBBolt(cfg.StorePath, 0o600, &bbolt.Options{Timeout: time.Second})
}

// resolveHardware prefers what the store holds over the config file.
func resolveHardware(cfg *config.Config, s store.Store, logger logrus.FieldLogger) (hardware.Config, string) {
	hw, err := s.HardwareConfig()
	if err != nil {
		logger.Warnf("no stored hardware config, using config file: %s", err)
		hw = cfg.Hardware
	}

	channel, err := s.DefaultChannel()
	if err != nil {
		logger.Debugf("no stored default channel, using config file: %s", err)
		channel = cfg.Channel
	}

	return hw, channel
}

// controller builds a servo controller for channel, or for the resolved
// default channel when channel is empty.
func (g *Global) controller(root *CLI, channel string) (*servo.Controller, error) {
	cfg, err := g.loadConfig(root)
	if err != nil {
		return nil, err
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	hw, defaultChannel := resolveHardware(cfg, s, g.Logger)
	if err := s.Close(); err != nil {
		g.Logger.WithError(err).Warn("unable to close store")
	}

	if channel == "" {
		channel = defaultChannel
	}

	opener, err := hardware.New(hw)
	if err != nil {
		return nil, fmt.Errorf("unable to set up hardware: %w", err)
	}

	c := servo.New(opener, channel, servo.WithLogger(g.Logger))
	if err := c.Err(); err != nil {
		return nil, err
	}

	return c, nil
}
