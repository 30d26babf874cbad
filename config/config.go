// Package config loads the servoswing YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gloworm-vision/servoswing/hardware"
)

// Config is the CLI configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	StorePath string          `yaml:"store_path"`
	Channel   string          `yaml:"channel"`
	Hardware  hardware.Config `yaml:"hardware"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		LogLevel:  "info",
		StorePath: "servoswing.db",
		Channel:   "PWM0",
		Hardware: hardware.Config{
			Backend: hardware.Pigpio,
			Pigpio:  &hardware.PigpioConfig{Addr: "localhost:8888"},
		},
	}
}

// Load reads the configuration file at path, expanding environment variables
// (a .env file next to the working directory is loaded first if present).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("unable to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the log level, the channel and the hardware backend.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Channel == "" {
		return errors.New("channel is required")
	}
	if _, err := hardware.New(c.Hardware); err != nil {
		return err
	}

	return nil
}

// Init writes the default configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("unable to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}

	return nil
}
