package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloworm-vision/servoswing/config"
	"github.com/gloworm-vision/servoswing/hardware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.StorePath = filepath.Join(t.TempDir(), "servoswing.db")
	return &cfg
}

func TestResolveHardwareFallsBackToConfig(t *testing.T) {
	cfg := testConfig(t)
	logger, hook := test.NewNullLogger()

	s, err := openStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	hw, channel := resolveHardware(cfg, s, logger)
	assert.Equal(t, cfg.Hardware, hw)
	assert.Equal(t, "PWM0", channel)

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.AllEntries()[0].Level)
}

func TestResolveHardwarePrefersStore(t *testing.T) {
	cfg := testConfig(t)
	logger, hook := test.NewNullLogger()

	s, err := openStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	stored := hardware.Config{
		Backend: hardware.Sysfs,
		Sysfs:   &hardware.SysfsConfig{Root: "/tmp/pwm"},
	}
	require.NoError(t, s.PutHardwareConfig(stored))
	require.NoError(t, s.PutDefaultChannel("pwmchip0/pwm1"))

	hw, channel := resolveHardware(cfg, s, logger)
	assert.Equal(t, stored, hw)
	assert.Equal(t, "pwmchip0/pwm1", channel)
	assert.Empty(t, hook.AllEntries())
}

func TestLoadConfigMissingFile(t *testing.T) {
	logger, hook := test.NewNullLogger()
	g := &Global{Logger: logger}

	cfg, err := g.loadConfig(&CLI{Config: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLoadConfigLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servoswing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	logger, _ := test.NewNullLogger()
	g := &Global{Logger: logger}

	_, err := g.loadConfig(&CLI{Config: path})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestControllerOverSysfs(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "pwm")
	line := filepath.Join(root, "pwmchip0", "pwm0")
	require.NoError(t, os.MkdirAll(line, 0o755))
	for _, f := range []string{"period", "duty_cycle", "enable"} {
		require.NoError(t, os.WriteFile(filepath.Join(line, f), []byte("0\n"), 0o600))
	}

	path := filepath.Join(dir, "servoswing.yaml")
	cfg := "store_path: " + filepath.Join(dir, "servoswing.db") + "\n" +
		"channel: pwmchip0/pwm0\n" +
		"hardware:\n  backend: sysfs\n  sysfs:\n    root: " + root + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	logger, _ := test.NewNullLogger()
	g := &Global{Logger: logger}

	c, err := g.controller(&CLI{Config: path}, "")
	require.NoError(t, err)
	assert.Equal(t, "pwmchip0/pwm0", c.Channel())

	period, err := os.ReadFile(filepath.Join(line, "period"))
	require.NoError(t, err)
	assert.Equal(t, "20000000", string(period))

	require.NoError(t, c.Close())
}
