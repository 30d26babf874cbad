package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloworm-vision/servoswing/hardware"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "servoswing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("SERVOSWING_SYSFS", "/tmp/pwm")

	path := writeConfig(t, `
log_level: debug
channel: pwmchip0/pwm1
hardware:
  backend: sysfs
  sysfs:
    root: ${SERVOSWING_SYSFS}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "pwmchip0/pwm1", cfg.Channel)
	assert.Equal(t, hardware.Sysfs, cfg.Hardware.Backend)
	require.NotNil(t, cfg.Hardware.Sysfs)
	assert.Equal(t, "/tmp/pwm", cfg.Hardware.Sysfs.Root)

	// defaults survive for anything left out
	assert.Equal(t, "servoswing.db", cfg.StorePath)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad level": "log_level: loud\n",
		"backend":   "hardware:\n  backend: arduino\n",
		"channel":   "channel: \"\"\n",
		"yaml":      "hardware: [\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servoswing.yaml")

	require.NoError(t, Init(path, false))
	assert.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}
