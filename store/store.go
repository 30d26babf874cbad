package store

import (
	"errors"
	"io"

	"github.com/gloworm-vision/servoswing/hardware"
)

// ErrNotFound is returned when nothing has been stored under a key yet.
var ErrNotFound = errors.New("not found")

// Store describes a persistent storage engine for servoswing settings.
type Store interface {
	HardwareConfig() (hardware.Config, error)
	PutHardwareConfig(h hardware.Config) error

	DefaultChannel() (string, error)
	PutDefaultChannel(name string) error

	io.Closer
}
