package store

import (
	"encoding/json"
	"fmt"
	"os"

	"go.etcd.io/bbolt"

	"github.com/gloworm-vision/servoswing/hardware"
)

type BBolt struct {
	db *bbolt.DB
}

const (
	bboltServoswingBucket = "servoswing"

	// servoswing keys
	bboltHardwareKey       = "hardware"
	bboltDefaultChannelKey = "default-channel"
)

// OpenBBolt opens a BBoltDB database at the given path and creates the needed bucket
// if it doesn't exist.
func OpenBBolt(path string, mode os.FileMode, options *bbolt.Options) (Store, error) {
	db, err := bbolt.Open(path, mode, options)
	if err != nil {
		return nil, fmt.Errorf("unable to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bboltServoswingBucket)); err != nil {
			return fmt.Errorf("unable to create bucket %q: %w", bboltServoswingBucket, err)
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create bbolt buckets: %w", err)
	}

	return &BBolt{
		db: db,
	}, nil
}

func (b *BBolt) Close() error {
	return b.db.Close()
}

func (b *BBolt) HardwareConfig() (hardware.Config, error) {
	var h hardware.Config
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bboltServoswingBucket))
		hardwareJSON := bucket.Get([]byte(bboltHardwareKey))
		if hardwareJSON == nil {
			return fmt.Errorf("hardware config: %w", ErrNotFound)
		}

		if err := json.Unmarshal(hardwareJSON, &h); err != nil {
			return fmt.Errorf("unable to unmarshal hardware config JSON: %w", err)
		}

		return nil
	})
	if err != nil {
		return h, fmt.Errorf("unable to get hardware config: %w", err)
	}

	return h, nil
}

func (b *BBolt) PutHardwareConfig(h hardware.Config) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		hardwareJSON, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("unable to marshal hardware config: %w", err)
		}

		bucket := tx.Bucket([]byte(bboltServoswingBucket))
		if err := bucket.Put([]byte(bboltHardwareKey), hardwareJSON); err != nil {
			return fmt.Errorf("unable to put hardware config: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to update hardware config: %w", err)
	}

	return nil
}

func (b *BBolt) DefaultChannel() (string, error) {
	var name string

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bboltServoswingBucket))
		raw := bucket.Get([]byte(bboltDefaultChannelKey))
		if raw == nil {
			return fmt.Errorf("default channel: %w", ErrNotFound)
		}
		name = string(raw)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("unable to get default channel: %w", err)
	}

	return name, nil
}

func (b *BBolt) PutDefaultChannel(name string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bboltServoswingBucket))
		return bucket.Put([]byte(bboltDefaultChannelKey), []byte(name))
	})
	if err != nil {
		return fmt.Errorf("unable to put default channel: %w", err)
	}

	return nil
}
