package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
)

const (
	boltFileMode   os.FileMode = 0o600
	boltBucketName             = "settings"
	boltTimeout                = 5 * time.Second
)

var errBoltBucketMissing = errors.New("settings: bolt bucket missing")

type boltRow struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// BoltStore implements Store on a single bbolt file.
//
// bbolt allows one writer and many readers per file and takes an exclusive
// file lock, so only one process may hold the store open at a time.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("settings: bolt path is required")
	}
	db, err := bbolt.Open(path, boltFileMode, &bbolt.Options{Timeout: boltTimeout})
	if err != nil {
		return nil, fmt.Errorf("settings: opening boltdb %s: %w", path, err)
	}
	return &BoltStore{db: db, bucket: []byte(boltBucketName)}, nil
}

// Init creates the bucket and seeds missing default rows.
func (s *BoltStore) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		for _, def := range Defaults {
			if bucket.Get([]byte(def.Key)) != nil {
				continue
			}
			raw, err := json.Marshal(boltRow{Value: def.Value, Description: def.Description})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(def.Key), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings: initializing bolt bucket: %w", err)
	}
	return nil
}

// All returns every row in display order.
func (s *BoltStore) All(ctx context.Context) ([]Setting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Setting
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return errBoltBucketMissing
		}
		return bucket.ForEach(func(k, v []byte) error {
			var row boltRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, Setting{Key: string(k), Value: row.Value, Description: row.Description})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	sortSettings(out)
	return out, nil
}

// Get returns the value stored under key.
func (s *BoltStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var (
		row   boltRow
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return errBoltBucketMissing
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &row)
	})
	if err != nil {
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return row.Value, nil
}

// Update replaces the value of an existing key, keeping its description.
func (s *BoltStore) Update(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return errBoltBucketMissing
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var row boltRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}
		row.Value = value
		updated, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), updated)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("settings: update %s: %w", key, err)
	}
	return nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
