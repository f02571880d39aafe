package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/igniteclient/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketState                = []byte("state")
	bucketInvalidTimestampEvts = []byte("invalid_timestamp_events")
)

const ignitionCountKey = "IGNITION_COUNT"

// BoltStore implements Store on top of bbolt, holding the device's flat
// persisted key-value state and the bounded invalid-timestamp-event
// overflow table.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (creating if absent) the ignite client's state
// database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "igniteclient.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketState, bucketInvalidTimestampEvts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) GetString(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketState).Get([]byte(key))
		if data != nil {
			val = string(data)
		}
		return nil
	})
	return val, err
}

func (s *BoltStore) SetString(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) GetBool(key string) (bool, error) {
	v, err := s.GetString(key)
	return v == "true", err
}

func (s *BoltStore) SetBool(key string, value bool) error {
	if value {
		return s.SetString(key, "true")
	}
	return s.SetString(key, "false")
}

func (s *BoltStore) GetFloat(key string) (float64, error) {
	v, err := s.GetString(key)
	if err != nil || v == "" {
		return 0, err
	}
	var f float64
	if _, scanErr := fmt.Sscanf(v, "%g", &f); scanErr != nil {
		return 0, fmt.Errorf("parse float key %s: %w", key, scanErr)
	}
	return f, nil
}

func (s *BoltStore) SetFloat(key string, value float64) error {
	return s.SetString(key, fmt.Sprintf("%g", value))
}

func (s *BoltStore) GetIgnitionCount() (int64, error) {
	v, err := s.GetString(ignitionCountKey)
	if err != nil || v == "" {
		return 0, err
	}
	var n int64
	if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr != nil {
		return 0, fmt.Errorf("parse ignition count: %w", scanErr)
	}
	return n, nil
}

func (s *BoltStore) SetIgnitionCount(n int64) error {
	return s.SetString(ignitionCountKey, fmt.Sprintf("%d", n))
}

// PutInvalidTimestampEvent appends eventJSON to the overflow table under a
// monotonically increasing row id (bbolt's NextSequence), then purges the
// oldest rows until the table holds at most maxRows entries, keeping the
// InvalidTimestampEvent table bounded.
func (s *BoltStore) PutInvalidTimestampEvent(eventJSON string, maxRows int) (*types.InvalidTimestampEvent, error) {
	var stored types.InvalidTimestampEvent
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvalidTimestampEvts)
		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		stored = types.InvalidTimestampEvent{RowID: int64(id), EventJSON: eventJSON}
		if err := b.Put(rowKey(stored.RowID), []byte(stored.EventJSON)); err != nil {
			return err
		}
		return purgeOldestLocked(b, maxRows)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func purgeOldestLocked(b *bolt.Bucket, maxRows int) error {
	if maxRows <= 0 {
		return nil
	}
	// Count through a cursor: Stats() does not see the row put earlier in
	// this same write transaction.
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte{}, k...))
	}
	for i := 0; i < len(keys)-maxRows; i++ {
		if err := b.Delete(keys[i]); err != nil {
			return err
		}
	}
	return nil
}

// DrainInvalidTimestampEvents returns every overflowed event in row-id
// (arrival) order and deletes them from the table — the timestamp
// validator calls this once the first valid timestamp arrives, to replay
// the whole overflow burst with a fixed-up timestamp.
func (s *BoltStore) DrainInvalidTimestampEvents() ([]types.InvalidTimestampEvent, error) {
	var out []types.InvalidTimestampEvent
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvalidTimestampEvts)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			out = append(out, types.InvalidTimestampEvent{
				RowID:     int64(binary.BigEndian.Uint64(k)),
				EventJSON: string(v),
			})
			keys = append(keys, append([]byte{}, k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// CountInvalidTimestampEvents reports how many rows the overflow table
// currently holds, without draining them.
func (s *BoltStore) CountInvalidTimestampEvents() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketInvalidTimestampEvts).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) DBSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat database: %w", err)
	}
	return info.Size(), nil
}

func rowKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}
