package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	bolt "go.etcd.io/bbolt"
)

// DBFile is the journal file name inside the data directory
const DBFile = "burrow.db"

// lockTimeout bounds the wait for the file lock held by another process
const lockTimeout = time.Second

var (
	// Bucket names
	bucketEvents    = []byte("events")
	bucketProcesses = []byte("processes")
)

// BoltJournal implements Journal using BoltDB
type BoltJournal struct {
	db *bolt.DB
}

// NewBoltJournal opens (creating if needed) the journal in dataDir
func NewBoltJournal(dataDir string) (*BoltJournal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, DBFile), 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketProcesses} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltJournal{db: db}, nil
}

// Close closes the database
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

// Append stores the event under the next sequence number
func (j *BoltJournal) Append(event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		if event.Role == "" || event.Process == "" {
			return nil
		}
		state := &ProcessState{
			RunID:     event.Metadata["run"],
			Role:      event.Role,
			Name:      event.Process,
			Pid:       event.Pid,
			Status:    event.Status,
			LastEvent: string(event.Type),
			UpdatedAt: event.Timestamp,
		}
		sdata, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcesses).Put(processKey(event.Role, event.Process), sdata)
	})
}

// Events returns the most recent events, oldest first
func (j *BoltJournal) Events(limit int) ([]*events.Event, error) {
	var out []*events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev events.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Processes returns the last known state of every journaled process
func (j *BoltJournal) Processes() ([]*ProcessState, error) {
	var out []*ProcessState
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcesses).ForEach(func(k, v []byte) error {
			var state ProcessState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			out = append(out, &state)
			return nil
		})
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func processKey(role, name string) []byte {
	return []byte(role + "/" + name)
}
