// Package store provides a BoltDB-backed history of discovered field hosts.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"fieldsync/internal/discovery"
)

var hostsBucket = []byte("hosts")

// HostRecord is the persisted history of one field host.
type HostRecord struct {
	Key          string     `msgpack:"key"`
	Hostname     string     `msgpack:"hostname"`
	Addr         string     `msgpack:"addr"`
	ControlPort  uint16     `msgpack:"control_port"`
	Interfaces   []int      `msgpack:"interfaces"`
	InstanceID   *uint32    `msgpack:"instance_id,omitempty"`
	StreamGroup  string     `msgpack:"stream_group,omitempty"`
	FirstSeen    time.Time  `msgpack:"first_seen"`
	LastSeen     time.Time  `msgpack:"last_seen"`
	Observations uint64     `msgpack:"observations"`
	Active       bool       `msgpack:"active"`
	BoundAt      *time.Time `msgpack:"bound_at,omitempty"`
}

// KeyOf returns the record key of a host: its control address, or the beacon
// source address when it offers no control channel.
func KeyOf(h discovery.Host) string {
	if h.ControlPort == 0 {
		return h.Addr.String()
	}
	return h.ControlAddr().String()
}

// Store wraps a bbolt database for host records.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	log zerolog.Logger
}

// New opens or creates a BoltDB file at the given path.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// Ensure the hosts bucket exists
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(hostsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hosts bucket: %w", err)
	}

	return &Store{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert records one observation of each host in a single transaction.
func (s *Store) Upsert(hosts ...discovery.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(hostsBucket)
		now := time.Now()

		for _, h := range hosts {
			key := KeyOf(h)
			var record HostRecord

			if existing := b.Get([]byte(key)); existing != nil {
				if err := msgpack.Unmarshal(existing, &record); err != nil {
					s.log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal existing record, overwriting")
					record = HostRecord{FirstSeen: now}
				}
				if !record.Active {
					s.log.Info().Str("key", key).Str("hostname", h.Hostname).Msg("Host active again")
				}
			} else {
				record.FirstSeen = now
				s.log.Info().
					Str("key", key).
					Str("hostname", h.Hostname).
					Str("addr", h.Addr.String()).
					Ints("interfaces", h.Interfaces).
					Msg("New host discovered")
			}

			record.Key = key
			record.Hostname = h.Hostname
			record.Addr = h.Addr.String()
			record.ControlPort = h.ControlPort
			record.Interfaces = h.Interfaces
			record.InstanceID = h.InstanceID
			record.StreamGroup = h.StreamGroup
			record.LastSeen = now
			record.Observations++
			record.Active = true

			data, err := msgpack.Marshal(&record)
			if err != nil {
				return fmt.Errorf("marshaling host record: %w", err)
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAll returns all host records.
func (s *Store) GetAll() ([]HostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []HostRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(hostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var record HostRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				s.log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt record")
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}

// GetActive returns only active host records.
func (s *Store) GetActive() ([]HostRecord, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}

	var active []HostRecord
	for _, r := range all {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

// MarkBound records that the node bound a telemetry stream to the host.
func (s *Store) MarkBound(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(hostsBucket)

		existing := b.Get([]byte(key))
		if existing == nil {
			return fmt.Errorf("host %s not found", key)
		}

		var record HostRecord
		if err := msgpack.Unmarshal(existing, &record); err != nil {
			return fmt.Errorf("unmarshaling record: %w", err)
		}

		now := time.Now()
		record.BoundAt = &now

		data, err := msgpack.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}

		s.log.Debug().
			Str("key", key).
			Str("hostname", record.Hostname).
			Msg("Host bound")

		return b.Put([]byte(key), data)
	})
}

// RunExpiry marks hosts inactive once their LastSeen exceeds threshold,
// checking every checkInterval until ctx is cancelled.
func (s *Store) RunExpiry(ctx context.Context, checkInterval, threshold time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireStaleHosts(threshold)
			}
		}
	}()
}

func (s *Store) expireStaleHosts(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-threshold)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(hostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var record HostRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				return nil
			}

			if record.Active && !record.LastSeen.After(cutoff) {
				record.Active = false

				s.log.Info().
					Str("key", record.Key).
					Str("hostname", record.Hostname).
					Time("last_seen", record.LastSeen).
					Msg("Host marked inactive")

				data, err := msgpack.Marshal(&record)
				if err != nil {
					return nil
				}
				return b.Put(k, data)
			}
			return nil
		})
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Database error during expiry check")
	}
}
