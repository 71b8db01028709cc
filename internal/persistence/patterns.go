// Package persistence implements the on-disk layout named in §4.K/§6:
// append-only journals for overrides and learned preferences, a rotated
// health log, and the pattern-learner's opaque versioned blob.
//
// Concurrency:
//   - patterns.bin is single-process, single-writer (bbolt does not
//     support concurrent writers). All writes use ACID transactions.
//   - overrides.log / preferences.log are append-only; each write opens
//     under O_APPEND so concurrent writers from the same process never
//     interleave mid-line, matching the ledger's append discipline.
//
// Failure modes:
//   - patterns.bin corruption is detected by bbolt's CRC on Open and
//     returns an error; the caller logs and continues without a learner,
//     the engine still operates (§4.K is additive, not load-bearing).
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// PatternsSchemaVersion is the current patterns.bin schema version.
	PatternsSchemaVersion = "1"

	bucketPatterns = "patterns"
	bucketMeta     = "meta"

	metaSchemaVersionKey = "schema_version"
)

// PatternStore wraps a single-bucket BoltDB file holding the ML
// pattern-learner's opaque, versioned blob (§4.K: "patterns.bin
// versioned-header opaque blob").
type PatternStore struct {
	db *bolt.DB
}

// OpenPatternStore opens (or creates) patterns.bin at path, initialising
// the patterns and meta buckets and verifying the schema version.
func OpenPatternStore(path string) (*PatternStore, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	s := &PatternStore{db: bdb}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketPatterns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte(metaSchemaVersionKey)) == nil {
			return meta.Put([]byte(metaSchemaVersionKey), []byte(PatternsSchemaVersion))
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("patterns.bin initialisation failed: %w", err)
	}

	if err := s.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return s, nil
}

func (s *PatternStore) checkSchemaVersion() error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketMeta)).Get([]byte(metaSchemaVersionKey))
		if string(v) != PatternsSchemaVersion {
			return fmt.Errorf("patterns.bin schema mismatch: have %q, need %q", string(v), PatternsSchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (s *PatternStore) Close() error {
	return s.db.Close()
}

// Put stores an opaque, versioned blob for a learner-chosen key (e.g. a
// per-control or per-scenario pattern identifier).
func (s *PatternStore) Put(key string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPatterns)).Put([]byte(key), blob)
	})
}

// Get retrieves the blob for key. Returns (nil, false) if absent.
func (s *PatternStore) Get(key string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketPatterns)).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	return out, found, err
}

// PutJSON is a convenience wrapper that marshals v before storing it.
func (s *PatternStore) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("PutJSON marshal: %w", err)
	}
	return s.Put(key, data)
}

// Keys returns every key currently stored, for diagnostics.
func (s *PatternStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPatterns)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
