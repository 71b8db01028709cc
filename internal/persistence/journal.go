// Package persistence — journal.go
//
// Append-only NDJSON journals for overrides.log and preferences.log
// (§4.K). Adapted from the BoltDB ledger's ACID-append discipline in
// patterns.go's sibling store: each write is a single atomic append
// under O_APPEND, and the writer fsyncs after each record so a crash
// between writes never loses more than the in-flight record.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// OverrideEvent is one overrides.log record (§4.K: "timestamp, control,
// scenario, value").
type OverrideEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"` // "record" or "clear"
	Control   string    `json:"control"`
	Scenario  string    `json:"scenario,omitempty"`
	Value     string    `json:"value,omitempty"`
}

// PreferenceEvent is one preferences.log record (§4.K: "(control,
// old_value, new_value, snapshot_context) tuples for offline learning").
type PreferenceEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	Control         string    `json:"control"`
	OldValue        string    `json:"old_value"`
	NewValue        string    `json:"new_value"`
	SnapshotContext string    `json:"snapshot_context"`
}

// Journal is a single append-only NDJSON log file. Safe for concurrent
// use by multiple goroutines in one process; BoltDB-style cross-process
// locking is not needed since a single thermopilotd owns the file.
type Journal struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJournal opens (creating if necessary) an append-only NDJSON file
// at path with owner-only permissions.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("persistence.OpenJournal(%q): %w", path, err)
	}
	return &Journal{file: f}, nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	return j.file.Close()
}

// Append writes one record as a single NDJSON line, fsyncing before
// returning so a crash immediately after Append cannot lose the record.
func (j *Journal) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persistence.Journal.Append marshal: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("persistence.Journal.Append write: %w", err)
	}
	return j.file.Sync()
}

// OverrideLog wraps a Journal with OverrideEvent-typed helpers.
type OverrideLog struct{ j *Journal }

// OpenOverrideLog opens overrides.log at path.
func OpenOverrideLog(path string) (*OverrideLog, error) {
	j, err := OpenJournal(path)
	if err != nil {
		return nil, err
	}
	return &OverrideLog{j: j}, nil
}

// Close closes the underlying file.
func (l *OverrideLog) Close() error { return l.j.Close() }

// RecordOverride appends a "record" event.
func (l *OverrideLog) RecordOverride(control, scenario, value string) error {
	return l.j.Append(OverrideEvent{Timestamp: time.Now().UTC(), Action: "record", Control: control, Scenario: scenario, Value: value})
}

// ClearOverride appends a "clear" event.
func (l *OverrideLog) ClearOverride(control string) error {
	return l.j.Append(OverrideEvent{Timestamp: time.Now().UTC(), Action: "clear", Control: control})
}

// PreferenceLog wraps a Journal with PreferenceEvent-typed helpers.
type PreferenceLog struct{ j *Journal }

// OpenPreferenceLog opens preferences.log at path.
func OpenPreferenceLog(path string) (*PreferenceLog, error) {
	j, err := OpenJournal(path)
	if err != nil {
		return nil, err
	}
	return &PreferenceLog{j: j}, nil
}

// Close closes the underlying file.
func (l *PreferenceLog) Close() error { return l.j.Close() }

// RecordChange appends one learned-preference tuple.
func (l *PreferenceLog) RecordChange(control, oldValue, newValue, snapshotContext string) error {
	return l.j.Append(PreferenceEvent{
		Timestamp:       time.Now().UTC(),
		Control:         control,
		OldValue:        oldValue,
		NewValue:        newValue,
		SnapshotContext: snapshotContext,
	})
}
