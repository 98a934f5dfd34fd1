// Package store implements the durable, append-mostly JSON documents the
// supervisor core reads and writes: the run-status store (one entry per
// job invocation) and the mailbox (messages addressable by source tag).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// RunStatusEntry is a persistent record of a single job invocation.
// StatusCode is nil while the invocation is still running.
type RunStatusEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Timestamp  int64  `json:"timestamp"`
	StatusCode *int   `json:"statusCode,omitempty"`
}

// RunStatusStore is a JSON-file-backed collection of RunStatusEntry
// records, one document per chron data directory (spec.md §4.3,
// jobStatus.json). Writes are serialized through a mutex; persistence is
// best-effort, matching spec.md §5 "Shared resources".
type RunStatusStore struct {
	mu      sync.Mutex
	path    string
	entries []RunStatusEntry
}

// NewRunStatusStore opens (or creates) the run-status document at path.
func NewRunStatusStore(path string) (*RunStatusStore, error) {
	s := &RunStatusStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RunStatusStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read run-status store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return fmt.Errorf("parse run-status store: %w", err)
	}
	return nil
}

// persist must be called with s.mu held.
func (s *RunStatusStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run-status store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write run-status store: %w", err)
	}
	return nil
}

// NewID returns a fresh unique entry id.
func NewID() string {
	return uuid.NewString()
}

// Insert persists a new entry immediately. Callers create the entry with a
// fresh ID (NewID) before the child process is spawned, per spec.md §3
// invariant 3.
func (s *RunStatusStore) Insert(e RunStatusEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.persist()
}

// Update patches the status code of the entry with the given id.
func (s *RunStatusStore) Update(id string, statusCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			code := statusCode
			s.entries[i].StatusCode = &code
			return s.persist()
		}
	}
	return fmt.Errorf("run-status entry %q not found", id)
}

// FindByName returns all entries for the given job name, in no particular
// order; callers that need ordering sort the result (spec.md §4.3).
func (s *RunStatusStore) FindByName(name string) []RunStatusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunStatusEntry, 0)
	for _, e := range s.entries {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// LastTimestamp returns the most recent invocation timestamp recorded for
// name, used by the missed-run catch-up algorithm (spec.md §4.1).
func (s *RunStatusStore) LastTimestamp(name string) (timestamp int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	var last int64
	for _, e := range s.entries {
		if e.Name != name {
			continue
		}
		if !found || e.Timestamp > last {
			last = e.Timestamp
			found = true
		}
	}
	return last, found
}
