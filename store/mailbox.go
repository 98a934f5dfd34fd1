package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrorsSource is the reserved mailbox source supervisor failure
// notifications are posted under (spec.md §3).
const ErrorsSource = "@errors"

// Message is a single mailbox entry.
type Message struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Mailbox is a JSON-file-backed message log addressable by source tag
// (spec.md §4.4, mailbox.json).
type Mailbox struct {
	mu       sync.Mutex
	path     string
	messages []Message
}

// NewMailbox opens (or creates) the mailbox document at path.
func NewMailbox(path string) (*Mailbox, error) {
	m := &Mailbox{path: path}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mailbox) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.messages = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read mailbox: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &m.messages); err != nil {
		return fmt.Errorf("parse mailbox: %w", err)
	}
	return nil
}

// persist must be called with m.mu held.
func (m *Mailbox) persist() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create mailbox dir: %w", err)
	}
	data, err := json.MarshalIndent(m.messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mailbox: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write mailbox: %w", err)
	}
	return nil
}

// Add stamps a message with the current time, persists it, and returns the
// stored record.
func (m *Mailbox) Add(source, text string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Source:    source,
		Timestamp: time.Now().Format(time.RFC1123),
		Message:   text,
	}
	m.messages = append(m.messages, msg)
	if err := m.persist(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListBy returns all messages with the given source. Unordered; callers
// that need order sort by Timestamp (spec.md §4.4).
func (m *Mailbox) ListBy(source string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.Source == source {
			out = append(out, msg)
		}
	}
	return out
}

// ListAll returns every message.
func (m *Mailbox) ListAll() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ClearBy removes every message with the given source and returns what was
// removed.
func (m *Mailbox) ClearBy(source string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make([]Message, 0)
	kept := make([]Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Source == source {
			removed = append(removed, msg)
		} else {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	if err := m.persist(); err != nil {
		return nil, err
	}
	return removed, nil
}

// ClearAll removes every message and returns what was removed.
func (m *Mailbox) ClearAll() ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.messages
	m.messages = nil
	if err := m.persist(); err != nil {
		return nil, err
	}
	return removed, nil
}

// Count returns the total number of messages.
func (m *Mailbox) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
