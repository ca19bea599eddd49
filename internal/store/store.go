// Package store persists sessions as one JSON document per session id,
// rewritten atomically on every mutation (spec.md §4.2). It is grounded in
// the teacher's internal/storage package: the write-to-temp-then-rename
// pattern and the per-path flock are kept nearly verbatim; everything above
// that layer is rewritten against this project's flatter, non-project-
// namespaced document shape.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// ErrNotFound is returned when a session id has no backing document.
var ErrNotFound = fmt.Errorf("session not found")

// ErrCorrupt is returned when a document fails validation after migration.
// The spec requires such loads to surface an error, never a silent repair.
type ErrCorrupt struct {
	SessionID string
	Cause     error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("session %s: corrupt after migration: %v", e.SessionID, e.Cause)
}

func (e *ErrCorrupt) Unwrap() error { return e.Cause }

// ErrInvalidIndex is returned by EditMessage for an out-of-range or
// non-user target index (spec.md §4.2, INVALID_MESSAGE_INDEX).
var ErrInvalidIndex = fmt.Errorf("invalid message index")

// Store is a directory of {session_id}.json documents.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*fileLock
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*fileLock)}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockFor(id string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = newFileLock(s.path(id))
		s.locks[id] = l
	}
	return l
}

// Create persists a brand-new session document with a fresh id.
func (s *Store) Create(model string, system *types.Message) (*types.Document, error) {
	now := time.Now().UTC()
	doc := &types.Document{
		Metadata: types.Metadata{
			SessionID:           types.NewID(),
			Model:               model,
			CreatedAt:           now,
			UpdatedAt:           now,
			FormatVersion:       types.FormatVersion,
			ToolSettings:        types.DefaultToolSettings(),
			AgentSettings:       types.DefaultAgentSettings(),
			ContextWindowConfig: types.ContextWindowConfig{CurrentWindow: 8192, LastModel: model},
		},
	}
	if system != nil {
		doc.Messages = append(doc.Messages, *system)
	}
	doc.Touch(now)
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get loads and migrates a session document.
func (s *Store) Get(id string) (*types.Document, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var envelope struct {
		Metadata map[string]any    `json:"metadata"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ErrCorrupt{SessionID: id, Cause: err}
	}

	migrateRaw(envelope.Metadata)

	migrated, err := json.Marshal(struct {
		Metadata map[string]any    `json:"metadata"`
		Messages []json.RawMessage `json:"messages"`
	}{envelope.Metadata, envelope.Messages})
	if err != nil {
		return nil, &ErrCorrupt{SessionID: id, Cause: err}
	}

	var doc types.Document
	if err := json.Unmarshal(migrated, &doc); err != nil {
		return nil, &ErrCorrupt{SessionID: id, Cause: err}
	}
	if err := types.ValidateMessages(doc.Messages); err != nil {
		return nil, &ErrCorrupt{SessionID: id, Cause: err}
	}

	return &doc, nil
}

// write rewrites the document atomically: encode to a temp file in the same
// directory, then rename over the target. Rename is atomic on the same
// filesystem, so readers never observe a partially-written document.
func (s *Store) write(doc *types.Document) error {
	l := s.lockFor(doc.Metadata.SessionID)
	if err := l.Lock(); err != nil {
		return fmt.Errorf("store: lock: %w", err)
	}
	defer l.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	target := s.path(doc.Metadata.SessionID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

// List returns summaries sorted by updated_at descending (spec.md §4.2).
func (s *Store) List() ([]types.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var summaries []types.Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		doc, err := s.Get(id)
		if err != nil {
			continue // skip unreadable/corrupt documents, as the teacher's Scan does
		}
		summaries = append(summaries, types.Summary{
			SessionID: doc.Metadata.SessionID,
			Model:     doc.Metadata.Model,
			CreatedAt: doc.Metadata.CreatedAt,
			UpdatedAt: doc.Metadata.UpdatedAt,
			Preview:   preview(doc.Messages),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func preview(messages []types.Message) string {
	for _, m := range messages {
		if m.Role != types.RoleUser {
			continue
		}
		if len(m.Content) <= 100 {
			return m.Content
		}
		return m.Content[:100] + "..."
	}
	return ""
}

// Delete removes a session document. Idempotent: deleting a missing session
// is not an error.
func (s *Store) Delete(id string) error {
	l := s.lockFor(id)
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Put rewrites an already-loaded document, advancing updated_at and
// message_count. Callers mutate the in-memory Document then call Put.
func (s *Store) Put(doc *types.Document) error {
	doc.Touch(time.Now().UTC())
	return s.write(doc)
}

// AppendMessage appends a message and persists the document.
func (s *Store) AppendMessage(doc *types.Document, m types.Message) error {
	doc.Messages = append(doc.Messages, m)
	return s.Put(doc)
}

// EditMessage replaces the content of the user message at index and
// truncates every message after it (spec.md §4.2).
func (s *Store) EditMessage(doc *types.Document, index int, content string) error {
	if index < 0 || index >= len(doc.Messages) {
		return ErrInvalidIndex
	}
	if doc.Messages[index].Role != types.RoleUser {
		return ErrInvalidIndex
	}
	doc.Messages[index].Content = content
	doc.Messages[index].Timestamp = time.Now().UTC()
	doc.Messages = doc.Messages[:index+1]
	return s.Put(doc)
}

// SetSystemMessage replaces position 0 if it already holds a system message,
// otherwise inserts a new system message at position 0 and leaves the rest
// of the history intact (spec.md §4.2).
func (s *Store) SetSystemMessage(doc *types.Document, content string, source *string) error {
	msg := types.NewSystemMessage(content, source)
	if len(doc.Messages) > 0 && doc.Messages[0].Role == types.RoleSystem {
		msg.ID = doc.Messages[0].ID
		doc.Messages[0] = msg
	} else {
		doc.Messages = append([]types.Message{msg}, doc.Messages...)
	}
	return s.Put(doc)
}

// RemoveSystemMessage removes the system message at position 0, if present.
func (s *Store) RemoveSystemMessage(doc *types.Document) error {
	if len(doc.Messages) > 0 && doc.Messages[0].Role == types.RoleSystem {
		doc.Messages = doc.Messages[1:]
	}
	return s.Put(doc)
}

// GetMessages returns the message slice without rewriting the document.
func (s *Store) GetMessages(doc *types.Document) []types.Message {
	return doc.Messages
}
