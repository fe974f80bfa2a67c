package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/remind/internal/model"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a local edit waiting to be replayed against the server.
type Change struct {
	ID        uuid.UUID   `json:"id"`
	Op        Op          `json:"op"`
	Event     model.Event `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
}

type snapshot struct {
	Events  []model.Event `json:"events"`
	Pending []Change      `json:"pending"`
}

// State holds the local event list and the pending change queue. With a
// path it persists to a JSON file on Save; without one it lives in memory.
type State struct {
	mu      sync.Mutex
	path    string
	events  map[int64]model.Event
	pending []Change
}

func NewState() *State {
	return &State{events: make(map[int64]model.Event)}
}

// LoadState reads path if it exists. A missing file yields an empty state
// bound to path.
func LoadState(path string) (*State, error) {
	s := NewState()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode sync state: %w", err)
	}
	for _, e := range snap.Events {
		s.events[e.ID] = e
	}
	s.pending = snap.Pending
	return s, nil
}

// Save writes the state atomically. It is a no-op for in-memory state.
func (s *State) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	snap := snapshot{Events: s.sortedEvents(), Pending: append([]Change(nil), s.pending...)}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sync state: %w", err)
	}
	return nil
}

func (s *State) sortedEvents() []model.Event {
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Events returns the local events ordered by start time.
func (s *State) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedEvents()
}

func (s *State) Get(id int64) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	return e, ok
}

func (s *State) Put(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *State) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
}

func (s *State) Pending() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.pending...)
}

func (s *State) Enqueue(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, c)
}

// Dequeue removes the changes with the given ids. Changes enqueued while a
// sync was running are untouched.
func (s *State) Dequeue(ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, c := range s.pending {
		if _, ok := drop[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	s.pending = kept
}
