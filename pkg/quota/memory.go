package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process. The log per identity is append-only.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]Window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]Window)}
}

func (s *MemoryStore) Latest(ctx context.Context, identity string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.windows[identity]
	if len(log) == 0 {
		return Window{}, false, nil
	}
	return log[len(log)-1], true, nil
}

func (s *MemoryStore) Open(ctx context.Context, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.windows[w.Identity]
	if len(log) > 0 && log[len(log)-1].Seq >= w.Seq {
		return ErrConflict
	}
	s.windows[w.Identity] = append(log, w)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.windows[w.Identity]
	if len(log) == 0 {
		return false, nil
	}
	last := &log[len(log)-1]
	if last.ID != w.ID || last.Count != w.Count || last.OpenedAt.Before(activeSince) {
		return false, nil
	}
	last.Count++
	return true, nil
}

// History returns a copy of every window recorded for identity, oldest first.
func (s *MemoryStore) History(identity string) []Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Window(nil), s.windows[identity]...)
}
