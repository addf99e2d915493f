package posts

import (
	"context"
	"sync"
	"time"
)

type recordKey struct {
	topic Topic
	key   string
}

// MemoryStore is a process-local Store used by the memory store driver and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used to stamp LastModified.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	if !rec.Topic.Valid() {
		return Record{}, ErrInvalidTopic
	}
	rec.LastModified = s.now()

	s.mu.Lock()
	s.records[recordKey{rec.Topic, rec.Key}] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, topic Topic, key string) (Record, error) {
	if !topic.Valid() {
		return Record{}, ErrInvalidTopic
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{topic, key}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListAll(ctx context.Context, topic Topic) ([]Record, error) {
	if !topic.Valid() {
		return nil, ErrInvalidTopic
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for k, rec := range s.records {
		if k.topic == topic {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, topic Topic, key string) error {
	if !topic.Valid() {
		return ErrInvalidTopic
	}
	s.mu.Lock()
	delete(s.records, recordKey{topic, key})
	s.mu.Unlock()
	return nil
}
