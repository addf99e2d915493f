package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/instapod/platform/pkg/common/database"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestAdmitCapsSerializedSubmissions(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore()
	tracker := NewTracker(store, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= DefaultDailyLimit; i++ {
		ok, err := tracker.Admit(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected submission %d to be admitted", i)
		}
		clock.Advance(time.Minute)
	}

	ok, err := tracker.Admit(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected submission beyond the cap to be denied")
	}

	history := store.History("alice")
	if len(history) != 1 || history[0].Count != DefaultDailyLimit {
		t.Fatalf("expected a single window with count %d, got %+v", DefaultDailyLimit, history)
	}
}

func TestAdmitNewWindowCountsTriggeringSubmission(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, WithClock(newClock().Now))

	if ok, err := tracker.Admit(context.Background(), "bob"); !ok || err != nil {
		t.Fatalf("expected admission, got %v, %v", ok, err)
	}
	history := store.History("bob")
	if len(history) != 1 || history[0].Count != 1 || history[0].Seq != 0 {
		t.Fatalf("expected fresh window with count 1, got %+v", history)
	}
}

func TestAdmitOpensNewWindowAfterExpiry(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore()
	tracker := NewTracker(store, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < DefaultDailyLimit; i++ {
		tracker.Admit(ctx, "carol")
	}
	if ok, _ := tracker.Admit(ctx, "carol"); ok {
		t.Fatal("expected denial at the cap")
	}

	clock.Advance(24 * time.Hour)
	if ok, _ := tracker.Admit(ctx, "carol"); ok {
		t.Fatal("expected window aged exactly 24h to still be active")
	}

	clock.Advance(time.Second)
	ok, err := tracker.Admit(ctx, "carol")
	if err != nil || !ok {
		t.Fatalf("expected admission in a new window, got %v, %v", ok, err)
	}

	history := store.History("carol")
	if len(history) != 2 {
		t.Fatalf("expected two windows, got %d", len(history))
	}
	if history[0].Count != DefaultDailyLimit || history[1].Count != 1 || history[1].Seq != 1 {
		t.Fatalf("unexpected window log %+v", history)
	}
}

func TestAdmitIsolatesIdentities(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), WithLimit(1), WithClock(newClock().Now))
	ctx := context.Background()

	if ok, _ := tracker.Admit(ctx, "a"); !ok {
		t.Fatal("expected a to be admitted")
	}
	if ok, _ := tracker.Admit(ctx, "b"); !ok {
		t.Fatal("expected b to be admitted")
	}
	if ok, _ := tracker.Admit(ctx, "a"); ok {
		t.Fatal("expected a to be denied")
	}
}

func TestAdmitConcurrentCallersNeverExceedCap(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, WithClock(newClock().Now))
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.Admit(ctx, "racer")
			if err != nil && !errors.Is(err, ErrContention) {
				t.Errorf("unexpected error: %v", err)
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() > DefaultDailyLimit {
		t.Fatalf("admitted %d submissions, cap is %d", admitted.Load(), DefaultDailyLimit)
	}
	total := 0
	for _, w := range store.History("racer") {
		total += w.Count
	}
	if total != int(admitted.Load()) {
		t.Fatalf("window counts %d disagree with admissions %d", total, admitted.Load())
	}
}

type failingStore struct{}

func (failingStore) Latest(ctx context.Context, identity string) (Window, bool, error) {
	return Window{}, false, database.Unavailable(errors.New("connection refused"))
}

func (failingStore) Open(ctx context.Context, w Window) error { return nil }

func (failingStore) Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error) {
	return false, nil
}

func TestAdmitFailsClosedOnStoreError(t *testing.T) {
	tracker := NewTracker(failingStore{})
	ok, err := tracker.Admit(context.Background(), "dave")
	if ok {
		t.Fatal("expected denial when the store is unavailable")
	}
	if !errors.Is(err, database.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type alwaysConflicting struct{ *MemoryStore }

func (alwaysConflicting) Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error) {
	return false, nil
}

func TestAdmitGivesUpUnderContention(t *testing.T) {
	store := alwaysConflicting{NewMemoryStore()}
	tracker := NewTracker(store, WithClock(newClock().Now))
	ctx := context.Background()

	if ok, _ := tracker.Admit(ctx, "erin"); !ok {
		t.Fatal("expected first admission to open a window")
	}
	ok, err := tracker.Admit(ctx, "erin")
	if ok || !errors.Is(err, ErrContention) {
		t.Fatalf("expected ErrContention, got %v, %v", ok, err)
	}
}

// stallingStore holds the first Increment call until release is closed.
type stallingStore struct {
	*MemoryStore
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (s *stallingStore) Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.reached)
		<-s.release
	}
	return s.MemoryStore.Increment(ctx, w, activeSince)
}

func TestAdmitDoesNotReuseSupersededWindow(t *testing.T) {
	clock := newClock()
	store := &stallingStore{
		MemoryStore: NewMemoryStore(),
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	ctx := context.Background()

	opened := clock.Now()
	if err := store.Open(ctx, Window{ID: uuid.New(), Identity: "frank", Count: 2, OpenedAt: opened}); err != nil {
		t.Fatalf("seed window: %v", err)
	}
	tracker := NewTracker(store, WithClock(clock.Now))

	clock.Advance(24*time.Hour - time.Second)
	slow := make(chan bool, 1)
	go func() {
		ok, err := tracker.Admit(ctx, "frank")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		slow <- ok
	}()
	<-store.reached

	clock.Advance(2 * time.Second)
	fresh := 0
	for i := 0; i < 10; i++ {
		ok, err := tracker.Admit(ctx, "frank")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			fresh++
		}
	}
	close(store.release)

	if <-slow {
		t.Fatal("expected stalled admission against the superseded window to be denied")
	}
	if fresh != DefaultDailyLimit {
		t.Fatalf("expected %d admissions in the new window, got %d", DefaultDailyLimit, fresh)
	}
	history := store.History("frank")
	if len(history) != 2 || history[0].Count != 2 || history[1].Count != DefaultDailyLimit {
		t.Fatalf("unexpected window log %+v", history)
	}
}

func TestMemoryIncrementRejectsExpiredWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	opened := newClock().Now()
	w := Window{ID: uuid.New(), Identity: "gina", Count: 1, OpenedAt: opened}
	if err := store.Open(ctx, w); err != nil {
		t.Fatalf("open: %v", err)
	}

	ok, err := store.Increment(ctx, w, opened.Add(time.Second))
	if err != nil || ok {
		t.Fatalf("expected increment outside the active period to fail, got %v, %v", ok, err)
	}
	ok, err = store.Increment(ctx, w, opened)
	if err != nil || !ok {
		t.Fatalf("expected increment inside the active period, got %v, %v", ok, err)
	}
	if ok, _ := store.Increment(ctx, w, opened); ok {
		t.Fatal("expected stale count to be rejected")
	}
}
