package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/instapod/platform/pkg/common/logger"
)

const (
	DefaultDailyLimit = 5
	DefaultWindow     = 24 * time.Hour

	maxAttempts = 8
)

// Tracker enforces a per-identity cap of Limit admissions per rolling window.
type Tracker struct {
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
}

type Option func(*Tracker)

func WithLimit(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store WindowStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		limit:  DefaultDailyLimit,
		window: DefaultWindow,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Limit() int { return t.limit }

// Admit decides whether identity may submit now and records the admission.
// A window older than the configured length is superseded by a new one whose
// count already includes the triggering submission. Any error means the
// submission must not be admitted.
func (t *Tracker) Admit(ctx context.Context, identity string) (bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		latest, found, err := t.store.Latest(ctx, identity)
		if err != nil {
			return false, err
		}

		now := t.now()
		if !found || now.Sub(latest.OpenedAt) > t.window {
			next := Window{
				ID:       uuid.New(),
				Identity: identity,
				Count:    1,
				OpenedAt: now,
			}
			if found {
				next.Seq = latest.Seq + 1
			}
			err := t.store.Open(ctx, next)
			if errors.Is(err, ErrConflict) {
				continue
			}
			if err != nil {
				return false, err
			}
			logger.Log.WithFields(map[string]interface{}{
				"identity": identity,
				"seq":      next.Seq,
			}).Debug("opened usage window")
			return true, nil
		}

		if latest.Count >= t.limit {
			return false, nil
		}

		ok, err := t.store.Increment(ctx, latest, now.Add(-t.window))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	logger.Log.WithField("identity", identity).Warn("quota admission gave up after repeated conflicts")
	return false, ErrContention
}
