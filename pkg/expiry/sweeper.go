package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/common/models"
	"github.com/instapod/platform/pkg/observability/metrics"
	"github.com/instapod/platform/pkg/posts"
)

const DefaultRetention = 12 * time.Hour

type Action string

const (
	ActionDeleted Action = "deleted"
	ActionKept    Action = "kept"
)

type Entry struct {
	Key    string        `json:"key"`
	Action Action        `json:"action"`
	Age    time.Duration `json:"age"`
}

// String renders the entry the way sweep reports are returned to clients.
func (e Entry) String() string {
	if e.Action == ActionDeleted {
		return "Deleted: " + e.Key
	}
	return "recent: " + e.Key
}

// Run is one completed sweep over a topic.
type Run struct {
	ID         uuid.UUID
	Topic      posts.Topic
	Entries    []Entry
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) Counts() (deleted, kept int) {
	for _, e := range r.Entries {
		if e.Action == ActionDeleted {
			deleted++
		} else {
			kept++
		}
	}
	return deleted, kept
}

// RunLog keeps the history of sweeps.
type RunLog interface {
	Append(ctx context.Context, run Run) error
	Recent(ctx context.Context, topic posts.Topic, limit int) ([]Run, error)
}

// Sweeper deletes records whose last modification is older than the retention
// period. A sweep is a best-effort pass: records that fail to delete are
// reported as kept and picked up again by the next run.
type Sweeper struct {
	store     posts.Store
	retention time.Duration
	now       func() time.Time
	runs      RunLog
	events    posts.EventPublisher
}

type Option func(*Sweeper)

func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithRunLog(runs RunLog) Option {
	return func(s *Sweeper) { s.runs = runs }
}

func WithEvents(events posts.EventPublisher) Option {
	return func(s *Sweeper) { s.events = events }
}

func NewSweeper(store posts.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		retention: DefaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) Retention() time.Duration { return s.retention }

// RunLog returns the configured sweep history, or nil.
func (s *Sweeper) RunLog() RunLog { return s.runs }

// Sweep inspects every record in topic. Records older than the retention
// period are deleted; a record aged exactly the retention period is kept.
func (s *Sweeper) Sweep(ctx context.Context, topic posts.Topic) ([]Entry, error) {
	if !topic.Valid() {
		return nil, posts.ErrInvalidTopic
	}

	startedAt := s.now()
	records, err := s.store.ListAll(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", topic, err)
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		age := s.now().Sub(rec.LastModified)
		entry := Entry{Key: rec.Key, Action: ActionKept, Age: age}
		if age > s.retention {
			if err := s.store.Delete(ctx, topic, rec.Key); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"topic": topic,
					"key":   rec.Key,
				}).Warn("failed to delete expired post")
			} else {
				entry.Action = ActionDeleted
			}
		}
		entries = append(entries, entry)
	}

	run := Run{
		ID:         uuid.New(),
		Topic:      topic,
		Entries:    entries,
		StartedAt:  startedAt,
		FinishedAt: s.now(),
	}
	s.finish(ctx, run)
	return entries, nil
}

// SweepAll sweeps every topic and returns the entries per topic. It keeps
// going after a failed topic and returns the first error seen.
func (s *Sweeper) SweepAll(ctx context.Context) (map[posts.Topic][]Entry, error) {
	results := make(map[posts.Topic][]Entry, len(posts.Topics))
	var firstErr error
	for _, topic := range posts.Topics {
		entries, err := s.Sweep(ctx, topic)
		if err != nil {
			logger.Log.WithError(err).WithField("topic", topic).Error("sweep failed")
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return results, firstErr
			}
			continue
		}
		results[topic] = entries
	}
	return results, firstErr
}

func (s *Sweeper) finish(ctx context.Context, run Run) {
	deleted, kept := run.Counts()
	metrics.ObserveSweep(deleted, kept)

	logger.Log.WithFields(map[string]interface{}{
		"topic":   run.Topic,
		"deleted": deleted,
		"kept":    kept,
	}).Info("sweep completed")

	if s.runs != nil {
		if err := s.runs.Append(ctx, run); err != nil {
			logger.Log.WithError(err).WithField("topic", run.Topic).Warn("failed to record sweep run")
		}
	}

	if s.events != nil && deleted > 0 {
		keys := make([]string, 0, deleted)
		for _, e := range run.Entries {
			if e.Action == ActionDeleted {
				keys = append(keys, e.Key)
			}
		}
		err := s.events.PublishEvent(ctx, models.EventPostExpired, string(run.Topic), map[string]interface{}{
			"topic":  run.Topic,
			"keys":   keys,
			"run_id": run.ID.String(),
		})
		if err != nil {
			logger.Log.WithError(err).WithField("topic", run.Topic).Warn("failed to emit expiry event")
		}
	}
}
