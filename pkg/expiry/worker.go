package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/common/models"
	"github.com/instapod/platform/pkg/posts"
)

// Worker triggers sweeps on a fixed interval and on request events.
type Worker struct {
	sweeper  *Sweeper
	interval time.Duration
}

func NewWorker(sweeper *Sweeper, interval time.Duration) *Worker {
	return &Worker{sweeper: sweeper, interval: interval}
}

// Run sweeps every topic each interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.sweeper.SweepAll(ctx); err != nil {
				logger.Log.WithError(err).Warn("periodic sweep incomplete")
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleEvent sweeps the topic named in a sweep.requested event, or every
// topic when none is given. Other event types are ignored. Malformed requests
// are dropped rather than retried.
func (w *Worker) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventSweepRequested {
		return nil
	}

	raw, _ := event.Data["topic"].(string)
	if raw == "" {
		_, err := w.sweeper.SweepAll(ctx)
		return err
	}

	topic, err := posts.ParseTopic(raw)
	if err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"event_id": event.ID,
			"topic":    raw,
		}).Warn("dropping sweep request for unknown topic")
		return nil
	}

	if _, err := w.sweeper.Sweep(ctx, topic); err != nil {
		return fmt.Errorf("sweeping %s: %w", topic, err)
	}
	return nil
}
