package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/common/models"
	"github.com/segmentio/kafka-go"
)

const (
	handleAttempts = 3
	handleBackoff  = 500 * time.Millisecond
)

type Consumer struct {
	reader *kafka.Reader
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6, // 1MB
	})

	return &Consumer{reader: reader}
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("Failed to fetch message")
			continue
		}

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Log.WithError(err).Error("Failed to unmarshal event")
			c.commit(ctx, message)
			continue
		}

		if err := handleWithRetry(ctx, handler, event, handleAttempts, handleBackoff); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The reader has already moved past this offset, so a later commit
			// would skip it anyway. Commit now and record the drop.
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"attempts":   handleAttempts,
			}).Error("Dropping event after repeated handler failures")
		}

		c.commit(ctx, message)
	}
}

// handleWithRetry runs handler up to attempts times, doubling delay between
// failures. It returns the last handler error, or ctx.Err() if cancelled.
func handleWithRetry(ctx context.Context, handler EventHandler, event models.Event, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = handler(ctx, event); err == nil {
			return nil
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"attempt":    i + 1,
		}).Warn("Failed to process event")
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		logger.Log.WithError(err).Error("Failed to commit message")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
