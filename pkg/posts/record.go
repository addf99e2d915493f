package posts

import (
	"context"
	"time"
)

// Record is one accepted submission. Key is always DeriveKey(RawID).
type Record struct {
	Topic        Topic
	Key          string
	RawID        string
	Mode         Mode
	Identity     string
	LastModified time.Time
}

// Store keeps submission records partitioned by topic. Implementations reject
// unknown topics with ErrInvalidTopic before touching storage.
type Store interface {
	// Upsert writes rec under (rec.Topic, rec.Key), replacing any existing record,
	// and stamps LastModified.
	Upsert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, topic Topic, key string) (Record, error)
	// ListAll returns a snapshot of every record in topic, in no particular order.
	ListAll(ctx context.Context, topic Topic) ([]Record, error)
	// Delete removes the record if present. Deleting a missing key is not an error.
	Delete(ctx context.Context, topic Topic, key string) error
}
