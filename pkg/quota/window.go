package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConflict reports that a conditional write lost a race.
	ErrConflict = errors.New("usage window changed concurrently")
	// ErrContention is returned by Admit when every attempt lost a race.
	ErrContention = errors.New("quota admission contended")
)

// Window is one daily quota window for an identity. Windows are never deleted;
// the one with the highest Seq is the most recent.
type Window struct {
	ID       uuid.UUID
	Identity string
	Seq      int64
	Count    int
	OpenedAt time.Time
}

// WindowStore persists usage windows with the conditional writes Admit relies on.
type WindowStore interface {
	// Latest returns the most recent window for identity, or found=false.
	Latest(ctx context.Context, identity string) (w Window, found bool, err error)
	// Open inserts w. It fails with ErrConflict when a window with the same
	// identity and Seq already exists.
	Open(ctx context.Context, w Window) error
	// Increment bumps the count of w from w.Count to w.Count+1. It reports
	// false when the stored count has moved, when a newer window exists for
	// w.Identity, or when w was opened before activeSince.
	Increment(ctx context.Context, w Window, activeSince time.Time) (bool, error)
}
