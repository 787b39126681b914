package storage

import (
	"context"
	"errors"
	"time"

	"biteiq/internal/domain"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the record store plus operator and ingress extensions.
type Store interface {
	domain.RecordStore

	// SetSubscription records the outcome of the external billing flow.
	// A zero until means no expiry.
	SetSubscription(ctx context.Context, id int64, active bool, until time.Time) error

	// ClaimDedup records key until the given time unless a live record
	// exists. Exactly one of concurrent callers gets claimed=true.
	ClaimDedup(ctx context.Context, key string, now, until time.Time) (claimed bool, err error)
	ReleaseDedup(ctx context.Context, key string) error

	Close() error
}

// dateKey is the calendar day a plan or history row belongs to.
func dateKey(t time.Time) string { return t.Format(time.DateOnly) }

func subscriptionActive(status string, untilMS int64, now time.Time) bool {
	if status != "active" {
		return false
	}
	return untilMS == 0 || untilMS > now.UnixMilli()
}
