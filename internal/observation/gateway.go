package observation

import (
	"context"
	"time"
)

// Gateway is the durable store for observation records. Calls may be slow; the
// coordinator only invokes them from its persistence worker.
//
// Failed calls are retried, so StoreNew must return the id of the existing record when
// it sees a Record.Key it has already stored.
type Gateway interface {
	StoreNew(ctx context.Context, rec Record) (int64, error)
	DeactivateOne(ctx context.Context, id int64) error
	DeactivateMany(ctx context.Context, ids []int64) (int64, error)
}

// ExpiryUpdater is implemented by gateways that can persist expiry changes.
type ExpiryUpdater interface {
	UpdateExpiration(ctx context.Context, id int64, expiresAt *time.Time) error
}

// Loader is implemented by gateways that can list active records for startup restore.
type Loader interface {
	LoadActive(ctx context.Context) ([]Record, error)
}
