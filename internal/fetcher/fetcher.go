package fetcher

import (
	"context"
	"errors"

	"caucion-alerts/internal/alerting"
)

// ErrAuth indicates invalid or expired credentials. Retrying without new
// credentials is pointless, so the run treats it as fatal.
var ErrAuth = errors.New("fetcher: authentication failed")

// ErrTransient indicates a network or service issue. The run aborts for this
// tick; the next scheduled tick is expected to succeed.
var ErrTransient = errors.New("fetcher: transient fetch failure")

// RateFetcher retrieves the current caución rates as a snapshot.
type RateFetcher interface {
	FetchRates(ctx context.Context) (alerting.Snapshot, error)
}
