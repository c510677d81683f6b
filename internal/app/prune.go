package app

import (
	"context"
	"errors"
	"time"
)

// PruneOptions configure alert audit log retention.
type PruneOptions struct {
	Before time.Time
}

// Prune deletes alert audit rows recorded before the cutoff. The rate
// observation history is kept; only the notification audit trail is trimmed.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.Before.IsZero() {
		return errors.New("a cutoff time is required; pass --before")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is not configured; nothing to prune")
	}
	defer closeStore()

	if err := store.DeleteAlertsBefore(ctx, opts.Before.UTC()); err != nil {
		return err
	}

	a.Logger.Info().Time("before", opts.Before.UTC()).Msg("pruned alert audit rows")
	return nil
}
