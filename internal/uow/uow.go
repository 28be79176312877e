package uow

import (
	"context"

	"github.com/kirinyoku/ticket-reservation/internal/repository"
)

// MaxAttempts bounds how many times Do runs fn when storage reports a
// retryable failure.
const MaxAttempts = 3

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work.
type UoW struct {
	store       repository.Store
	maxAttempts int
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store, maxAttempts: MaxAttempts}
}

// Do runs fn inside a transaction. After a successful commit it executes
// the after-commit hooks registered by the attempt that committed.
//
// When the transaction fails with repository.IsRetryable, fn is run again
// from scratch, so it must not carry state read in an earlier attempt.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error,
) error {
	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		hooks = hooks[:0]

		err = u.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil || !repository.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
