package core

import (
	"context"
	"errors"
)

// RetryOnConflict runs fn until it returns something other than ErrConflict,
// at most attempts times. fn is expected to re-read the document so each
// attempt works from a fresh revision. The core never retries on its own.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return errors.Join(err, ctxErr)
			}
			return ctxErr
		}
		err = fn(ctx)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
