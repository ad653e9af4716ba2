package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRPCBackoff = 100 * time.Millisecond

// permanent marks an RPC error that resending the request cannot fix, such
// as an account that does not exist or decodes to the wrong layout.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// rpcRetry resends failed JSON-RPC requests with doubling backoff. Each
// request gets maxRetries resends after the first attempt.
type rpcRetry struct {
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

func newRPCRetry(opts Options, logger *zap.Logger) rpcRetry {
	r := rpcRetry{maxRetries: opts.MaxRetries, backoff: opts.RetryBackoff, logger: logger}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.backoff <= 0 {
		r.backoff = defaultRPCBackoff
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// do issues method until it succeeds, fails permanently, the context ends
// or the retries run out.
func (r rpcRetry) do(ctx context.Context, method string, send func(context.Context) error) error {
	backoff := r.backoff
	for attempt := 1; ; attempt++ {
		err := send(ctx)
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		if attempt > r.maxRetries {
			return fmt.Errorf("%s: %d attempts: %w", method, attempt, err)
		}
		r.logger.Warn("rpc request failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", method, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
