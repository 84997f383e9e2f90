package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/axiomscope/service/metrics"
)

// RetryPolicy holds the retry tunables. Attempt numbers are zero-based.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy retries three times, waiting 2s, 4s, then 8s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseBackoff: time.Second}

// Backoff returns the wait before the given attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseBackoff * time.Duration(1<<uint(attempt))
}

// ShouldSwitch reports whether entering attempt triggers an endpoint switch.
// The switch happens once, on the first retry.
func (p RetryPolicy) ShouldSwitch(attempt int) bool {
	return attempt == 1
}

type retryState int

const (
	stateAttempting retryState = iota
	stateBackingOff
)

// Retrier drives calls through Attempting(n) -> BackingOff -> Attempting(n+1).
type Retrier struct {
	policy  RetryPolicy
	pool    *EndpointPool
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRetrier creates a retrier that fails over within pool.
func NewRetrier(policy RetryPolicy, pool *EndpointPool, m *metrics.Metrics, logger *slog.Logger) *Retrier {
	return &Retrier{
		policy:  policy,
		pool:    pool,
		sleep:   sleepContext,
		metrics: m,
		logger:  logger,
	}
}

// Retry calls fn against the pool's current client until it returns a value
// that is not empty. A nil error with an empty value counts as a failure.
// When every attempt fails the returned error wraps ErrEmptyResponse and,
// if any, the last call error.
func Retry[T any](
	ctx context.Context,
	r *Retrier,
	method string,
	empty func(T) bool,
	fn func(ctx context.Context, client RPCClient) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	attempt := 0
	state := stateAttempting

	for {
		switch state {
		case stateAttempting:
			endpoint := r.pool.Label()
			start := time.Now()
			value, err := fn(ctx, r.pool.Client())
			duration := time.Since(start).Seconds()

			status := "success"
			if err != nil {
				status = "error"
			} else if empty(value) {
				status = "empty"
			}
			if r.metrics != nil {
				r.metrics.RecordRPCCall(method, status, endpoint, duration)
			}

			if status == "success" {
				return value, nil
			}
			if err != nil {
				lastErr = err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			if attempt >= r.policy.MaxRetries {
				return zero, exhausted(method, attempt+1, lastErr)
			}
			state = stateBackingOff

		case stateBackingOff:
			next := attempt + 1
			backoff := r.policy.Backoff(next)
			r.logger.WarnContext(ctx, "rpc call failed, backing off",
				"method", method,
				"attempt", next,
				"max_attempts", r.policy.MaxRetries+1,
				"backoff_seconds", backoff.Seconds(),
				"error", lastErr,
			)
			if r.metrics != nil {
				r.metrics.RecordRPCRetry(method, "empty_or_error")
			}
			if err := r.sleep(ctx, backoff); err != nil {
				return zero, err
			}

			attempt = next
			if r.policy.ShouldSwitch(attempt) {
				if r.pool.Switch() {
					r.logger.InfoContext(ctx, "switched RPC endpoint",
						"method", method,
						"endpoint", r.pool.Label(),
					)
					if r.metrics != nil {
						r.metrics.RecordEndpointSwitch(r.pool.Label())
					}
				} else {
					r.logger.DebugContext(ctx, "no alternate RPC endpoint, retrying same endpoint",
						"endpoint", r.pool.Label(),
					)
				}
			}
			state = stateAttempting
		}
	}
}

func exhausted(method string, attempts int, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrEmptyResponse, method, attempts, lastErr)
	}
	return fmt.Errorf("%w: %s returned no value after %d attempts", ErrEmptyResponse, method, attempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
