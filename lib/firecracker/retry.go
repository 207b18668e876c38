package firecracker

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/onkernel/fcctl/lib/logger"
)

// Idempotency tells Retry whether replaying a request that may have reached
// the server is safe.
type Idempotency int

const (
	// Idempotent requests may be replayed after network failures.
	Idempotent Idempotency = iota
	// NonIdempotent requests are only replayed when they never left the client.
	NonIdempotent
)

func (i Idempotency) String() string {
	if i == NonIdempotent {
		return "non-idempotent"
	}
	return "idempotent"
}

// IdempotencyOf classifies a control plane request. PUT, PATCH and GET replace
// or read state and are idempotent. Actions and snapshot loads are not.
func IdempotencyOf(method, path string) Idempotency {
	switch path {
	case "/actions", "/snapshot/load":
		return NonIdempotent
	}
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodHead:
		return Idempotent
	default:
		return NonIdempotent
	}
}

// RetryPolicy bounds the exponential backoff used by Retry.
type RetryPolicy struct {
	// MaxTries includes the first attempt. Zero means no limit.
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime stops retrying once exceeded. Zero means no limit.
	MaxElapsedTime time.Duration
}

// DefaultRetryPolicy is a short policy suited to a local socket.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        5,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

// Retry calls fn until it succeeds, fails permanently or the policy gives up.
// Validation and API errors are never retried, and neither is anything once
// ctx is done. Network errors are retried only for Idempotent requests.
// The returned error is always the last error fn produced.
func Retry(ctx context.Context, policy RetryPolicy, class Idempotency, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, policy, class, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for operations that return a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, class Idempotency, fn func(context.Context) (T, error)) (T, error) {
	log := logger.FromContext(ctx)

	var lastErr error
	op := func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(ctx, class, err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.DebugContext(ctx, "retrying firecracker call",
				"kind", KindOf(err).String(), "class", class.String(), "backoff", next, "error", err)
		}),
	}
	if policy.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(policy.MaxTries))
	}
	if policy.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsedTime))
	}

	v, err := backoff.Retry(ctx, op, opts...)
	if err != nil && lastErr != nil {
		// backoff reports ctx expiry during a wait as a bare context error.
		return v, lastErr
	}
	return v, err
}

func retryable(ctx context.Context, class Idempotency, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch KindOf(err) {
	case KindRateLimited:
		return true
	case KindNetwork:
		return class == Idempotent
	default:
		return false
	}
}
