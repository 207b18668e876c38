package firecracker

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/onkernel/fcctl/lib/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        4,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestIdempotencyOf(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   Idempotency
	}{
		{http.MethodPut, "/drives/rootfs", Idempotent},
		{http.MethodPatch, "/machine-config", Idempotent},
		{http.MethodGet, "/", Idempotent},
		{http.MethodPut, "/actions", NonIdempotent},
		{http.MethodPut, "/snapshot/load", NonIdempotent},
		{http.MethodPost, "/drives/rootfs", NonIdempotent},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IdempotencyOf(tt.method, tt.path))
		})
	}
}

func TestRetryNetworkErrors(t *testing.T) {
	netErr := &NetworkError{Method: http.MethodPut, Path: "/drives/rootfs", Err: errors.New("connection refused")}

	t.Run("idempotent retries until success", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), fastPolicy(), Idempotent, func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return netErr
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("non-idempotent does not retry", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), fastPolicy(), NonIdempotent, func(ctx context.Context) error {
			attempts++
			return netErr
		})
		assert.ErrorIs(t, err, ErrNetwork)
		assert.Equal(t, 1, attempts)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), fastPolicy(), Idempotent, func(ctx context.Context) error {
			attempts++
			return netErr
		})
		assert.ErrorIs(t, err, ErrNetwork)
		assert.Equal(t, 4, attempts)
	})
}

func TestRetryRateLimitedForAnyClass(t *testing.T) {
	limited := &RateLimitedError{Method: http.MethodPut, Path: "/actions", Err: ratelimit.ErrLimited}
	for _, class := range []Idempotency{Idempotent, NonIdempotent} {
		t.Run(class.String(), func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), fastPolicy(), class, func(ctx context.Context) error {
				attempts++
				if attempts == 1 {
					return limited
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 2, attempts)
		})
	}
}

func TestRetryPermanentErrors(t *testing.T) {
	errs := []error{
		invalid("drive", "drive_id", "must not be empty"),
		&APIError{Method: http.MethodPut, Path: "/boot-source", StatusCode: http.StatusBadRequest, Message: "nope"},
		&APIError{Method: http.MethodGet, Path: "/", StatusCode: http.StatusOK, Decode: errors.New("bad json")},
	}
	for _, want := range errs {
		t.Run(KindOf(want).String(), func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), fastPolicy(), Idempotent, func(ctx context.Context) error {
				attempts++
				return want
			})
			assert.Same(t, want, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	netErr := &NetworkError{Method: http.MethodGet, Path: "/", Err: errors.New("reset")}

	attempts := 0
	err := Retry(ctx, fastPolicy(), Idempotent, func(ctx context.Context) error {
		attempts++
		cancel()
		return netErr
	})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 1, attempts)
}

func TestRetryValueAgainstFake(t *testing.T) {
	c, fake := newFakeClient(t, Config{})
	fake.InjectFault(http.MethodGet, "/", http.StatusInternalServerError, "busy")

	_, err := RetryValue(context.Background(), fastPolicy(), Idempotent, c.GetInstanceInfo)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "busy", apiErr.Message)
	assert.Len(t, fake.Requests(), 1, "api errors are not retried")

	fake.ClearFaults()
	info, err := RetryValue(context.Background(), fastPolicy(), Idempotent, c.GetInstanceInfo)
	require.NoError(t, err)
	assert.Equal(t, fake.ID(), info.ID)
}
