// Package ratelimit bounds the request rate a client sends to the control plane.
//
// The limiter is a token bucket of capacity C refilled with R tokens per
// interval. Each request takes one token. When the bucket is empty the
// limiter either waits for the next token or rejects the request, depending
// on the configured Mode.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects what happens when no token is available.
type Mode int

const (
	// ModeWait blocks until a token is available or the context ends.
	ModeWait Mode = iota
	// ModeReject fails immediately with ErrLimited.
	ModeReject
)

func (m Mode) String() string {
	switch m {
	case ModeWait:
		return "wait"
	case ModeReject:
		return "reject"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "wait" or "reject".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "wait", "":
		return ModeWait, nil
	case "reject":
		return ModeReject, nil
	default:
		return 0, fmt.Errorf("unknown rate limit mode %q", s)
	}
}

var (
	// ErrLimited is returned in ModeReject when the bucket is empty.
	ErrLimited = errors.New("request rate exceeded")

	// ErrDeadline is returned in ModeWait when the next token would arrive
	// after the context deadline.
	ErrDeadline = errors.New("next token would arrive after the context deadline")
)

// Config describes the bucket.
type Config struct {
	// Capacity is the burst size C.
	Capacity int
	// Refill is the number of tokens R added per Interval.
	Refill int
	// Interval defaults to one second.
	Interval time.Duration
	Mode     Mode
}

// Limiter is safe for concurrent use. A nil *Limiter admits everything.
type Limiter struct {
	lim  *rate.Limiter
	mode Mode
	now  func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, used to make refill deterministic in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter whose bucket starts full.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.Refill < 1 {
		return nil, fmt.Errorf("refill must be at least 1, got %d", cfg.Refill)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative, got %s", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.Mode != ModeWait && cfg.Mode != ModeReject {
		return nil, fmt.Errorf("unknown mode %s", cfg.Mode)
	}

	l := &Limiter{
		lim:  rate.NewLimiter(rate.Limit(float64(cfg.Refill)/cfg.Interval.Seconds()), cfg.Capacity),
		mode: cfg.Mode,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Mode returns the configured mode.
func (l *Limiter) Mode() Mode {
	if l == nil {
		return ModeWait
	}
	return l.mode
}

// Acquire takes one token. The token is never returned once Acquire succeeds,
// whatever happens to the request afterwards.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := l.now()
	if l.mode == ModeReject {
		if !l.lim.AllowN(now, 1) {
			return ErrLimited
		}
		return nil
	}

	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return ErrLimited
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && deadline.Sub(now) < delay {
		r.CancelAt(now)
		return ErrDeadline
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		// The request was never admitted, so the reservation goes back.
		r.CancelAt(l.now())
		return ctx.Err()
	}
}

// Tokens reports the tokens currently available.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	return l.lim.TokensAt(l.now())
}

// Capacity returns the burst size.
func (l *Limiter) Capacity() int {
	if l == nil {
		return 0
	}
	return l.lim.Burst()
}
