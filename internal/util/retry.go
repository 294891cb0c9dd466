package util

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Backoff configures Retry.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   bool

	// Transient reports whether err is worth another attempt.
	// Defaults to IsTransient.
	Transient func(error) bool
}

// DialBackoff is used for broker connections at startup.
func DialBackoff() Backoff {
	return Backoff{
		Attempts:  4,
		Initial:   250 * time.Millisecond,
		Max:       4 * time.Second,
		Factor:    2.0,
		Jitter:    true,
		Transient: IsTransient,
	}
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"timeout",
	"no servers available",
	"temporary failure",
	"broken pipe",
	"eof",
	"network is unreachable",
	"no route to host",
}

// IsTransient reports whether err looks like a network hiccup rather than a
// configuration problem. Authorization failures are never transient.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "authorization") {
		return false
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Retry calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Factor < 1 {
		b.Factor = 2.0
	}
	if b.Transient == nil {
		b.Transient = IsTransient
	}

	var zero T
	var lastErr error
	delay := b.Initial
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if IsPermanent(err) || !b.Transient(err) || attempt == b.Attempts {
			break
		}

		sleep := delay
		if b.Jitter {
			sleep += time.Duration(rand.Float64() * 0.25 * float64(delay))
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
		delay = time.Duration(float64(delay) * b.Factor)
		if delay > b.Max {
			delay = b.Max
		}
	}
	return zero, lastErr
}

// PermanentError stops Retry immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err was marked with MarkPermanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// MarkPermanent wraps err so Retry gives up on it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
