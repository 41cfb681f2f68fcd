package generate

import (
	"context"
	"errors"
	"time"
)

// Policy decides how a single generation call is attempted.
type Policy interface {
	Do(ctx context.Context, call func(context.Context) error) error
}

// NoRetry runs the call once.
type NoRetry struct{}

func (NoRetry) Do(ctx context.Context, call func(context.Context) error) error {
	return call(ctx)
}

// Backoff retries failed calls with exponential delay. Decode errors and
// context cancellation are not retried.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (b Backoff) Do(ctx context.Context, call func(context.Context) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Initial
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return errors.Join(err, ctxErr)
			}
			return ctxErr
		}
		err = call(ctx)
		if err == nil || !retryable(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return err
}

func retryable(err error) bool {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// WithPolicy wraps g so every Generate call goes through p.
func WithPolicy(g Generator, p Policy) Generator {
	if p == nil {
		p = NoRetry{}
	}
	return Func(func(ctx context.Context, req Request) (Response, error) {
		var resp Response
		err := p.Do(ctx, func(ctx context.Context) error {
			var callErr error
			resp, callErr = g.Generate(ctx, req)
			return callErr
		})
		return resp, err
	})
}
