// Package poll retries an operation until its result satisfies a predicate.
package poll

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/logging"
)

type Options struct {
	// MaxAttempts bounds calls to the operation. Defaults to 5.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. Defaults to 500ms.
	InitialDelay time.Duration
	// Backoff grows the delay linearly: InitialDelay * attempt.
	Backoff bool
	// WaitFirst also waits InitialDelay before the first attempt.
	WaitFirst bool

	Logger *logrus.Entry
	Label  string
}

func DefaultOptions() Options {
	return Options{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, Backoff: true}
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

// Delay returns the wait that precedes attempt n+1 after n attempts.
func (o Options) Delay(n int) time.Duration {
	if !o.Backoff || n <= 0 {
		return o.InitialDelay
	}
	return o.InitialDelay * time.Duration(n)
}

// Poll calls op until done reports true or attempts run out, in which case
// the last result is returned without error. An op error stops polling and is
// returned as is.
func Poll[T any](ctx context.Context, op func(context.Context) (T, error), done func(T) bool, opts Options) (T, error) {
	opts.setDefaults()

	var last T
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 || opts.WaitFirst {
			delay := opts.InitialDelay
			if attempt > 1 {
				delay = opts.Delay(attempt - 1)
			}
			if err := sleep(ctx, delay); err != nil {
				return last, err
			}
		}

		res, err := op(ctx)
		if err != nil {
			return res, err
		}
		last = res
		if done(res) {
			return res, nil
		}
		opts.Logger.WithFields(logrus.Fields{
			"label":        opts.Label,
			"attempt":      attempt,
			"max_attempts": opts.MaxAttempts,
		}).Debug("poll: condition not met")
	}
	return last, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
