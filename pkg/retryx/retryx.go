package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

type Policy struct {
	MaxAttempts     uint          `split_words:"true" default:"3"`
	InitialInterval time.Duration `split_words:"true" default:"500ms"`
	MaxInterval     time.Duration `split_words:"true" default:"5s"`
	// MaxElapsed of zero leaves the budget to the caller's context.
	MaxElapsed time.Duration `split_words:"true" default:"0s"`
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Do runs op until it succeeds, returns an error the classifier rejects, or the
// policy is exhausted. attempt starts at 1.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		out, err := op(ctx, attempt)
		if err == nil {
			return out, nil
		}
		if retryable != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("retrying")
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, err
}
