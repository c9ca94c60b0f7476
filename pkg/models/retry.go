package models

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds model initialization attempts
type RetryPolicy struct {
	// Retries is the number of attempts after the first
	Retries int `mapstructure:"retries" yaml:"retries"`
	// Delay is the wait before the first retry
	Delay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// Backoff multiplies the delay after each retry
	Backoff float64 `mapstructure:"backoff" yaml:"backoff"`
}

// DefaultRetryPolicy returns 3 retries starting at one second, doubling each time
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries: 3,
		Delay:   time.Second,
		Backoff: 2,
	}
}

// InitError reports a model that could not be initialized within its retry budget
type InitError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Retry runs init until it succeeds, the policy is exhausted or ctx is done.
// Failures are returned as *InitError.
func Retry(ctx context.Context, model string, policy RetryPolicy, logger *logrus.Logger, init func(context.Context) error) error {
	attempts := max(0, policy.Retries) + 1
	delay := policy.Delay
	backoff := policy.Backoff
	if backoff < 1 {
		backoff = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = init(ctx); err == nil {
			if attempt > 1 && logger != nil {
				logger.Infof("%s initialized after %d attempts", model, attempt)
			}
			return nil
		}
		if attempt == attempts {
			break
		}

		if logger != nil {
			logger.Warnf("Failed to initialize %s (attempt %d/%d): %v, retrying in %v", model, attempt, attempts, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &InitError{Model: model, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * backoff)
	}

	return &InitError{Model: model, Attempts: attempts, Err: err}
}
