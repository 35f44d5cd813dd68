// Package retrier wraps fallible operations with the retry policy used for
// all B2 API calls: exponential backoff with jitter, a bounded attempt
// budget, and attempt metadata on the terminal error.
package retrier

import (
	"context"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/cenkalti/backoff/v4"

	"github.com/bitrise-io/go-b2/apierror"
)

// jitterFactor spreads each delay uniformly within ±25% of the computed value.
const jitterFactor = 0.25

// Config controls the retry budget and backoff curve.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total number of tries is MaxRetries+1. Zero means the default of 3;
	// a negative value disables retries entirely.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// Multiplier grows the delay after every attempt. Default: 2.
	Multiplier float64

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// Jitter toggles the ±25% randomization. Tests disable it for
	// deterministic delays. Default: on.
	Jitter bool

	// Observer, when set, is invoked before every backoff sleep.
	Observer Observer

	// Logger for retry decisions. Default: log.NewLogger().
	Logger log.Logger
}

// Observer is notified before each backoff sleep with the error that caused
// the retry, the upcoming attempt number (1-based) and the computed delay.
type Observer func(err error, nextAttempt int, delay time.Duration)

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	}
}

// Policy decides whether a classified error may be retried.
type Policy func(err *apierror.Error) bool

// DefaultPolicy retries network errors, HTTP 408/429 and any 5xx, and the
// request_timeout / too_many_requests service codes. The Retryable flag on
// the envelope already encodes exactly this.
func DefaultPolicy(err *apierror.Error) bool {
	return err.Retryable
}

// Executor runs operations under the configured retry policy. An Executor is
// safe for concurrent use; all mutable state is per call.
type Executor struct {
	config Config
	policy Policy
	logger log.Logger
}

// New returns an Executor with the given config, filling zero values with
// defaults.
func New(config Config) *Executor {
	defaults := DefaultConfig()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Executor{
		config: config,
		policy: DefaultPolicy,
		logger: logger,
	}
}

// WithPolicy returns a copy of the executor using a custom retry policy.
func (e *Executor) WithPolicy(policy Policy) *Executor {
	clone := *e
	clone.policy = policy
	return &clone
}

// Execute invokes op until it succeeds, the policy declines, or the retry
// budget is exhausted. The terminal error is annotated with the attempt
// count and whether retries ran out.
func (e *Executor) Execute(ctx context.Context, op func() error) error {
	bo := e.newBackOff()

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		classified := apierror.FromError(err)
		retryable := e.policy(classified)

		if !retryable || attempt >= e.config.MaxRetries {
			classified.Attempts = attempt + 1
			classified.RetryExhausted = retryable
			return classified
		}

		delay := bo.NextBackOff()
		if delay < 0 {
			delay = 0
		}
		if e.config.Observer != nil {
			e.config.Observer(classified, attempt+1, delay)
		}
		e.logger.Debugf("Attempt %d failed (%s), retrying in %v", attempt+1, classified.Describe(), delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			interrupted := apierror.NewTimeout("retry interrupted: "+ctx.Err().Error(), ctx.Err())
			interrupted.Attempts = attempt + 1
			return interrupted
		case <-timer.C:
		}
	}
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.BaseDelay
	bo.Multiplier = e.config.Multiplier
	bo.MaxInterval = e.config.MaxDelay
	bo.MaxElapsedTime = 0 // the attempt budget is the only stop condition
	if e.config.Jitter {
		bo.RandomizationFactor = jitterFactor
	} else {
		bo.RandomizationFactor = 0
	}
	bo.Reset()
	return bo
}
