package biz

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// RetryConfig is the immutable retry policy. Each execution keeps its own
// local attempt counter, so one config is safely shared across services.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64
	// Jitter randomizes each delay by a uniform factor in [0.5, 1.0) to
	// avoid synchronized retry storms.
	Jitter bool
	// RetryableErrors are substring patterns that force a retry even when
	// the classifier marks the error non-retryable.
	RetryableErrors []string
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:        3,
	BaseDelay:         100 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// RetryHandler wraps operations with bounded exponential-backoff retries,
// consulting the classifier to decide whether a failure is worth retrying.
// Stateless apart from its config; shared across all registered services.
type RetryHandler struct {
	classifier *ErrorClassifier
	logger     *log.Helper
}

// NewRetryHandler creates a retry handler.
func NewRetryHandler(classifier *ErrorClassifier, logger log.Logger) *RetryHandler {
	return &RetryHandler{
		classifier: classifier,
		logger:     log.NewHelper(logger),
	}
}

// Execute attempts op up to cfg.MaxRetries+1 total times. Non-retryable
// errors short-circuit immediately; after exhaustion the last error is
// returned unchanged, never wrapped. Backoff sleeps respect ctx cancellation.
func (r *RetryHandler) Execute(ctx context.Context, name string, op Operation, cfg RetryConfig) (interface{}, error) {
	var lastErr error

	attempts := cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if !r.shouldRetry(err, cfg) {
			return nil, err
		}

		delay := backoffDelay(attempt, cfg)
		r.logger.Infow("msg", "retrying operation after failure",
			"operation", name,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
			"type", "retry")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// shouldRetry consults the classifier first, then the configured substring
// patterns for errors the classifier does not recognize as transient.
func (r *RetryHandler) shouldRetry(err error, cfg RetryConfig) bool {
	if r.classifier.Classify(err).Retryable {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range cfg.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// backoffDelay computes min(base·multiplier^(attempt−1), max), optionally
// jittered by a uniform factor in [0.5, 1.0) and floored to a millisecond.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.5 + rand.Float64()*0.5 // #nosec G404 -- jitter needs no crypto randomness
	}
	ms := int64(delay / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
