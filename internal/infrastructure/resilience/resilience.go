// Package resilience wraps Fortify retry, rate limiting and circuit breaking
// around calls to the npm registry and the GitHub API.
package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
)

// Config configures the resilience patterns.
type Config struct {
	// Requests per minute, 0 disables rate limiting.
	RateLimitRPM int

	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	CircuitBreakerEnabled     bool
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // how long to stay open
	CircuitBreakerMaxRequests int           // requests allowed in half-open
}

// DefaultConfig is tuned for the GitHub API.
func DefaultConfig() Config {
	return Config{
		RateLimitRPM:              60,
		RetryAttempts:             3,
		RetryInitialWait:          500 * time.Millisecond,
		RetryMaxWait:              10 * time.Second,
		CircuitBreakerEnabled:     true,
		CircuitBreakerThreshold:   5,
		CircuitBreakerTimeout:     30 * time.Second,
		CircuitBreakerMaxRequests: 3,
	}
}

// PublishVerificationConfig polls the npm registry until a freshly published
// version shows up: ten attempts, two seconds apart.
func PublishVerificationConfig() Config {
	return Config{
		RetryAttempts:    10,
		RetryInitialWait: 2 * time.Second,
		RetryMaxWait:     2 * time.Second,
	}
}

// Policy applies rate limit, circuit breaker and retry, in that order.
type Policy struct {
	name           string
	cfg            Config
	rateLimiter    ratelimit.RateLimiter
	circuitBreaker circuitbreaker.CircuitBreaker[any]
	retryable      func(error) bool
}

// New creates a policy. name keys the rate limiter.
func New(name string, cfg Config) *Policy {
	p := &Policy{name: name, cfg: cfg, retryable: IsRetryable}

	if cfg.RateLimitRPM > 0 {
		p.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM * 2,
			Interval: time.Minute,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerThreshold
		p.circuitBreaker = circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return p
}

// WithRetryable replaces the predicate deciding which errors are retried.
func (p *Policy) WithRetryable(fn func(error) bool) *Policy {
	p.retryable = fn
	return p
}

// Do runs operation under policy. A nil policy runs it once.
func Do[T any](ctx context.Context, p *Policy, operation func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return operation(ctx)
	}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx, p.name); err != nil {
			var zero T
			return zero, rperrors.TimeoutWrap(err, "resilience.Do", "rate limiter wait interrupted")
		}
	}

	withRetry := func(ctx context.Context) (T, error) {
		if p.cfg.RetryAttempts <= 0 {
			return operation(ctx)
		}
		r := retry.New[T](retry.Config{
			MaxAttempts:   p.cfg.RetryAttempts,
			InitialDelay:  p.cfg.RetryInitialWait,
			MaxDelay:      p.cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   p.retryable,
		})
		return r.Do(ctx, operation)
	}

	if p.circuitBreaker == nil {
		return withRetry(ctx)
	}

	out, err := p.circuitBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return withRetry(ctx)
	})
	result, _ := out.(T)
	return result, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p *Policy, operation func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// CircuitBreakerState returns "closed", "half-open", "open" or "disabled".
func (p *Policy) CircuitBreakerState() string {
	if p == nil || p.circuitBreaker == nil {
		return "disabled"
	}
	return p.circuitBreaker.State().String()
}

// Close releases the rate limiter.
func (p *Policy) Close() error {
	if p == nil || p.rateLimiter == nil {
		return nil
	}
	return p.rateLimiter.Close()
}

// IsRetryable reports whether err is worth retrying. Cancellation,
// validation and configuration errors are final, as are 4xx responses other
// than 429.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch rperrors.GetKind(err) {
	case rperrors.KindValidation, rperrors.KindConfig, rperrors.KindConflict, rperrors.KindCanceled:
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "422") {
		return false
	}

	return true
}

// IsRetryableHTTPStatus returns true for HTTP status codes worth retrying.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
