package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/marketgps/internal/coreerrors"
)

// Resilience wraps every provider call in a per-provider rate limiter,
// circuit breaker and exponential-backoff retry loop, so callers never
// throttle or retry on their own.
type Resilience struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	maxRetry int
	log      zerolog.Logger
}

// NewResilience builds a Resilience controller. Per-provider rates are
// set with Configure; a provider name not configured gets a 5 rps,
// burst 10 token bucket the first time it's seen.
func NewResilience(maxRetry int, log zerolog.Logger) *Resilience {
	return &Resilience{
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		maxRetry: maxRetry,
		log:      log.With().Str("component", "provider_resilience").Logger(),
	}
}

// Configure registers (or re-registers) the rate limit and circuit
// breaker trip conditions for a named provider.
func (r *Resilience) Configure(name string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limiters[name] = rate.NewLimiter(rate.Limit(rps), burst)
	r.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func (r *Resilience) limiterFor(name string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(5), 10)
		r.limiters[name] = l
	}
	return l
}

func (r *Resilience) breakerFor(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: name})
		r.breakers[name] = b
	}
	return b
}

// Call executes fn behind the named provider's rate limiter and
// circuit breaker, retrying transient/rate-limited failures with
// exponential backoff. Auth failures and breaker-open errors are not
// retried.
func (r *Resilience) Call(ctx context.Context, providerName string, fn func() (interface{}, error)) (interface{}, error) {
	limiter := r.limiterFor(providerName)
	breaker := r.breakerFor(providerName)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetry; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("provider %s: rate limiter wait: %w", providerName, err)
		}

		result, err := breaker.Execute(fn)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, coreerrors.ErrAuthFailure) || errors.Is(err, coreerrors.ErrQuotaExhausted) {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("provider %s: circuit open: %w", providerName, err)
		}
		if attempt == r.maxRetry {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		r.log.Warn().Err(err).
			Str("provider", providerName).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("provider call failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("provider %s: exhausted retries: %w", providerName, lastErr)
}
