package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/metrics"
)

// RetryingClient wraps a Client with per-call timeouts, exponential
// backoff retries, a shared rate limiter and a circuit breaker. All
// specialists share one instance so the provider sees a single budget.
type RetryingClient struct {
	inner   Client
	cfg     config.LLMConfig
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewRetryingClient wraps inner with the configured resilience policy.
// name labels the client in logs and metrics.
func NewRetryingClient(inner Client, cfg config.LLMConfig, name string) *RetryingClient {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("client", name).Str("from", from.String()).Str("to", to.String()).Msg("llm circuit state change")
		},
	})

	return &RetryingClient{
		inner:   inner,
		cfg:     cfg,
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

// GenerateText calls the wrapped client with up to MaxRetries attempts.
// Exhausted retries and an open circuit both surface as
// ErrLLMUnavailable; a blank completion surfaces as ErrEmptyLLMResponse.
func (c *RetryingClient) GenerateText(ctx context.Context, system, user string, images []Image) (Response, error) {
	var lastErr error
	backoff := c.cfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			metrics.LLMRetries.Inc()
			select {
			case <-ctx.Done():
				return Response{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}

		resp, err := c.attempt(ctx, system, user, images)
		if err == nil {
			if strings.TrimSpace(resp.Text) == "" {
				return Response{}, ErrEmptyLLMResponse
			}
			metrics.TokensUsed(c.name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, fmt.Errorf("%w: circuit open", ErrLLMUnavailable)
		}
		lastErr = err
		log.Warn().Str("client", c.name).Int("attempt", attempt).Err(err).Msg("llm call failed")
	}

	return Response{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, lastErr)
}

func (c *RetryingClient) attempt(ctx context.Context, system, user string, images []Image) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	result, err := c.breaker.Execute(func() (any, error) {
		return c.inner.GenerateText(callCtx, system, user, images)
	})
	if err != nil {
		return Response{}, err
	}
	return result.(Response), nil
}
