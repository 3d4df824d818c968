package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/teemow/inboxbuckets/internal/logging"
)

// BreakerSettings tunes a Breaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker. Defaults to 3.
	ConsecutiveFailures uint32
	// OpenTimeout is how long an open breaker rejects calls. Defaults to 30s.
	OpenTimeout time.Duration
}

// Breaker guards a Provider with a circuit breaker. While open, Complete
// fails immediately with gobreaker.ErrOpenState.
type Breaker struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreaker wraps p.
func NewBreaker(p Provider, settings BreakerSettings, logger *slog.Logger) *Breaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 3
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	threshold := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed",
				logging.Provider(name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		// A caller giving up says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{provider: p, cb: cb}
}

// Name implements Provider.
func (b *Breaker) Name() string { return b.provider.Name() }

// Model returns the wrapped provider's model.
func (b *Breaker) Model() string { return modelOf(b.provider) }

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Complete implements Provider.
func (b *Breaker) Complete(ctx context.Context, system, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Complete(ctx, system, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
