package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 20 * time.Second

// ErrNoProviders is returned by a Chain without providers.
var ErrNoProviders = errors.New("no llm providers configured")

// Chain tries providers in order and returns the first answer.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// NewChain creates a Chain. A zero timeout uses DefaultCallTimeout.
func NewChain(providers []Provider, timeout time.Duration, logger *slog.Logger, metrics *instrumentation.Metrics) *Chain {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Name implements Provider.
func (c *Chain) Name() string { return "chain" }

// Len returns the number of providers.
func (c *Chain) Len() int { return len(c.providers) }

// Complete implements Provider. When every provider fails the errors are joined.
func (c *Chain) Complete(ctx context.Context, system, prompt string) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProviders
	}

	var errs []error
	for _, p := range c.providers {
		text, err := c.call(ctx, p, system, prompt)
		if err == nil {
			return text, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm provider failed, trying next", logging.Provider(p.Name()), logging.Err(err))
	}
	return "", errors.Join(errs...)
}

func (c *Chain) call(ctx context.Context, p Provider, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := instrumentation.StartLLMSpan(ctx, p.Name(), modelOf(p))
	defer span.End()

	start := time.Now()
	text, err := p.Complete(ctx, system, prompt)
	status := instrumentation.StatusSuccess
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = instrumentation.StatusSkipped
		instrumentation.SetSpanError(span, err)
	case err != nil:
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	default:
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordLLMCall(ctx, p.Name(), status, time.Since(start))
	return text, err
}
