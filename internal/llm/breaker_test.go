package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	p := &fakeProvider{name: "openai", respond: failWith(errors.New("boom"))}
	b := NewBreaker(p, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)
	assert.Equal(t, "openai", b.Name())

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), "s", "p")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Complete(context.Background(), "s", "p")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	p := &fakeProvider{name: "openai", respond: failWith(context.Canceled)}
	b := NewBreaker(p, BreakerSettings{ConsecutiveFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), "s", "p")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := NewBreaker(&fakeProvider{name: "x", respond: answer("hi")}, BreakerSettings{}, nil)
	got, err := b.Complete(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}
