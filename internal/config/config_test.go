package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxbuckets/internal/llm"
	"github.com/teemow/inboxbuckets/internal/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inboxbuckets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
		assert.Equal(t, llm.DefaultCallTimeout, cfg.LLMTimeout())
		assert.Equal(t, []string{"openai", "xai", "anthropic"}, cfg.LLM.Order)
		assert.Equal(t, ratelimit.DefaultPolicies(), cfg.RateLimitPolicies())
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
llm:
  order: [anthropic, openai]
  anthropic_model: claude-test
  batch_size: 10
  timeout: 5s
  breaker:
    consecutive_failures: 5
    open_timeout: 1m
rate_limit:
  backend: valkey
  policies:
    chat_search_post: {limit: 10, window: 30s}
    threads_get: {limit: 5}
inbox:
  thread_limit: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "openai"}, cfg.LLM.Order)
	assert.Equal(t, "claude-test", cfg.Model(ProviderAnthropic))
	assert.Equal(t, llm.DefaultOpenAIModel, cfg.Model(ProviderOpenAI))
	assert.Empty(t, cfg.Model("gemini"))
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout())
	assert.Equal(t, llm.ClassifierConfig{BatchSize: 10, Concurrency: llm.DefaultConcurrency}, cfg.ClassifierConfig())
	assert.Equal(t, llm.BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: time.Minute}, cfg.BreakerSettings())
	assert.Equal(t, BackendValkey, cfg.RateLimit.Backend)
	assert.Equal(t, 100, cfg.Inbox.ThreadLimit)

	policies := cfg.RateLimitPolicies()
	assert.Equal(t, ratelimit.Policy{Limit: 10, Window: 30 * time.Second}, policies[ratelimit.RouteChatSearchPost])
	assert.Equal(t, ratelimit.Policy{Limit: 5, Window: time.Minute}, policies[ratelimit.RouteThreadsGet])
	assert.Equal(t, 60, policies[ratelimit.RouteMessageDetailPost].Limit)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "llm: [", "failed to parse config"},
		{"unknown provider", "llm:\n  order: [gemini]", "unknown provider"},
		{"duplicate provider", "llm:\n  order: [openai, openai]", "duplicate provider"},
		{"bad timeout", "llm:\n  timeout: soon", "llm.timeout"},
		{"negative timeout", "llm:\n  timeout: -1s", "must not be negative"},
		{"unknown backend", "rate_limit:\n  backend: redis", "unknown backend"},
		{"unknown route", "rate_limit:\n  policies:\n    logout: {limit: 1}", "unknown route"},
		{"zero limit", "rate_limit:\n  policies:\n    threads_get: {limit: 0}", "at least 1"},
		{"thread limit", "inbox:\n  thread_limit: 1000", "thread_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Unreadable(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
