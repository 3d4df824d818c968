package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/llm"
	"github.com/teemow/inboxbuckets/internal/ratelimit"
)

// Provider names accepted in llm.order.
const (
	ProviderOpenAI    = "openai"
	ProviderXAI       = "xai"
	ProviderAnthropic = "anthropic"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendValkey = "valkey"
)

// ValidProviders lists the LLM providers in their default order.
var ValidProviders = []string{ProviderOpenAI, ProviderXAI, ProviderAnthropic}

// Config holds the settings file.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

// LLMConfig configures the classification and search providers.
type LLMConfig struct {
	// Order is the fallback order; providers without an API key are skipped.
	Order          []string `yaml:"order"`
	OpenAIModel    string   `yaml:"openai_model"`
	XAIModel       string   `yaml:"xai_model"`
	AnthropicModel string   `yaml:"anthropic_model"`

	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	OpenTimeout         string `yaml:"open_timeout"`
}

// RateLimitConfig configures the API rate limiter.
type RateLimitConfig struct {
	Backend  string                  `yaml:"backend"`
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// PolicyConfig overrides one route budget.
type PolicyConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// InboxConfig configures the inbox service.
type InboxConfig struct {
	ThreadLimit int `yaml:"thread_limit"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Order:          append([]string(nil), ValidProviders...),
			OpenAIModel:    llm.DefaultOpenAIModel,
			XAIModel:       llm.DefaultXAIModel,
			AnthropicModel: llm.DefaultAnthropicModel,
			BatchSize:      llm.DefaultBatchSize,
			Concurrency:    llm.DefaultConcurrency,
			Timeout:        llm.DefaultCallTimeout.String(),
			Breaker: BreakerConfig{
				ConsecutiveFailures: 3,
				OpenTimeout:         "30s",
			},
		},
		RateLimit: RateLimitConfig{
			Backend: BackendMemory,
		},
		Inbox: InboxConfig{
			ThreadLimit: inbox.ThreadLimit,
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for _, p := range c.LLM.Order {
		if !isValidProvider(p) {
			errs = append(errs, fmt.Errorf("llm.order: unknown provider %q (valid: %v)", p, ValidProviders))
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("llm.order: duplicate provider %q", p))
		}
		seen[p] = true
	}
	if c.LLM.BatchSize < 0 || c.LLM.Concurrency < 0 {
		errs = append(errs, errors.New("llm.batch_size and llm.concurrency must not be negative"))
	}
	if _, err := parseDuration(c.LLM.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("llm.timeout: %w", err))
	}
	if _, err := parseDuration(c.LLM.Breaker.OpenTimeout); err != nil {
		errs = append(errs, fmt.Errorf("llm.breaker.open_timeout: %w", err))
	}

	switch c.RateLimit.Backend {
	case "", BackendMemory, BackendSQLite, BackendValkey:
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend: unknown backend %q", c.RateLimit.Backend))
	}
	defaults := ratelimit.DefaultPolicies()
	for route, p := range c.RateLimit.Policies {
		if _, ok := defaults[route]; !ok {
			errs = append(errs, fmt.Errorf("rate_limit.policies: unknown route %q", route))
		}
		if p.Limit < 1 {
			errs = append(errs, fmt.Errorf("rate_limit.policies.%s.limit must be at least 1", route))
		}
		if _, err := parseDuration(p.Window); err != nil {
			errs = append(errs, fmt.Errorf("rate_limit.policies.%s.window: %w", route, err))
		}
	}

	if c.Inbox.ThreadLimit < 0 || c.Inbox.ThreadLimit > 500 {
		errs = append(errs, errors.New("inbox.thread_limit must be between 0 and 500"))
	}

	return errors.Join(errs...)
}

// LLMTimeout returns the per-call provider timeout.
func (c *Config) LLMTimeout() time.Duration {
	d, err := parseDuration(c.LLM.Timeout)
	if err != nil || d == 0 {
		return llm.DefaultCallTimeout
	}
	return d
}

// BreakerSettings returns the circuit breaker settings.
func (c *Config) BreakerSettings() llm.BreakerSettings {
	d, _ := parseDuration(c.LLM.Breaker.OpenTimeout)
	return llm.BreakerSettings{
		ConsecutiveFailures: c.LLM.Breaker.ConsecutiveFailures,
		OpenTimeout:         d,
	}
}

// ClassifierConfig returns the batching settings.
func (c *Config) ClassifierConfig() llm.ClassifierConfig {
	return llm.ClassifierConfig{
		BatchSize:   c.LLM.BatchSize,
		Concurrency: c.LLM.Concurrency,
	}
}

// Model returns the configured model for provider.
func (c *Config) Model(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.LLM.OpenAIModel
	case ProviderXAI:
		return c.LLM.XAIModel
	case ProviderAnthropic:
		return c.LLM.AnthropicModel
	default:
		return ""
	}
}

// RateLimitPolicies returns the default route budgets with the file's
// overrides applied. A policy without a window keeps the default window.
func (c *Config) RateLimitPolicies() map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for route, p := range c.RateLimit.Policies {
		policy := policies[route]
		policy.Limit = p.Limit
		if d, err := parseDuration(p.Window); err == nil && d > 0 {
			policy.Window = d
		}
		if policy.Window == 0 {
			policy.Window = ratelimit.DefaultWindow
		}
		policies[route] = policy
	}
	return policies
}

func isValidProvider(p string) bool {
	for _, v := range ValidProviders {
		if p == v {
			return true
		}
	}
	return false
}

// parseDuration accepts "" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s must not be negative", s)
	}
	return d, nil
}
