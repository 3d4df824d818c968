package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxbuckets/internal/config"
	"github.com/teemow/inboxbuckets/internal/gmail"
	"github.com/teemow/inboxbuckets/internal/google"
	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/llm"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/server"
	"github.com/teemow/inboxbuckets/internal/store"
)

// app is the wiring shared by every command that touches an inbox.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
	oauth         *oauth2.Config
	store         *store.Store
	serverContext *server.ServerContext
	inbox         *inbox.Service
}

// resolveOptions applies environment fallbacks to the global flags and loads
// the settings file.
func resolveOptions(cmd *cobra.Command, o *globalOptions) (*config.Config, error) {
	if err := applyEnv(cmd, globalEnv); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if order := parseCommaSeparatedList(o.llmProviders); len(order) > 0 {
		cfg.LLM.Order = order
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --llm-providers: %w", err)
		}
	}
	return cfg, nil
}

// newApp opens the store and builds the inbox service. Close releases it.
func newApp(ctx context.Context, o *globalOptions, cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*app, error) {
	key, err := decodeEncryptionKey(o.encryptionKey)
	if err != nil {
		return nil, err
	}
	if key == nil {
		logger.Warn("no encryption key configured, OAuth tokens are stored unencrypted")
	}

	st, err := store.Open(ctx, o.dbPath, store.Options{EncryptionKey: key})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	oauthConf := google.OAuthConfig(o.googleClientID, o.googleClientSecret, o.googleRedirectURI)
	if o.googleClientID == "" || o.googleClientSecret == "" {
		logger.Warn("Google client credentials not configured, expired tokens cannot be refreshed")
	}
	tokens := google.NewStoreTokenProvider(oauthConf, st, logger, metrics)

	sc := server.NewServerContext(ctx, tokens, gmail.Options{Logger: logger, Metrics: metrics})

	providers := buildProviders(cfg, apiKeys{
		config.ProviderOpenAI:    o.openAIKey,
		config.ProviderXAI:       o.xAIKey,
		config.ProviderAnthropic: o.anthropicKey,
	}, logger)

	deps := inbox.Dependencies{
		Store:       st,
		Mailboxes:   sc,
		Logger:      logger,
		Metrics:     metrics,
		ThreadLimit: cfg.Inbox.ThreadLimit,
	}
	if len(providers) == 0 {
		logger.Warn("no LLM provider configured, classifying with keyword heuristics")
	} else {
		chain := llm.NewChain(providers, cfg.LLMTimeout(), logger, metrics)
		deps.Classifier = llm.NewClassifier(chain, cfg.ClassifierConfig(), logger, metrics)
		deps.Searcher = llm.NewSearcher(chain, logger)
		names := make([]string, 0, len(providers))
		for _, p := range providers {
			names = append(names, p.Name())
		}
		logger.Info("LLM providers configured", "providers", names)
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,
		oauth:         oauthConf,
		store:         st,
		serverContext: sc,
		inbox:         inbox.NewService(deps),
	}, nil
}

// Close shuts down cached Gmail clients and closes the store.
func (a *app) Close() error {
	return errors.Join(a.serverContext.Shutdown(), a.store.Close())
}

// apiKeys maps provider names to API keys.
type apiKeys map[string]string

// buildProviders returns the configured providers in fallback order, each
// behind a circuit breaker. Providers without an API key are skipped.
func buildProviders(cfg *config.Config, keys apiKeys, logger *slog.Logger) []llm.Provider {
	var providers []llm.Provider
	for _, name := range cfg.LLM.Order {
		key := keys[name]
		if key == "" {
			logger.Debug("skipping LLM provider without API key", logging.Provider(name))
			continue
		}
		var p llm.Provider
		switch name {
		case config.ProviderOpenAI:
			p = llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: key, Model: cfg.Model(name)})
		case config.ProviderXAI:
			p = llm.NewXAIProvider(key, cfg.Model(name))
		case config.ProviderAnthropic:
			p = llm.NewAnthropicProvider(key, cfg.Model(name))
		default:
			continue
		}
		providers = append(providers, llm.NewBreaker(p, cfg.BreakerSettings(), logger))
	}
	return providers
}

// newInstrumentation creates the telemetry provider. A bad environment or a
// failing exporter disables telemetry instead of aborting the command; audit
// logging then keeps its defaults.
func newInstrumentation(ctx context.Context, logger *slog.Logger) (*instrumentation.Provider, instrumentation.Config) {
	instrConfig, err := instrumentation.ConfigFromOSEnv()
	if err != nil {
		logger.Warn("instrumentation disabled: invalid configuration", logging.Err(err))
		return nil, instrumentation.DefaultConfig()
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		logger.Warn("instrumentation disabled", logging.Err(err))
		return nil, instrConfig
	}
	return provider, instrConfig
}
