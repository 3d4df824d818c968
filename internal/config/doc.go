// Package config loads the optional YAML settings file.
//
// The file tunes what flags and environment variables do not cover: the
// model of each LLM provider and the order they are tried in, classifier
// batching, circuit breaker thresholds, per-route rate limit budgets and the
// number of recent messages kept per user. Secrets stay in the environment.
//
// Example:
//
//	llm:
//	  order: [openai, xai, anthropic]
//	  openai_model: gpt-4o-mini
//	  batch_size: 20
//	  concurrency: 3
//	  timeout: 20s
//	rate_limit:
//	  backend: valkey
//	  policies:
//	    chat_search_post: {limit: 10, window: 1m}
package config
