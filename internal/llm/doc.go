// Package llm classifies and searches inbox threads with chat-completion
// models.
//
// Providers wrap one vendor SDK each: OpenAIProvider speaks the OpenAI chat
// completions API (and, with a different base URL, xAI), AnthropicProvider
// speaks the Anthropic Messages API. A Breaker stops calling a provider that
// keeps failing, and a Chain tries providers in order with a per-call timeout.
//
// Classifier splits threads into batches and classifies them with bounded
// concurrency. A batch the chain cannot classify, and any thread a model
// leaves out, is assigned by the keyword heuristic from the inbox package.
// Searcher asks the chain for the ids relevant to a query and falls back to
// keyword scoring.
package llm
