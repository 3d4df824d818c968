// Package logging provides structured logging utilities for the inboxbuckets service.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog (text or JSON handlers)
//   - PII sanitization (user id and sender anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "inbox.load")
//	logger.Info("inbox loaded",
//	    logging.UserHash(userID),
//	    logging.Count(len(threads)))
//
// Attach the provider to LLM fallbacks:
//
//	logger.Warn("provider failed", logging.Provider("openai"), logging.Err(err))
//
// # Security Considerations
//
//   - User ids and email addresses are hashed to prevent PII leakage while allowing correlation
//   - OAuth tokens and API keys are never logged directly
package logging
