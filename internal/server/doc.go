// Package server exposes the inbox service over HTTP.
//
// # Key Components
//
// API serves the JSON endpoints under /api:
//   - GET /api/threads: fetch, classify and return the grouped inbox
//   - POST /api/classify: reclassify the stored threads
//   - POST, PUT, DELETE /api/buckets: manage buckets
//   - POST /api/chat/search: free-text search over stored threads
//   - POST /api/messages/detail and /api/messages/check-new
//   - POST /api/logout: forget the Google token
//
// Every route except logout is rate limited per user with a fixed-window
// budget; rejected requests get 429 and a Retry-After header. A failing
// limiter backend does not block requests.
//
// ServerContext caches one Gmail client per user and implements
// inbox.MailboxProvider.
//
// HealthChecker serves /healthz, /readyz (including a store ping) and
// /healthz/detailed. MetricsServer serves Prometheus metrics on a separate
// listener.
package server
