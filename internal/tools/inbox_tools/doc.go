// Package inbox_tools exposes the bucketed inbox as MCP tools.
//
// Read tools:
//   - inbox_get: stored inbox grouped by bucket
//   - inbox_refresh: fetch from Gmail, classify new messages, return the grouped inbox
//   - inbox_reclassify: classify every stored message again
//   - inbox_list_buckets: list buckets
//   - inbox_search: free-text semantic search over stored messages
//   - inbox_get_message: one message as sanitized HTML
//   - inbox_get_messages: several messages with a per-id status
//
// Bucket tools (omitted in read-only mode):
//   - inbox_add_bucket, inbox_update_bucket, inbox_delete_bucket
//
// Every tool acts for the single user the server was started for.
package inbox_tools
