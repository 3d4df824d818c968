// Package resources provides MCP resources for the bucketed inbox.
// Resources are read-only data sources that MCP clients can fetch without
// calling a tool: the bucket list and the stored, grouped inbox.
package resources
