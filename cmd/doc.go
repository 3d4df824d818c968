// Package cmd implements the command-line interface for inboxbuckets.
//
// This package provides the following commands:
//   - serve: Start the HTTP API, health probes and the metrics server
//   - mcp: Start an MCP stdio server for one user
//   - connect: Authorize Gmail access for a user and store the token
//   - disconnect: Forget a user's Google token
//   - classify: Fetch and classify the inbox once and print bucket counts
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Every flag has an environment variable fallback that applies when the flag
// is not set on the command line.
package cmd
