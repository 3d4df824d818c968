// Package common provides the instrumentation wrapper and argument helpers
// shared by MCP tool packages.
package common
