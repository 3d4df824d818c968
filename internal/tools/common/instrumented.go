package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Instrumentation bundles the optional recorders used by tool handlers.
// Both fields may be nil.
type Instrumentation struct {
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// InstrumentedToolHandler wraps a tool handler with a span, metrics and an
// audit event for userID. A result with IsError set counts as a failure.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", userID, inst, handler))
func InstrumentedToolHandler(toolName, userID string, inst Instrumentation, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithUser(logging.AnonymizeUser(userID)).Build()...)
		defer span.End()

		start := time.Now()
		event := instrumentation.NewAuditEvent(toolName).
			WithUser(userID).
			WithTarget(TargetFromArgs(request.GetArguments())).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		failure := err
		if failure == nil && result != nil && result.IsError {
			failure = errors.New(ResultText(result))
		}
		if failure != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, failure)
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		inst.Metrics.RecordToolInvocation(ctx, toolName, status, userID, duration)
		inst.Audit.Log(event.Complete(failure))

		return result, err
	}
}

// TargetFromArgs returns the resource a tool call acts on, if any.
func TargetFromArgs(args map[string]interface{}) string {
	for _, key := range []string{"id", "bucketId", "messageId"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ResultText joins the text contents of a tool result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
