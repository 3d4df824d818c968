package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/inboxbuckets/internal/instrumentation"
)

func newAudit(buf *bytes.Buffer) *instrumentation.AuditLogger {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return instrumentation.NewAuditLogger(logger, instrumentation.AuditLoggingConfig{Enabled: true})
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	var buf bytes.Buffer
	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("inbox_get", "alice@example.com", Instrumentation{Audit: newAudit(&buf)}, handler)
	result, err := wrapped(context.Background(), callRequest(map[string]interface{}{"id": "m1"}))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, called)
	assert.Contains(t, buf.String(), `"msg":"audit_event"`)
	assert.Contains(t, buf.String(), "inbox_get")
	assert.Contains(t, buf.String(), "m1")
	assert.NotContains(t, buf.String(), "alice@example.com")
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	var buf bytes.Buffer
	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("inbox_get", "alice", Instrumentation{Audit: newAudit(&buf)}, handler)
	_, err := wrapped(context.Background(), callRequest(nil))

	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, buf.String(), "audit_event_failed")
	assert.Contains(t, buf.String(), "test error")
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	var buf bytes.Buffer
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("error message"), nil
	}

	wrapped := InstrumentedToolHandler("inbox_get", "alice", Instrumentation{Audit: newAudit(&buf)}, handler)
	result, err := wrapped(context.Background(), callRequest(nil))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, buf.String(), "audit_event_failed")
	assert.Contains(t, buf.String(), "error message")
}

func TestInstrumentedToolHandler_WithMetrics(t *testing.T) {
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}
	wrapped := InstrumentedToolHandler("inbox_search", "alice", Instrumentation{Metrics: metrics}, handler)

	result, err := wrapped(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", ResultText(result))
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}
	wrapped := InstrumentedToolHandler("inbox_search", "alice", Instrumentation{}, handler)

	result, err := wrapped(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestTargetFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"nil args", nil, ""},
		{"message id", map[string]interface{}{"id": "m1"}, "m1"},
		{"bucket id", map[string]interface{}{"bucketId": "b1"}, "b1"},
		{"non-string", map[string]interface{}{"id": 12}, ""},
		{"first wins", map[string]interface{}{"id": "m1", "bucketId": "b1"}, "m1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetFromArgs(tt.args))
		})
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]interface{}{"query": "  invoices  ", "n": 3}
	assert.Equal(t, "invoices", StringArg(args, "query"))
	assert.Empty(t, StringArg(args, "n"))
	assert.Empty(t, StringArg(args, "missing"))
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    int
		wantErr bool
	}{
		{"missing uses default", map[string]interface{}{}, 15, false},
		{"null uses default", map[string]interface{}{"limit": nil}, 15, false},
		{"json number", map[string]interface{}{"limit": float64(20)}, 20, false},
		{"int", map[string]interface{}{"limit": 7}, 7, false},
		{"fraction", map[string]interface{}{"limit": 1.5}, 0, true},
		{"string", map[string]interface{}{"limit": "10"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntArg(tt.args, "limit", 15)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
