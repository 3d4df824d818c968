package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func attrsToMap(attrs []slog.Attr) map[string]slog.Value {
	m := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestAuditEvent_Complete(t *testing.T) {
	e := NewAuditEvent("bucket.create").WithUser("local-user").WithTarget("b-1")
	e.Complete(nil)

	if !e.Success {
		t.Error("expected success")
	}
	if e.Status() != StatusSuccess {
		t.Errorf("status = %q, want %q", e.Status(), StatusSuccess)
	}
	if e.Duration < 0 {
		t.Error("duration should not be negative")
	}

	failed := NewAuditEvent("bucket.delete").Complete(errors.New("Cannot delete the last category"))
	if failed.Success {
		t.Error("expected failure")
	}
	if failed.Status() != StatusError {
		t.Errorf("status = %q, want %q", failed.Status(), StatusError)
	}
	if failed.Error != "Cannot delete the last category" {
		t.Errorf("unexpected error %q", failed.Error)
	}
}

func TestAuditEvent_LogAttrs_Anonymized(t *testing.T) {
	e := NewAuditEvent("inbox_search").WithUser("jane@example.com").Complete(nil)
	m := attrsToMap(e.LogAttrs())

	if _, ok := m["user"]; ok {
		t.Error("anonymized attrs must not contain the raw user")
	}
	if !strings.HasPrefix(m["user_hash"].String(), "user:") {
		t.Errorf("expected hashed user, got %q", m["user_hash"].String())
	}
	if _, ok := m["target"]; ok {
		t.Error("empty target should be omitted")
	}
}

func TestAuditEvent_LogAuditAttrs(t *testing.T) {
	e := NewAuditEvent("google.disconnect").WithUser("jane@example.com").WithTarget("token")
	e.SpanID = "span"
	e.Complete(errors.New("boom"))
	m := attrsToMap(e.LogAuditAttrs())

	if m["user"].String() != "jane@example.com" {
		t.Errorf("user = %q", m["user"].String())
	}
	if m["target"].String() != "token" {
		t.Errorf("target = %q", m["target"].String())
	}
	if m["error"].String() != "boom" {
		t.Errorf("error = %q", m["error"].String())
	}
	if m["span_id"].String() != "span" {
		t.Errorf("span_id = %q", m["span_id"].String())
	}
}

func TestAuditEvent_WithSpanContext_NoSpan(t *testing.T) {
	e := NewAuditEvent("x").WithSpanContext(context.Background())
	if e.TraceID != "" || e.SpanID != "" {
		t.Error("expected empty trace context")
	}
}

func TestAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true})
	al.Log(NewAuditEvent("bucket.update").WithUser("local-user").Complete(nil))
	al.Log(NewAuditEvent("bucket.update").WithUser("local-user").Complete(errors.New("Bucket not found")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first["msg"] != "audit_event" || first["level"] != "INFO" {
		t.Errorf("unexpected first entry %v", first)
	}
	if second["msg"] != "audit_event_failed" || second["level"] != "WARN" {
		t.Errorf("unexpected second entry %v", second)
	}
	if first["component"] != "audit" {
		t.Errorf("expected audit component, got %v", first["component"])
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewAuditLogger(logger, AuditLoggingConfig{Enabled: false}).Log(NewAuditEvent("x").Complete(nil))
	var nilLogger *AuditLogger
	nilLogger.Log(NewAuditEvent("x").Complete(nil))

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: true}).
		Log(NewAuditEvent("google.connect").WithUser("jane@example.com").Complete(nil))

	if !strings.Contains(buf.String(), "jane@example.com") {
		t.Errorf("expected raw user in PII mode, got %q", buf.String())
	}
}
