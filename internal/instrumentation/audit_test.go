package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/teemow/inboxshare/internal/logging"
)

const (
	testEmail  = "jane@example.com"
	testTarget = "shared@example.com"
	testTool   = "mailbox_list_inbox"
)

func newBufferedAuditLogger(includePII bool) (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: includePII}), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return entry
}

func TestAuditLogger_LogEvent_HashesByDefault(t *testing.T) {
	al, buf := newBufferedAuditLogger(false)

	al.LogEvent(context.Background(), AuditEvent{
		Action: AuditActionAccess,
		Actor:  testEmail,
		Target: testTarget,
		Result: AccessResultDeny,
		Detail: "premium_access_denied",
	})

	entry := decodeLine(t, buf)
	if entry["level"] != "WARN" {
		t.Errorf("deny should log at WARN, got %v", entry["level"])
	}
	if entry[logging.KeyUserHash] != logging.AnonymizeEmail(testEmail) {
		t.Errorf("expected hashed actor, got %v", entry[logging.KeyUserHash])
	}
	if entry[logging.KeyAccountHash] != logging.AnonymizeEmail(testTarget) {
		t.Errorf("expected hashed target, got %v", entry[logging.KeyAccountHash])
	}
	if strings.Contains(buf.String(), testEmail) || strings.Contains(buf.String(), testTarget) {
		t.Error("raw email leaked into audit log")
	}
	if entry["log_type"] != "audit" {
		t.Errorf("expected log_type audit, got %v", entry["log_type"])
	}
}

func TestAuditLogger_LogEvent_IncludePII(t *testing.T) {
	al, buf := newBufferedAuditLogger(true)

	al.LogEvent(context.Background(), AuditEvent{
		Action:  AuditActionAccess,
		Actor:   testEmail,
		Target:  testTarget,
		Result:  AccessResultGrant,
		Detail:  "owner",
		GrantID: "g-1",
	})

	entry := decodeLine(t, buf)
	if entry["level"] != "INFO" {
		t.Errorf("grant should log at INFO, got %v", entry["level"])
	}
	if entry["actor"] != testEmail || entry["target"] != testTarget {
		t.Errorf("expected clear identities, got actor=%v target=%v", entry["actor"], entry["target"])
	}
	if entry[logging.KeyGrant] != "g-1" {
		t.Errorf("expected grant id, got %v", entry[logging.KeyGrant])
	}
}

func TestAuditLogger_AnonymousActorOmitted(t *testing.T) {
	al, buf := newBufferedAuditLogger(false)

	al.LogEvent(context.Background(), AuditEvent{Action: AuditActionAccess, Target: testTarget, Result: AccessResultGrant, Detail: "public"})

	entry := decodeLine(t, buf)
	if _, ok := entry[logging.KeyUserHash]; ok {
		t.Error("anonymous actor should not produce a user hash")
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogEvent(context.Background(), AuditEvent{Action: AuditActionAccess})
	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogEvent(context.Background(), AuditEvent{})
	nilLogger.LogToolInvocation(NewToolInvocation(testTool))
}

func TestAuditLogger_New(t *testing.T) {
	al := NewAuditLogger(nil)
	if al.logger == nil {
		t.Error("logger should not be nil when created with nil")
	}
	if !al.enabled || al.includePII {
		t.Error("NewAuditLogger should be enabled without PII")
	}
}

func TestToolInvocation_Lifecycle(t *testing.T) {
	ti := NewToolInvocation(testTool).WithUser(testEmail).WithAccount(testTarget)
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteWithError(errors.New("permission denied"))
	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status = %q, want %q", ti.Status(), StatusError)
	}
	if ti.Error != "permission denied" {
		t.Errorf("Error = %q", ti.Error)
	}

	ok := NewToolInvocation(testTool).CompleteSuccess()
	if ok.Status() != StatusSuccess || ok.Error != "" {
		t.Errorf("unexpected success state: %+v", ok)
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	al, buf := newBufferedAuditLogger(false)

	al.LogToolInvocation(NewToolInvocation(testTool).
		WithUser(testEmail).
		WithAccount(testTarget).
		CompleteWithError(errors.New("boom")))

	entry := decodeLine(t, buf)
	if entry["msg"] != "tool_failed" {
		t.Errorf("msg = %v, want tool_failed", entry["msg"])
	}
	if entry[logging.KeyTool] != testTool {
		t.Errorf("tool = %v", entry[logging.KeyTool])
	}
	if strings.Contains(buf.String(), testEmail) {
		t.Error("raw email leaked into tool log")
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation("test").WithSpanContext(context.Background())

	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty trace context, got %q/%q", ti.TraceID, ti.SpanID)
	}
}
