// Audit logging: structured, per-request pipeline events written as JSON lines.
// The audit trail records every stage transition, reasoning-service call, and
// fallback decision so a degraded response can be reconstructed after the fact.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Request lifecycle events
	AuditRequestStart AuditEventType = "request_start"
	AuditRequestEnd   AuditEventType = "request_end"

	// Stage events
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditStageError    AuditEventType = "stage_error"
	AuditStageFallback AuditEventType = "stage_fallback"

	// Reasoning-service API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Sandbox events
	AuditProcedureRun      AuditEventType = "procedure_run"
	AuditProcedureComplete AuditEventType = "procedure_complete"
	AuditProcedureError    AuditEventType = "procedure_error"

	// Presentation events
	AuditDescriptorEmit  AuditEventType = "descriptor_emit"
	AuditDescriptorError AuditEventType = "descriptor_error"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`    // Unix milliseconds
	EventType  AuditEventType         `json:"event"` // Event kind
	RequestID  string                 `json:"req"`   // Request correlation
	Stage      string                 `json:"stage,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger handles structured audit logging scoped to one request.
type AuditLogger struct {
	requestID string
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditWithRequest creates an audit logger scoped to one request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event. A nil receiver is a no-op so stages that run
// without request correlation can share the audit helpers.
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil || !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" {
		event.RequestID = a.requestID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// RequestStart logs the beginning of a pipeline request.
func (a *AuditLogger) RequestStart(message string, rows, cols int) {
	a.Log(AuditEvent{
		EventType: AuditRequestStart,
		Success:   true,
		Fields:    map[string]interface{}{"rows": rows, "columns": cols},
		Message:   fmt.Sprintf("Request started: %q (%dx%d)", message, rows, cols),
	})
}

// RequestEnd logs the completion of a pipeline request.
func (a *AuditLogger) RequestEnd(durationMs int64, degraded bool) {
	a.Log(AuditEvent{
		EventType:  AuditRequestEnd,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"degraded": degraded},
		Message:    fmt.Sprintf("Request ended (%dms, degraded=%v)", durationMs, degraded),
	})
}

// StageComplete logs a stage finishing, successfully or not.
func (a *AuditLogger) StageComplete(stage string, durationMs int64, success bool, errMsg string) {
	eventType := AuditStageComplete
	if !success {
		eventType = AuditStageError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Stage:      stage,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("Stage %s (success=%v, %dms)", stage, success, durationMs),
	})
}

// StageFallback logs the controller engaging the fallback policy.
func (a *AuditLogger) StageFallback(stage, reason string) {
	a.Log(AuditEvent{
		EventType: AuditStageFallback,
		Stage:     stage,
		Success:   true,
		Fields:    map[string]interface{}{"reason": reason},
		Message:   fmt.Sprintf("Fallback engaged after %s: %s", stage, reason),
	})
}

// LLMCall logs one reasoning-provider call. Providers sit below request
// correlation, so these events carry no request ID.
func LLMCall(provider string, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	(&AuditLogger{}).Log(AuditEvent{
		EventType:  eventType,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"provider": provider},
		Message:    fmt.Sprintf("LLM call: %s (%dms, success=%v)", provider, durationMs, success),
	})
}

// ProcedureRun logs a sandbox execution attempt.
func (a *AuditLogger) ProcedureRun(procedureBytes int, durationMs int64, success bool, errMsg string) {
	eventType := AuditProcedureComplete
	if !success {
		eventType = AuditProcedureError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"procedure_bytes": procedureBytes},
		Message:    fmt.Sprintf("Procedure executed (%d bytes, %dms, success=%v)", procedureBytes, durationMs, success),
	})
}

// DescriptorError logs a single chart/table descriptor failing to materialize.
func (a *AuditLogger) DescriptorError(kind, title string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditDescriptorError,
		Success:   false,
		Error:     errMsg,
		Fields:    map[string]interface{}{"kind": kind, "title": title},
		Message:   fmt.Sprintf("Descriptor failed: %s %q", kind, title),
	})
}
