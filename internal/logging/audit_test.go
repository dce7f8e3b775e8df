package logging

import "testing"

// Stages without request correlation share the audit helpers through a nil
// logger; none of them may panic or write.
func TestAuditLogger_NilReceiverIsNoOp(t *testing.T) {
	var a *AuditLogger
	a.Log(AuditEvent{EventType: AuditStageError, Message: "x"})
	a.DescriptorError("bar", "Sales by Region", nil)
	a.StageComplete("classify", 1, true, "")
	a.StageFallback("execute", "boom")
}

func TestLLMCall_WithoutInitIsNoOp(t *testing.T) {
	LLMCall("gemini", 5, false, "boom")
	LLMCall("openai", 5, true, "")
}
