package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsense/internal/profile"
	"gridsense/internal/table"
)

type mockClient struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.lastSystem = systemPrompt
	m.lastUser = userPrompt
	return m.reply, m.err
}

func testProfile(t *testing.T) *profile.DataProfile {
	t.Helper()
	return profile.Profile(table.Normalize(table.FromRows([][]interface{}{
		{"Region", "Sales"},
		{"North", 100},
		{"South", 200},
	})))
}

func TestClassifyIntent_ValidReply(t *testing.T) {
	client := &mockClient{reply: `{"intent": "visualization", "subtype": "bar", "rationale": "asks for a chart"}`}
	s := New(client, "")

	intent := s.ClassifyIntent(context.Background(), "chart sales by region", testProfile(t))

	assert.Equal(t, IntentVisualization, intent.Type)
	assert.Equal(t, "bar", intent.Subtype)
	assert.Contains(t, client.lastUser, "Sales (numeric)")
}

func TestClassifyIntent_FencedReply(t *testing.T) {
	client := &mockClient{reply: "```json\n{\"intent\": \"query\"}\n```"}
	s := New(client, "")

	intent := s.ClassifyIntent(context.Background(), "how many rows", testProfile(t))
	assert.Equal(t, IntentQuery, intent.Type)
}

func TestClassifyIntent_Defaults(t *testing.T) {
	tests := []struct {
		name          string
		client        *mockClient
		defaultIntent string
		want          string
	}{
		{"transport error", &mockClient{err: errors.New("boom")}, "", IntentStatistical},
		{"garbage reply", &mockClient{reply: "not json at all"}, "", IntentStatistical},
		{"unknown tag", &mockClient{reply: `{"intent": "forecasting"}`}, "", IntentStatistical},
		{"configured default", &mockClient{err: errors.New("boom")}, IntentQuery, IntentQuery},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.client, tc.defaultIntent)
			intent := s.ClassifyIntent(context.Background(), "do something", testProfile(t))
			assert.Equal(t, tc.want, intent.Type)
			assert.Empty(t, intent.Subtype)
		})
	}
}

const goodReply = `{
  "analysis_type": "group_comparison",
  "analysis_plan": "Aggregate sales per region.",
  "interpretation_guide": "Higher totals mean stronger regions.",
  "procedure": "` + "```go\\npackage main\\n\\nimport \\\"gridsense/analysis\\\"\\n\\nfunc Analyze() map[string]interface{} {\\n\\treturn map[string]interface{}{}\\n}\\n```" + `"
}`

func TestSynthesize_ParsesReply(t *testing.T) {
	client := &mockClient{reply: goodReply}
	s := New(client, "")

	pkg := s.Synthesize(context.Background(), "compare regions", testProfile(t), Intent{Type: IntentStatistical})

	require.NotNil(t, pkg)
	assert.False(t, pkg.Fallback)
	assert.Equal(t, "group_comparison", pkg.AnalysisType)
	assert.Equal(t, "Higher totals mean stronger regions.", pkg.InterpretationGuide)
	assert.True(t, strings.HasPrefix(pkg.Procedure, "package main"), "fence not stripped: %q", pkg.Procedure)
	assert.Contains(t, pkg.Procedure, "func Analyze(")

	// The prompt must carry the verbatim request and the contract.
	assert.Contains(t, client.lastUser, "compare regions")
	assert.Contains(t, client.lastSystem, "SafeGroupAggregate")
	assert.Contains(t, client.lastSystem, "func Analyze()")
}

func TestSynthesize_DegradesToFallback(t *testing.T) {
	tests := []struct {
		name   string
		client *mockClient
	}{
		{"transport error", &mockClient{err: errors.New("boom")}},
		{"garbage reply", &mockClient{reply: "sorry, I cannot help with that"}},
		{"empty procedure", &mockClient{reply: `{"analysis_type": "x", "procedure": ""}`}},
		{"no entry point", &mockClient{reply: `{"analysis_type": "x", "procedure": "package main\nfunc run() {}"}`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.client, "")
			pkg := s.Synthesize(context.Background(), "anything", testProfile(t), Intent{Type: IntentStatistical})
			require.NotNil(t, pkg)
			assert.True(t, pkg.Fallback)
			assert.Contains(t, pkg.Procedure, "func Analyze(")
		})
	}
}

func TestSynthesize_TypeDefaultsToIntent(t *testing.T) {
	reply := `{"procedure": "package main\nimport \"gridsense/analysis\"\nfunc Analyze() map[string]interface{} { _ = analysis.Rows; return nil }"}`
	s := New(&mockClient{reply: reply}, "")

	pkg := s.Synthesize(context.Background(), "q", testProfile(t), Intent{Type: IntentQuery})
	assert.Equal(t, IntentQuery, pkg.AnalysisType)
}

func TestFallbackPackage_Shape(t *testing.T) {
	pkg := FallbackPackage()
	assert.True(t, pkg.Fallback)
	assert.Contains(t, pkg.Procedure, "package main")
	assert.Contains(t, pkg.Procedure, `import "gridsense/analysis"`)
	assert.Contains(t, pkg.Procedure, "func Analyze() map[string]interface{}")
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		want string
	}{
		{"tagged fence", "prose\n```go\ncode here\n```\nmore", "go", "code here"},
		{"anonymous fence", "```\ncode\n```", "go", "code"},
		{"no fence", "  raw code  ", "go", "raw code"},
		{"json fence", "```json\n{\"a\":1}\n```", "json", `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractCodeBlock(tc.text, tc.lang))
		})
	}
}
