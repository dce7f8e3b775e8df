package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gridsense/internal/config"
	"gridsense/internal/profile"
	"gridsense/internal/table"
)

func profileOf(tbl *table.Table) *profile.DataProfile {
	return profile.Profile(tbl)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Background worker started at package init by the opencensus
		// dependency (transitively via google.golang.org/genai); it is not
		// started by the code under test.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// scriptedClient routes replies by which stage's system prompt is asking.
type scriptedClient struct {
	classify  string
	synthesis string
	charts    string
	interpret string
}

func (s *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	switch {
	case strings.Contains(system, "classify"):
		return s.classify, nil
	case strings.Contains(system, "SafeGroupAggregate"):
		return s.synthesis, nil
	case strings.Contains(system, "chart specifications"):
		return s.charts, nil
	default:
		return s.interpret, nil
	}
}

func salesRequest() Request {
	return Request{
		Message: "compare sales across regions",
		Sheets: []Sheet{{
			ID: "sheet-1",
			Raw: table.FromRows([][]interface{}{
				{"Region", "Sales"},
				{"North", 100},
				{"South", 200},
				{"North", 50},
			}),
		}},
		ActiveSheetID: "sheet-1",
	}
}

const workingProcedureReply = `{
  "analysis_type": "group_comparison",
  "analysis_plan": "Total sales per region.",
  "interpretation_guide": "Bigger totals mean stronger regions.",
  "procedure": "package main\n\nimport \"gridsense/analysis\"\n\nfunc Analyze() map[string]interface{} {\n\tgroups := analysis.SafeGroupAggregate([]string{\"Region\"}, map[string]string{\"Sales\": \"sum\"})\n\tresults := map[string]interface{}{\"row_count\": float64(len(analysis.Rows))}\n\tif groups != nil {\n\t\tresults[\"by_region\"] = groups\n\t}\n\treturn results\n}"
}`

func TestAnalyze_HappyPath(t *testing.T) {
	client := &scriptedClient{
		classify:  `{"intent": "visualization", "subtype": "bar"}`,
		synthesis: workingProcedureReply,
		charts:    `[{"title": "Sales by Region", "kind": "bar", "x_field": "Region", "y_fields": ["Sales"]}]`,
		interpret: "The South region leads with 200 in sales.",
	}
	c := NewController(client, config.Default())

	resp, err := c.Analyze(context.Background(), salesRequest())
	require.NoError(t, err)

	assert.Equal(t, "The South region leads with 200 in sales.", resp.Text)
	assert.False(t, resp.Metadata.Degraded)
	assert.Equal(t, 3, resp.Metadata.RowsAnalyzed)
	assert.Equal(t, 2, resp.Metadata.ColumnsAnalyzed)
	assert.Equal(t, "group_comparison", resp.Metadata.AnalysisType)
	assert.Equal(t, "visualization", resp.Metadata.Intent)
	assert.NotEmpty(t, resp.Metadata.RequestID)

	require.Len(t, resp.Charts, 1)
	assert.Equal(t, "sheet-1", resp.Charts[0].SourceSheetID)
	assert.Equal(t, "sheet-1", resp.Charts[0].TargetSheetID)

	analysis, ok := resp.Analysis.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, analysis["row_count"])

	// SafeGroupAggregate output is row-shaped, so a table descriptor appears.
	require.NotEmpty(t, resp.Tables)
}

func TestAnalyze_FallbackGuarantee(t *testing.T) {
	// A procedure that always panics must still yield a full response with
	// non-empty text and accurate row metadata.
	reply := `{"analysis_type": "doomed", "procedure": "package main\n\nfunc Analyze() map[string]interface{} {\n\tpanic(\"always fails\")\n}"}`
	client := &scriptedClient{
		classify:  reply,
		synthesis: reply,
		charts:    reply,
		interpret: "Sales average 116.67 across 3 records, led by the North region's 2 entries.",
	}
	c := NewController(client, config.Default())

	resp, err := c.Analyze(context.Background(), salesRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Text)
	assert.True(t, resp.Metadata.Degraded)
	assert.Equal(t, 3, resp.Metadata.RowsAnalyzed)

	analysis, ok := resp.Analysis.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, analysis["row_count"])
	assert.Contains(t, analysis, "summary")
	assert.Contains(t, analysis, "groups")
}

func TestAnalyze_EmptyResultDegrades(t *testing.T) {
	reply := `{"procedure": "package main\n\nfunc Analyze() map[string]interface{} {\n\treturn map[string]interface{}{}\n}"}`
	client := &scriptedClient{
		classify:  `{"intent": "statistical"}`,
		synthesis: reply,
		interpret: "Here is an overview of the data.",
	}
	c := NewController(client, config.Default())

	resp, err := c.Analyze(context.Background(), salesRequest())
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Degraded)
	assert.Equal(t, "descriptive", resp.Metadata.AnalysisType)
}

func TestAnalyze_EmptySheetHardError(t *testing.T) {
	c := NewController(&scriptedClient{}, config.Default())

	tests := []struct {
		name string
		req  Request
	}{
		{"no sheets", Request{Message: "anything"}},
		{"empty sheet", Request{
			Message: "anything",
			Sheets:  []Sheet{{ID: "s", Raw: table.FromRows(nil)}},
		}},
		{"header only", Request{
			Message: "anything",
			Sheets:  []Sheet{{ID: "s", Raw: table.FromRows([][]interface{}{{"A", "B"}})}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Analyze(context.Background(), tc.req)
			assert.Error(t, err)
		})
	}
}

func TestAnalyze_TargetSheetDefaults(t *testing.T) {
	client := &scriptedClient{
		classify:  `{"intent": "statistical"}`,
		synthesis: workingProcedureReply,
		interpret: "ok",
	}
	c := NewController(client, config.Default())

	req := salesRequest()
	req.ActiveSheetID = ""
	resp, err := c.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Tables)
	assert.Equal(t, "sheet-1", resp.Tables[0].TargetSheetID)
}

func TestAnalyze_ExplicitTargetSheetRouting(t *testing.T) {
	client := &scriptedClient{
		classify:  `{"intent": "statistical"}`,
		synthesis: workingProcedureReply,
		interpret: "ok",
	}
	c := NewController(client, config.Default())

	// The explicit target wins over the active sheet; the source stays the
	// analyzed primary sheet.
	req := salesRequest()
	req.ActiveSheetID = "sheet-1"
	req.ExplicitTargetSheetID = "sheet-2"
	resp, err := c.Analyze(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Tables)
	assert.Equal(t, "sheet-1", resp.Tables[0].SourceSheetID)
	assert.Equal(t, "sheet-2", resp.Tables[0].TargetSheetID)
}

func TestBasicFallback_Shape(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"Region", "Sales"},
		{"North", 100},
		{"South", 200},
		{"North", 50},
	}))
	out := basicFallback(profileOf(tbl), tbl)

	assert.Equal(t, 3.0, out["row_count"])

	summary := out["summary"].(map[string]interface{})
	assert.Equal(t, "Sales", summary["column"])
	assert.InDelta(t, 116.67, summary["mean"].(float64), 0.01)

	groups := out["groups"].([]map[string]interface{})
	require.Len(t, groups, 2)
	assert.Equal(t, "North", groups[0]["Region"])
	assert.Equal(t, 2.0, groups[0]["count"])
	assert.Equal(t, 150.0, groups[0]["Sales"])
}
