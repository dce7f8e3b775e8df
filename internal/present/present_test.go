package present

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsense/internal/config"
	"gridsense/internal/table"
)

type mockClient struct {
	reply    string
	err      error
	lastUser string
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	m.lastUser = user
	return m.reply, m.err
}

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	return table.Normalize(table.FromRows([][]interface{}{
		{"Region", "Sales"},
		{"North", 100},
		{"South", 200},
		{"North", 50},
	}))
}

func defaultPolicy() config.PipelinePolicy {
	return config.PipelinePolicy{MaxCharts: 3, OnDescriptorError: config.DescriptorErrorDrop}
}

func TestCharts_Materializes(t *testing.T) {
	client := &mockClient{reply: `[{"title": "Sales by Region", "kind": "bar", "x_field": "Region", "y_fields": ["Sales"]}]`}
	p := New(client, defaultPolicy())

	charts := p.Charts(context.Background(), "chart sales by region", map[string]interface{}{}, salesTable(t), nil)

	require.Len(t, charts, 1)
	chart := charts[0]
	assert.Equal(t, "bar", chart.Kind)
	assert.Equal(t, "Region", chart.XField)

	// Duplicate categorical labels aggregate by sum: North = 150.
	require.Len(t, chart.Data, 2)
	assert.Equal(t, "North", chart.Data[0]["Region"])
	assert.Equal(t, 150.0, chart.Data[0]["Sales"])
	assert.Equal(t, 200.0, chart.Data[1]["Sales"])
}

func TestCharts_BadSpecDropped(t *testing.T) {
	client := &mockClient{reply: `[
		{"title": "good", "kind": "bar", "x_field": "Region", "y_fields": ["Sales"]},
		{"title": "bad column", "kind": "bar", "x_field": "Nope", "y_fields": ["Sales"]},
		{"title": "bad kind", "kind": "hologram", "x_field": "Region", "y_fields": ["Sales"]}
	]`}
	p := New(client, defaultPolicy())

	charts := p.Charts(context.Background(), "charts", nil, salesTable(t), nil)
	require.Len(t, charts, 1)
	assert.Equal(t, "good", charts[0].Title)
}

func TestCharts_PlaceholderPolicy(t *testing.T) {
	client := &mockClient{reply: `[{"title": "bad", "kind": "bar", "x_field": "Nope", "y_fields": ["Sales"]}]`}
	policy := defaultPolicy()
	policy.OnDescriptorError = config.DescriptorErrorPlaceholder
	p := New(client, policy)

	charts := p.Charts(context.Background(), "charts", nil, salesTable(t), nil)
	require.Len(t, charts, 1)
	assert.Equal(t, "bad", charts[0].Title)
	assert.Empty(t, charts[0].Data)
	assert.NotEmpty(t, charts[0].Description)
}

func TestCharts_ClientFailure(t *testing.T) {
	p := New(&mockClient{err: errors.New("boom")}, defaultPolicy())
	assert.Empty(t, p.Charts(context.Background(), "charts", nil, salesTable(t), nil))
}

func TestCharts_MaxChartsRespected(t *testing.T) {
	client := &mockClient{reply: `[
		{"title": "a", "kind": "bar", "x_field": "Region", "y_fields": ["Sales"]},
		{"title": "b", "kind": "pie", "x_field": "Region", "y_fields": ["Sales"]}
	]`}
	policy := defaultPolicy()
	policy.MaxCharts = 1
	p := New(client, policy)

	charts := p.Charts(context.Background(), "charts", nil, salesTable(t), nil)
	assert.Len(t, charts, 1)
}

func TestTables_FromRowShapedOutput(t *testing.T) {
	p := New(&mockClient{}, defaultPolicy())
	sanitized := map[string]interface{}{
		"by_region": []interface{}{
			map[string]interface{}{"Region": "North", "Sales": 150.0},
			map[string]interface{}{"Region": "South", "Sales": 200.0},
		},
		"total": 350.0, // scalar, not a table
	}

	tables := p.Tables(sanitized)
	require.Len(t, tables, 1)
	assert.Equal(t, "By Region", tables[0].Title)
	assert.Equal(t, "table", tables[0].Kind)
	assert.Len(t, tables[0].Data, 2)
}

func TestTables_NoRowShapes(t *testing.T) {
	p := New(&mockClient{}, defaultPolicy())
	assert.Empty(t, p.Tables(map[string]interface{}{"total": 1.0}))
	assert.Empty(t, p.Tables("not a map"))
}

func TestInterpret_UsesClient(t *testing.T) {
	client := &mockClient{reply: "Sales are strongest in the South."}
	p := New(client, defaultPolicy())

	text := p.Interpret(context.Background(), "which region leads", "higher is better",
		map[string]interface{}{"South": 200.0})

	assert.Equal(t, "Sales are strongest in the South.", text)
	assert.Contains(t, client.lastUser, "which region leads")
	assert.Contains(t, client.lastUser, "higher is better")
}

func TestInterpret_LocalFallbackNeverMentionsFailure(t *testing.T) {
	p := New(&mockClient{err: errors.New("service down")}, defaultPolicy())

	text := p.Interpret(context.Background(), "summarize",
		"", map[string]interface{}{"total_sales": 350.0})

	assert.NotEmpty(t, text)
	assert.Contains(t, text, "total sales")
	for _, banned := range []string{"error", "fail", "sorry", "unable"} {
		assert.NotContains(t, strings.ToLower(text), banned)
	}
}

func TestLocalSummary_EmptyOutput(t *testing.T) {
	text := localSummary(nil)
	assert.NotEmpty(t, text)
	assert.NotContains(t, strings.ToLower(text), "error")
}
