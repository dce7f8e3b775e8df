package profile

import (
	"math"
	"strings"
	"testing"

	"gridsense/internal/table"
)

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	return table.Normalize(table.FromRows([][]interface{}{
		{"Region", "Sales"},
		{"North", 100},
		{"South", 200},
		{"North", 50},
	}))
}

func TestProfile_NumericSummary(t *testing.T) {
	p := Profile(salesTable(t))

	if p.Empty {
		t.Fatal("profile unexpectedly empty")
	}
	if p.Rows != 3 || p.Cols != 2 {
		t.Fatalf("shape = %dx%d; want 3x2", p.Rows, p.Cols)
	}

	sales := p.Columns["Sales"]
	if sales == nil || sales.Numeric == nil {
		t.Fatal("Sales numeric summary missing")
	}
	if got := sales.Numeric.Mean; math.Abs(got-116.67) > 0.01 {
		t.Errorf("Sales mean = %v; want 116.67 +/- 0.01", got)
	}
	if sales.Numeric.Min != 50 || sales.Numeric.Max != 200 {
		t.Errorf("Sales min/max = %v/%v; want 50/200", sales.Numeric.Min, sales.Numeric.Max)
	}
	if sales.Numeric.Median != 100 {
		t.Errorf("Sales median = %v; want 100", sales.Numeric.Median)
	}
}

func TestProfile_CategoricalFrequencies(t *testing.T) {
	p := Profile(salesTable(t))

	region := p.Columns["Region"]
	if region == nil || region.Categorical == nil {
		t.Fatal("Region categorical summary missing")
	}
	if got := region.Categorical.UniqueCount; got != 2 {
		t.Errorf("Region unique count = %d; want 2", got)
	}
	if got := region.Categorical.TopValues["North"]; got != 2 {
		t.Errorf("Region frequency North = %d; want 2", got)
	}
	if got := region.Categorical.TopValues["South"]; got != 1 {
		t.Errorf("Region frequency South = %d; want 1", got)
	}
}

func TestProfile_TopValuesCapped(t *testing.T) {
	rows := [][]interface{}{{"Tag"}}
	for i := 0; i < 10; i++ {
		rows = append(rows, []interface{}{string(rune('a' + i))})
	}
	p := Profile(table.Normalize(table.FromRows(rows)))

	tag := p.Columns["Tag"]
	if tag == nil || tag.Categorical == nil {
		t.Fatal("Tag categorical summary missing")
	}
	if got := tag.Categorical.UniqueCount; got != 10 {
		t.Errorf("unique count = %d; want 10", got)
	}
	if got := len(tag.Categorical.TopValues); got != 5 {
		t.Errorf("top values = %d entries; want 5", got)
	}
}

func TestProfile_CorrelationSuppressedForSingleNumeric(t *testing.T) {
	p := Profile(salesTable(t))

	if len(p.Correlations) != 0 {
		t.Errorf("correlations emitted with one numeric column: %v", p.Correlations)
	}
}

func TestProfile_CorrelationMatrix(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"X", "Y"},
		{1, 2},
		{2, 4},
		{3, 6},
	}))
	p := Profile(tbl)

	if len(p.Correlations) != 4 {
		t.Fatalf("correlation triples = %d; want 4 (full ordered matrix)", len(p.Correlations))
	}
	found := map[string]float64{}
	for _, c := range p.Correlations {
		found[c.X+"/"+c.Y] = c.Value
	}
	if found["X/X"] != 1.0 || found["Y/Y"] != 1.0 {
		t.Errorf("diagonal not 1.0: %v", found)
	}
	if math.Abs(found["X/Y"]-1.0) > 0.001 {
		t.Errorf("corr(X, Y) = %v; want 1.0 for perfectly linear data", found["X/Y"])
	}
}

func TestProfile_EmptyTable(t *testing.T) {
	for _, tbl := range []*table.Table{nil, table.New()} {
		p := Profile(tbl)
		if !p.Empty {
			t.Errorf("Profile(%v).Empty = false; want true", tbl)
		}
		if len(p.Columns) != 0 || len(p.Insights) != 0 {
			t.Errorf("empty profile carries content: %+v", p)
		}
	}
}

func TestProfile_TemporalSummary(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"OrderDate", "Amount"},
		{"2024-01-01", 10},
		{"2024-01-11", 20},
	}))
	p := Profile(tbl)

	od := p.Columns["OrderDate"]
	if od == nil || od.Temporal == nil {
		t.Fatal("OrderDate temporal summary missing")
	}
	if got := od.Temporal.SpanDays; got != 10 {
		t.Errorf("span = %v days; want 10", got)
	}
}

func TestInsights_TimeSeriesHint(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"OrderDate", "Amount"},
		{"2024-01-01", 10},
		{"2024-01-11", 20},
	}))
	p := Profile(tbl)

	found := false
	for _, ins := range p.Insights {
		if contains(ins, "Time series") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a time series insight, got %v", p.Insights)
	}
}

func TestInsights_TimeSeriesHintWithoutNumericColumn(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"OrderDate", "Status"},
		{"2024-01-01", "open"},
		{"2024-01-11", "closed"},
	}))
	p := Profile(tbl)

	found := false
	for _, ins := range p.Insights {
		if contains(ins, "Time series") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a time series insight for a temporal-plus-categorical table, got %v", p.Insights)
	}
}

func TestInsights_HighMissingness(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"A", "B"},
		{"1", "x"},
		{nil, "y"},
		{nil, "z"},
		{nil, "w"},
	}))
	p := Profile(tbl)

	found := false
	for _, ins := range p.Insights {
		if contains(ins, "missing") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a missingness insight for 75%%-null column, got %v", p.Insights)
	}
}

func TestInsights_StrongCorrelation(t *testing.T) {
	tbl := table.Normalize(table.FromRows([][]interface{}{
		{"X", "Y"},
		{1, 10},
		{2, 21},
		{3, 29},
		{4, 41},
	}))
	p := Profile(tbl)

	found := false
	for _, ins := range p.Insights {
		if contains(ins, "correlation") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a strong-correlation insight, got %v", p.Insights)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
