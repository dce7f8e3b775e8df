// Package profile computes the structural and statistical summary of a
// normalized table. The profile doubles as planning context for procedure
// synthesis and as the data source for the controller's fallback analysis.
package profile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"gridsense/internal/logging"
	"gridsense/internal/table"
)

// NumericSummary holds the five-number-style summary of a numeric column.
type NumericSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// TemporalSummary holds min/max/span facts about a temporal column.
type TemporalSummary struct {
	Min      string  `json:"min"`
	Max      string  `json:"max"`
	SpanDays float64 `json:"span_days"`
}

// CategoricalSummary holds cardinality facts about a categorical column.
type CategoricalSummary struct {
	UniqueCount int            `json:"unique_count"`
	TopValues   map[string]int `json:"top_values"` // top-5 value -> frequency
}

// ColumnProfile summarizes one column.
type ColumnProfile struct {
	Name        string              `json:"name"`
	Kind        table.Kind          `json:"type"`
	NonNull     int                 `json:"non_null_count"`
	NullPercent float64             `json:"null_percent"`
	Numeric     *NumericSummary     `json:"numeric,omitempty"`
	Temporal    *TemporalSummary    `json:"temporal,omitempty"`
	Categorical *CategoricalSummary `json:"categorical,omitempty"`
}

// Correlation is one cell of the flattened Pearson correlation matrix.
type Correlation struct {
	X     string  `json:"x"`
	Y     string  `json:"y"`
	Value float64 `json:"value"`
}

// DataProfile is a pure function of a normalized table, recomputed per
// request and never cached.
type DataProfile struct {
	Empty              bool                      `json:"empty,omitempty"`
	Rows               int                       `json:"rows"`
	Cols               int                       `json:"columns"`
	Columns            map[string]*ColumnProfile `json:"column_profiles,omitempty"`
	NumericColumns     []string                  `json:"numeric_columns,omitempty"`
	TemporalColumns    []string                  `json:"temporal_columns,omitempty"`
	CategoricalColumns []string                  `json:"categorical_columns,omitempty"`
	Correlations       []Correlation             `json:"correlation_data,omitempty"`
	Insights           []string                  `json:"insights,omitempty"`
}

const topValueCount = 5

// Profile computes the DataProfile of a table. An empty table yields the
// {empty: true} sentinel that short-circuits downstream planning.
func Profile(t *table.Table) *DataProfile {
	timer := logging.StartTimer(logging.CategoryProfile, "Profile")
	defer timer.Stop()

	if t == nil || t.Empty() {
		return &DataProfile{Empty: true}
	}

	p := &DataProfile{
		Rows:               t.NumRows(),
		Cols:               t.NumCols(),
		Columns:            make(map[string]*ColumnProfile, t.NumCols()),
		NumericColumns:     t.NumericColumns(),
		TemporalColumns:    t.TemporalColumns(),
		CategoricalColumns: t.CategoricalColumns(),
	}

	for _, name := range t.Columns() {
		p.Columns[name] = profileColumn(t, name)
	}

	if len(p.NumericColumns) >= 2 {
		p.Correlations = correlations(t, p.NumericColumns)
	}

	p.Insights = deriveInsights(t, p)

	logging.ProfileDebug("profiled %dx%d table: %d insights, %d correlation pairs",
		p.Rows, p.Cols, len(p.Insights), len(p.Correlations))
	return p
}

func profileColumn(t *table.Table, name string) *ColumnProfile {
	col := t.Column(name)
	total := t.NumRows()

	nonNull := 0
	for _, v := range col.Cells {
		if v != nil {
			nonNull++
		}
	}

	cp := &ColumnProfile{
		Name:    name,
		Kind:    col.Kind,
		NonNull: nonNull,
	}
	if total > 0 {
		cp.NullPercent = round2(float64(total-nonNull) / float64(total) * 100)
	}

	switch col.Kind {
	case table.KindNumeric:
		cp.Numeric = numericSummary(t.NonNullFloats(name))
	case table.KindTemporal:
		cp.Temporal = temporalSummary(t.NonNullTimes(name))
	default:
		cp.Categorical = categoricalSummary(col.Cells)
	}
	return cp
}

func numericSummary(values []float64) *NumericSummary {
	if len(values) == 0 {
		return nil
	}
	data := stats.Float64Data(values)
	min, _ := data.Min()
	max, _ := data.Max()
	mean, _ := data.Mean()
	median, _ := data.Median()
	std, _ := data.StandardDeviation()
	quartiles, _ := stats.Quartile(data)
	return &NumericSummary{
		Min:    min,
		Max:    max,
		Mean:   mean,
		Median: median,
		Std:    std,
		Q1:     quartiles.Q1,
		Q3:     quartiles.Q3,
	}
}

func temporalSummary(values []time.Time) *TemporalSummary {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, ts := range values[1:] {
		if ts.Before(min) {
			min = ts
		}
		if ts.After(max) {
			max = ts
		}
	}
	return &TemporalSummary{
		Min:      min.Format(time.RFC3339),
		Max:      max.Format(time.RFC3339),
		SpanDays: round2(max.Sub(min).Hours() / 24),
	}
}

func categoricalSummary(cells []interface{}) *CategoricalSummary {
	counts := map[string]int{}
	for _, v := range cells {
		if v == nil {
			continue
		}
		// Keys are coerced to strings for interchange.
		counts[fmt.Sprintf("%v", v)]++
	}

	type vc struct {
		value string
		count int
	}
	ranked := make([]vc, 0, len(counts))
	for v, c := range counts {
		ranked = append(ranked, vc{v, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].value < ranked[j].value
	})
	if len(ranked) > topValueCount {
		ranked = ranked[:topValueCount]
	}

	top := make(map[string]int, len(ranked))
	for _, r := range ranked {
		top[r.value] = r.count
	}
	return &CategoricalSummary{
		UniqueCount: len(counts),
		TopValues:   top,
	}
}

// correlations flattens the Pearson matrix into {x, y, value} triples for all
// ordered pairs, including the 1.0 diagonal.
func correlations(t *table.Table, numeric []string) []Correlation {
	// Pairwise-complete values: only rows where both cells are non-null.
	out := make([]Correlation, 0, len(numeric)*len(numeric))
	for _, x := range numeric {
		for _, y := range numeric {
			if x == y {
				out = append(out, Correlation{X: x, Y: y, Value: 1.0})
				continue
			}
			xs, ys := pairedValues(t, x, y)
			r, err := stats.Pearson(xs, ys)
			if err != nil || math.IsNaN(r) {
				continue
			}
			out = append(out, Correlation{X: x, Y: y, Value: round4(r)})
		}
	}
	return out
}

func pairedValues(t *table.Table, x, y string) ([]float64, []float64) {
	cx, cy := t.Column(x), t.Column(y)
	var xs, ys []float64
	for i := range cx.Cells {
		fx, okx := cx.Cells[i].(float64)
		fy, oky := cy.Cells[i].(float64)
		if okx && oky {
			xs = append(xs, fx)
			ys = append(ys, fy)
		}
	}
	return xs, ys
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
