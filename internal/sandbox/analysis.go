package sandbox

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"gridsense/internal/table"
)

// analysisImportPath is the import path procedures use for the pre-bound
// capability package.
const analysisImportPath = "gridsense/analysis"

// bindings is the closed capability set exposed to a procedure. Everything a
// procedure can touch lives here; there is no other door out of the
// interpreter besides the import whitelist.
type bindings struct {
	rows    []map[string]interface{}
	columns []string
	kinds   map[string]string
}

// newBindings snapshots an (already augmented) table copy into procedure-
// visible form.
func newBindings(t *table.Table) *bindings {
	kinds := make(map[string]string, t.NumCols())
	for _, name := range t.Columns() {
		kinds[name] = string(t.ColumnKind(name))
	}
	return &bindings{
		rows:    t.Rows(),
		columns: t.Columns(),
		kinds:   kinds,
	}
}

// exports builds the yaegi symbol table for the analysis package.
func (b *bindings) exports() map[string]map[string]reflect.Value {
	return map[string]map[string]reflect.Value{
		analysisImportPath + "/analysis": {
			"Rows":               reflect.ValueOf(b.rows),
			"Columns":            reflect.ValueOf(b.columns),
			"ColumnKinds":        reflect.ValueOf(b.kinds),
			"Mean":               reflect.ValueOf(Mean),
			"Median":             reflect.ValueOf(Median),
			"Std":                reflect.ValueOf(Std),
			"Min":                reflect.ValueOf(Min),
			"Max":                reflect.ValueOf(Max),
			"Sum":                reflect.ValueOf(Sum),
			"Describe":           reflect.ValueOf(Describe),
			"SafeGroupAggregate": reflect.ValueOf(b.safeGroupAggregate),
		},
	}
}

// Mean returns the arithmetic mean, or 0 for empty input.
func Mean(values []float64) float64 { v, _ := stats.Mean(values); return v }

// Median returns the median, or 0 for empty input.
func Median(values []float64) float64 { v, _ := stats.Median(values); return v }

// Std returns the standard deviation, or 0 for empty input.
func Std(values []float64) float64 { v, _ := stats.StandardDeviation(values); return v }

// Min returns the minimum, or 0 for empty input.
func Min(values []float64) float64 { v, _ := stats.Min(values); return v }

// Max returns the maximum, or 0 for empty input.
func Max(values []float64) float64 { v, _ := stats.Max(values); return v }

// Sum returns the sum, or 0 for empty input.
func Sum(values []float64) float64 { v, _ := stats.Sum(values); return v }

// Describe returns the basic descriptive statistics of a series.
func Describe(values []float64) map[string]interface{} {
	return map[string]interface{}{
		"count":  float64(len(values)),
		"mean":   Mean(values),
		"median": Median(values),
		"std":    Std(values),
		"min":    Min(values),
		"max":    Max(values),
		"sum":    Sum(values),
	}
}

// validReducers are the aggregations safeGroupAggregate understands.
var validReducers = map[string]bool{
	"sum": true, "mean": true, "count": true, "min": true, "max": true,
}

// safeGroupAggregate groups rows by one or more columns and reduces others.
// It is the safety helper synthesized procedures are told to use for
// grouping: requested columns that are absent, temporal, or carry an unknown
// reducer are silently dropped, and nil (never a panic) comes back when
// nothing survives filtering or any group column is unusable. Rows with a
// null in any group column are skipped.
func (b *bindings) safeGroupAggregate(groupBy []string, aggs map[string]string) []map[string]interface{} {
	if len(groupBy) == 0 {
		return nil
	}
	for _, col := range groupBy {
		if _, ok := b.kinds[col]; !ok {
			return nil
		}
	}

	surviving := map[string]string{}
	for col, reducer := range aggs {
		kind, ok := b.kinds[col]
		if !ok || kind == string(table.KindTemporal) || !validReducers[reducer] {
			continue
		}
		surviving[col] = reducer
	}
	if len(surviving) == 0 {
		return nil
	}

	groups := map[string][]map[string]interface{}{}
	keyParts := map[string][]string{}
	for _, row := range b.rows {
		parts, ok := groupKeyParts(row, groupBy)
		if !ok {
			continue
		}
		key := strings.Join(parts, "\x1f")
		if _, seen := groups[key]; !seen {
			keyParts[key] = parts
		}
		groups[key] = append(groups[key], row)
	}
	if len(groups) == 0 {
		return nil
	}
	order := sortedGroupKeys(keyParts)

	out := make([]map[string]interface{}, 0, len(groups))
	for _, key := range order {
		members := groups[key]
		result := map[string]interface{}{}
		for i, col := range groupBy {
			result[col] = keyParts[key][i]
		}
		for col, reducer := range surviving {
			result[col] = reduce(members, col, reducer)
		}
		out = append(out, result)
	}
	return out
}

// groupKeyParts renders a row's group-column values as strings, rejecting the
// row when any of them is null.
func groupKeyParts(row map[string]interface{}, groupBy []string) ([]string, bool) {
	parts := make([]string, len(groupBy))
	for i, col := range groupBy {
		v := row[col]
		if v == nil {
			return nil, false
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return parts, true
}

// sortedGroupKeys orders composite keys position by position. A position
// where every key parses as a number sorts numerically, so month "2" comes
// before "10"; otherwise it sorts lexically.
func sortedGroupKeys(keyParts map[string][]string) []string {
	keys := make([]string, 0, len(keyParts))
	width := 0
	for k, parts := range keyParts {
		keys = append(keys, k)
		width = len(parts)
	}

	numeric := make([]bool, width)
	for i := 0; i < width; i++ {
		numeric[i] = true
		for _, parts := range keyParts {
			if _, err := strconv.ParseFloat(parts[i], 64); err != nil {
				numeric[i] = false
				break
			}
		}
	}

	sort.Slice(keys, func(a, b int) bool {
		pa, pb := keyParts[keys[a]], keyParts[keys[b]]
		for i := 0; i < width; i++ {
			if pa[i] == pb[i] {
				continue
			}
			if numeric[i] {
				fa, _ := strconv.ParseFloat(pa[i], 64)
				fb, _ := strconv.ParseFloat(pb[i], 64)
				return fa < fb
			}
			return pa[i] < pb[i]
		}
		return false
	})
	return keys
}

func reduce(rows []map[string]interface{}, col, reducer string) float64 {
	var values []float64
	nonNull := 0
	for _, row := range rows {
		if row[col] != nil {
			nonNull++
		}
		if f, ok := row[col].(float64); ok {
			values = append(values, f)
		}
	}
	switch reducer {
	case "count":
		return float64(nonNull)
	case "mean":
		return Mean(values)
	case "min":
		return Min(values)
	case "max":
		return Max(values)
	default:
		return Sum(values)
	}
}

// augmentDateParts adds <col>_year, <col>_month, and <col>_day numeric
// columns for every temporal column, so procedures can group by calendar
// parts without touching temporal values. Existing names are left alone.
func augmentDateParts(t *table.Table) {
	for _, name := range t.TemporalColumns() {
		cells := t.ColumnValues(name)

		parts := []struct {
			suffix  string
			extract func(time.Time) float64
		}{
			{"_year", func(ts time.Time) float64 { return float64(ts.Year()) }},
			{"_month", func(ts time.Time) float64 { return float64(ts.Month()) }},
			{"_day", func(ts time.Time) float64 { return float64(ts.Day()) }},
		}
		for _, part := range parts {
			derived := name + part.suffix
			if t.Column(derived) != nil {
				continue
			}
			out := make([]interface{}, len(cells))
			for i, v := range cells {
				if ts, ok := v.(time.Time); ok {
					out[i] = part.extract(ts)
				}
			}
			_ = t.AddColumn(derived, table.KindNumeric, out)
		}
	}
}
