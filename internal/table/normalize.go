package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridsense/internal/logging"
)

// Raw is untyped tabular input: either row-array form (first row = header) or
// record form. Exactly one of Rows/Records should be set.
type Raw struct {
	Rows    [][]interface{}
	Records []map[string]interface{}
}

// FromRows wraps row-array input (first row is the header).
func FromRows(rows [][]interface{}) Raw {
	return Raw{Rows: rows}
}

// FromRecords wraps record-list input.
func FromRecords(records []map[string]interface{}) Raw {
	return Raw{Records: records}
}

// dateNameHints flags columns whose names suggest temporal content.
var dateNameHints = []string{"date", "time", "day", "month", "year", "timestamp"}

// dateLayouts are tried in order during temporal coercion.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Normalize converts raw heterogeneous input into a canonical typed table.
// It is total: malformed input (ragged rows, blank headers, empty input)
// yields a valid, possibly empty, table and never an error. Callers detect
// the empty-data path via Table.Empty.
func Normalize(raw Raw) (t *Table) {
	defer func() {
		// The normalizer must never raise; a panic here means unusable input,
		// and the caller proceeds with the empty-data path.
		if r := recover(); r != nil {
			logging.Get(logging.CategoryNormalize).Error("normalize panic recovered: %v", r)
			t = New()
		}
	}()

	timer := logging.StartTimer(logging.CategoryNormalize, "Normalize")
	defer timer.Stop()

	var names []string
	var grid [][]interface{}
	if len(raw.Rows) > 0 {
		names, grid = fromHeaderRows(raw.Rows)
	} else if len(raw.Records) > 0 {
		names, grid = fromRecords(raw.Records)
	} else {
		return New()
	}

	if len(names) == 0 || len(grid) == 0 {
		return New()
	}

	// Blank strings become nulls before any row/column elimination.
	for _, row := range grid {
		for i, v := range row {
			row[i] = blankToNil(v)
		}
	}

	grid = dropAllNullRows(grid)
	names, grid = dropAllNullColumns(names, grid)
	names = normalizeNames(names)

	t = New()
	for j, name := range names {
		cells := make([]interface{}, len(grid))
		for i := range grid {
			cells[i] = grid[i][j]
		}
		kind, cells := coerceColumn(name, cells)
		if err := t.AddColumn(name, kind, cells); err != nil {
			// Duplicate names are de-duplicated upstream; this is unreachable
			// short of a bug, and totality wins over surfacing it.
			logging.Get(logging.CategoryNormalize).Error("dropping column %s: %v", name, err)
		}
	}

	logging.NormalizeDebug("normalized table: %d rows x %d cols (numeric=%d temporal=%d categorical=%d)",
		t.NumRows(), t.NumCols(),
		len(t.NumericColumns()), len(t.TemporalColumns()), len(t.CategoricalColumns()))
	return t
}

// fromHeaderRows builds a rectangular grid from row-array input. Header cells
// that are null or blank are dropped along with their column; rows shorter
// than the header are treated as malformed and dropped entirely.
func fromHeaderRows(rows [][]interface{}) ([]string, [][]interface{}) {
	header := rows[0]

	var keep []int
	var names []string
	for i, h := range header {
		name := strings.TrimSpace(stringify(h))
		if name == "" {
			continue
		}
		keep = append(keep, i)
		names = append(names, name)
	}
	if len(keep) == 0 {
		return nil, nil
	}

	var grid [][]interface{}
	for _, row := range rows[1:] {
		if len(row) < len(header) {
			continue
		}
		out := make([]interface{}, len(keep))
		for j, idx := range keep {
			out[j] = row[idx]
		}
		grid = append(grid, out)
	}
	return names, grid
}

// fromRecords builds a grid from record input. The column set is the union of
// record keys; records whose values are all null/blank are dropped.
func fromRecords(records []map[string]interface{}) ([]string, [][]interface{}) {
	var names []string
	seen := map[string]bool{}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}

	var grid [][]interface{}
	for _, rec := range records {
		empty := true
		row := make([]interface{}, len(names))
		for j, name := range names {
			v := blankToNil(rec[name])
			row[j] = v
			if v != nil {
				empty = false
			}
		}
		if !empty {
			grid = append(grid, row)
		}
	}
	return names, grid
}

func dropAllNullRows(grid [][]interface{}) [][]interface{} {
	out := grid[:0]
	for _, row := range grid {
		for _, v := range row {
			if v != nil {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func dropAllNullColumns(names []string, grid [][]interface{}) ([]string, [][]interface{}) {
	var keep []int
	for j := range names {
		for i := range grid {
			if grid[i][j] != nil {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(names) {
		return names, grid
	}

	outNames := make([]string, len(keep))
	for i, j := range keep {
		outNames[i] = names[j]
	}
	outGrid := make([][]interface{}, len(grid))
	for i, row := range grid {
		out := make([]interface{}, len(keep))
		for k, j := range keep {
			out[k] = row[j]
		}
		outGrid[i] = out
	}
	return outNames, outGrid
}

// normalizeNames trims, collapses internal whitespace, and de-duplicates
// column names with a numeric suffix.
func normalizeNames(names []string) []string {
	out := make([]string, len(names))
	used := map[string]int{}
	for i, name := range names {
		clean := strings.Join(strings.Fields(name), " ")
		if clean == "" {
			clean = fmt.Sprintf("column_%d", i+1)
		}
		if n := used[clean]; n > 0 {
			used[clean] = n + 1
			clean = fmt.Sprintf("%s_%d", clean, n+1)
		}
		used[clean]++
		out[i] = clean
	}
	return out
}

// coerceColumn infers a column kind and converts cells accordingly. Numeric
// wins when every non-null value is numeric-shaped; temporal is attempted
// only when the column name carries a date hint and every non-null value
// parses; everything else is categorical text.
func coerceColumn(name string, cells []interface{}) (Kind, []interface{}) {
	if coerced, ok := tryNumeric(cells); ok {
		return KindNumeric, coerced
	}
	if hasDateHint(name) {
		if coerced, ok := tryTemporal(cells); ok {
			return KindTemporal, coerced
		}
	}

	out := make([]interface{}, len(cells))
	for i, v := range cells {
		if v == nil {
			continue
		}
		out[i] = stringify(v)
	}
	return KindCategorical, out
}

func hasDateHint(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func tryNumeric(cells []interface{}) ([]interface{}, bool) {
	out := make([]interface{}, len(cells))
	any := false
	for i, v := range cells {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		// Non-finite values are data defects, not numbers.
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[i] = f
		any = true
	}
	return out, any
}

func tryTemporal(cells []interface{}) ([]interface{}, bool) {
	out := make([]interface{}, len(cells))
	any := false
	for i, v := range cells {
		if v == nil {
			continue
		}
		if ts, ok := v.(time.Time); ok {
			out[i] = ts
			any = true
			continue
		}
		ts, ok := parseTime(strings.TrimSpace(stringify(v)))
		if !ok {
			return nil, false
		}
		out[i] = ts
		any = true
	}
	return out, any
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func blankToNil(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
