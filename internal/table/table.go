// Package table implements the canonical rectangular, typed representation of
// tabular input data and the normalizer that produces it from raw,
// heterogeneous input.
package table

import (
	"fmt"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindTemporal    Kind = "temporal"
	KindCategorical Kind = "categorical"
)

// Column is a single named, typed column. Cells hold float64 for numeric
// columns, time.Time for temporal columns, string for categorical columns,
// and nil for nulls.
type Column struct {
	Name  string
	Kind  Kind
	Cells []interface{}
}

// Table is a rectangular, named-column structure. Invariants: every column
// name is non-empty and unique; every column has the same cell count; no row
// or column is entirely null. Downstream readers treat it as immutable; the
// execution sandbox works on a Clone.
type Table struct {
	cols []*Column
}

// New creates an empty table.
func New() *Table {
	return &Table{}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Cells)
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	return len(t.cols)
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t.NumRows() == 0 || t.NumCols() == 0
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil if absent.
func (t *Table) Column(name string) *Column {
	for _, c := range t.cols {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnKind returns the kind of the named column, or "" if absent.
func (t *Table) ColumnKind(name string) Kind {
	if c := t.Column(name); c != nil {
		return c.Kind
	}
	return ""
}

// ColumnsOfKind returns the names of all columns with the given kind, in order.
func (t *Table) ColumnsOfKind(kind Kind) []string {
	var names []string
	for _, c := range t.cols {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return names
}

// NumericColumns returns the names of numeric columns.
func (t *Table) NumericColumns() []string { return t.ColumnsOfKind(KindNumeric) }

// TemporalColumns returns the names of temporal columns.
func (t *Table) TemporalColumns() []string { return t.ColumnsOfKind(KindTemporal) }

// CategoricalColumns returns the names of categorical columns.
func (t *Table) CategoricalColumns() []string { return t.ColumnsOfKind(KindCategorical) }

// AddColumn appends a column. The cell count must match the existing row
// count unless the table is empty.
func (t *Table) AddColumn(name string, kind Kind, cells []interface{}) error {
	if name == "" {
		return fmt.Errorf("column name required")
	}
	if t.Column(name) != nil {
		return fmt.Errorf("duplicate column: %s", name)
	}
	if len(t.cols) > 0 && len(cells) != t.NumRows() {
		return fmt.Errorf("column %s has %d cells, table has %d rows", name, len(cells), t.NumRows())
	}
	t.cols = append(t.cols, &Column{Name: name, Kind: kind, Cells: cells})
	return nil
}

// Cell returns the value at (row, column name), or nil if out of range.
func (t *Table) Cell(row int, name string) interface{} {
	c := t.Column(name)
	if c == nil || row < 0 || row >= len(c.Cells) {
		return nil
	}
	return c.Cells[row]
}

// Clone deep-copies the table. The sandbox runs procedures against a clone so
// a failed, partially-mutating execution never taints the pristine table used
// by the fallback path.
func (t *Table) Clone() *Table {
	clone := &Table{cols: make([]*Column, len(t.cols))}
	for i, c := range t.cols {
		cells := make([]interface{}, len(c.Cells))
		copy(cells, c.Cells)
		clone.cols[i] = &Column{Name: c.Name, Kind: c.Kind, Cells: cells}
	}
	return clone
}

// Rows materializes a row-map view of the table. Temporal cells surface as
// time.Time values.
func (t *Table) Rows() []map[string]interface{} {
	n := t.NumRows()
	rows := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		row := make(map[string]interface{}, len(t.cols))
		for _, c := range t.cols {
			row[c.Name] = c.Cells[i]
		}
		rows[i] = row
	}
	return rows
}

// Sample returns up to n row maps for lightweight prompt context.
func (t *Table) Sample(n int) []map[string]interface{} {
	rows := t.Rows()
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// ColumnValues returns the cells of the named column, or nil if absent.
func (t *Table) ColumnValues(name string) []interface{} {
	if c := t.Column(name); c != nil {
		return c.Cells
	}
	return nil
}

// NonNullFloats returns the non-null numeric cells of a column as float64s.
func (t *Table) NonNullFloats(name string) []float64 {
	c := t.Column(name)
	if c == nil {
		return nil
	}
	out := make([]float64, 0, len(c.Cells))
	for _, v := range c.Cells {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// NonNullTimes returns the non-null temporal cells of a column.
func (t *Table) NonNullTimes(name string) []time.Time {
	c := t.Column(name)
	if c == nil {
		return nil
	}
	out := make([]time.Time, 0, len(c.Cells))
	for _, v := range c.Cells {
		if ts, ok := v.(time.Time); ok {
			out = append(out, ts)
		}
	}
	return out
}
