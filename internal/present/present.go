// Package present turns an analysis result into user-facing artifacts:
// chart descriptors, table descriptors, and a plain-language interpretation.
// Descriptors carry literal data rows; rendering is the caller's concern.
package present

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gridsense/internal/config"
	"gridsense/internal/logging"
	"gridsense/internal/reasoning"
	"gridsense/internal/synth"
	"gridsense/internal/table"
)

// Descriptor describes one chart or table for the caller to render.
type Descriptor struct {
	Title         string                   `json:"title"`
	Description   string                   `json:"description,omitempty"`
	Kind          string                   `json:"kind"` // bar, line, pie, scatter, table
	XField        string                   `json:"x_field,omitempty"`
	YFields       []string                 `json:"y_fields,omitempty"`
	Data          []map[string]interface{} `json:"data"`
	SourceSheetID string                   `json:"source_sheet_id,omitempty"`
	TargetSheetID string                   `json:"target_sheet_id,omitempty"`
}

// chartKinds is the closed set of renderable chart kinds.
var chartKinds = map[string]bool{
	"bar": true, "line": true, "pie": true, "scatter": true,
}

const maxDescriptorRows = 100

// Presenter generates descriptors and interpretations.
type Presenter struct {
	client reasoning.Client
	policy config.PipelinePolicy
}

// New creates a Presenter.
func New(client reasoning.Client, policy config.PipelinePolicy) *Presenter {
	return &Presenter{client: client, policy: policy}
}

const chartSystemPrompt = `You propose chart specifications for tabular analysis results.

Reply with a JSON array and nothing else. Each element:
{"title": "...", "description": "...", "kind": "bar|line|pie|scatter",
 "x_field": "<column for the x axis / labels>",
 "y_fields": ["<numeric column>", ...]}

Only reference fields that exist in the provided columns. Propose at most the
requested number of charts, fewer if the data supports fewer.`

// Charts asks the reasoning client for chart specs over the analysis output
// and materializes each with literal data rows from the table. Failures are
// per-descriptor: a bad spec is dropped or replaced with a placeholder
// according to policy, never fatal for the batch. Each failure is recorded
// on the request's audit trail (nil audit skips the trail).
func (p *Presenter) Charts(ctx context.Context, request string, sanitized interface{}, t *table.Table, audit *logging.AuditLogger) []Descriptor {
	maxCharts := p.policy.MaxCharts
	if maxCharts <= 0 {
		return nil
	}

	user := fmt.Sprintf(`User request: %s

Available columns: %s

Analysis output:
%s

Propose up to %d charts.`,
		request, strings.Join(columnList(t), ", "), compactJSON(sanitized), maxCharts)

	reply, err := p.client.CompleteWithSystem(ctx, chartSystemPrompt, user)
	if err != nil {
		logging.Present("chart spec call failed: %v", err)
		return nil
	}

	var specs []Descriptor
	if err := json.Unmarshal([]byte(synth.ExtractCodeBlock(reply, "json")), &specs); err != nil {
		logging.Present("unparsable chart specs: %v", err)
		return nil
	}
	if len(specs) > maxCharts {
		specs = specs[:maxCharts]
	}

	var out []Descriptor
	for i := range specs {
		desc, err := p.materializeChart(specs[i], t)
		if err != nil {
			logging.Present("chart %q failed: %v", specs[i].Title, err)
			audit.DescriptorError(specs[i].Kind, specs[i].Title, err)
			if p.policy.OnDescriptorError == config.DescriptorErrorPlaceholder {
				out = append(out, placeholder(specs[i].Title))
			}
			continue
		}
		out = append(out, desc)
	}
	logging.PresentDebug("materialized %d of %d chart specs", len(out), len(specs))
	return out
}

// materializeChart validates a spec against the table and fills in its rows.
func (p *Presenter) materializeChart(spec Descriptor, t *table.Table) (d Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chart materialization panicked: %v", r)
		}
	}()

	if !chartKinds[spec.Kind] {
		return d, fmt.Errorf("unknown chart kind %q", spec.Kind)
	}
	if t == nil || t.Column(spec.XField) == nil {
		return d, fmt.Errorf("x field %q not in table", spec.XField)
	}
	var yFields []string
	for _, y := range spec.YFields {
		if t.ColumnKind(y) == table.KindNumeric {
			yFields = append(yFields, y)
		}
	}
	if len(yFields) == 0 {
		return d, fmt.Errorf("no usable numeric y fields in %v", spec.YFields)
	}

	spec.YFields = yFields
	spec.Data = projectRows(t, spec.XField, yFields)
	if len(spec.Data) == 0 {
		return d, fmt.Errorf("no data rows for chart %q", spec.Title)
	}
	return spec, nil
}

// Tables produces table descriptors from the analysis output: every key whose
// value is a list of row maps becomes one table. When the output carries no
// row-shaped values, nothing is emitted.
func (p *Presenter) Tables(sanitized interface{}) []Descriptor {
	root, ok := sanitized.(map[string]interface{})
	if !ok {
		return nil
	}

	var out []Descriptor
	for key, value := range root {
		rows := rowSlice(value)
		if len(rows) == 0 {
			continue
		}
		if len(rows) > maxDescriptorRows {
			rows = rows[:maxDescriptorRows]
		}
		out = append(out, Descriptor{
			Title: titleCase(strings.ReplaceAll(key, "_", " ")),
			Kind:  "table",
			Data:  rows,
		})
	}
	return out
}

// rowSlice extracts a []map form from a sanitized value, if it has one.
func rowSlice(v interface{}) []map[string]interface{} {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var rows []map[string]interface{}
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		rows = append(rows, row)
	}
	return rows
}

// projectRows extracts x plus y columns, aggregating duplicate categorical
// keys by sum so chart data stays one row per label.
func projectRows(t *table.Table, xField string, yFields []string) []map[string]interface{} {
	xKind := t.ColumnKind(xField)
	xCells := t.ColumnValues(xField)

	if xKind == table.KindCategorical {
		totals := map[string]map[string]float64{}
		var order []string
		for i, xv := range xCells {
			if xv == nil {
				continue
			}
			key := fmt.Sprintf("%v", xv)
			if _, seen := totals[key]; !seen {
				totals[key] = map[string]float64{}
				order = append(order, key)
			}
			for _, y := range yFields {
				if f, ok := t.Cell(i, y).(float64); ok {
					totals[key][y] += f
				}
			}
		}
		rows := make([]map[string]interface{}, 0, len(order))
		for _, key := range order {
			row := map[string]interface{}{xField: key}
			for _, y := range yFields {
				row[y] = totals[key][y]
			}
			rows = append(rows, row)
		}
		return capRows(rows)
	}

	var rows []map[string]interface{}
	for i, xv := range xCells {
		if xv == nil {
			continue
		}
		row := map[string]interface{}{xField: xv}
		for _, y := range yFields {
			row[y] = t.Cell(i, y)
		}
		rows = append(rows, row)
	}
	return capRows(rows)
}

func capRows(rows []map[string]interface{}) []map[string]interface{} {
	if len(rows) > maxDescriptorRows {
		return rows[:maxDescriptorRows]
	}
	return rows
}

func placeholder(title string) Descriptor {
	if title == "" {
		title = "Chart"
	}
	return Descriptor{
		Title:       title,
		Kind:        "table",
		Description: "This view could not be generated for the current data.",
		Data:        []map[string]interface{}{},
	}
}

func columnList(t *table.Table) []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, t.NumCols())
	for _, name := range t.Columns() {
		out = append(out, fmt.Sprintf("%s (%s)", name, t.ColumnKind(name)))
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	if len(data) > 8000 {
		data = data[:8000]
	}
	return string(data)
}
