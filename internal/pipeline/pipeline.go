// Package pipeline orchestrates one analysis request end to end:
// ingest, profile, classify, synthesize, execute, normalize, present,
// interpret. Failures after ingestion degrade to a basic fallback analysis
// instead of erroring; only an unusable primary sheet is a hard failure.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"gridsense/internal/config"
	"gridsense/internal/logging"
	"gridsense/internal/present"
	"gridsense/internal/profile"
	"gridsense/internal/reasoning"
	"gridsense/internal/sandbox"
	"gridsense/internal/serialize"
	"gridsense/internal/synth"
	"gridsense/internal/table"
)

// Sheet is one raw tabular input identified by the caller.
type Sheet struct {
	ID  string
	Raw table.Raw
}

// Request is one analysis request. The first sheet is the primary subject of
// the analysis. Descriptor output routes to ExplicitTargetSheetID when the
// caller set one, else to ActiveSheetID, else to the primary sheet.
type Request struct {
	Message               string
	Sheets                []Sheet
	ActiveSheetID         string
	ExplicitTargetSheetID string
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID       string `json:"request_id"`
	RowsAnalyzed    int    `json:"rows_analyzed"`
	ColumnsAnalyzed int    `json:"columns_analyzed"`
	AnalysisType    string `json:"analysis_type"`
	Intent          string `json:"intent"`
	Degraded        bool   `json:"degraded"`
	ElapsedMS       int64  `json:"elapsed_ms"`
}

// Response is the complete answer to one request.
type Response struct {
	Text     string               `json:"text"`
	Charts   []present.Descriptor `json:"charts,omitempty"`
	Tables   []present.Descriptor `json:"tables,omitempty"`
	Analysis interface{}          `json:"analysis,omitempty"`
	Metadata Metadata             `json:"metadata"`
}

// Controller runs the pipeline.
type Controller struct {
	synthesizer *synth.Synthesizer
	executor    *sandbox.Executor
	presenter   *present.Presenter
	policy      config.PipelinePolicy
}

// NewController wires the pipeline stages around one reasoning client.
func NewController(client reasoning.Client, cfg *config.Config) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Controller{
		synthesizer: synth.New(client, cfg.Policy.DefaultIntent),
		executor:    sandbox.NewExecutor(cfg.Policy.ExecutionTimeoutOrDefault()),
		presenter:   present.New(client, cfg.Policy),
		policy:      cfg.Policy,
	}
}

// Analyze runs one request through every stage. The returned error is non-nil
// only when the primary sheet is empty or unusable; every later failure
// degrades to the basic fallback analysis and still yields a full response.
func (c *Controller) Analyze(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.New().String()
	audit := logging.AuditWithRequest(requestID)

	// Ingest. The primary sheet is the first one supplied.
	if len(req.Sheets) == 0 {
		return nil, fmt.Errorf("no sheets supplied")
	}
	primary := req.Sheets[0]
	targetSheet := req.ExplicitTargetSheetID
	if targetSheet == "" {
		targetSheet = req.ActiveSheetID
	}
	if targetSheet == "" {
		targetSheet = primary.ID
	}

	tbl := table.Normalize(primary.Raw)
	if tbl.Empty() {
		return nil, fmt.Errorf("sheet %s has no usable data", primary.ID)
	}

	audit.RequestStart(req.Message, tbl.NumRows(), tbl.NumCols())
	logging.Pipeline("[%s] analyzing %dx%d table: %q", requestID, tbl.NumRows(), tbl.NumCols(), req.Message)

	// Profile and plan.
	prof := profile.Profile(tbl)

	classifyStart := time.Now()
	intent := c.synthesizer.ClassifyIntent(ctx, req.Message, prof)
	audit.StageComplete("classify", time.Since(classifyStart).Milliseconds(), true, "")

	synthStart := time.Now()
	pkg := c.synthesizer.Synthesize(ctx, req.Message, prof, intent)
	audit.StageComplete("synthesize", time.Since(synthStart).Milliseconds(), !pkg.Fallback, "")
	if pkg.Fallback {
		audit.StageFallback("synthesize", "degenerate package")
	}
	logging.PipelineDebug("[%s] intent=%s/%s analysis_type=%s fallback=%v",
		requestID, intent.Type, intent.Subtype, pkg.AnalysisType, pkg.Fallback)

	// Execute on a private copy; the pristine table stays ours.
	degraded := pkg.Fallback
	execStart := time.Now()
	result, err := c.executor.Execute(ctx, pkg.Procedure, tbl)
	audit.ProcedureRun(len(pkg.Procedure), time.Since(execStart).Milliseconds(), err == nil, errString(err))

	if err != nil || len(result) == 0 {
		if err != nil {
			logging.Pipeline("[%s] execution failed, using basic fallback: %v", requestID, err)
		} else {
			logging.Pipeline("[%s] execution yielded nothing, using basic fallback", requestID)
		}
		audit.StageFallback("execute", errString(err))
		degraded = true
		result = basicFallback(prof, tbl)
		pkg.AnalysisType = "descriptive"
		pkg.InterpretationGuide = "Present the summary and group breakdown as an overview of the data."
	}

	// Normalize and present.
	sanitized := serialize.Sanitize(result)

	var charts []present.Descriptor
	if intent.Type == synth.IntentVisualization && c.policy.MaxCharts > 0 {
		charts = c.presenter.Charts(ctx, req.Message, sanitized, tbl, audit)
	}
	tables := c.presenter.Tables(sanitized)
	for i := range charts {
		charts[i].SourceSheetID = primary.ID
		charts[i].TargetSheetID = targetSheet
	}
	for i := range tables {
		tables[i].SourceSheetID = primary.ID
		tables[i].TargetSheetID = targetSheet
	}

	text := c.presenter.Interpret(ctx, req.Message, pkg.InterpretationGuide, sanitized)

	elapsed := time.Since(start).Milliseconds()
	audit.RequestEnd(elapsed, degraded)
	logging.Pipeline("[%s] done in %dms (degraded=%v, charts=%d, tables=%d)",
		requestID, elapsed, degraded, len(charts), len(tables))

	return &Response{
		Text:     text,
		Charts:   charts,
		Tables:   tables,
		Analysis: sanitized,
		Metadata: Metadata{
			RequestID:       requestID,
			RowsAnalyzed:    tbl.NumRows(),
			ColumnsAnalyzed: tbl.NumCols(),
			AnalysisType:    pkg.AnalysisType,
			Intent:          intent.Type,
			Degraded:        degraded,
			ElapsedMS:       elapsed,
		},
	}, nil
}

// basicFallback computes the guaranteed analysis from the pristine table: the
// first numeric column's summary crossed with the first categorical column's
// groups. It never calls the reasoning capability or the sandbox.
func basicFallback(prof *profile.DataProfile, tbl *table.Table) map[string]interface{} {
	out := map[string]interface{}{
		"row_count": float64(tbl.NumRows()),
	}

	var numeric string
	if len(prof.NumericColumns) > 0 {
		numeric = prof.NumericColumns[0]
		if cp := prof.Columns[numeric]; cp != nil && cp.Numeric != nil {
			out["summary"] = map[string]interface{}{
				"column": numeric,
				"mean":   cp.Numeric.Mean,
				"median": cp.Numeric.Median,
				"min":    cp.Numeric.Min,
				"max":    cp.Numeric.Max,
			}
		}
	}

	if len(prof.CategoricalColumns) > 0 {
		categorical := prof.CategoricalColumns[0]
		groups := map[string]map[string]float64{}
		for i := 0; i < tbl.NumRows(); i++ {
			key, ok := tbl.Cell(i, categorical).(string)
			if !ok {
				continue
			}
			g, seen := groups[key]
			if !seen {
				g = map[string]float64{}
				groups[key] = g
			}
			g["count"]++
			if numeric != "" {
				if f, ok := tbl.Cell(i, numeric).(float64); ok {
					g["sum"] += f
				}
			}
		}
		rows := make([]map[string]interface{}, 0, len(groups))
		for _, key := range sortedKeys(groups) {
			row := map[string]interface{}{categorical: key, "count": groups[key]["count"]}
			if numeric != "" {
				row[numeric] = groups[key]["sum"]
			}
			rows = append(rows, row)
		}
		out["groups"] = rows
	}

	return out
}

func sortedKeys(m map[string]map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
