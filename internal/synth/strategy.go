package synth

import (
	"fmt"

	"gridsense/internal/profile"
)

// Strategy customizes one synthesis call per intent category: prompt framing,
// reply parsing, and final package shaping. Categories share the procedure
// contract; only the guidance differs.
type Strategy interface {
	BuildPrompt(request string, p *profile.DataProfile) (system, user string)
	ParseReply(reply string) (*AnalysisPackage, error)
	ShapeOutput(pkg *AnalysisPackage) *AnalysisPackage
}

// procedureContract is the fixed part of every synthesis prompt: the exact
// shape the generated Go procedure must have and the defensive rules it must
// follow inside the interpreter.
const procedureContract = `Write a Go procedure with this exact shape:

` + "```go" + `
package main

import "gridsense/analysis"

func Analyze() map[string]interface{} {
	results := map[string]interface{}{}
	// ... compute findings into results ...
	return results
}
` + "```" + `

The analysis package is pre-bound and is the ONLY import allowed besides
fmt, math, sort, strings, and strconv. It exposes:
- analysis.Rows []map[string]interface{} — the data, one map per row; numeric
  cells are float64, categorical cells are string, missing cells are nil
- analysis.Columns []string — column names in order
- analysis.ColumnKinds map[string]string — "numeric", "temporal", or "categorical"
- analysis.Mean, Median, Std, Min, Max, Sum func([]float64) float64
- analysis.SafeGroupAggregate(groupBy []string, aggs map[string]string) []map[string]interface{}
  with reducers "sum", "mean", "count", "min", "max"; pass multiple group
  columns for multi-key grouping

Rules the procedure MUST follow:
1. Never re-load or re-create the table; use analysis.Rows as given.
2. SafeGroupAggregate can return nil; always check before using its result.
3. Never aggregate temporal columns directly. Each temporal column <col> has
   derived numeric columns <col>_year, <col>_month, <col>_day; group by those,
   e.g. SafeGroupAggregate([]string{"<col>_year", "<col>_month"}, ...).
4. Type-assert cell values defensively: v, ok := row[name].(float64).
5. Put every finding into the returned map; do not print.

Reply with a single JSON object and nothing else:
{"analysis_type": "<short tag>", "analysis_plan": "<one or two sentences>",
 "interpretation_guide": "<what the numbers mean for the user>",
 "procedure": "<the complete Go source>"}`

// baseStrategy implements the shared prompt skeleton.
type baseStrategy struct {
	intent   Intent
	guidance string
}

func (b baseStrategy) BuildPrompt(request string, p *profile.DataProfile) (string, string) {
	system := "You are a data analyst who writes small, defensive Go analysis procedures.\n\n" +
		procedureContract
	user := fmt.Sprintf(`User request (verbatim): %s

Intent: %s%s
%s

Data profile:
%s`,
		request, b.intent.Type, subtypeSuffix(b.intent), b.guidance, profileContext(p))
	return system, user
}

func (b baseStrategy) ParseReply(reply string) (*AnalysisPackage, error) {
	return parsePackageReply(reply)
}

func (b baseStrategy) ShapeOutput(pkg *AnalysisPackage) *AnalysisPackage {
	if pkg.AnalysisType == "" {
		pkg.AnalysisType = b.intent.Type
	}
	return pkg
}

func subtypeSuffix(intent Intent) string {
	if intent.Subtype == "" {
		return ""
	}
	return " (" + intent.Subtype + ")"
}

// strategyFor returns the strategy for an intent tag. Unknown tags get the
// statistical strategy, mirroring the classifier's permissive default.
func strategyFor(intent Intent) Strategy {
	switch intent.Type {
	case IntentVisualization:
		return baseStrategy{intent: intent, guidance: "Compute the series the user wants charted: " +
			"emit per-group or per-bucket rows suitable for plotting (label plus one or more numeric fields)."}
	case IntentTransformation:
		return baseStrategy{intent: intent, guidance: "Reshape the data as requested (group, pivot, filter, sort) " +
			"and return the transformed rows under a \"rows\" key, plus a short summary of what changed."}
	case IntentQuery:
		return baseStrategy{intent: intent, guidance: "Answer the specific lookup precisely. " +
			"Return the matching value(s) and the criteria used to find them."}
	default:
		return baseStrategy{intent: intent, guidance: "Compute the statistics that answer the request: " +
			"summaries, group comparisons, correlations, or distributions as appropriate."}
	}
}
