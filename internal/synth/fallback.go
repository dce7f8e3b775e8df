package synth

// fallbackProcedure computes per-column descriptive statistics using only the
// pre-bound analysis package. It is the degenerate package of last resort and
// must always run, so it never assumes any particular column exists.
const fallbackProcedure = `package main

import "gridsense/analysis"

func Analyze() map[string]interface{} {
	results := map[string]interface{}{}
	summary := map[string]interface{}{}
	for _, name := range analysis.Columns {
		if analysis.ColumnKinds[name] != "numeric" {
			continue
		}
		values := []float64{}
		for _, row := range analysis.Rows {
			if v, ok := row[name].(float64); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		summary[name] = map[string]interface{}{
			"count":  float64(len(values)),
			"mean":   analysis.Mean(values),
			"median": analysis.Median(values),
			"min":    analysis.Min(values),
			"max":    analysis.Max(values),
			"sum":    analysis.Sum(values),
		}
	}
	results["summary"] = summary
	results["row_count"] = float64(len(analysis.Rows))
	return results
}
`

// FallbackPackage returns the guaranteed-runnable descriptive-statistics
// package used when synthesis produces nothing usable.
func FallbackPackage() *AnalysisPackage {
	return &AnalysisPackage{
		AnalysisType:        "descriptive",
		AnalysisPlan:        "Summarize every numeric column with count, mean, median, min, max, and sum.",
		Procedure:           fallbackProcedure,
		InterpretationGuide: "Present the per-column summaries as an overview of the data.",
		Fallback:            true,
	}
}
