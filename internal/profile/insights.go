package profile

import (
	"fmt"
	"math"
	"sort"

	"gridsense/internal/logging"
	"gridsense/internal/table"
)

// deriveInsights runs a fixed set of heuristic checks over the profile. Each
// check is best-effort: one that panics is skipped without disturbing the
// others, since insights are advisory context rather than results.
func deriveInsights(t *table.Table, p *DataProfile) []string {
	var insights []string

	checks := []func(*table.Table, *DataProfile) []string{
		strongCorrelations,
		outlierCounts,
		skewedDistributions,
		highMissingness,
		timeSeriesHint,
	}
	for _, check := range checks {
		insights = append(insights, runCheck(check, t, p)...)
	}
	return insights
}

func runCheck(check func(*table.Table, *DataProfile) []string, t *table.Table, p *DataProfile) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			logging.ProfileDebug("insight check panic skipped: %v", r)
			out = nil
		}
	}()
	return check(t, p)
}

// strongCorrelations reports up to three |r| > 0.7 pairs, strongest first.
func strongCorrelations(_ *table.Table, p *DataProfile) []string {
	var strong []Correlation
	for _, c := range p.Correlations {
		if c.X >= c.Y { // one direction per pair, diagonal excluded
			continue
		}
		if math.Abs(c.Value) > 0.7 {
			strong = append(strong, c)
		}
	}
	sort.Slice(strong, func(i, j int) bool {
		return math.Abs(strong[i].Value) > math.Abs(strong[j].Value)
	})
	if len(strong) > 3 {
		strong = strong[:3]
	}

	var out []string
	for _, c := range strong {
		direction := "positive"
		if c.Value < 0 {
			direction = "negative"
		}
		out = append(out, fmt.Sprintf("Strong %s correlation between %s and %s (r=%.2f)",
			direction, c.X, c.Y, c.Value))
	}
	return out
}

// outlierCounts flags numeric columns with values beyond three standard
// deviations of the mean.
func outlierCounts(t *table.Table, p *DataProfile) []string {
	var out []string
	for _, name := range p.NumericColumns {
		cp := p.Columns[name]
		if cp == nil || cp.Numeric == nil || cp.Numeric.Std == 0 {
			continue
		}
		mean, std := cp.Numeric.Mean, cp.Numeric.Std

		values := t.NonNullFloats(name)
		count := 0
		for _, v := range values {
			if math.Abs(v-mean) > 3*std {
				count++
			}
		}
		if count > 0 {
			pct := float64(count) / float64(len(values)) * 100
			out = append(out, fmt.Sprintf("%s has %d outliers beyond 3 standard deviations (%.1f%% of values)",
				name, count, pct))
		}
	}
	return out
}

// skewedDistributions compares mean to median per numeric column.
func skewedDistributions(_ *table.Table, p *DataProfile) []string {
	var out []string
	for _, name := range p.NumericColumns {
		cp := p.Columns[name]
		if cp == nil || cp.Numeric == nil || cp.Numeric.Median == 0 {
			continue
		}
		ratio := cp.Numeric.Mean / cp.Numeric.Median
		switch {
		case ratio > 1.5:
			out = append(out, fmt.Sprintf("%s is right-skewed (mean %.2f well above median %.2f)",
				name, cp.Numeric.Mean, cp.Numeric.Median))
		case ratio < 0.67 && ratio > 0:
			out = append(out, fmt.Sprintf("%s is left-skewed (mean %.2f well below median %.2f)",
				name, cp.Numeric.Mean, cp.Numeric.Median))
		}
	}
	return out
}

// highMissingness flags columns with more than 20% null cells.
func highMissingness(_ *table.Table, p *DataProfile) []string {
	var out []string
	for _, name := range orderedColumnNames(p) {
		cp := p.Columns[name]
		if cp.NullPercent > 20 {
			out = append(out, fmt.Sprintf("%s is %.0f%% missing; treat aggregates over it with caution",
				name, cp.NullPercent))
		}
	}
	return out
}

// timeSeriesHint suggests a trend analysis whenever a temporal column exists,
// naming a numeric column to plot against when one is available.
func timeSeriesHint(_ *table.Table, p *DataProfile) []string {
	if len(p.TemporalColumns) == 0 {
		return nil
	}
	if len(p.NumericColumns) == 0 {
		return []string{fmt.Sprintf("Time series analysis possible over %s", p.TemporalColumns[0])}
	}
	return []string{fmt.Sprintf("Time series analysis possible: %s against %s",
		p.TemporalColumns[0], p.NumericColumns[0])}
}

func orderedColumnNames(p *DataProfile) []string {
	names := make([]string, 0, len(p.Columns))
	for name := range p.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
