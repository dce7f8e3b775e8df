package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gridsense/internal/logging"
	"gridsense/internal/profile"
)

// Intent tags form a closed set. Classification is advisory: a wrong tag
// routes to a different presentation style, never to unsafe execution.
const (
	IntentVisualization  = "visualization"
	IntentTransformation = "transformation"
	IntentStatistical    = "statistical"
	IntentQuery          = "query"
)

// Intent is the classified analysis intent of a request.
type Intent struct {
	Type      string `json:"intent"`
	Subtype   string `json:"subtype,omitempty"` // chart type, transform operation, etc.
	Rationale string `json:"rationale,omitempty"`
}

func validIntent(tag string) bool {
	switch tag {
	case IntentVisualization, IntentTransformation, IntentStatistical, IntentQuery:
		return true
	}
	return false
}

const classifySystemPrompt = `You classify spreadsheet analysis requests into exactly one category.

Categories and signal words:
- visualization: chart, plot, graph, visualize, show me, trend line, histogram, pie, bar, scatter
- transformation: pivot, group by, aggregate, filter, sort, reshape, merge, dedupe, clean up
- statistical: mean, median, correlation, distribution, outliers, summary, analyze, compare, significance
- query: lookup, which row, how many, what is the value of, find, count of a specific thing

Reply with a single JSON object and nothing else:
{"intent": "<category>", "subtype": "<more specific kind, e.g. chart type or operation>", "rationale": "<one sentence>"}`

// ClassifyIntent asks the reasoning client to tag the request. Any failure
// (transport, unparsable reply, tag outside the valid set) falls back to the
// configured default tag rather than surfacing an error.
func (s *Synthesizer) ClassifyIntent(ctx context.Context, request string, p *profile.DataProfile) Intent {
	fallback := Intent{Type: s.defaultIntent}

	user := fmt.Sprintf("Request: %s\n\nAvailable columns: %s",
		request, strings.Join(columnSummary(p), ", "))

	reply, err := s.client.CompleteWithSystem(ctx, classifySystemPrompt, user)
	if err != nil {
		logging.Intent("classification failed, using default %q: %v", s.defaultIntent, err)
		return fallback
	}

	var intent Intent
	if err := json.Unmarshal([]byte(ExtractCodeBlock(reply, "json")), &intent); err != nil {
		logging.Intent("unparsable classification reply, using default %q: %v", s.defaultIntent, err)
		return fallback
	}

	intent.Type = strings.ToLower(strings.TrimSpace(intent.Type))
	if !validIntent(intent.Type) {
		logging.Intent("tag %q outside valid set, using default %q", intent.Type, s.defaultIntent)
		return fallback
	}

	logging.IntentDebug("classified as %s/%s: %s", intent.Type, intent.Subtype, intent.Rationale)
	return intent
}

func columnSummary(p *profile.DataProfile) []string {
	if p == nil || p.Empty {
		return nil
	}
	out := make([]string, 0, len(p.Columns))
	for _, name := range p.NumericColumns {
		out = append(out, name+" (numeric)")
	}
	for _, name := range p.TemporalColumns {
		out = append(out, name+" (temporal)")
	}
	for _, name := range p.CategoricalColumns {
		out = append(out, name+" (categorical)")
	}
	return out
}
