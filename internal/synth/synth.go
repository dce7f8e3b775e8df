// Package synth turns a classified request plus a data profile into an
// executable analysis package via the reasoning client. Replies are treated
// as untrusted: anything unparsable degrades to a guaranteed-runnable
// descriptive-statistics package instead of erroring.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gridsense/internal/logging"
	"gridsense/internal/profile"
	"gridsense/internal/reasoning"
)

// AnalysisPackage bundles everything one analysis run needs: the procedure
// source plus human-oriented framing used by the interpretation stage.
type AnalysisPackage struct {
	AnalysisType        string `json:"analysis_type"`
	AnalysisPlan        string `json:"analysis_plan"`
	Procedure           string `json:"procedure"`
	InterpretationGuide string `json:"interpretation_guide"`
	Fallback            bool   `json:"-"` // true when synthesis degraded to the built-in package
}

// Synthesizer drives intent classification and procedure synthesis.
type Synthesizer struct {
	client        reasoning.Client
	defaultIntent string
}

// New creates a Synthesizer. defaultIntent is used when classification fails;
// empty means statistical.
func New(client reasoning.Client, defaultIntent string) *Synthesizer {
	if !validIntent(defaultIntent) {
		defaultIntent = IntentStatistical
	}
	return &Synthesizer{client: client, defaultIntent: defaultIntent}
}

// Synthesize builds the synthesis prompt for the intent's strategy, calls the
// reasoning client, and parses the reply. An unparsable reply or transport
// failure yields FallbackPackage, never an error: the pipeline must always
// have something executable.
func (s *Synthesizer) Synthesize(ctx context.Context, request string, p *profile.DataProfile, intent Intent) *AnalysisPackage {
	timer := logging.StartTimer(logging.CategorySynth, "Synthesize")
	defer timer.Stop()

	strategy := strategyFor(intent)
	system, user := strategy.BuildPrompt(request, p)

	reply, err := s.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		logging.Synth("synthesis call failed, degrading to fallback package: %v", err)
		return FallbackPackage()
	}

	pkg, err := strategy.ParseReply(reply)
	if err != nil {
		logging.Synth("unparsable synthesis reply, degrading to fallback package: %v", err)
		return FallbackPackage()
	}

	pkg = strategy.ShapeOutput(pkg)
	logging.SynthDebug("synthesized %s package: plan=%q procedure=%d chars",
		pkg.AnalysisType, pkg.AnalysisPlan, len(pkg.Procedure))
	return pkg
}

// parsePackageReply decodes the structured synthesis reply. The procedure
// field may itself arrive fenced; the fence is stripped.
func parsePackageReply(reply string) (*AnalysisPackage, error) {
	payload := ExtractCodeBlock(reply, "json")

	var pkg AnalysisPackage
	if err := json.Unmarshal([]byte(payload), &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse synthesis reply: %w", err)
	}

	pkg.Procedure = ExtractCodeBlock(pkg.Procedure, "go")
	if strings.TrimSpace(pkg.Procedure) == "" {
		return nil, fmt.Errorf("synthesis reply carries no procedure")
	}
	if !strings.Contains(pkg.Procedure, "func Analyze(") {
		return nil, fmt.Errorf("procedure does not define the Analyze entry point")
	}
	return &pkg, nil
}

// ExtractCodeBlock pulls the contents of the first ```lang fenced block, or
// the first anonymous block, or the whole text when no fence is present.
func ExtractCodeBlock(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
		"```\n",
		"```\r\n",
	}

	for _, pattern := range patterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			start := idx + len(pattern)
			end := strings.Index(text[start:], "```")
			if end != -1 {
				return strings.TrimSpace(text[start : start+end])
			}
		}
	}

	return strings.TrimSpace(text)
}

// profileContext renders the profile as machine-readable prompt context.
func profileContext(p *profile.DataProfile) string {
	if p == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
