package consolidate

import (
	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// Trace consolidates processing spans into one trace_summary per period.
type Trace struct{}

// Consolidate aggregates spans. Returns nil for an empty period.
func (Trace) Consolidate(p period.Period, spans []convert.TraceSpan) *Result {
	if len(spans) == 0 {
		return nil
	}

	traces := make(map[string]bool)
	byComponent := make(map[string]int)
	var errorCount int
	var totalDuration float64
	for _, sp := range spans {
		traces[sp.TraceID] = true
		if sp.Component != "" {
			byComponent[sp.Component]++
		}
		if !sp.Success {
			errorCount++
		}
		totalDuration += sp.DurationMS
	}

	componentCounts := make(map[string]any, len(byComponent))
	for c, n := range byComponent {
		componentCounts[c] = n
	}

	attrs := map[string]any{
		"total_spans":      len(spans),
		"unique_traces":    len(traces),
		"error_count":      errorCount,
		"avg_duration_ms":  totalDuration / float64(len(spans)),
		"component_counts": componentCounts,
	}

	summary := newSummaryNode(graph.NodeTraceSummary, p, attrs)
	return &Result{
		Summary: summary,
		Edges:   summarizesSpecs(summary.ID, TraceTargets(spans)),
	}
}

// TraceTargets returns the SUMMARIZES targets for a trace summary: the
// task_{id}/thought_{id} nodes its spans processed. Both follow placeholder
// patterns the edge manager can auto-create. Shared with the repair path.
func TraceTargets(spans []convert.TraceSpan) []string {
	var targets []string
	for _, sp := range spans {
		if sp.TaskID != "" {
			targets = append(targets, "task_"+sp.TaskID)
		}
		if sp.ThoughtID != "" {
			targets = append(targets, "thought_"+sp.ThoughtID)
		}
	}
	return uniqueSorted(targets)
}
