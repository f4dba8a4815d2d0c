package consolidate

import (
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// Audit consolidates audit_entry nodes into one audit_summary per period.
// Unlike the record-backed categories, audit input already lives in the
// graph, so SUMMARIZES targets always exist.
type Audit struct{}

// Consolidate aggregates audit entries. Returns nil for an empty period.
func (Audit) Consolidate(p period.Period, entries []*graph.Node) *Result {
	if len(entries) == 0 {
		return nil
	}

	byAction := make(map[string]int)
	actors := make(map[string]bool)
	for _, n := range entries {
		if action, ok := n.Attributes["action"].(string); ok && action != "" {
			byAction[action]++
		}
		if actor, ok := n.Attributes["actor"].(string); ok && actor != "" {
			actors[actor] = true
		}
	}

	actionCounts := make(map[string]any, len(byAction))
	for a, n := range byAction {
		actionCounts[a] = n
	}

	attrs := map[string]any{
		"total_entries":   len(entries),
		"distinct_actors": len(actors),
		"action_counts":   actionCounts,
	}

	summary := newSummaryNode(graph.NodeAuditSummary, p, attrs)
	return &Result{
		Summary: summary,
		Edges:   summarizesSpecs(summary.ID, AuditTargets(entries)),
	}
}

// AuditTargets returns the SUMMARIZES targets for an audit summary: the
// audit entry nodes themselves. Shared with the repair path.
func AuditTargets(entries []*graph.Node) []string {
	return uniqueSorted(nodeIDs(entries))
}
