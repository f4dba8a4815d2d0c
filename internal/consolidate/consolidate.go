// Package consolidate turns one period's converted records into summary
// nodes and edge specifications, one consolidator per raw category. Summary
// creation is conditional on non-empty input: a category with nothing to
// summarize produces no node at all.
package consolidate

import (
	"sort"
	"time"

	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// UpdatedBy is stamped on every node the engine creates
const UpdatedBy = "consolidation"

// ConsolidationLevel is the only level currently produced
const ConsolidationLevel = "basic"

// EdgeSpec describes an edge to be created by the edge manager
type EdgeSpec struct {
	SourceID     string
	TargetID     string
	Relationship graph.Relationship
	Weight       float64
	Attributes   map[string]any
}

// Result is one consolidator's output for one period
type Result struct {
	Summary *graph.Node
	Edges   []EdgeSpec
	// Participants maps author id -> message count; only the conversation
	// consolidator fills it, for INVOLVED_USER wiring.
	Participants map[string]int
}

// newSummaryNode builds a summary node for the period. The
// (period_start, period_end, consolidation_level) triple in the attributes
// is the idempotency key; the node id embeds the period start.
func newSummaryNode(summaryType graph.NodeType, p period.Period, attrs map[string]any) *graph.Node {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs["period_start"] = p.Start.UTC().Format(time.RFC3339)
	attrs["period_end"] = p.End.UTC().Format(time.RFC3339)
	attrs["period_label"] = p.Label
	if p.Daypart != "" {
		attrs["daypart"] = p.Daypart
	}
	attrs["consolidation_level"] = ConsolidationLevel
	now := time.Now().UTC()
	return &graph.Node{
		ID:         graph.SummaryNodeID(summaryType, p.Start),
		Type:       summaryType,
		Scope:      graph.ScopeLocal,
		Attributes: attrs,
		Version:    1,
		UpdatedBy:  UpdatedBy,
		CreatedAt:  now,
	}
}

// summarizesSpecs builds SUMMARIZES edge specs from a summary to each target
func summarizesSpecs(summaryID string, targets []string) []EdgeSpec {
	specs := make([]EdgeSpec, 0, len(targets))
	for _, target := range targets {
		specs = append(specs, EdgeSpec{
			SourceID:     summaryID,
			TargetID:     target,
			Relationship: graph.RelSummarizes,
			Weight:       1.0,
		})
	}
	return specs
}

// ownedTypes are node categories claimed unconditionally by another
// consolidator: audit entries by the audit summary, and the memory
// categories (concept, config, user, agent) by PERIOD_CONCEPT wiring.
// Channel, task, and thought nodes are claimed per period by whichever
// summary actually references them; the unreferenced remainder falls to
// the tsdb summary's general set, so a node qualifies for exactly one
// primary SUMMARIZES source per period.
var ownedTypes = map[graph.NodeType]bool{
	graph.NodeMetricPoint: true, // raw timeseries, never a SUMMARIZES target
	graph.NodeAuditEntry:  true,
	graph.NodeConcept:     true,
	graph.NodeConfig:      true,
	graph.NodeUser:        true,
	graph.NodeAgent:       true,
}

// ClaimedIDs collects the SUMMARIZES targets the conversation, trace, and
// task consolidators would claim for the period. Shared by the cycle and
// repair paths so both carve the same remainder out for the tsdb summary.
func ClaimedIDs(interactions []convert.ServiceInteraction, spans []convert.TraceSpan, tasks []convert.TaskRecord) map[string]bool {
	claimed := make(map[string]bool)
	for _, id := range ConversationTargets(interactions) {
		claimed[id] = true
	}
	for _, id := range TraceTargets(spans) {
		claimed[id] = true
	}
	for _, id := range TaskTargets(tasks) {
		claimed[id] = true
	}
	return claimed
}

// EligibleGeneralNodes filters the period's nodes down to the general set
// the metrics summary links to: local scope, not raw timeseries, not in a
// category another consolidator always owns, and not claimed by a
// same-period summary's own targets.
func EligibleGeneralNodes(byType map[graph.NodeType][]*graph.Node, claimed map[string]bool) []*graph.Node {
	var eligible []*graph.Node
	for t, nodes := range byType {
		if t.IsSummary() || ownedTypes[t] {
			continue
		}
		for _, n := range nodes {
			if n.Scope != graph.ScopeLocal || claimed[n.ID] {
				continue
			}
			eligible = append(eligible, n)
		}
	}
	return eligible
}

// nodeIDs extracts ids from a node slice
func nodeIDs(nodes []*graph.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// uniqueSorted deduplicates a string slice and sorts it, so target sets
// are deterministic across runs and the repair path.
func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
