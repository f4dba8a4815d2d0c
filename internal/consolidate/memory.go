package consolidate

import (
	"github.com/vthunder/rollup/internal/graph"
)

// Memory produces no summary node of its own; it links the period's
// summaries to the "special" node categories the other five consolidators
// do not claim: concepts, identity/config updates, and user/agent nodes
// touched in the period.
type Memory struct{}

// Edges returns PERIOD_CONCEPT edge specs from every summary produced for
// the period to each special node updated in it.
func (Memory) Edges(summaries []*graph.Node, byType map[graph.NodeType][]*graph.Node) []EdgeSpec {
	var special []*graph.Node
	special = append(special, byType[graph.NodeConcept]...)
	special = append(special, byType[graph.NodeConfig]...)
	special = append(special, byType[graph.NodeUser]...)
	special = append(special, byType[graph.NodeAgent]...)
	if len(special) == 0 || len(summaries) == 0 {
		return nil
	}

	var specs []EdgeSpec
	for _, summary := range summaries {
		for _, n := range special {
			specs = append(specs, EdgeSpec{
				SourceID:     summary.ID,
				TargetID:     n.ID,
				Relationship: graph.RelPeriodConcept,
				Weight:       1.0,
				Attributes:   map[string]any{"node_type": string(n.Type)},
			})
		}
	}
	return specs
}
