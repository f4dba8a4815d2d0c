// Package edges maintains the graph's referential integrity: SUMMARIZES
// wiring, cross-summary correlation edges, the temporal chain, participation
// edges, placeholder auto-creation, orphan cleanup, and the idempotent
// repair entry point.
package edges

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/rollup/internal/consolidate"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/logging"
	"github.com/vthunder/rollup/internal/query"
)

// Manager wires and repairs edges around summary nodes
type Manager struct {
	store *graph.Store
	query *query.Manager
}

// NewManager creates an edge manager
func NewManager(store *graph.Store, q *query.Manager) *Manager {
	return &Manager{store: store, query: q}
}

// placeholderPrefixes maps derivable id patterns to the node type a minimal
// placeholder is created with. Targets outside these patterns are skipped
// when missing, not errors.
var placeholderPrefixes = []struct {
	prefix string
	typ    graph.NodeType
}{
	{"channel_", graph.NodeChannel},
	{"user_", graph.NodeUser},
	{"task_", graph.NodeTask},
	{"thought_", graph.NodeThought},
}

// ensureTarget makes sure the target node exists, auto-creating a minimal
// placeholder for known id patterns. Returns false when the target is
// missing and not derivable.
func (m *Manager) ensureTarget(targetID string) (bool, error) {
	exists, err := m.store.NodeExists(targetID)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(targetID, p.prefix) {
			created, err := m.store.AddNodeIfAbsent(&graph.Node{
				ID:        targetID,
				Type:      p.typ,
				Scope:     graph.ScopeLocal,
				UpdatedBy: consolidate.UpdatedBy,
				Attributes: map[string]any{
					"placeholder": true,
				},
			})
			if err != nil {
				return false, err
			}
			if created {
				logging.Debug("edges", "auto-created placeholder %s (%s)", targetID, p.typ)
			}
			return true, nil
		}
	}
	logging.Debug("edges", "skipping edge to missing node %s (no derivable pattern)", targetID)
	return false, nil
}

// LinkSummaryToNodes inserts one edge from the summary to every target,
// verifying endpoints first and auto-creating derivable placeholders. Uses
// deterministic edge ids so repeated calls (retries, repair) are naturally
// idempotent. Returns the number of edges actually inserted.
func (m *Manager) LinkSummaryToNodes(summary *graph.Node, targetIDs []string, rel graph.Relationship, context string) (int, error) {
	created := 0
	for _, target := range targetIDs {
		ok, err := m.ensureTarget(target)
		if err != nil {
			return created, fmt.Errorf("failed to verify target %s: %w", target, err)
		}
		if !ok {
			continue
		}
		inserted, err := m.store.AddEdgeIfAbsent(&graph.Edge{
			ID:           graph.DeterministicEdgeID(summary.ID, target, rel),
			SourceID:     summary.ID,
			TargetID:     target,
			Scope:        summary.Scope,
			Relationship: rel,
			Weight:       1.0,
			Attributes:   map[string]any{"context": context},
		})
		if err != nil {
			return created, fmt.Errorf("failed to link %s -> %s: %w", summary.ID, target, err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// crossRelationships maps ordered (source category, target category) pairs
// to their correlation kind. Pairs with no entry in either direction default
// to TEMPORAL_CORRELATION.
var crossRelationships = map[[2]graph.NodeType]graph.Relationship{
	{graph.NodeConversationSummary, graph.NodeTaskSummary}:  graph.RelInitiatesTasks,
	{graph.NodeTaskSummary, graph.NodeTraceSummary}:         graph.RelDrivesProcessing,
	{graph.NodeTraceSummary, graph.NodeTSDBSummary}:         graph.RelGeneratesMetrics,
	{graph.NodeTSDBSummary, graph.NodeConversationSummary}:  graph.RelImpactsQuality,
	{graph.NodeAuditSummary, graph.NodeTraceSummary}:        graph.RelSecuresExecution,
	{graph.NodeConversationSummary, graph.NodeAuditSummary}: graph.RelCreatesTrail,
	{graph.NodeTaskSummary, graph.NodeTSDBSummary}:          graph.RelConsumesResources,
}

// LinkCrossSummaries wires every unordered pair of same-period summaries
// with the relationship from the lookup table. Edge ids are random, so the
// pre-insert existence check is what keeps replays (repair) from
// duplicating pairs. Returns the number of edges inserted.
func (m *Manager) LinkCrossSummaries(summaries []*graph.Node) (int, error) {
	created := 0
	for i := 0; i < len(summaries); i++ {
		for j := i + 1; j < len(summaries); j++ {
			source, target := summaries[i], summaries[j]
			rel, ok := crossRelationships[[2]graph.NodeType{source.Type, target.Type}]
			if !ok {
				if r, swapped := crossRelationships[[2]graph.NodeType{target.Type, source.Type}]; swapped {
					source, target = target, source
					rel = r
				} else {
					rel = graph.RelTemporalCorrelation
				}
			}

			exists, err := m.store.EdgeExists(source.ID, target.ID, rel)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}
			err = m.store.AddEdge(&graph.Edge{
				ID:           uuid.NewString(),
				SourceID:     source.ID,
				TargetID:     target.ID,
				Scope:        source.Scope,
				Relationship: rel,
				Weight:       1.0,
			})
			if err != nil {
				return created, fmt.Errorf("failed to link %s -> %s: %w", source.ID, target.ID, err)
			}
			created++
		}
	}
	return created, nil
}

// LinkTemporal advances the temporal chain for one summary type: the
// current summary always gets a TEMPORAL_NEXT self-loop marking it as the
// provisional chain head; when a previous summary exists, its self-loop is
// relocated (deleted, then previous->current NEXT and current->previous
// PREV inserted, in one transaction). Safe to call at most once per new
// period per summary type; the deterministic edge ids make a retried call
// a no-op. Returns the number of edges inserted.
func (m *Manager) LinkTemporal(current *graph.Node, previousID string) (int, error) {
	created := 0
	inserted, err := m.store.AddEdgeIfAbsent(&graph.Edge{
		ID:           graph.DeterministicEdgeID(current.ID, current.ID, graph.RelTemporalNext),
		SourceID:     current.ID,
		TargetID:     current.ID,
		Scope:        current.Scope,
		Relationship: graph.RelTemporalNext,
		Weight:       1.0,
		Attributes:   map[string]any{"chain_head": true},
	})
	if err != nil {
		return created, fmt.Errorf("failed to mark chain head %s: %w", current.ID, err)
	}
	if inserted {
		created++
	}

	if previousID == "" || previousID == current.ID {
		return created, nil
	}

	if err := m.store.RelocateTemporalHead(previousID, current.ID, current.Scope); err != nil {
		return created, fmt.Errorf("failed to relocate chain head from %s: %w", previousID, err)
	}
	return created + 2, nil
}

// LinkForwardIfNextExists handles out-of-order backfill: if a summary for a
// later period already exists, the current summary is spliced into the
// chain without touching any self-loop. When the chain previously skipped
// over this period (previous -> next), that pair is removed and replaced by
// previous -> current -> next. Returns the number of edges inserted.
func (m *Manager) LinkForwardIfNextExists(current *graph.Node, periodStart time.Time) (int, error) {
	nextID, ok, err := m.query.NextSummaryID(current.Type, periodStart)
	if err != nil || !ok {
		return 0, err
	}

	created := 0
	prevID, hasPrev, err := m.query.PreviousSummaryID(current.Type, periodStart)
	if err != nil {
		return 0, err
	}
	if hasPrev {
		skipExists, err := m.store.EdgeExists(prevID, nextID, graph.RelTemporalNext)
		if err != nil {
			return 0, err
		}
		if skipExists {
			// A failed skip-pair deletion leaves a forked chain; the next
			// repair pass cleans it up, but it must be visible in the logs.
			if _, err := m.store.DeleteEdge(graph.DeterministicEdgeID(prevID, nextID, graph.RelTemporalNext)); err != nil {
				logging.Warn("edges", "failed to remove skip edge %s -> %s: %v", prevID, nextID, err)
			}
			if _, err := m.store.DeleteEdge(graph.DeterministicEdgeID(nextID, prevID, graph.RelTemporalPrev)); err != nil {
				logging.Warn("edges", "failed to remove skip edge %s -> %s: %v", nextID, prevID, err)
			}
			n, err := m.linkChainPair(prevID, current.ID, current.Scope)
			if err != nil {
				return created, err
			}
			created += n
		}
	}

	n, err := m.linkChainPair(current.ID, nextID, current.Scope)
	if err != nil {
		return created, err
	}
	return created + n, nil
}

// linkChainPair inserts the earlier->later TEMPORAL_NEXT and later->earlier
// TEMPORAL_PREV pair with deterministic ids.
func (m *Manager) linkChainPair(earlierID, laterID string, scope graph.Scope) (int, error) {
	created := 0
	pairs := []struct {
		source, target string
		rel            graph.Relationship
	}{
		{earlierID, laterID, graph.RelTemporalNext},
		{laterID, earlierID, graph.RelTemporalPrev},
	}
	for _, p := range pairs {
		inserted, err := m.store.AddEdgeIfAbsent(&graph.Edge{
			ID:           graph.DeterministicEdgeID(p.source, p.target, p.rel),
			SourceID:     p.source,
			TargetID:     p.target,
			Scope:        scope,
			Relationship: p.rel,
			Weight:       1.0,
		})
		if err != nil {
			return created, fmt.Errorf("failed to link %s -> %s: %w", p.source, p.target, err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// LinkUserParticipation creates INVOLVED_USER edges from a conversation
// summary to each participant's user node (auto-created if needed). Edge
// weight is min(1, messages/100). Returns the number of edges inserted.
func (m *Manager) LinkUserParticipation(convSummary *graph.Node, participants map[string]int) (int, error) {
	created := 0
	for author, messages := range participants {
		userID := "user_" + author
		if ok, err := m.ensureTarget(userID); err != nil || !ok {
			if err != nil {
				return created, err
			}
			continue
		}

		exists, err := m.store.EdgeExists(convSummary.ID, userID, graph.RelInvolvedUser)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		weight := float64(messages) / 100.0
		if weight > 1.0 {
			weight = 1.0
		}
		err = m.store.AddEdge(&graph.Edge{
			ID:           uuid.NewString(),
			SourceID:     convSummary.ID,
			TargetID:     userID,
			Scope:        convSummary.Scope,
			Relationship: graph.RelInvolvedUser,
			Weight:       weight,
			Attributes:   map[string]any{"message_count": messages},
		})
		if err != nil {
			return created, fmt.Errorf("failed to link participant %s: %w", author, err)
		}
		created++
	}
	return created, nil
}

// CreateEdgesBatch inserts a batch of edge specs with the same
// missing-endpoint auto-creation / skip policy as summary linking, and
// dedup protection for replays. Returns the number of edges inserted.
func (m *Manager) CreateEdgesBatch(specs []consolidate.EdgeSpec) (int, error) {
	created := 0
	for _, spec := range specs {
		srcExists, err := m.store.NodeExists(spec.SourceID)
		if err != nil {
			return created, err
		}
		if !srcExists {
			logging.Debug("edges", "skipping edge from missing node %s", spec.SourceID)
			continue
		}
		ok, err := m.ensureTarget(spec.TargetID)
		if err != nil {
			return created, err
		}
		if !ok {
			continue
		}

		exists, err := m.store.EdgeExists(spec.SourceID, spec.TargetID, spec.Relationship)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		weight := spec.Weight
		if weight == 0 {
			weight = 1.0
		}
		err = m.store.AddEdge(&graph.Edge{
			ID:           uuid.NewString(),
			SourceID:     spec.SourceID,
			TargetID:     spec.TargetID,
			Scope:        graph.ScopeLocal,
			Relationship: spec.Relationship,
			Weight:       weight,
			Attributes:   spec.Attributes,
		})
		if err != nil {
			return created, fmt.Errorf("failed to create edge %s -> %s: %w", spec.SourceID, spec.TargetID, err)
		}
		created++
	}
	return created, nil
}

// CleanupOrphanedEdges deletes any edge whose source or target node no
// longer exists. Run at the end of every consolidation cycle.
func (m *Manager) CleanupOrphanedEdges() (int, error) {
	deleted, err := m.store.DeleteOrphanedEdges()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logging.Info("edges", "removed %d orphaned edges", deleted)
	}
	return deleted, nil
}
