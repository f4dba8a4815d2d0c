package edges

import (
	"fmt"
	"time"

	"github.com/vthunder/rollup/internal/consolidate"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/logging"
)

// EnsureSummaryEdges re-runs edge wiring for an already-consolidated
// period without creating any summary node. This is the recovery path for
// the defect class where a summary exists but its SUMMARIZES edges are
// partially or fully missing. Target sets are recomputed from the current
// raw data and inserted only where absent, so calling it twice produces
// the same edge set as calling it once. Returns the number of edges
// created.
func (m *Manager) EnsureSummaryEdges(periodStart, periodEnd time.Time) (int, error) {
	summaries, err := m.query.SummariesInPeriod(periodStart)
	if err != nil {
		return 0, fmt.Errorf("failed to load summaries for %s: %w", periodStart.Format(time.RFC3339), err)
	}
	if len(summaries) == 0 {
		logging.Info("edges", "repair: no summaries exist for period %s, nothing to do", periodStart.Format(time.RFC3339))
		return 0, nil
	}

	byType, err := m.query.NodesInPeriod(periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load period nodes: %w", err)
	}
	interactions, _, spans, err := m.query.InteractionRecords(periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load period records: %w", err)
	}
	tasks, err := m.query.TasksInPeriod(periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load period tasks: %w", err)
	}

	claimed := consolidate.ClaimedIDs(interactions, spans, tasks)

	total := 0
	for _, summary := range summaries {
		var targets []string
		switch summary.Type {
		case graph.NodeTSDBSummary:
			targets = consolidate.MetricsTargets(consolidate.EligibleGeneralNodes(byType, claimed))
		case graph.NodeConversationSummary:
			targets = consolidate.ConversationTargets(interactions)
		case graph.NodeTraceSummary:
			targets = consolidate.TraceTargets(spans)
		case graph.NodeAuditSummary:
			targets = consolidate.AuditTargets(byType[graph.NodeAuditEntry])
		case graph.NodeTaskSummary:
			targets = consolidate.TaskTargets(tasks)
		default:
			continue
		}

		created, err := m.LinkSummaryToNodes(summary, targets, graph.RelSummarizes, "repair")
		if err != nil {
			return total, fmt.Errorf("failed to repair %s: %w", summary.ID, err)
		}
		if created > 0 {
			logging.Info("edges", "repair: restored %d SUMMARIZES edges for %s", created, summary.ID)
		}
		total += created

		if summary.Type == graph.NodeConversationSummary {
			created, err := m.LinkUserParticipation(summary, consolidate.ConversationParticipants(interactions))
			if err != nil {
				return total, fmt.Errorf("failed to repair participation for %s: %w", summary.ID, err)
			}
			total += created
		}
	}

	created, err := m.LinkCrossSummaries(summaries)
	if err != nil {
		return total, fmt.Errorf("failed to repair cross-summary edges: %w", err)
	}
	total += created

	created, err = m.CreateEdgesBatch(consolidate.Memory{}.Edges(summaries, byType))
	if err != nil {
		return total, fmt.Errorf("failed to repair concept edges: %w", err)
	}
	total += created

	return total, nil
}
