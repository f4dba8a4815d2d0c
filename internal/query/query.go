// Package query provides the period-scoped reads consolidation depends on.
// All period-membership checks use the node's updated_at timestamp, falling
// back to created_at when unset; the store enforces that rule so every
// caller reasons about membership the same way.
package query

import (
	"fmt"
	"time"

	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/logging"
)

// Manager answers the engine's read-side questions against the store
type Manager struct {
	store *graph.Store
}

// NewManager creates a query manager
func NewManager(store *graph.Store) *Manager {
	return &Manager{store: store}
}

// NodesInPeriod fetches all local-scope nodes in [start, end), grouped by
// type. Summary nodes created for the same window are excluded so a repair
// or re-run never sees its own output as input.
func (m *Manager) NodesInPeriod(start, end time.Time) (map[graph.NodeType][]*graph.Node, error) {
	nodes, err := m.store.NodesInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nodes in period: %w", err)
	}
	byType := make(map[graph.NodeType][]*graph.Node)
	for _, n := range nodes {
		if n.Type.IsSummary() {
			continue
		}
		byType[n.Type] = append(byType[n.Type], n)
	}
	return byType, nil
}

// InteractionRecords fetches and converts raw records in [start, end),
// optionally filtered by kind. Rows that fail conversion are dropped with a
// warning; a bad row never aborts the batch.
func (m *Manager) InteractionRecords(start, end time.Time, kinds ...string) ([]convert.ServiceInteraction, []convert.MetricPoint, []convert.TraceSpan, error) {
	recs, err := m.store.InteractionRecordsInRange(start, end, kinds...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch interaction records: %w", err)
	}

	var interactions []convert.ServiceInteraction
	var points []convert.MetricPoint
	var spans []convert.TraceSpan
	for _, rec := range recs {
		converted, ok := convert.FromRecord(rec)
		if !ok {
			logging.Warn("query", "dropping unconvertible %s record %s: %s",
				rec.Kind, rec.ID, logging.Truncate(rec.PayloadJSON(), 200))
			continue
		}
		switch v := converted.(type) {
		case convert.ServiceInteraction:
			interactions = append(interactions, v)
		case convert.MetricPoint:
			points = append(points, v)
		case convert.TraceSpan:
			spans = append(spans, v)
		}
	}
	return interactions, points, spans, nil
}

// RawTimeseriesNodes fetches the period's metric_point nodes as typed
// datapoints. Raw timeseries nodes are never SUMMARIZES targets; their
// values are aggregated into the tsdb summary body alongside the
// record-sourced datapoints.
func (m *Manager) RawTimeseriesNodes(start, end time.Time) ([]convert.MetricPoint, error) {
	nodes, err := m.store.NodesInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeseries nodes: %w", err)
	}
	var points []convert.MetricPoint
	for _, n := range nodes {
		if n.Type != graph.NodeMetricPoint {
			continue
		}
		mp := convert.MetricPointFromNode(n)
		if mp == nil {
			logging.Warn("query", "dropping unconvertible metric_point node %s", n.ID)
			continue
		}
		points = append(points, *mp)
	}
	return points, nil
}

// TasksInPeriod fetches tasks (with child thoughts) active in [start, end)
// as typed records. Unconvertible rows are dropped with a warning.
func (m *Manager) TasksInPeriod(start, end time.Time) ([]convert.TaskRecord, error) {
	rows, err := m.store.TasksInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks in period: %w", err)
	}
	var tasks []convert.TaskRecord
	for _, row := range rows {
		rec := convert.TaskRecordFromRow(row)
		if rec == nil {
			logging.Warn("query", "dropping unconvertible task row %q", row.ID)
			continue
		}
		tasks = append(tasks, *rec)
	}
	return tasks, nil
}

// IsPeriodConsolidated reports whether a summary node already exists for
// (summaryType, periodStart). This gate deliberately checks summary
// existence only, not edge completeness: coupling edge completeness into
// the gate risks duplicate summaries on partial retry. Edge-incomplete
// periods are healed by the separate EnsureSummaryEdges repair path.
func (m *Manager) IsPeriodConsolidated(summaryType graph.NodeType, periodStart time.Time) (bool, error) {
	return m.store.NodeExists(graph.SummaryNodeID(summaryType, periodStart))
}

// LastConsolidatedPeriod returns the most recent period start for which a
// summary of the given type exists. ok is false when none exist.
func (m *Manager) LastConsolidatedPeriod(summaryType graph.NodeType) (time.Time, bool, error) {
	ids, err := m.store.NodeIDsByType(summaryType)
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	found := false
	for _, id := range ids {
		start, ok := graph.ParseSummaryPeriodStart(id)
		if !ok {
			continue
		}
		if !found || start.After(latest) {
			latest = start
			found = true
		}
	}
	return latest, found, nil
}

// OldestSummaryPeriod returns the earliest period start for which any
// summary exists, across all summary types. ok is false when the graph
// holds no summaries.
func (m *Manager) OldestSummaryPeriod() (time.Time, bool, error) {
	var earliest time.Time
	found := false
	for _, t := range graph.SummaryTypes {
		ids, err := m.store.NodeIDsByType(t)
		if err != nil {
			return time.Time{}, false, err
		}
		for _, id := range ids {
			start, ok := graph.ParseSummaryPeriodStart(id)
			if !ok {
				continue
			}
			if !found || start.Before(earliest) {
				earliest = start
				found = true
			}
		}
	}
	return earliest, found, nil
}

// PreviousSummaryID returns the id of the latest summary of the given type
// with a period start strictly before the given start. ok is false when
// none exists.
func (m *Manager) PreviousSummaryID(summaryType graph.NodeType, before time.Time) (string, bool, error) {
	ids, err := m.store.NodeIDsByType(summaryType)
	if err != nil {
		return "", false, err
	}
	var best time.Time
	var bestID string
	for _, id := range ids {
		start, ok := graph.ParseSummaryPeriodStart(id)
		if !ok || !start.Before(before) {
			continue
		}
		if bestID == "" || start.After(best) {
			best = start
			bestID = id
		}
	}
	return bestID, bestID != "", nil
}

// NextSummaryID returns the id of the earliest summary of the given type
// with a period start strictly after the given start. ok is false when
// none exists.
func (m *Manager) NextSummaryID(summaryType graph.NodeType, after time.Time) (string, bool, error) {
	ids, err := m.store.NodeIDsByType(summaryType)
	if err != nil {
		return "", false, err
	}
	var best time.Time
	var bestID string
	for _, id := range ids {
		start, ok := graph.ParseSummaryPeriodStart(id)
		if !ok || !start.After(after) {
			continue
		}
		if bestID == "" || start.Before(best) {
			best = start
			bestID = id
		}
	}
	return bestID, bestID != "", nil
}

// SummariesInPeriod returns every summary node whose id embeds the given
// period start, across all summary types.
func (m *Manager) SummariesInPeriod(periodStart time.Time) ([]*graph.Node, error) {
	var summaries []*graph.Node
	for _, t := range graph.SummaryTypes {
		n, err := m.store.GetNode(graph.SummaryNodeID(t, periodStart))
		if err != nil {
			return nil, err
		}
		if n != nil {
			summaries = append(summaries, n)
		}
	}
	return summaries, nil
}

// OldestRawTimestamp scans the minimum timestamp across raw-category nodes
// and interaction records. ok is false when no raw data exists at all.
func (m *Manager) OldestRawTimestamp() (time.Time, bool, error) {
	nodeMin, nodeOK, err := m.store.OldestLocalNodeTimestamp(graph.SummaryTypes)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to scan node timestamps: %w", err)
	}
	recMin, recOK, err := m.store.OldestInteractionTimestamp()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to scan record timestamps: %w", err)
	}
	switch {
	case nodeOK && recOK:
		if recMin.Before(nodeMin) {
			return recMin, true, nil
		}
		return nodeMin, true, nil
	case nodeOK:
		return nodeMin, true, nil
	case recOK:
		return recMin, true, nil
	}
	return time.Time{}, false, nil
}
