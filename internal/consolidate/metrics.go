package consolidate

import (
	"math"

	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// Metrics consolidates raw timeseries datapoints into one tsdb_summary per
// period. The tsdb summary is also the primary SUMMARIZES owner for the
// period's general eligible nodes (local, non-timeseries, unclaimed by any
// other category).
type Metrics struct{}

// Consolidate aggregates metric points and eligible nodes into a summary.
// Returns nil when the period has neither datapoints nor eligible nodes.
func (Metrics) Consolidate(p period.Period, points []convert.MetricPoint, eligible []*graph.Node) *Result {
	if len(points) == 0 && len(eligible) == 0 {
		return nil
	}

	type agg struct {
		count int
		sum   float64
		min   float64
		max   float64
	}
	byName := make(map[string]*agg)
	var totalTokens, totalCost float64
	for _, pt := range points {
		a, ok := byName[pt.Name]
		if !ok {
			a = &agg{min: math.Inf(1), max: math.Inf(-1)}
			byName[pt.Name] = a
		}
		a.count++
		a.sum += pt.Value
		if pt.Value < a.min {
			a.min = pt.Value
		}
		if pt.Value > a.max {
			a.max = pt.Value
		}
		switch pt.Tags["resource"] {
		case "tokens":
			totalTokens += pt.Value
		case "cost":
			totalCost += pt.Value
		}
	}

	metrics := make(map[string]any, len(byName))
	for name, a := range byName {
		metrics[name] = map[string]any{
			"count": a.count,
			"sum":   a.sum,
			"min":   a.min,
			"max":   a.max,
			"avg":   a.sum / float64(a.count),
		}
	}

	attrs := map[string]any{
		"datapoint_count":   len(points),
		"unique_metrics":    len(byName),
		"metrics":           metrics,
		"total_tokens":      totalTokens,
		"total_cost":        totalCost,
		"source_node_count": len(eligible),
	}

	summary := newSummaryNode(graph.NodeTSDBSummary, p, attrs)
	return &Result{
		Summary: summary,
		Edges:   summarizesSpecs(summary.ID, MetricsTargets(eligible)),
	}
}

// MetricsTargets returns the SUMMARIZES targets for a tsdb summary: the ids
// of the period's general eligible nodes. Shared with the repair path.
func MetricsTargets(eligible []*graph.Node) []string {
	return uniqueSorted(nodeIDs(eligible))
}
