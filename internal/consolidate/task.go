package consolidate

import (
	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// Task consolidates task records (with their child thoughts) into one
// task_summary per period.
type Task struct{}

// Consolidate aggregates tasks. Returns nil for an empty period.
func (Task) Consolidate(p period.Period, tasks []convert.TaskRecord) *Result {
	if len(tasks) == 0 {
		return nil
	}

	byStatus := make(map[string]int)
	var thoughtCount int
	for _, t := range tasks {
		if t.Status != "" {
			byStatus[t.Status]++
		}
		thoughtCount += len(t.Thoughts)
	}

	statusCounts := make(map[string]any, len(byStatus))
	for s, n := range byStatus {
		statusCounts[s] = n
	}

	attrs := map[string]any{
		"total_tasks":    len(tasks),
		"total_thoughts": thoughtCount,
		"status_counts":  statusCounts,
	}

	summary := newSummaryNode(graph.NodeTaskSummary, p, attrs)
	return &Result{
		Summary: summary,
		Edges:   summarizesSpecs(summary.ID, TaskTargets(tasks)),
	}
}

// TaskTargets returns the SUMMARIZES targets for a task summary: one
// task_{id} node per task, auto-creatable by the edge manager. Shared with
// the repair path.
func TaskTargets(tasks []convert.TaskRecord) []string {
	var targets []string
	for _, t := range tasks {
		targets = append(targets, "task_"+t.ID)
	}
	return uniqueSorted(targets)
}
