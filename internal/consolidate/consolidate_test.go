package consolidate

import (
	"testing"
	"time"

	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

func testPeriod() period.Period {
	return period.NewManager(6 * time.Hour).At(time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC))
}

func TestEmptyCategoriesProduceNoSummary(t *testing.T) {
	p := testPeriod()

	if r := (Metrics{}).Consolidate(p, nil, nil); r != nil {
		t.Error("metrics: empty input should produce no summary")
	}
	if r := (Conversation{}).Consolidate(p, nil); r != nil {
		t.Error("conversation: empty input should produce no summary")
	}
	if r := (Trace{}).Consolidate(p, nil); r != nil {
		t.Error("trace: empty input should produce no summary")
	}
	if r := (Audit{}).Consolidate(p, nil); r != nil {
		t.Error("audit: empty input should produce no summary")
	}
	if r := (Task{}).Consolidate(p, nil); r != nil {
		t.Error("task: empty input should produce no summary")
	}
	if specs := (Memory{}).Edges(nil, nil); specs != nil {
		t.Error("memory: no summaries means no edges")
	}
}

func TestMetricsAggregation(t *testing.T) {
	p := testPeriod()
	points := []convert.MetricPoint{
		{Name: "llm.tokens", Value: 100, Tags: map[string]string{"resource": "tokens"}},
		{Name: "llm.tokens", Value: 200, Tags: map[string]string{"resource": "tokens"}},
		{Name: "llm.cost", Value: 0.5, Tags: map[string]string{"resource": "cost"}},
	}
	eligible := []*graph.Node{
		{ID: "obs_1", Type: graph.NodeObservation, Scope: graph.ScopeLocal},
	}

	r := Metrics{}.Consolidate(p, points, eligible)
	if r == nil {
		t.Fatal("expected a summary")
	}
	if r.Summary.ID != "tsdb_summary_20260830_06" {
		t.Errorf("summary id = %q", r.Summary.ID)
	}
	if r.Summary.Attributes["datapoint_count"] != 3 {
		t.Errorf("datapoint_count = %v", r.Summary.Attributes["datapoint_count"])
	}
	if r.Summary.Attributes["total_tokens"] != 300.0 {
		t.Errorf("total_tokens = %v", r.Summary.Attributes["total_tokens"])
	}
	if r.Summary.Attributes["total_cost"] != 0.5 {
		t.Errorf("total_cost = %v", r.Summary.Attributes["total_cost"])
	}

	metrics := r.Summary.Attributes["metrics"].(map[string]any)
	tok := metrics["llm.tokens"].(map[string]any)
	if tok["count"] != 2 || tok["sum"] != 300.0 || tok["min"] != 100.0 || tok["max"] != 200.0 || tok["avg"] != 150.0 {
		t.Errorf("llm.tokens agg = %v", tok)
	}

	// SUMMARIZES edges point at the eligible nodes, never the raw datapoints
	if len(r.Edges) != 1 || r.Edges[0].TargetID != "obs_1" {
		t.Errorf("edges = %+v", r.Edges)
	}
	if r.Edges[0].Relationship != graph.RelSummarizes {
		t.Errorf("relationship = %v", r.Edges[0].Relationship)
	}
}

func TestMetricsSummaryWithOnlyEligibleNodes(t *testing.T) {
	// No datapoints, but the period still has general nodes to own
	r := Metrics{}.Consolidate(testPeriod(), nil, []*graph.Node{
		{ID: "obs_1", Type: graph.NodeObservation, Scope: graph.ScopeLocal},
	})
	if r == nil {
		t.Fatal("expected a summary for a period with eligible nodes")
	}
	if r.Summary.Attributes["source_node_count"] != 1 {
		t.Errorf("source_node_count = %v", r.Summary.Attributes["source_node_count"])
	}
}

func TestConversationAggregation(t *testing.T) {
	interactions := []convert.ServiceInteraction{
		{ID: "i1", ChannelID: "cli", AuthorID: "alice", ActionType: "speak"},
		{ID: "i2", ChannelID: "cli", AuthorID: "alice", ActionType: "speak"},
		{ID: "i3", ChannelID: "discord", AuthorID: "bob", ActionType: "observe"},
	}

	r := Conversation{}.Consolidate(testPeriod(), interactions)
	if r == nil {
		t.Fatal("expected a summary")
	}
	if r.Summary.Attributes["total_messages"] != 3 {
		t.Errorf("total_messages = %v", r.Summary.Attributes["total_messages"])
	}
	if r.Summary.Attributes["unique_channels"] != 2 {
		t.Errorf("unique_channels = %v", r.Summary.Attributes["unique_channels"])
	}
	if r.Summary.Attributes["unique_authors"] != 2 {
		t.Errorf("unique_authors = %v", r.Summary.Attributes["unique_authors"])
	}
	if r.Participants["alice"] != 2 || r.Participants["bob"] != 1 {
		t.Errorf("participants = %v", r.Participants)
	}

	// One SUMMARIZES target per distinct channel, sorted
	targets := make([]string, 0, len(r.Edges))
	for _, e := range r.Edges {
		targets = append(targets, e.TargetID)
	}
	if len(targets) != 2 || targets[0] != "channel_cli" || targets[1] != "channel_discord" {
		t.Errorf("targets = %v", targets)
	}
}

func TestTraceAggregation(t *testing.T) {
	spans := []convert.TraceSpan{
		{TraceID: "tr-1", TaskID: "t1", Component: "executive", DurationMS: 100, Success: true},
		{TraceID: "tr-1", ThoughtID: "th1", Component: "executive", DurationMS: 300, Success: false},
		{TraceID: "tr-2", TaskID: "t1", Component: "senses", DurationMS: 200, Success: true},
	}

	r := Trace{}.Consolidate(testPeriod(), spans)
	if r == nil {
		t.Fatal("expected a summary")
	}
	if r.Summary.Attributes["total_spans"] != 3 || r.Summary.Attributes["unique_traces"] != 2 {
		t.Errorf("attrs = %v", r.Summary.Attributes)
	}
	if r.Summary.Attributes["error_count"] != 1 {
		t.Errorf("error_count = %v", r.Summary.Attributes["error_count"])
	}
	if r.Summary.Attributes["avg_duration_ms"] != 200.0 {
		t.Errorf("avg_duration_ms = %v", r.Summary.Attributes["avg_duration_ms"])
	}

	// Targets are deduplicated task/thought placeholders
	if len(r.Edges) != 2 {
		t.Errorf("edges = %+v", r.Edges)
	}
}

func TestAuditAggregation(t *testing.T) {
	entries := []*graph.Node{
		{ID: "audit_1", Type: graph.NodeAuditEntry, Attributes: map[string]any{"action": "speak", "actor": "agent"}},
		{ID: "audit_2", Type: graph.NodeAuditEntry, Attributes: map[string]any{"action": "speak", "actor": "agent"}},
		{ID: "audit_3", Type: graph.NodeAuditEntry, Attributes: map[string]any{"action": "reject", "actor": "guardrail"}},
	}

	r := Audit{}.Consolidate(testPeriod(), entries)
	if r == nil {
		t.Fatal("expected a summary")
	}
	if r.Summary.Attributes["total_entries"] != 3 || r.Summary.Attributes["distinct_actors"] != 2 {
		t.Errorf("attrs = %v", r.Summary.Attributes)
	}
	actions := r.Summary.Attributes["action_counts"].(map[string]any)
	if actions["speak"] != 2 || actions["reject"] != 1 {
		t.Errorf("action_counts = %v", actions)
	}
	if len(r.Edges) != 3 {
		t.Errorf("edges = %d, want one per entry", len(r.Edges))
	}
}

func TestTaskAggregation(t *testing.T) {
	tasks := []convert.TaskRecord{
		{ID: "t1", Status: "completed", Thoughts: []convert.ThoughtSummary{{ID: "th1"}, {ID: "th2"}}},
		{ID: "t2", Status: "failed", Thoughts: []convert.ThoughtSummary{{ID: "th3"}}},
	}

	r := Task{}.Consolidate(testPeriod(), tasks)
	if r == nil {
		t.Fatal("expected a summary")
	}
	if r.Summary.Attributes["total_tasks"] != 2 || r.Summary.Attributes["total_thoughts"] != 3 {
		t.Errorf("attrs = %v", r.Summary.Attributes)
	}
	statuses := r.Summary.Attributes["status_counts"].(map[string]any)
	if statuses["completed"] != 1 || statuses["failed"] != 1 {
		t.Errorf("status_counts = %v", statuses)
	}
}

func TestMemoryEdges(t *testing.T) {
	summaries := []*graph.Node{
		{ID: "tsdb_summary_20260830_06", Type: graph.NodeTSDBSummary},
		{ID: "task_summary_20260830_06", Type: graph.NodeTaskSummary},
	}
	byType := map[graph.NodeType][]*graph.Node{
		graph.NodeConcept: {{ID: "concept_go", Type: graph.NodeConcept}},
		graph.NodeConfig:  {{ID: "config_tone", Type: graph.NodeConfig}},
		graph.NodeUser:    {{ID: "user_alice", Type: graph.NodeUser}},
		graph.NodeAgent:   {{ID: "agent_bud", Type: graph.NodeAgent}},
		// Not special: ignored
		graph.NodeObservation: {{ID: "obs_1", Type: graph.NodeObservation}},
	}

	specs := Memory{}.Edges(summaries, byType)
	if len(specs) != 8 {
		t.Fatalf("specs = %d, want 2 summaries x 4 special nodes", len(specs))
	}
	targets := make(map[string]int)
	for _, s := range specs {
		if s.Relationship != graph.RelPeriodConcept {
			t.Errorf("relationship = %v", s.Relationship)
		}
		targets[s.TargetID]++
	}
	if targets["user_alice"] != 2 || targets["agent_bud"] != 2 {
		t.Errorf("user/agent nodes missing from special set: %v", targets)
	}
}

func TestEligibleGeneralNodes(t *testing.T) {
	byType := map[graph.NodeType][]*graph.Node{
		graph.NodeObservation: {
			{ID: "obs_local", Scope: graph.ScopeLocal},
			{ID: "obs_identity", Scope: graph.ScopeIdentity},
		},
		// Always claimed elsewhere: excluded regardless of references
		graph.NodeMetricPoint: {{ID: "mp_1", Scope: graph.ScopeLocal}},
		graph.NodeAuditEntry:  {{ID: "audit_1", Scope: graph.ScopeLocal}},
		graph.NodeConcept:     {{ID: "concept_1", Scope: graph.ScopeLocal}},
		graph.NodeUser:        {{ID: "user_alice", Scope: graph.ScopeLocal}},
		graph.NodeAgent:       {{ID: "agent_bud", Scope: graph.ScopeLocal}},
		// Claimed only when a same-period summary references them
		graph.NodeChannel: {
			{ID: "channel_cli", Scope: graph.ScopeLocal},
			{ID: "channel_idle", Scope: graph.ScopeLocal},
		},
		graph.NodeTask: {{ID: "task_t1", Scope: graph.ScopeLocal}},
	}
	claimed := ClaimedIDs(
		[]convert.ServiceInteraction{{ID: "i1", ChannelID: "cli"}},
		nil,
		[]convert.TaskRecord{{ID: "t1"}},
	)

	eligible := EligibleGeneralNodes(byType, claimed)
	ids := make(map[string]bool, len(eligible))
	for _, n := range eligible {
		ids[n.ID] = true
	}
	if len(ids) != 2 || !ids["obs_local"] || !ids["channel_idle"] {
		t.Errorf("eligible = %v", ids)
	}
}

func TestSummaryNodeShape(t *testing.T) {
	p := testPeriod()
	r := Task{}.Consolidate(p, []convert.TaskRecord{{ID: "t1", Status: "completed"}})
	if r == nil {
		t.Fatal("expected a summary")
	}

	s := r.Summary
	if s.Scope != graph.ScopeLocal || s.UpdatedBy != UpdatedBy || s.Version != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Attributes["period_start"] != "2026-08-30T06:00:00Z" {
		t.Errorf("period_start = %v", s.Attributes["period_start"])
	}
	if s.Attributes["period_end"] != "2026-08-30T12:00:00Z" {
		t.Errorf("period_end = %v", s.Attributes["period_end"])
	}
	if s.Attributes["daypart"] != "2026-08-30 morning" {
		t.Errorf("daypart = %v", s.Attributes["daypart"])
	}
	if s.Attributes["consolidation_level"] != ConsolidationLevel {
		t.Errorf("consolidation_level = %v", s.Attributes["consolidation_level"])
	}
}
