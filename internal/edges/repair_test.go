package edges

import (
	"testing"
	"time"

	"github.com/vthunder/rollup/internal/graph"
)

func TestEnsureSummaryEdgesRestoresMissingEdges(t *testing.T) {
	store, m, cleanup := setupTest(t)
	defer cleanup()

	end := testStart.Add(6 * time.Hour)

	// Seven eligible nodes in the period
	ids := []string{"obs_1", "obs_2", "obs_3", "obs_4", "obs_5", "obs_6", "obs_7"}
	for _, id := range ids {
		err := store.AddNode(&graph.Node{ID: id, Type: graph.NodeObservation, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)})
		if err != nil {
			t.Fatalf("AddNode %s failed: %v", id, err)
		}
	}

	// A tsdb summary exists but lost all of its SUMMARIZES edges
	summary := addSummary(t, store, graph.NodeTSDBSummary, testStart)
	edges, err := store.EdgesFrom(summary.ID, graph.RelSummarizes)
	if err != nil || len(edges) != 0 {
		t.Fatalf("precondition failed: edges = %d, %v", len(edges), err)
	}

	created, err := m.EnsureSummaryEdges(testStart, end)
	if err != nil {
		t.Fatalf("EnsureSummaryEdges failed: %v", err)
	}
	if created != 7 {
		t.Errorf("created = %d, want 7", created)
	}

	edges, err = store.EdgesFrom(summary.ID, graph.RelSummarizes)
	if err != nil {
		t.Fatalf("EdgesFrom failed: %v", err)
	}
	if len(edges) != 7 {
		t.Errorf("SUMMARIZES edges = %d, want 7", len(edges))
	}

	// Repair never creates summaries
	tsdbIDs, err := store.NodeIDsByType(graph.NodeTSDBSummary)
	if err != nil {
		t.Fatalf("NodeIDsByType failed: %v", err)
	}
	if len(tsdbIDs) != 1 {
		t.Errorf("tsdb summaries = %d, want 1", len(tsdbIDs))
	}
}

func TestEnsureSummaryEdgesIdempotent(t *testing.T) {
	store, m, cleanup := setupTest(t)
	defer cleanup()

	end := testStart.Add(6 * time.Hour)
	err := store.AddNode(&graph.Node{ID: "obs_1", Type: graph.NodeObservation, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)})
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	addSummary(t, store, graph.NodeTSDBSummary, testStart)

	first, err := m.EnsureSummaryEdges(testStart, end)
	if err != nil {
		t.Fatalf("first repair failed: %v", err)
	}
	if first == 0 {
		t.Fatal("first repair should create edges")
	}

	second, err := m.EnsureSummaryEdges(testStart, end)
	if err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if second != 0 {
		t.Errorf("second repair created %d edges, want 0", second)
	}
}

func TestEnsureSummaryEdgesNoSummaries(t *testing.T) {
	store, m, cleanup := setupTest(t)
	defer cleanup()

	// Raw data but no summary: repair does nothing, creates nothing
	err := store.AddNode(&graph.Node{ID: "obs_1", Type: graph.NodeObservation, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)})
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	created, err := m.EnsureSummaryEdges(testStart, testStart.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("EnsureSummaryEdges failed: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if ids, _ := store.NodeIDsByType(graph.NodeTSDBSummary); len(ids) != 0 {
		t.Error("repair must never create summaries")
	}
}

func TestEnsureSummaryEdgesRestoresParticipation(t *testing.T) {
	store, m, cleanup := setupTest(t)
	defer cleanup()

	end := testStart.Add(6 * time.Hour)
	records := []*graph.RawRecord{
		{ID: "r1", Kind: graph.KindServiceInteraction, Payload: map[string]any{"channel_id": "cli", "author_id": "alice"}, CreatedAt: testStart.Add(time.Hour)},
		{ID: "r2", Kind: graph.KindServiceInteraction, Payload: map[string]any{"channel_id": "cli", "author_id": "bob"}, CreatedAt: testStart.Add(2 * time.Hour)},
	}
	for _, r := range records {
		if err := store.AddInteractionRecord(r); err != nil {
			t.Fatalf("AddInteractionRecord failed: %v", err)
		}
	}
	conv := addSummary(t, store, graph.NodeConversationSummary, testStart)

	created, err := m.EnsureSummaryEdges(testStart, end)
	if err != nil {
		t.Fatalf("EnsureSummaryEdges failed: %v", err)
	}
	// 1 SUMMARIZES edge to channel_cli + 2 INVOLVED_USER edges
	if created != 3 {
		t.Errorf("created = %d, want 3", created)
	}
	if exists, _ := store.EdgeExists(conv.ID, "channel_cli", graph.RelSummarizes); !exists {
		t.Error("expected SUMMARIZES edge to channel")
	}
	if exists, _ := store.EdgeExists(conv.ID, "user_alice", graph.RelInvolvedUser); !exists {
		t.Error("expected INVOLVED_USER edge to alice")
	}
	if exists, _ := store.EdgeExists(conv.ID, "user_bob", graph.RelInvolvedUser); !exists {
		t.Error("expected INVOLVED_USER edge to bob")
	}
}

func TestEnsureSummaryEdgesCrossAndConceptWiring(t *testing.T) {
	store, m, cleanup := setupTest(t)
	defer cleanup()

	end := testStart.Add(6 * time.Hour)
	special := []*graph.Node{
		{ID: "concept_go", Type: graph.NodeConcept, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)},
		{ID: "agent_bud", Type: graph.NodeAgent, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)},
		{ID: "user_alice", Type: graph.NodeUser, Scope: graph.ScopeLocal, CreatedAt: testStart.Add(time.Hour)},
	}
	for _, n := range special {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("AddNode %s failed: %v", n.ID, err)
		}
	}
	tsdb := addSummary(t, store, graph.NodeTSDBSummary, testStart)
	task := addSummary(t, store, graph.NodeTaskSummary, testStart)

	if _, err := m.EnsureSummaryEdges(testStart, end); err != nil {
		t.Fatalf("EnsureSummaryEdges failed: %v", err)
	}

	if exists, _ := store.EdgeExists(task.ID, tsdb.ID, graph.RelConsumesResources); !exists {
		t.Error("expected cross-summary edge task -> tsdb")
	}
	if exists, _ := store.EdgeExists(tsdb.ID, "concept_go", graph.RelPeriodConcept); !exists {
		t.Error("expected PERIOD_CONCEPT edge from tsdb summary")
	}
	if exists, _ := store.EdgeExists(task.ID, "concept_go", graph.RelPeriodConcept); !exists {
		t.Error("expected PERIOD_CONCEPT edge from task summary")
	}
	// Agent and user nodes belong to the special set, never to the
	// tsdb summary's general set
	if exists, _ := store.EdgeExists(tsdb.ID, "agent_bud", graph.RelPeriodConcept); !exists {
		t.Error("expected PERIOD_CONCEPT edge to the agent node")
	}
	if exists, _ := store.EdgeExists(tsdb.ID, "user_alice", graph.RelPeriodConcept); !exists {
		t.Error("expected PERIOD_CONCEPT edge to the user node")
	}
	if exists, _ := store.EdgeExists(tsdb.ID, "agent_bud", graph.RelSummarizes); exists {
		t.Error("agent node must not be in the general SUMMARIZES set")
	}
}
