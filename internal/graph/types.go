package graph

import (
	"strings"
	"time"
)

// Scope partitions nodes by visibility/ownership
type Scope string

const (
	ScopeLocal       Scope = "local"
	ScopeIdentity    Scope = "identity"
	ScopeEnvironment Scope = "environment"
)

// NodeType defines the category of a graph node
type NodeType string

const (
	// Raw categories written by producers (observers, evaluators, audit pipeline)
	NodeMetricPoint NodeType = "metric_point" // raw timeseries datapoint, never a SUMMARIZES target
	NodeAuditEntry  NodeType = "audit_entry"
	NodeObservation NodeType = "observation"
	NodeConcept     NodeType = "concept"
	NodeConfig      NodeType = "config"

	// Placeholder / reference categories (auto-created on demand)
	NodeChannel NodeType = "channel"
	NodeUser    NodeType = "user"
	NodeAgent   NodeType = "agent"
	NodeTask    NodeType = "task"
	NodeThought NodeType = "thought"

	// Summary categories written by the consolidation engine
	NodeTSDBSummary         NodeType = "tsdb_summary"
	NodeConversationSummary NodeType = "conversation_summary"
	NodeTraceSummary        NodeType = "trace_summary"
	NodeAuditSummary        NodeType = "audit_summary"
	NodeTaskSummary         NodeType = "task_summary"
)

// SummaryTypes lists every summary node category, in consolidation order.
var SummaryTypes = []NodeType{
	NodeTSDBSummary,
	NodeConversationSummary,
	NodeTraceSummary,
	NodeAuditSummary,
	NodeTaskSummary,
}

// IsSummary reports whether the type is one of the summary categories.
func (t NodeType) IsSummary() bool {
	for _, s := range SummaryTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Relationship is the closed edge vocabulary. Edge writers must not invent
// values outside this set.
type Relationship string

const (
	RelSummarizes   Relationship = "SUMMARIZES"
	RelTemporalNext Relationship = "TEMPORAL_NEXT"
	RelTemporalPrev Relationship = "TEMPORAL_PREV"

	// Cross-summary correlation kinds
	RelDrivesProcessing    Relationship = "DRIVES_PROCESSING"
	RelGeneratesMetrics    Relationship = "GENERATES_METRICS"
	RelImpactsQuality      Relationship = "IMPACTS_QUALITY"
	RelSecuresExecution    Relationship = "SECURES_EXECUTION"
	RelCreatesTrail        Relationship = "CREATES_TRAIL"
	RelInitiatesTasks      Relationship = "INITIATES_TASKS"
	RelConsumesResources   Relationship = "CONSUMES_RESOURCES"
	RelTemporalCorrelation Relationship = "TEMPORAL_CORRELATION"

	RelInvolvedUser  Relationship = "INVOLVED_USER"
	RelPeriodConcept Relationship = "PERIOD_CONCEPT"
)

// Node is a graph node. Producers own the nodes they create; the
// consolidation engine only mutates nodes it created itself (summaries and
// placeholders).
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Scope      Scope          `json:"scope"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Version    int            `json:"version"`
	UpdatedBy  string         `json:"updated_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a relationship between two nodes. Append-only except the temporal
// self-loop, which is relocated when a newer period is linked in.
type Edge struct {
	ID           string         `json:"edge_id"`
	SourceID     string         `json:"source_node_id"`
	TargetID     string         `json:"target_node_id"`
	Scope        Scope          `json:"scope"`
	Relationship Relationship   `json:"relationship"`
	Weight       float64        `json:"weight"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RawRecord is an interaction record row as written by producers, before
// conversion to a typed record.
type RawRecord struct {
	ID        string
	Kind      string
	Payload   map[string]any
	CreatedAt time.Time
}

// Interaction record kinds
const (
	KindServiceInteraction = "service_interaction"
	KindMetricDatapoint    = "metric_datapoint"
	KindTraceSpan          = "trace_span"
)

// TaskRow is a raw task row; ThoughtRow a child thought row.
type TaskRow struct {
	ID        string
	Name      string
	Status    string
	ChannelID string
	Payload   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	Thoughts  []ThoughtRow
}

type ThoughtRow struct {
	ID          string
	TaskID      string
	ThoughtType string
	Status      string
	Content     string
	CreatedAt   time.Time
}

// summaryIDLayout is the period-start suffix of a summary node id.
const summaryIDLayout = "20060102_15"

// SummaryNodeID builds the wire-contract id for a summary node:
// {summary_type}_{YYYYMMDD}_{HH} from the period start, in UTC.
func SummaryNodeID(summaryType NodeType, periodStart time.Time) string {
	return string(summaryType) + "_" + periodStart.UTC().Format(summaryIDLayout)
}

// ParseSummaryPeriodStart extracts the period start embedded in a summary
// node id. Returns false if the id does not carry a parseable suffix.
func ParseSummaryPeriodStart(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	suffix := parts[len(parts)-2] + "_" + parts[len(parts)-1]
	t, err := time.ParseInLocation(summaryIDLayout, suffix, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DeterministicEdgeID builds a stable edge id from the endpoints and the
// relationship, making insert-if-absent naturally idempotent for edge kinds
// that must not duplicate on retry.
func DeterministicEdgeID(sourceID, targetID string, rel Relationship) string {
	return sourceID + "--" + strings.ToLower(string(rel)) + "--" + targetID
}
