// Package convert maps raw, loosely-typed producer rows into typed records.
// Conversion is total: malformed input yields a nil record, never an error.
// Dispatch is keyed on the record's kind discriminator, not on field probing.
package convert

import (
	"time"

	"github.com/vthunder/rollup/internal/graph"
)

// ServiceInteraction is one converted service interaction (message in/out,
// tool call) from the interaction records table.
type ServiceInteraction struct {
	ID         string
	ChannelID  string
	AuthorID   string
	Content    string
	ActionType string
	Timestamp  time.Time
}

// MetricPoint is one converted raw timeseries datapoint
type MetricPoint struct {
	Name      string
	Value     float64
	Tags      map[string]string
	Timestamp time.Time
}

// TraceSpan is one converted processing span
type TraceSpan struct {
	TraceID    string
	SpanID     string
	TaskID     string
	ThoughtID  string
	Component  string
	DurationMS float64
	Success    bool
	Timestamp  time.Time
}

// ThoughtSummary is the converted form of a child thought row
type ThoughtSummary struct {
	ID        string
	Type      string
	Status    string
	CreatedAt time.Time
}

// TaskRecord is a converted task with its child thoughts
type TaskRecord struct {
	ID        string
	Name      string
	Status    string
	ChannelID string
	CreatedAt time.Time
	UpdatedAt time.Time
	Thoughts  []ThoughtSummary
}

// FromRecord converts a raw interaction record according to its kind
// discriminator. Returns (nil-valued, false) for unknown kinds or
// unrecoverably malformed rows; callers log a warning and skip the row.
func FromRecord(rec *graph.RawRecord) (any, bool) {
	if rec == nil {
		return nil, false
	}
	switch rec.Kind {
	case graph.KindServiceInteraction:
		if si := ServiceInteractionFromPayload(rec.ID, rec.Payload, rec.CreatedAt); si != nil {
			return *si, true
		}
	case graph.KindMetricDatapoint:
		if mp := MetricPointFromPayload(rec.Payload, rec.CreatedAt); mp != nil {
			return *mp, true
		}
	case graph.KindTraceSpan:
		if ts := TraceSpanFromPayload(rec.Payload, rec.CreatedAt); ts != nil {
			return *ts, true
		}
	}
	return nil, false
}

// ServiceInteractionFromPayload converts a service interaction payload.
// Missing fields get zero values; a row with no usable id or timestamp is
// unrecoverable and returns nil.
func ServiceInteractionFromPayload(id string, payload map[string]any, createdAt time.Time) *ServiceInteraction {
	if id == "" {
		id = strField(payload, "id", "correlation_id")
	}
	ts := timeField(payload, createdAt, "timestamp", "created_at")
	if id == "" || ts.IsZero() {
		return nil
	}
	return &ServiceInteraction{
		ID:         id,
		ChannelID:  strField(payload, "channel_id", "channel"),
		AuthorID:   strField(payload, "author_id", "user_id"),
		Content:    strField(payload, "content"),
		ActionType: strField(payload, "action_type", "action"),
		Timestamp:  ts,
	}
}

// MetricPointFromPayload converts a metric datapoint payload. A point with
// no metric name is unrecoverable and returns nil.
func MetricPointFromPayload(payload map[string]any, createdAt time.Time) *MetricPoint {
	name := strField(payload, "metric_name", "name")
	ts := timeField(payload, createdAt, "timestamp", "created_at")
	if name == "" || ts.IsZero() {
		return nil
	}
	return &MetricPoint{
		Name:      name,
		Value:     floatField(payload, "value"),
		Tags:      tagsField(payload, "tags"),
		Timestamp: ts,
	}
}

// MetricPointFromNode converts a raw metric_point graph node, using the
// node's effective timestamp when the attributes carry none.
func MetricPointFromNode(n *graph.Node) *MetricPoint {
	if n == nil {
		return nil
	}
	at := n.UpdatedAt
	if at.IsZero() {
		at = n.CreatedAt
	}
	return MetricPointFromPayload(n.Attributes, at)
}

// TraceSpanFromPayload converts a trace span payload. A span with no trace
// id is unrecoverable and returns nil.
func TraceSpanFromPayload(payload map[string]any, createdAt time.Time) *TraceSpan {
	traceID := strField(payload, "trace_id")
	ts := timeField(payload, createdAt, "timestamp", "start_time", "created_at")
	if traceID == "" || ts.IsZero() {
		return nil
	}
	return &TraceSpan{
		TraceID:    traceID,
		SpanID:     strField(payload, "span_id"),
		TaskID:     strField(payload, "task_id"),
		ThoughtID:  strField(payload, "thought_id"),
		Component:  strField(payload, "component", "service"),
		DurationMS: floatField(payload, "duration_ms"),
		Success:    boolField(payload, true, "success"),
		Timestamp:  ts,
	}
}

// TaskRecordFromRow converts a task row with its thoughts. A row with no id
// returns nil.
func TaskRecordFromRow(row *graph.TaskRow) *TaskRecord {
	if row == nil || row.ID == "" {
		return nil
	}
	rec := &TaskRecord{
		ID:        row.ID,
		Name:      row.Name,
		Status:    row.Status,
		ChannelID: row.ChannelID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if rec.ChannelID == "" {
		rec.ChannelID = strField(row.Payload, "channel_id")
	}
	for _, th := range row.Thoughts {
		if th.ID == "" {
			continue
		}
		rec.Thoughts = append(rec.Thoughts, ThoughtSummary{
			ID:        th.ID,
			Type:      th.ThoughtType,
			Status:    th.Status,
			CreatedAt: th.CreatedAt,
		})
	}
	return rec
}

// strField returns the first present, non-empty string value among keys
func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// floatField returns the first present numeric value among keys, as float64
func floatField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0
}

// boolField returns the boolean at the first present key, or def
func boolField(m map[string]any, def bool, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k].(bool); ok {
			return v
		}
	}
	return def
}

// timeField parses the first present timestamp among keys, accepting
// time.Time, RFC3339 strings, and unix-seconds numbers. Falls back to the
// row's created_at when the payload carries no timestamp.
func timeField(m map[string]any, fallback time.Time, keys ...string) time.Time {
	for _, k := range keys {
		switch v := m[k].(type) {
		case time.Time:
			return v.UTC()
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		case float64:
			if v > 0 {
				return time.Unix(int64(v), 0).UTC()
			}
		}
	}
	return fallback.UTC()
}

// tagsField converts a nested map of tags to map[string]string, dropping
// non-string values.
func tagsField(m map[string]any, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	tags := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
