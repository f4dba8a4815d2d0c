package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/rollup/internal/logging"
)

// AddInteractionRecord inserts a raw interaction record. Producers call
// this; the engine uses it only in tests.
func (s *Store) AddInteractionRecord(rec *RawRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalAttributes(rec.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO interaction_records (id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Kind, payload, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add interaction record %s: %w", rec.ID, err)
	}
	return nil
}

// InteractionRecordsInRange fetches raw records with created_at in
// [start, end), optionally filtered to the given kinds.
func (s *Store) InteractionRecordsInRange(start, end time.Time, kinds ...string) ([]*RawRecord, error) {
	q := `SELECT id, kind, payload, created_at FROM interaction_records
	      WHERE created_at >= ? AND created_at < ?`
	args := []any{start.UTC(), end.UTC()}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, k)
		}
		q += ` AND kind IN (` + strings.Join(placeholders, ",") + `)`
	}
	q += ` ORDER BY created_at`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction records: %w", err)
	}
	defer rows.Close()

	var recs []*RawRecord
	for rows.Next() {
		var rec RawRecord
		var payload sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &rec.CreatedAt); err != nil {
			logging.Warn("graph", "skipping unreadable interaction record: %v", err)
			continue
		}
		rec.Payload = unmarshalAttributes(payload)
		rec.CreatedAt = rec.CreatedAt.UTC()
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// OldestInteractionTimestamp returns the minimum created_at across all
// interaction records. ok is false when the table is empty. Selects the
// column rather than MIN() so the driver keeps the DATETIME decltype.
func (s *Store) OldestInteractionTimestamp() (time.Time, bool, error) {
	var min time.Time
	err := s.db.QueryRow(`SELECT created_at FROM interaction_records ORDER BY created_at LIMIT 1`).Scan(&min)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return min.UTC(), true, nil
}

// AddTask inserts a task row (producer/test helper)
func (s *Store) AddTask(t *TaskRow) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalAttributes(t.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (id, name, status, channel_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Status, t.ChannelID, payload, t.CreatedAt.UTC(), nullableTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to add task %s: %w", t.ID, err)
	}
	return nil
}

// AddThought inserts a thought row under a task (producer/test helper)
func (s *Store) AddThought(th *ThoughtRow) error {
	if th.CreatedAt.IsZero() {
		th.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO thoughts (id, task_id, thought_type, status, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		th.ID, th.TaskID, th.ThoughtType, th.Status, th.Content, th.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add thought %s: %w", th.ID, err)
	}
	return nil
}

// TasksInRange fetches tasks created or updated in [start, end), each with
// its child thoughts attached.
func (s *Store) TasksInRange(start, end time.Time) ([]*TaskRow, error) {
	rows, err := s.db.Query(`
		SELECT id, COALESCE(name, ''), COALESCE(status, ''), COALESCE(channel_id, ''), payload, created_at, updated_at
		FROM tasks
		WHERE COALESCE(updated_at, created_at) >= ? AND COALESCE(updated_at, created_at) < ?
		ORDER BY created_at`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskRow
	for rows.Next() {
		var t TaskRow
		var payload sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.ChannelID, &payload, &t.CreatedAt, &updatedAt); err != nil {
			logging.Warn("graph", "skipping unreadable task row: %v", err)
			continue
		}
		t.Payload = unmarshalAttributes(payload)
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = scanNullTime(updatedAt)
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		thoughts, err := s.thoughtsForTask(t.ID)
		if err != nil {
			logging.Warn("graph", "failed to load thoughts for task %s: %v", t.ID, err)
			continue
		}
		t.Thoughts = thoughts
	}
	return tasks, nil
}

func (s *Store) thoughtsForTask(taskID string) ([]ThoughtRow, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, COALESCE(thought_type, ''), COALESCE(status, ''), COALESCE(content, ''), created_at
		FROM thoughts WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thoughts []ThoughtRow
	for rows.Next() {
		var th ThoughtRow
		if err := rows.Scan(&th.ID, &th.TaskID, &th.ThoughtType, &th.Status, &th.Content, &th.CreatedAt); err != nil {
			continue
		}
		th.CreatedAt = th.CreatedAt.UTC()
		thoughts = append(thoughts, th)
	}
	return thoughts, rows.Err()
}

// PayloadJSON re-serializes a record payload, for debugging output
func (r *RawRecord) PayloadJSON() string {
	if r.Payload == nil {
		return "{}"
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
