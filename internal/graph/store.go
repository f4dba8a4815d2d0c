// Package graph provides the shared node/edge/record store backing the
// consolidation engine. Producers (observers, evaluators, the audit
// pipeline) write raw nodes and interaction records into the same database;
// the engine reads them and writes summary nodes and edges.
package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vthunder/rollup/internal/logging"
)

// Store wraps the SQLite database connection for the graph
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the graph database at the given file path
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema. Producers and the engine share this layout,
// so changes here are coordinated with the rest of the runtime.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Graph nodes (raw categories, placeholders, summaries)
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'local',
		attributes TEXT,
		version INTEGER DEFAULT 1,
		updated_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
	CREATE INDEX IF NOT EXISTS idx_nodes_scope ON nodes(scope);
	CREATE INDEX IF NOT EXISTS idx_nodes_created ON nodes(created_at);
	CREATE INDEX IF NOT EXISTS idx_nodes_updated ON nodes(updated_at);

	-- Graph edges. Append-only except the temporal self-loop relocation.
	CREATE TABLE IF NOT EXISTS edges (
		edge_id TEXT PRIMARY KEY,
		source_node_id TEXT NOT NULL,
		target_node_id TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'local',
		relationship TEXT NOT NULL,
		weight REAL DEFAULT 1.0,
		attributes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_relationship ON edges(relationship);

	-- Raw interaction records (service interactions, metric datapoints,
	-- trace spans) written by producers
	CREATE TABLE IF NOT EXISTS interaction_records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interaction_kind ON interaction_records(kind);
	CREATE INDEX IF NOT EXISTS idx_interaction_created ON interaction_records(created_at);

	-- Task + thought records written by the task pipeline
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT,
		status TEXT,
		channel_id TEXT,
		payload TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);

	CREATE TABLE IF NOT EXISTS thoughts (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		thought_type TEXT,
		status TEXT,
		content TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_thoughts_task ON thoughts(task_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Stats returns row counts per table
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	tables := []string{"nodes", "edges", "interaction_records", "tasks", "thoughts"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}
	return stats, nil
}

// Clear removes all data (for testing/reset)
func (s *Store) Clear() error {
	tables := []string{"edges", "thoughts", "tasks", "interaction_records", "nodes"}
	for _, table := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// marshalAttributes serializes an attribute map to its JSON blob column
// form. nil maps serialize to NULL.
func marshalAttributes(attrs map[string]any) (any, error) {
	if attrs == nil {
		return nil, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return string(b), nil
}

// unmarshalAttributes deserializes a JSON blob column. Malformed blobs are
// tolerated (returns nil map) so one bad row can't poison a whole scan.
func unmarshalAttributes(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw.String), &attrs); err != nil {
		logging.Warn("graph", "dropping malformed attribute blob: %v", err)
		return nil
	}
	return attrs
}

// nullableTime converts a zero time to NULL for storage
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// scanNullTime converts a nullable DATETIME column back to a time.Time
func scanNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
