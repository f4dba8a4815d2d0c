package graph

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vthunder/rollup/internal/logging"
)

// AddEdge inserts an edge. Fails if the edge id already exists.
func (s *Store) AddEdge(e *Edge) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Scope == "" {
		e.Scope = ScopeLocal
	}
	attrs, err := marshalAttributes(e.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO edges (edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.TargetID, string(e.Scope), string(e.Relationship),
		e.Weight, attrs, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add edge %s: %w", e.ID, err)
	}
	return nil
}

// AddEdgeIfAbsent inserts an edge unless the edge id already exists.
// Returns true if a row was inserted. With deterministic edge ids this makes
// repeated calls naturally idempotent.
func (s *Store) AddEdgeIfAbsent(e *Edge) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Scope == "" {
		e.Scope = ScopeLocal
	}
	attrs, err := marshalAttributes(e.Attributes)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO edges (edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.TargetID, string(e.Scope), string(e.Relationship),
		e.Weight, attrs, e.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add edge %s: %w", e.ID, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// EdgesFrom returns all edges with the given source and relationship
func (s *Store) EdgesFrom(sourceID string, rel Relationship) ([]*Edge, error) {
	rows, err := s.db.Query(`
		SELECT edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes, created_at
		FROM edges WHERE source_node_id = ? AND relationship = ?`,
		sourceID, string(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesTo returns all edges with the given target and relationship
func (s *Store) EdgesTo(targetID string, rel Relationship) ([]*Edge, error) {
	rows, err := s.db.Query(`
		SELECT edge_id, source_node_id, target_node_id, scope, relationship, weight, attributes, created_at
		FROM edges WHERE target_node_id = ? AND relationship = ?`,
		targetID, string(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgeExists reports whether any edge with the given endpoints and
// relationship exists, regardless of edge id.
func (s *Store) EdgeExists(sourceID, targetID string, rel Relationship) (bool, error) {
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM edges WHERE source_node_id = ? AND target_node_id = ? AND relationship = ? LIMIT 1`,
		sourceID, targetID, string(rel)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteEdge removes an edge by id. Returns true if a row was deleted.
func (s *Store) DeleteEdge(edgeID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM edges WHERE edge_id = ?`, edgeID)
	if err != nil {
		return false, fmt.Errorf("failed to delete edge %s: %w", edgeID, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// RelocateTemporalHead moves the chain-head marker forward one step in a
// single transaction: deletes the previous summary's TEMPORAL_NEXT
// self-loop, then wires previous -> current TEMPORAL_NEXT and
// current -> previous TEMPORAL_PREV. The inserted edges use deterministic
// ids so a retried relocation cannot duplicate them.
func (s *Store) RelocateTemporalHead(previousID, currentID string, scope Scope) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin temporal relink: %w", err)
	}
	defer tx.Rollback()

	selfLoop := DeterministicEdgeID(previousID, previousID, RelTemporalNext)
	if _, err := tx.Exec(`DELETE FROM edges WHERE edge_id = ?`, selfLoop); err != nil {
		return fmt.Errorf("failed to delete self-loop %s: %w", selfLoop, err)
	}

	now := time.Now().UTC()
	pairs := []struct {
		source, target string
		rel            Relationship
	}{
		{previousID, currentID, RelTemporalNext},
		{currentID, previousID, RelTemporalPrev},
	}
	for _, p := range pairs {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO edges (edge_id, source_node_id, target_node_id, scope, relationship, weight, created_at)
			VALUES (?, ?, ?, ?, ?, 1.0, ?)`,
			DeterministicEdgeID(p.source, p.target, p.rel), p.source, p.target,
			string(scope), string(p.rel), now)
		if err != nil {
			return fmt.Errorf("failed to insert %s edge: %w", p.rel, err)
		}
	}

	return tx.Commit()
}

// DeleteOrphanedEdges removes every edge whose source or target node no
// longer exists. Returns the number of edges deleted.
func (s *Store) DeleteOrphanedEdges() (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM edges
		WHERE source_node_id NOT IN (SELECT id FROM nodes)
		   OR target_node_id NOT IN (SELECT id FROM nodes)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned edges: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var edges []*Edge
	for rows.Next() {
		var e Edge
		var scope, rel string
		var attrs sql.NullString
		err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &scope, &rel, &e.Weight, &attrs, &e.CreatedAt)
		if err != nil {
			logging.Warn("graph", "skipping unreadable edge row: %v", err)
			continue
		}
		e.Scope = Scope(scope)
		e.Relationship = Relationship(rel)
		e.Attributes = unmarshalAttributes(attrs)
		e.CreatedAt = e.CreatedAt.UTC()
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
