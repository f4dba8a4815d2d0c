package graph

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/rollup/internal/logging"
)

// AddNode inserts a node. Fails if the id already exists.
func (s *Store) AddNode(n *Node) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Scope == "" {
		n.Scope = ScopeLocal
	}
	if n.Version == 0 {
		n.Version = 1
	}
	attrs, err := marshalAttributes(n.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO nodes (id, type, scope, attributes, version, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), string(n.Scope), attrs, n.Version, n.UpdatedBy,
		n.CreatedAt.UTC(), nullableTime(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to add node %s: %w", n.ID, err)
	}
	return nil
}

// AddNodeIfAbsent inserts a node unless the id already exists. Returns true
// if a row was inserted. Used for placeholder auto-creation.
func (s *Store) AddNodeIfAbsent(n *Node) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Scope == "" {
		n.Scope = ScopeLocal
	}
	if n.Version == 0 {
		n.Version = 1
	}
	attrs, err := marshalAttributes(n.Attributes)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO nodes (id, type, scope, attributes, version, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), string(n.Scope), attrs, n.Version, n.UpdatedBy,
		n.CreatedAt.UTC(), nullableTime(n.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to add node %s: %w", n.ID, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetNode fetches a node by id. Returns (nil, nil) if not found.
func (s *Store) GetNode(id string) (*Node, error) {
	row := s.db.QueryRow(`
		SELECT id, type, scope, attributes, version, COALESCE(updated_by, ''), created_at, updated_at
		FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// NodeExists reports whether a node with the given id exists
func (s *Store) NodeExists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MissingNodeIDs returns the subset of ids with no corresponding node.
func (s *Store) MissingNodeIDs(ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		exists, err := s.NodeExists(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// NodesInRange fetches local-scope nodes whose effective timestamp
// (updated_at, falling back to created_at when null) lies in [start, end).
// This fallback rule is the single basis for period membership everywhere
// consolidation reasons about it.
func (s *Store) NodesInRange(start, end time.Time) ([]*Node, error) {
	rows, err := s.db.Query(`
		SELECT id, type, scope, attributes, version, COALESCE(updated_by, ''), created_at, updated_at
		FROM nodes
		WHERE scope = ?
		  AND COALESCE(updated_at, created_at) >= ?
		  AND COALESCE(updated_at, created_at) < ?
		ORDER BY COALESCE(updated_at, created_at)`,
		string(ScopeLocal), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes in range: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			logging.Warn("graph", "skipping unreadable node row: %v", err)
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// NodeIDsByType returns the ids of all nodes of the given type
func (s *Store) NodeIDsByType(t NodeType) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM nodes WHERE type = ?`, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query node ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OldestLocalNodeTimestamp returns the minimum effective timestamp across
// local nodes, excluding the given types. ok is false when no rows match.
// Selects the real columns and coalesces in Go: an aggregate expression
// loses the DATETIME decltype, so the driver would hand back a string the
// sql package cannot scan into time.Time.
func (s *Store) OldestLocalNodeTimestamp(exclude []NodeType) (time.Time, bool, error) {
	placeholders := make([]string, len(exclude))
	args := []any{string(ScopeLocal)}
	for i, t := range exclude {
		placeholders[i] = "?"
		args = append(args, string(t))
	}
	q := `SELECT created_at, updated_at FROM nodes WHERE scope = ?`
	if len(exclude) > 0 {
		q += ` AND type NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	q += ` ORDER BY COALESCE(updated_at, created_at) LIMIT 1`

	var createdAt time.Time
	var updatedAt sql.NullTime
	err := s.db.QueryRow(q, args...).Scan(&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if updatedAt.Valid {
		return updatedAt.Time.UTC(), true, nil
	}
	return createdAt.UTC(), true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (*Node, error) {
	var n Node
	var typ, scope string
	var attrs sql.NullString
	var updatedAt sql.NullTime
	err := r.Scan(&n.ID, &typ, &scope, &attrs, &n.Version, &n.UpdatedBy, &n.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	n.Type = NodeType(typ)
	n.Scope = Scope(scope)
	n.Attributes = unmarshalAttributes(attrs)
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = scanNullTime(updatedAt)
	return &n, nil
}
