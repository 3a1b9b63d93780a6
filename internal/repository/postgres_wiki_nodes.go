package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"lumir-wiki/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresWikiNodesRepo implements WikiNodesRepository over the
// wiki_nodes table. Depth is materialized and maintained transactionally
// on every structural mutation; no unbounded recursion at read time.
type PostgresWikiNodesRepo struct {
	db *sql.DB
}

func NewPostgresWikiNodesRepo(db *sql.DB) *PostgresWikiNodesRepo {
	return &PostgresWikiNodesRepo{db: db}
}

var _ WikiNodesRepository = (*PostgresWikiNodesRepo)(nil)

// maxTreeDepth bounds ancestor walks and subtree recursion. The wiki UI
// never nests anywhere near this deep; hitting the bound means a broken
// parent chain.
const maxTreeDepth = 64

const nodeColumns = `
	node_id::text,
	node_type,
	parent_id::text,
	depth,
	sort_order,
	name,
	title,
	content,
	attachments,
	is_public,
	permission_rank_ids,
	permission_position_ids,
	permission_department_ids,
	created_by,
	updated_by,
	created_at,
	updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWikiNode(row rowScanner) (*domain.WikiNode, error) {
	var n domain.WikiNode
	var attachments []byte
	err := row.Scan(
		&n.NodeID,
		&n.NodeType,
		&n.ParentID,
		&n.Depth,
		&n.SortOrder,
		&n.Name,
		&n.Title,
		&n.Content,
		&attachments,
		&n.IsPublic,
		pq.Array(&n.PermissionRankIDs),
		pq.Array(&n.PermissionPositionIDs),
		pq.Array(&n.PermissionDepartmentIDs),
		&n.CreatedBy,
		&n.UpdatedBy,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &n.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}
	return &n, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getWikiNode(ctx context.Context, q rowQuerier, nodeID string, forUpdate bool) (*domain.WikiNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM wiki_nodes WHERE node_id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	node, err := scanWikiNode(q.QueryRowContext(ctx, query, nodeID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("wiki node %s: %w", nodeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query wiki node: %w", err)
	}
	return node, nil
}

func (r *PostgresWikiNodesRepo) GetNode(ctx context.Context, nodeID string) (*domain.WikiNode, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node_id is required: %w", domain.ErrValidation)
	}
	return getWikiNode(ctx, r.db, nodeID, false)
}

func (r *PostgresWikiNodesRepo) queryNodes(ctx context.Context, query string, args ...any) ([]*domain.WikiNode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wiki nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*domain.WikiNode
	for rows.Next() {
		n, err := scanWikiNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wiki node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wiki nodes: %w", err)
	}
	return nodes, nil
}

func (r *PostgresWikiNodesRepo) ListChildren(ctx context.Context, parentID *string) ([]*domain.WikiNode, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE parent_id IS NOT DISTINCT FROM $1 AND deleted_at IS NULL
		ORDER BY sort_order, name
	`
	return r.queryNodes(ctx, query, parentID)
}

func (r *PostgresWikiNodesRepo) ListSubtree(ctx context.Context, rootID string) ([]*domain.WikiNode, error) {
	// Recursion bounded by level; depth stays usable as a guard even if
	// a parent chain is corrupted.
	query := `
		WITH RECURSIVE subtree AS (
			SELECT node_id, 0 AS level FROM wiki_nodes
			WHERE node_id = $1 AND deleted_at IS NULL
			UNION ALL
			SELECT c.node_id, s.level + 1 FROM wiki_nodes c
			JOIN subtree s ON c.parent_id = s.node_id
			WHERE c.deleted_at IS NULL AND s.level < $2
		)
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE node_id IN (SELECT node_id FROM subtree)
		ORDER BY depth, sort_order, name
	`
	nodes, err := r.queryNodes(ctx, query, rootID, maxTreeDepth)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("wiki node %s: %w", rootID, domain.ErrNotFound)
	}
	return nodes, nil
}

func (r *PostgresWikiNodesRepo) ListAll(ctx context.Context) ([]*domain.WikiNode, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE deleted_at IS NULL
		ORDER BY depth, sort_order, name
	`
	return r.queryNodes(ctx, query)
}

func (r *PostgresWikiNodesRepo) ListRestricted(ctx context.Context) ([]*domain.WikiNode, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE deleted_at IS NULL AND node_type = 'folder' AND is_public = FALSE
		ORDER BY depth, sort_order
	`
	return r.queryNodes(ctx, query)
}

func (r *PostgresWikiNodesRepo) FindChildFolderByName(ctx context.Context, parentID *string, name string) (*domain.WikiNode, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE parent_id IS NOT DISTINCT FROM $1
		  AND name = $2
		  AND node_type = 'folder'
		  AND deleted_at IS NULL
	`
	node, err := scanWikiNode(r.db.QueryRowContext(ctx, query, parentID, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query folder by name: %w", err)
	}
	return node, nil
}

func (r *PostgresWikiNodesRepo) SearchFiles(ctx context.Context, query string) ([]*domain.WikiNode, error) {
	sqlQuery := `
		SELECT ` + nodeColumns + `
		FROM wiki_nodes
		WHERE deleted_at IS NULL
		  AND node_type = 'file'
		  AND (name ILIKE '%' || $1 || '%'
		       OR COALESCE(title, '') ILIKE '%' || $1 || '%'
		       OR COALESCE(content, '') ILIKE '%' || $1 || '%')
		ORDER BY depth, sort_order, name
	`
	return r.queryNodes(ctx, sqlQuery, query)
}

// nextSortOrder computes the next sibling sort key under parentID,
// excluding excludeID (the node being moved).
func nextSortOrder(ctx context.Context, tx *sql.Tx, parentID *string, excludeID string) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sort_order), 0) + 1
		FROM wiki_nodes
		WHERE parent_id IS NOT DISTINCT FROM $1
		  AND deleted_at IS NULL
		  AND node_id::text <> $2
	`, parentID, excludeID).Scan(&order)
	if err != nil {
		return 0, fmt.Errorf("failed to compute sort order: %w", err)
	}
	return order, nil
}

// validateParentTx checks that parentID references a live folder and
// returns it locked.
func validateParentTx(ctx context.Context, tx *sql.Tx, parentID string) (*domain.WikiNode, error) {
	parent, err := getWikiNode(ctx, tx, parentID, true)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("parent %s is not a folder: %w", parentID, domain.ErrValidation)
	}
	return parent, nil
}

func (r *PostgresWikiNodesRepo) CreateNode(ctx context.Context, node *domain.WikiNode) (string, error) {
	if node.Name == "" {
		return "", fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if node.NodeType != domain.NodeTypeFolder && node.NodeType != domain.NodeTypeFile {
		return "", fmt.Errorf("invalid node type %q: %w", node.NodeType, domain.ErrValidation)
	}
	if node.ParentID == nil && node.IsFile() {
		return "", fmt.Errorf("files must be created under a folder: %w", domain.ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	depth := 0
	if node.ParentID != nil {
		parent, err := validateParentTx(ctx, tx, *node.ParentID)
		if err != nil {
			return "", err
		}
		depth = parent.Depth + 1
	}
	if depth >= maxTreeDepth {
		return "", fmt.Errorf("tree depth limit exceeded: %w", domain.ErrValidation)
	}

	nodeID := node.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	sortOrder, err := nextSortOrder(ctx, tx, node.ParentID, nodeID)
	if err != nil {
		return "", err
	}

	attachments, err := attachmentsValue(node.Attachments)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wiki_nodes (
			node_id, node_type, parent_id, depth, sort_order,
			name, title, content, attachments,
			is_public, permission_rank_ids, permission_position_ids, permission_department_ids,
			created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`,
		nodeID,
		node.NodeType,
		node.ParentID,
		depth,
		sortOrder,
		node.Name,
		node.Title,
		node.Content,
		attachments,
		node.IsPublic,
		nullableTextArray(node.PermissionRankIDs),
		nullableTextArray(node.PermissionPositionIDs),
		nullableTextArray(node.PermissionDepartmentIDs),
		node.CreatedBy,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert wiki node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit wiki node insert: %w", err)
	}
	return nodeID, nil
}

func (r *PostgresWikiNodesRepo) execOnLiveNode(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update wiki node: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("wiki node: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresWikiNodesRepo) RenameNode(ctx context.Context, nodeID, name, updatedBy string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	return r.execOnLiveNode(ctx, `
		UPDATE wiki_nodes
		SET name = $2, updated_by = $3, updated_at = NOW()
		WHERE node_id = $1 AND deleted_at IS NULL
	`, nodeID, name, updatedBy)
}

func (r *PostgresWikiNodesRepo) UpdateFolder(ctx context.Context, nodeID string, upd FolderUpdate) error {
	if upd.Name == nil && upd.SortOrder == nil {
		return fmt.Errorf("no fields to update: %w", domain.ErrValidation)
	}
	if upd.Name != nil && *upd.Name == "" {
		return fmt.Errorf("name must not be empty: %w", domain.ErrValidation)
	}
	return r.execOnLiveNode(ctx, `
		UPDATE wiki_nodes
		SET name = COALESCE($2, name),
		    sort_order = COALESCE($3, sort_order),
		    updated_by = $4,
		    updated_at = NOW()
		WHERE node_id = $1 AND node_type = 'folder' AND deleted_at IS NULL
	`, nodeID, upd.Name, upd.SortOrder, upd.UpdatedBy)
}

func (r *PostgresWikiNodesRepo) UpdateFile(ctx context.Context, nodeID string, upd FileUpdate) error {
	if upd.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	attachments, err := attachmentsValue(upd.Attachments)
	if err != nil {
		return err
	}
	return r.execOnLiveNode(ctx, `
		UPDATE wiki_nodes
		SET name = $2, title = $3, content = $4, attachments = $5,
		    updated_by = $6, updated_at = NOW()
		WHERE node_id = $1 AND node_type = 'file' AND deleted_at IS NULL
	`, nodeID, upd.Name, upd.Title, upd.Content, attachments, upd.UpdatedBy)
}

func (r *PostgresWikiNodesRepo) SetPublic(ctx context.Context, nodeID string, upd PublicUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getWikiNode(ctx, tx, nodeID, true)
	if err != nil {
		return err
	}

	if node.IsFolder() {
		rankIDs := nullableTextArray(upd.RankIDs)
		positionIDs := nullableTextArray(upd.PositionIDs)
		departmentIDs := nullableTextArray(upd.DepartmentIDs)
		if upd.IsPublic {
			// Public folders carry no id sets.
			rankIDs, positionIDs, departmentIDs = nil, nil, nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE wiki_nodes
			SET is_public = $2,
			    permission_rank_ids = $3,
			    permission_position_ids = $4,
			    permission_department_ids = $5,
			    updated_by = $6,
			    updated_at = NOW()
			WHERE node_id = $1
		`, nodeID, upd.IsPublic, rankIDs, positionIDs, departmentIDs, upd.UpdatedBy)
	} else {
		// Files only toggle inherit (public) vs admin-only.
		_, err = tx.ExecContext(ctx, `
			UPDATE wiki_nodes
			SET is_public = $2, updated_by = $3, updated_at = NOW()
			WHERE node_id = $1
		`, nodeID, upd.IsPublic, upd.UpdatedBy)
	}
	if err != nil {
		return fmt.Errorf("failed to update visibility: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit visibility update: %w", err)
	}
	return nil
}

func (r *PostgresWikiNodesRepo) MoveNode(ctx context.Context, nodeID string, newParentID *string, updatedBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getWikiNode(ctx, tx, nodeID, true)
	if err != nil {
		return err
	}

	newDepth := 0
	if newParentID != nil {
		if *newParentID == nodeID {
			return fmt.Errorf("cannot move a node under itself: %w", domain.ErrConflict)
		}
		parent, err := validateParentTx(ctx, tx, *newParentID)
		if err != nil {
			return err
		}
		// Cycle check: the target must not be a descendant of the node.
		// The walk is O(depth) thanks to materialized depth; the guard
		// catches corrupted parent chains.
		cur := parent
		for steps := 0; cur.ParentID != nil; steps++ {
			if steps > maxTreeDepth {
				return fmt.Errorf("ancestor chain of %s exceeds depth limit: %w", *newParentID, domain.ErrConflict)
			}
			if *cur.ParentID == nodeID {
				return fmt.Errorf("cannot move a node under its own descendant: %w", domain.ErrConflict)
			}
			cur, err = getWikiNode(ctx, tx, *cur.ParentID, false)
			if err != nil {
				return err
			}
		}
		newDepth = parent.Depth + 1
	} else if node.IsFile() {
		return fmt.Errorf("files must stay under a folder: %w", domain.ErrValidation)
	}

	if delta := newDepth - node.Depth; delta != 0 {
		_, err = tx.ExecContext(ctx, `
			WITH RECURSIVE subtree AS (
				SELECT node_id, 0 AS level FROM wiki_nodes
				WHERE node_id = $1 AND deleted_at IS NULL
				UNION ALL
				SELECT c.node_id, s.level + 1 FROM wiki_nodes c
				JOIN subtree s ON c.parent_id = s.node_id
				WHERE c.deleted_at IS NULL AND s.level < $3
			)
			UPDATE wiki_nodes
			SET depth = depth + $2
			WHERE node_id IN (SELECT node_id FROM subtree)
		`, nodeID, delta, maxTreeDepth)
		if err != nil {
			return fmt.Errorf("failed to shift subtree depth: %w", err)
		}
	}

	sortOrder, err := nextSortOrder(ctx, tx, newParentID, nodeID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wiki_nodes
		SET parent_id = $2, sort_order = $3, updated_by = $4, updated_at = NOW()
		WHERE node_id = $1
	`, nodeID, newParentID, sortOrder, updatedBy)
	if err != nil {
		return fmt.Errorf("failed to re-parent wiki node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit move: %w", err)
	}
	return nil
}

func (r *PostgresWikiNodesRepo) SoftDeleteSubtree(ctx context.Context, nodeID, deletedBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getWikiNode(ctx, tx, nodeID, true); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT node_id, 0 AS level FROM wiki_nodes
			WHERE node_id = $1 AND deleted_at IS NULL
			UNION ALL
			SELECT c.node_id, s.level + 1 FROM wiki_nodes c
			JOIN subtree s ON c.parent_id = s.node_id
			WHERE c.deleted_at IS NULL AND s.level < $3
		)
		UPDATE wiki_nodes
		SET deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE node_id IN (SELECT node_id FROM subtree)
	`, nodeID, deletedBy, maxTreeDepth)
	if err != nil {
		return fmt.Errorf("failed to soft-delete subtree: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subtree delete: %w", err)
	}
	return nil
}

func (r *PostgresWikiNodesRepo) SoftDeleteNodeOnly(ctx context.Context, nodeID, deletedBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	node, err := getWikiNode(ctx, tx, nodeID, true)
	if err != nil {
		return err
	}
	if !node.IsFolder() {
		return fmt.Errorf("node %s is not a folder: %w", nodeID, domain.ErrValidation)
	}

	var children int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wiki_nodes
		WHERE parent_id = $1 AND deleted_at IS NULL
	`, nodeID).Scan(&children)
	if err != nil {
		return fmt.Errorf("failed to count children: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("folder %s has %d children: %w", nodeID, children, domain.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wiki_nodes
		SET deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE node_id = $1
	`, nodeID, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to soft-delete folder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit folder delete: %w", err)
	}
	return nil
}
