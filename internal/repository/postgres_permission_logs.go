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

// PostgresPermissionLogsRepo implements PermissionLogsRepository over
// wiki_permission_logs and wiki_dismissed_permission_logs. It also owns
// the permission-replacement path, which must rewrite wiki_nodes id sets
// and resolve open detections in one transaction.
type PostgresPermissionLogsRepo struct {
	db *sql.DB
}

func NewPostgresPermissionLogsRepo(db *sql.DB) *PostgresPermissionLogsRepo {
	return &PostgresPermissionLogsRepo{db: db}
}

var _ PermissionLogsRepository = (*PostgresPermissionLogsRepo)(nil)

const logColumns = `
	log_id::text,
	node_id::text,
	action,
	invalid_kind,
	invalid_id,
	snapshot,
	detected_at,
	resolved_at,
	resolved_by,
	note
`

func scanPermissionLog(row rowScanner) (*domain.WikiPermissionLog, error) {
	var l domain.WikiPermissionLog
	var kind, invalidID sql.NullString
	var snapshot []byte
	err := row.Scan(
		&l.LogID,
		&l.NodeID,
		&l.Action,
		&kind,
		&invalidID,
		&snapshot,
		&l.DetectedAt,
		&l.ResolvedAt,
		&l.ResolvedBy,
		&l.Note,
	)
	if err != nil {
		return nil, err
	}
	l.InvalidKind = domain.InvalidKind(kind.String)
	l.InvalidID = invalidID.String
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &l.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode permission snapshot: %w", err)
		}
	}
	return &l, nil
}

func (r *PostgresPermissionLogsRepo) queryLogs(ctx context.Context, query string, args ...any) ([]*domain.WikiPermissionLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.WikiPermissionLog
	for rows.Next() {
		l, err := scanPermissionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permission logs: %w", err)
	}
	return logs, nil
}

func (r *PostgresPermissionLogsRepo) InsertDetected(ctx context.Context, log *domain.WikiPermissionLog) (bool, error) {
	snapshot, err := json.Marshal(log.Snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to encode permission snapshot: %w", err)
	}

	logID := log.LogID
	if logID == "" {
		logID = uuid.NewString()
	}

	// The partial unique index on (node_id, invalid_kind, invalid_id)
	// WHERE resolved_at IS NULL makes concurrent scheduler runs
	// idempotent without relying on timing.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO wiki_permission_logs
			(log_id, node_id, action, invalid_kind, invalid_id, snapshot)
		VALUES ($1, $2, 'DETECTED', $3, $4, $5)
		ON CONFLICT (node_id, invalid_kind, invalid_id) WHERE resolved_at IS NULL
		DO NOTHING
	`, logID, log.NodeID, log.InvalidKind, log.InvalidID, snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to insert detected log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

func resolveOpenTx(ctx context.Context, ex interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, nodeID string, kind domain.InvalidKind, invalidID string, resolvedBy *string, note string) (int, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE wiki_permission_logs
		SET action = 'RESOLVED', resolved_at = NOW(), resolved_by = $4, note = $5
		WHERE node_id = $1 AND invalid_kind = $2 AND invalid_id = $3 AND resolved_at IS NULL
	`, nodeID, kind, invalidID, resolvedBy, note)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve open logs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read resolve result: %w", err)
	}
	return int(affected), nil
}

func (r *PostgresPermissionLogsRepo) ResolveOpen(ctx context.Context, nodeID string, kind domain.InvalidKind, invalidID string, resolvedBy *string, note string) (int, error) {
	return resolveOpenTx(ctx, r.db, nodeID, kind, invalidID, resolvedBy, note)
}

func (r *PostgresPermissionLogsRepo) AppendResolved(ctx context.Context, log *domain.WikiPermissionLog) error {
	return appendResolvedTx(ctx, r.db, log)
}

func appendResolvedTx(ctx context.Context, ex interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, log *domain.WikiPermissionLog) error {
	snapshot, err := json.Marshal(log.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode permission snapshot: %w", err)
	}

	logID := log.LogID
	if logID == "" {
		logID = uuid.NewString()
	}

	var kind, invalidID any
	if log.InvalidKind != "" {
		kind = log.InvalidKind
	}
	if log.InvalidID != "" {
		invalidID = log.InvalidID
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO wiki_permission_logs
			(log_id, node_id, action, invalid_kind, invalid_id, snapshot, resolved_at, resolved_by, note)
		VALUES ($1, $2, 'RESOLVED', $3, $4, $5, NOW(), $6, $7)
	`, logID, log.NodeID, kind, invalidID, snapshot, log.ResolvedBy, log.Note)
	if err != nil {
		return fmt.Errorf("failed to insert resolved log: %w", err)
	}
	return nil
}

func (r *PostgresPermissionLogsRepo) ReplacePermissions(ctx context.Context, nodeID string, repl PermissionReplacement, resolvedBy string, note string) (*ReplaceOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rankIDs, positionIDs, departmentIDs []string
	err = tx.QueryRowContext(ctx, `
		SELECT permission_rank_ids, permission_position_ids, permission_department_ids
		FROM wiki_nodes
		WHERE node_id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, nodeID).Scan(pq.Array(&rankIDs), pq.Array(&positionIDs), pq.Array(&departmentIDs))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("wiki node %s: %w", nodeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock wiki node: %w", err)
	}

	outcome := &ReplaceOutcome{}
	rankIDs, outcome.Counts.Ranks = substituteIDs(rankIDs, repl.Ranks)
	positionIDs, outcome.Counts.Positions = substituteIDs(positionIDs, repl.Positions)
	departmentIDs, outcome.Counts.Departments = substituteIDs(departmentIDs, repl.Departments)

	_, err = tx.ExecContext(ctx, `
		UPDATE wiki_nodes
		SET permission_rank_ids = $2,
		    permission_position_ids = $3,
		    permission_department_ids = $4,
		    updated_by = $5,
		    updated_at = NOW()
		WHERE node_id = $1
	`, nodeID,
		nullableTextArray(rankIDs),
		nullableTextArray(positionIDs),
		nullableTextArray(departmentIDs),
		resolvedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rewrite permission ids: %w", err)
	}

	// Every old id the admin mapped counts as addressed, whether or not
	// it was still stored on the node.
	for _, m := range []struct {
		kind domain.InvalidKind
		ids  map[string]string
	}{
		{domain.InvalidKindRank, repl.Ranks},
		{domain.InvalidKindPosition, repl.Positions},
		{domain.InvalidKindDepartment, repl.Departments},
	} {
		for oldID := range m.ids {
			n, err := resolveOpenTx(ctx, tx, nodeID, m.kind, oldID, &resolvedBy, note)
			if err != nil {
				return nil, err
			}
			outcome.ResolvedLogs += n
		}
	}

	if outcome.ResolvedLogs == 0 {
		// Nothing was open; still audit the admin action.
		err = appendResolvedTx(ctx, tx, &domain.WikiPermissionLog{
			NodeID:     nodeID,
			ResolvedBy: &resolvedBy,
			Note:       &note,
			Snapshot: domain.PermissionSnapshot{
				RankIDs:       rankIDs,
				PositionIDs:   positionIDs,
				DepartmentIDs: departmentIDs,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit permission replacement: %w", err)
	}
	return outcome, nil
}

// substituteIDs rewrites ids per the mapping, preserving the tri-state
// (nil in, nil out) and deduplicating when a substitution collides with
// an existing id.
func substituteIDs(ids []string, mapping map[string]string) ([]string, int) {
	if ids == nil || len(mapping) == 0 {
		return ids, 0
	}
	replaced := 0
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if newID, ok := mapping[id]; ok {
			id = newID
			replaced++
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, replaced
}

func (r *PostgresPermissionLogsRepo) GetLog(ctx context.Context, logID string) (*domain.WikiPermissionLog, error) {
	log, err := scanPermissionLog(r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM wiki_permission_logs WHERE log_id = $1`, logID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("permission log %s: %w", logID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query permission log: %w", err)
	}
	return log, nil
}

func (r *PostgresPermissionLogsRepo) ListLogs(ctx context.Context, resolved *bool) ([]*domain.WikiPermissionLog, error) {
	query := `SELECT ` + logColumns + ` FROM wiki_permission_logs`
	if resolved != nil {
		if *resolved {
			query += ` WHERE resolved_at IS NOT NULL`
		} else {
			query += ` WHERE resolved_at IS NULL`
		}
	}
	query += ` ORDER BY detected_at DESC, log_id`
	return r.queryLogs(ctx, query)
}

func (r *PostgresPermissionLogsRepo) ListOpenForNode(ctx context.Context, nodeID string) ([]*domain.WikiPermissionLog, error) {
	query := `
		SELECT ` + logColumns + `
		FROM wiki_permission_logs
		WHERE node_id = $1 AND resolved_at IS NULL
		ORDER BY detected_at DESC
	`
	return r.queryLogs(ctx, query, nodeID)
}

func (r *PostgresPermissionLogsRepo) ListUnread(ctx context.Context, adminID string) ([]*domain.WikiPermissionLog, error) {
	query := `
		SELECT ` + logColumns + `
		FROM wiki_permission_logs l
		WHERE l.resolved_at IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM wiki_dismissed_permission_logs d
			WHERE d.log_type = $2
			  AND d.permission_log_id = l.log_id
			  AND d.dismissed_by = $1
		  )
		ORDER BY detected_at DESC, log_id
	`
	return r.queryLogs(ctx, query, adminID, domain.LogTypeWikiPermission)
}

func (r *PostgresPermissionLogsRepo) InsertDismissal(ctx context.Context, logID, adminID string) (bool, error) {
	// Unique (log_type, permission_log_id, dismissed_by) closes the
	// check-then-insert race between concurrent admins.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO wiki_dismissed_permission_logs
			(dismissal_id, log_type, permission_log_id, dismissed_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (log_type, permission_log_id, dismissed_by) DO NOTHING
	`, uuid.NewString(), domain.LogTypeWikiPermission, logID, adminID)
	if err != nil {
		return false, fmt.Errorf("failed to insert dismissal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read dismissal result: %w", err)
	}
	return affected > 0, nil
}
