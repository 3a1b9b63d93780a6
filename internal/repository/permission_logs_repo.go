package repository

import (
	"context"

	"lumir-wiki/internal/domain"
)

// PermissionLogsRepository is the append-only drift audit trail plus
// per-admin dismissal markers.
//
// Idempotence is enforced by constraints, not timing: one open DETECTED
// row per (node, kind, id), one dismissal per (logType, log, admin).
type PermissionLogsRepository interface {
	// InsertDetected appends a DETECTED row. Returns false when an open
	// row for the same (node, kind, id) already exists (no-op).
	InsertDetected(ctx context.Context, log *domain.WikiPermissionLog) (bool, error)

	// ResolveOpen transitions open DETECTED rows for (node, kind, id)
	// to RESOLVED. resolvedBy nil marks system auto-resolution.
	// Returns the number of rows transitioned.
	ResolveOpen(ctx context.Context, nodeID string, kind domain.InvalidKind, invalidID string, resolvedBy *string, note string) (int, error)

	// AppendResolved appends a standalone RESOLVED row (admin action
	// audit when no open detection matched).
	AppendResolved(ctx context.Context, log *domain.WikiPermissionLog) error

	// ReplacePermissions rewrites a node's stored id sets by the given
	// substitutions and resolves matching open detections, atomically.
	// resolvedBy is the acting admin. Returns substitution counts and
	// the number of resolved log rows.
	ReplacePermissions(ctx context.Context, nodeID string, repl PermissionReplacement, resolvedBy string, note string) (*ReplaceOutcome, error)

	// GetLog fetches a single log row.
	GetLog(ctx context.Context, logID string) (*domain.WikiPermissionLog, error)

	// ListLogs lists the full audit trail, newest first. resolved nil =
	// all rows, true = resolved only, false = open only. Dismissals
	// never filter this view.
	ListLogs(ctx context.Context, resolved *bool) ([]*domain.WikiPermissionLog, error)

	// ListOpenForNode lists open DETECTED rows for one node.
	ListOpenForNode(ctx context.Context, nodeID string) ([]*domain.WikiPermissionLog, error)

	// ListUnread lists open DETECTED rows not yet dismissed by adminID.
	ListUnread(ctx context.Context, adminID string) ([]*domain.WikiPermissionLog, error)

	// InsertDismissal records a dismissal. Returns false when this
	// admin already dismissed the log.
	InsertDismissal(ctx context.Context, logID, adminID string) (bool, error)
}

// ReplaceOutcome is the result of ReplacePermissions.
type ReplaceOutcome struct {
	Counts       ReplaceCounts
	ResolvedLogs int
}
