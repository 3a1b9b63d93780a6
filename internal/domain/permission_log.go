package domain

import "time"

// LogAction is the lifecycle state of a permission drift log entry.
type LogAction string

const (
	LogActionDetected LogAction = "DETECTED"
	LogActionResolved LogAction = "RESOLVED"
)

// InvalidKind names which stored id set the invalid id came from.
type InvalidKind string

const (
	InvalidKindDepartment InvalidKind = "department"
	InvalidKindRank       InvalidKind = "rank"
	InvalidKindPosition   InvalidKind = "position"
)

// LogTypeWikiPermission is the log_type discriminator for dismissals.
// Content modules keep their own read-receipt types in the same table
// family, so the type is stored explicitly.
const LogTypeWikiPermission = "WIKI_PERMISSION_LOG"

// PermissionSnapshot captures a node's stored id sets at detection time.
type PermissionSnapshot struct {
	RankIDs       []string `json:"rankIds"`
	PositionIDs   []string `json:"positionIds"`
	DepartmentIDs []string `json:"departmentIds"`
}

// WikiPermissionLog is one drift incident for one (node, kind, id).
// Rows are append-only except for the RESOLVED transition fields.
// ResolvedBy is nil for system auto-resolution.
type WikiPermissionLog struct {
	LogID       string             `json:"id"`
	NodeID      string             `json:"wikiNodeId"`
	Action      LogAction          `json:"action"`
	InvalidKind InvalidKind        `json:"invalidKind"`
	InvalidID   string             `json:"invalidId"`
	Snapshot    PermissionSnapshot `json:"snapshot"`
	DetectedAt  time.Time          `json:"detectedAt"`
	ResolvedAt  *time.Time         `json:"resolvedAt,omitempty"`
	ResolvedBy  *string            `json:"resolvedBy,omitempty"`
	Note        *string            `json:"note,omitempty"`
}

// Open reports whether the incident is still awaiting resolution.
func (l *WikiPermissionLog) Open() bool { return l.ResolvedAt == nil }

// DismissedPermissionLog is a per-admin read-suppression marker.
// One row per (logType, permissionLogId, dismissedBy); never removed by
// resolution, only hidden from the unread view.
type DismissedPermissionLog struct {
	DismissalID     string    `json:"id"`
	LogType         string    `json:"logType"`
	PermissionLogID string    `json:"permissionLogId"`
	DismissedBy     string    `json:"dismissedBy"`
	DismissedAt     time.Time `json:"dismissedAt"`
}
