package domain

// PermissionScope classifies the effective access of a node.
type PermissionScope string

const (
	// ScopePublic: visible to every authenticated employee.
	ScopePublic PermissionScope = "public"
	// ScopeRestricted: visible to the listed ranks/positions/departments.
	ScopeRestricted PermissionScope = "restricted"
	// ScopeAdminOnly: a private file, visible only to wiki admins.
	ScopeAdminOnly PermissionScope = "admin_only"
)

// EffectivePermission is the result of resolving a node's permission
// through its ancestor chain.
type EffectivePermission struct {
	Scope         PermissionScope `json:"scope"`
	RankIDs       []string        `json:"rankIds,omitempty"`
	PositionIDs   []string        `json:"positionIds,omitempty"`
	DepartmentIDs []string        `json:"departmentIds,omitempty"`
	// SourceNodeID is the node whose explicit restriction applied,
	// empty when the scope is public or admin_only.
	SourceNodeID string `json:"sourceNodeId,omitempty"`
}
