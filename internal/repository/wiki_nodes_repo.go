package repository

import (
	"context"

	"lumir-wiki/internal/domain"
)

// WikiNodesRepository is the wiki tree store.
// Uses strongly typed domain models, not map[string]any.
// Soft-deleted rows are invisible to every method here; deletion only
// stamps deleted_at so permission logs keep a valid reference.
type WikiNodesRepository interface {
	// ========== Queries ==========
	// GetNode fetches a single live node by id.
	GetNode(ctx context.Context, nodeID string) (*domain.WikiNode, error)

	// ListChildren lists the live children of parentID ordered by
	// sort_order. parentID nil lists root nodes.
	ListChildren(ctx context.Context, parentID *string) ([]*domain.WikiNode, error)

	// ListSubtree lists rootID and all its live descendants, ordered by
	// (depth, sort_order).
	ListSubtree(ctx context.Context, rootID string) ([]*domain.WikiNode, error)

	// ListAll lists every live node ordered by (depth, sort_order);
	// used for tree assembly and path materialization.
	ListAll(ctx context.Context) ([]*domain.WikiNode, error)

	// ListRestricted lists live folders carrying an explicit
	// restriction (is_public = false); reconciler input.
	ListRestricted(ctx context.Context) ([]*domain.WikiNode, error)

	// FindChildFolderByName resolves one by-path segment: the live
	// child folder of parentID (nil = root) with the given name.
	FindChildFolderByName(ctx context.Context, parentID *string, name string) (*domain.WikiNode, error)

	// SearchFiles matches live files whose name, title or content
	// contains query (case-insensitive substring).
	SearchFiles(ctx context.Context, query string) ([]*domain.WikiNode, error)

	// ========== Mutations ==========
	// CreateNode inserts a node. The repository validates the parent
	// (must exist, be a folder and be live), materializes depth as
	// parent.depth+1 (0 for roots) and assigns the next sibling
	// sort_order. Returns the new node id.
	CreateNode(ctx context.Context, node *domain.WikiNode) (string, error)

	// RenameNode updates name only.
	RenameNode(ctx context.Context, nodeID, name, updatedBy string) error

	// UpdateFolder applies a partial folder update (name, sort order).
	UpdateFolder(ctx context.Context, nodeID string, upd FolderUpdate) error

	// UpdateFile replaces a file's editable fields.
	UpdateFile(ctx context.Context, nodeID string, upd FileUpdate) error

	// SetPublic flips the visibility state. For folders switching to
	// restricted the id sets are taken from upd as-is (nil stays NULL:
	// the unclassified state). For files the sets are ignored.
	SetPublic(ctx context.Context, nodeID string, upd PublicUpdate) error

	// MoveNode re-parents a subtree in one transaction: validates the
	// target folder, rejects cycles, recomputes depth for the node and
	// every descendant.
	MoveNode(ctx context.Context, nodeID string, newParentID *string, updatedBy string) error

	// SoftDeleteSubtree soft-deletes nodeID and all live descendants in
	// one transaction.
	SoftDeleteSubtree(ctx context.Context, nodeID, deletedBy string) error

	// SoftDeleteNodeOnly soft-deletes a folder iff it has no live
	// children; otherwise domain.ErrConflict.
	SoftDeleteNodeOnly(ctx context.Context, nodeID, deletedBy string) error
}

// FolderUpdate partial update for PATCH /folders/{id}.
type FolderUpdate struct {
	Name      *string
	SortOrder *int
	UpdatedBy string
}

// FileUpdate full update for PUT /files/{id}.
type FileUpdate struct {
	Name        string
	Title       *string
	Content     *string
	Attachments []domain.Attachment
	UpdatedBy   string
}

// PublicUpdate payload for the visibility endpoints.
type PublicUpdate struct {
	IsPublic      bool
	RankIDs       []string
	PositionIDs   []string
	DepartmentIDs []string
	UpdatedBy     string
}

// PermissionReplacement maps old directory ids to their replacements,
// per id kind. Absent old ids are counted no-ops.
type PermissionReplacement struct {
	Departments map[string]string
	Ranks       map[string]string
	Positions   map[string]string
}

// ReplaceCounts reports how many stored ids were actually substituted.
type ReplaceCounts struct {
	Departments int `json:"replacedDepartments"`
	Ranks       int `json:"replacedRanks"`
	Positions   int `json:"replacedPositions"`
}
