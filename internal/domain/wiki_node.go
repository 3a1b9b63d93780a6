package domain

import "time"

// NodeType discriminates folder and file rows in wiki_nodes.
type NodeType string

const (
	NodeTypeFolder NodeType = "folder"
	NodeTypeFile   NodeType = "file"
)

// Attachment is a file attachment stored in the attachments JSONB column.
type Attachment struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// WikiNode is one row of the wiki tree (folder or file).
//
// Permission id sets are tri-state:
//   - nil: unclassified (restricted folder that was never assigned ids;
//     read paths nudge the reconciler when they see this)
//   - empty: explicitly restricted to nobody
//   - non-empty: restricted to those directory ids
//
// Folder: IsPublic=true means public/inherit, IsPublic=false means the
// node carries an explicit restriction in the id sets.
// File: IsPublic=true means inherit the parent folder's effective
// permission, IsPublic=false means admin-only regardless of ancestors.
type WikiNode struct {
	NodeID    string   `json:"id"`
	NodeType  NodeType `json:"type"`
	ParentID  *string  `json:"parentId"`
	Depth     int      `json:"depth"`
	SortOrder int      `json:"order"`

	Name        string       `json:"name"`
	Title       *string      `json:"title,omitempty"`
	Content     *string      `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	IsPublic                bool     `json:"isPublic"`
	PermissionRankIDs       []string `json:"permissionRankIds"`
	PermissionPositionIDs   []string `json:"permissionPositionIds"`
	PermissionDepartmentIDs []string `json:"permissionDepartmentIds"`

	CreatedBy string     `json:"createdBy"`
	UpdatedBy string     `json:"updatedBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

func (n *WikiNode) IsFolder() bool { return n.NodeType == NodeTypeFolder }
func (n *WikiNode) IsFile() bool   { return n.NodeType == NodeTypeFile }

// HasExplicitRestriction reports whether the node itself carries a
// restriction (only non-public folders do; files delegate or go
// admin-only).
func (n *WikiNode) HasExplicitRestriction() bool {
	return n.NodeType == NodeTypeFolder && !n.IsPublic
}

// NeedsClassification reports the unclassified state: a restricted
// folder whose department set was never assigned.
func (n *WikiNode) NeedsClassification() bool {
	return n.HasExplicitRestriction() && n.PermissionDepartmentIDs == nil
}
