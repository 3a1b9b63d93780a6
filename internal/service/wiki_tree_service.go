package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
)

// ReconcileTrigger is the fire-and-forget hook read paths use to nudge
// the reconciliation scheduler when they encounter an unclassified
// folder. A nil trigger is a no-op.
type ReconcileTrigger interface {
	Trigger()
}

// WikiTreeService owns the document tree: folder/file CRUD, moves,
// soft deletion, structure assembly, by-path resolution and search.
type WikiTreeService struct {
	nodes      repository.WikiNodesRepository
	reconciler ReconcileTrigger
	logger     *zap.Logger
}

func NewWikiTreeService(nodes repository.WikiNodesRepository, reconciler ReconcileTrigger, logger *zap.Logger) *WikiTreeService {
	return &WikiTreeService{nodes: nodes, reconciler: reconciler, logger: logger}
}

// ========== Request / response DTOs ==========

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	IsPublic *bool   `json:"isPublic"`

	PermissionRankIDs       []string `json:"permissionRankIds"`
	PermissionPositionIDs   []string `json:"permissionPositionIds"`
	PermissionDepartmentIDs []string `json:"permissionDepartmentIds"`
}

type CreateFileRequest struct {
	Name        string              `json:"name"`
	ParentID    *string             `json:"parentId"`
	Title       *string             `json:"title"`
	Content     *string             `json:"content"`
	Attachments []domain.Attachment `json:"attachments"`
	IsPublic    *bool               `json:"isPublic"`
}

type UpdateFolderRequest struct {
	Name      *string `json:"name"`
	SortOrder *int    `json:"order"`
}

type UpdateFileRequest struct {
	Name        string              `json:"name"`
	Title       *string             `json:"title"`
	Content     *string             `json:"content"`
	Attachments []domain.Attachment `json:"attachments"`
}

type SetPublicRequest struct {
	IsPublic bool `json:"isPublic"`

	PermissionRankIDs       []string `json:"permissionRankIds"`
	PermissionPositionIDs   []string `json:"permissionPositionIds"`
	PermissionDepartmentIDs []string `json:"permissionDepartmentIds"`
}

type MoveNodeRequest struct {
	NewParentID *string `json:"newParentId"`
}

// TreeFolder is one folder in the nested structure view.
type TreeFolder struct {
	Folder  *domain.WikiNode   `json:"folder"`
	Folders []*TreeFolder      `json:"folders"`
	Files   []*domain.WikiNode `json:"files"`
}

// StructureResponse is the nested tree rooted at the requested
// ancestor (or the whole forest when no ancestor was given).
type StructureResponse struct {
	Folders []*TreeFolder      `json:"folders"`
	Files   []*domain.WikiNode `json:"files"`
}

// ByPathResponse resolves a slash path to a folder and its children.
type ByPathResponse struct {
	Folder   *domain.WikiNode   `json:"folder"`
	Children []*domain.WikiNode `json:"children"`
	Path     string             `json:"path"`
}

// FileSearchHit is one search match with its materialized tree path.
type FileSearchHit struct {
	File *domain.WikiNode `json:"file"`
	Path string           `json:"path"`
}

// ========== Folders ==========

func (s *WikiTreeService) CreateFolder(ctx context.Context, req *CreateFolderRequest, adminID string) (*domain.WikiNode, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is required", domain.ErrValidation)
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	node := &domain.WikiNode{
		NodeType:  domain.NodeTypeFolder,
		ParentID:  req.ParentID,
		Name:      name,
		IsPublic:  isPublic,
		CreatedBy: adminID,
		UpdatedBy: adminID,
	}
	if !isPublic {
		node.PermissionRankIDs = req.PermissionRankIDs
		node.PermissionPositionIDs = req.PermissionPositionIDs
		node.PermissionDepartmentIDs = req.PermissionDepartmentIDs
	}

	id, err := s.nodes.CreateNode(ctx, node)
	if err != nil {
		return nil, err
	}
	created, err := s.nodes.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Created wiki folder",
		zap.String("node_id", id),
		zap.String("name", name),
		zap.Bool("is_public", isPublic))
	return created, nil
}

func (s *WikiTreeService) GetFolder(ctx context.Context, folderID string) (*domain.WikiNode, error) {
	return s.getTyped(ctx, folderID, domain.NodeTypeFolder)
}

func (s *WikiTreeService) UpdateFolder(ctx context.Context, folderID string, req *UpdateFolderRequest, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, folderID, domain.NodeTypeFolder); err != nil {
		return nil, err
	}
	if req.Name == nil && req.SortOrder == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: folder name cannot be empty", domain.ErrValidation)
	}
	upd := repository.FolderUpdate{Name: req.Name, SortOrder: req.SortOrder, UpdatedBy: adminID}
	if err := s.nodes.UpdateFolder(ctx, folderID, upd); err != nil {
		return nil, err
	}
	return s.nodes.GetNode(ctx, folderID)
}

// RenameFolder changes a folder's display name only.
func (s *WikiTreeService) RenameFolder(ctx context.Context, folderID, name, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, folderID, domain.NodeTypeFolder); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name cannot be empty", domain.ErrValidation)
	}
	if err := s.nodes.RenameNode(ctx, folderID, name, adminID); err != nil {
		return nil, err
	}
	return s.nodes.GetNode(ctx, folderID)
}

// SetFolderPublic flips folder visibility. Switching to restricted
// stores the request's id sets verbatim; omitted sets stay NULL and
// leave the folder unclassified until the reconciler or an admin
// assigns them.
func (s *WikiTreeService) SetFolderPublic(ctx context.Context, folderID string, req *SetPublicRequest, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, folderID, domain.NodeTypeFolder); err != nil {
		return nil, err
	}
	upd := repository.PublicUpdate{
		IsPublic:      req.IsPublic,
		RankIDs:       req.PermissionRankIDs,
		PositionIDs:   req.PermissionPositionIDs,
		DepartmentIDs: req.PermissionDepartmentIDs,
		UpdatedBy:     adminID,
	}
	if err := s.nodes.SetPublic(ctx, folderID, upd); err != nil {
		return nil, err
	}
	node, err := s.nodes.GetNode(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if node.NeedsClassification() {
		s.nudgeReconciler()
	}
	return node, nil
}

// DeleteFolder soft-deletes a folder. cascade deletes the whole
// subtree; otherwise a folder with live children is a conflict.
func (s *WikiTreeService) DeleteFolder(ctx context.Context, folderID string, cascade bool, adminID string) error {
	if _, err := s.getTyped(ctx, folderID, domain.NodeTypeFolder); err != nil {
		return err
	}
	if cascade {
		return s.nodes.SoftDeleteSubtree(ctx, folderID, adminID)
	}
	return s.nodes.SoftDeleteNodeOnly(ctx, folderID, adminID)
}

// Children lists a folder's direct live children, folders before files
// only by their stored sort order.
func (s *WikiTreeService) Children(ctx context.Context, folderID string) ([]*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, folderID, domain.NodeTypeFolder); err != nil {
		return nil, err
	}
	children, err := s.nodes.ListChildren(ctx, &folderID)
	if err != nil {
		return nil, err
	}
	s.maybeNudge(children)
	return children, nil
}

// ========== Files ==========

func (s *WikiTreeService) CreateFile(ctx context.Context, req *CreateFileRequest, adminID string) (*domain.WikiNode, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrValidation)
	}
	if req.ParentID == nil {
		return nil, fmt.Errorf("%w: a file requires a parent folder", domain.ErrValidation)
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	node := &domain.WikiNode{
		NodeType:    domain.NodeTypeFile,
		ParentID:    req.ParentID,
		Name:        name,
		Title:       req.Title,
		Content:     req.Content,
		Attachments: req.Attachments,
		IsPublic:    isPublic,
		CreatedBy:   adminID,
		UpdatedBy:   adminID,
	}
	id, err := s.nodes.CreateNode(ctx, node)
	if err != nil {
		return nil, err
	}
	created, err := s.nodes.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Created wiki file",
		zap.String("node_id", id),
		zap.String("name", name),
		zap.Stringp("parent_id", req.ParentID))
	return created, nil
}

func (s *WikiTreeService) GetFile(ctx context.Context, fileID string) (*domain.WikiNode, error) {
	return s.getTyped(ctx, fileID, domain.NodeTypeFile)
}

func (s *WikiTreeService) UpdateFile(ctx context.Context, fileID string, req *UpdateFileRequest, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, fileID, domain.NodeTypeFile); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrValidation)
	}
	upd := repository.FileUpdate{
		Name:        name,
		Title:       req.Title,
		Content:     req.Content,
		Attachments: req.Attachments,
		UpdatedBy:   adminID,
	}
	if err := s.nodes.UpdateFile(ctx, fileID, upd); err != nil {
		return nil, err
	}
	return s.nodes.GetNode(ctx, fileID)
}

// SetFilePublic flips file visibility: public files inherit the parent
// folder's effective permission, private files are admin-only. Files
// never carry id sets of their own.
func (s *WikiTreeService) SetFilePublic(ctx context.Context, fileID string, isPublic bool, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, fileID, domain.NodeTypeFile); err != nil {
		return nil, err
	}
	upd := repository.PublicUpdate{IsPublic: isPublic, UpdatedBy: adminID}
	if err := s.nodes.SetPublic(ctx, fileID, upd); err != nil {
		return nil, err
	}
	return s.nodes.GetNode(ctx, fileID)
}

func (s *WikiTreeService) DeleteFile(ctx context.Context, fileID, adminID string) error {
	if _, err := s.getTyped(ctx, fileID, domain.NodeTypeFile); err != nil {
		return err
	}
	return s.nodes.SoftDeleteSubtree(ctx, fileID, adminID)
}

// ListFiles lists live files, optionally limited to one folder.
func (s *WikiTreeService) ListFiles(ctx context.Context, folderID *string) ([]*domain.WikiNode, error) {
	var (
		nodes []*domain.WikiNode
		err   error
	)
	if folderID != nil {
		if _, err = s.getTyped(ctx, *folderID, domain.NodeTypeFolder); err != nil {
			return nil, err
		}
		nodes, err = s.nodes.ListChildren(ctx, folderID)
	} else {
		nodes, err = s.nodes.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	s.maybeNudge(nodes)

	files := make([]*domain.WikiNode, 0, len(nodes))
	for _, n := range nodes {
		if n.IsFile() {
			files = append(files, n)
		}
	}
	return files, nil
}

// SearchFiles matches files by name, title or content and decorates
// each hit with its materialized slash path.
func (s *WikiTreeService) SearchFiles(ctx context.Context, query string) ([]*FileSearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}
	matches, err := s.nodes.SearchFiles(ctx, query)
	if err != nil {
		return nil, err
	}
	all, err := s.nodes.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	s.maybeNudge(all)

	byID := make(map[string]*domain.WikiNode, len(all))
	for _, n := range all {
		byID[n.NodeID] = n
	}

	hits := make([]*FileSearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, &FileSearchHit{File: m, Path: materializePath(byID, m)})
	}
	return hits, nil
}

// ========== Shared node operations ==========

// MoveNode re-parents a node of the expected type. A nil target moves
// the node to the root level; moving a folder under its own descendant
// is rejected by the repository.
func (s *WikiTreeService) MoveNode(ctx context.Context, nodeID string, expect domain.NodeType, req *MoveNodeRequest, adminID string) (*domain.WikiNode, error) {
	if _, err := s.getTyped(ctx, nodeID, expect); err != nil {
		return nil, err
	}
	if expect == domain.NodeTypeFile && req.NewParentID == nil {
		return nil, fmt.Errorf("%w: a file requires a parent folder", domain.ErrValidation)
	}
	if err := s.nodes.MoveNode(ctx, nodeID, req.NewParentID, adminID); err != nil {
		return nil, err
	}
	return s.nodes.GetNode(ctx, nodeID)
}

// Structure assembles the nested tree. ancestorID nil returns the
// whole forest from the roots; otherwise the subtree below that folder.
func (s *WikiTreeService) Structure(ctx context.Context, ancestorID *string) (*StructureResponse, error) {
	var (
		nodes []*domain.WikiNode
		err   error
	)
	if ancestorID != nil {
		if _, err = s.getTyped(ctx, *ancestorID, domain.NodeTypeFolder); err != nil {
			return nil, err
		}
		nodes, err = s.nodes.ListSubtree(ctx, *ancestorID)
	} else {
		nodes, err = s.nodes.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	s.maybeNudge(nodes)
	return assembleStructure(nodes, ancestorID), nil
}

// ByPath resolves a slash path of folder names from the root, segment
// by segment, and returns the final folder with its direct children.
func (s *WikiTreeService) ByPath(ctx context.Context, path string) (*ByPathResponse, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: path is required", domain.ErrValidation)
	}

	var parentID *string
	var folder *domain.WikiNode
	for _, seg := range segments {
		next, err := s.nodes.FindChildFolderByName(ctx, parentID, seg)
		if err != nil {
			return nil, err
		}
		folder = next
		parentID = &next.NodeID
	}

	children, err := s.nodes.ListChildren(ctx, &folder.NodeID)
	if err != nil {
		return nil, err
	}
	s.maybeNudge(children)
	return &ByPathResponse{
		Folder:   folder,
		Children: children,
		Path:     "/" + strings.Join(segments, "/"),
	}, nil
}

// ========== Helpers ==========

func (s *WikiTreeService) getTyped(ctx context.Context, nodeID string, expect domain.NodeType) (*domain.WikiNode, error) {
	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.NodeType != expect {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, expect, nodeID)
	}
	return node, nil
}

func (s *WikiTreeService) maybeNudge(nodes []*domain.WikiNode) {
	for _, n := range nodes {
		if n.NeedsClassification() {
			s.nudgeReconciler()
			return
		}
	}
}

func (s *WikiTreeService) nudgeReconciler() {
	if s.reconciler != nil {
		s.reconciler.Trigger()
	}
}

func splitPath(path string) []string {
	out := make([]string, 0, 4)
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// materializePath builds "/ancestor/.../name" from the parent chain.
// The walk is bounded so a corrupt parent pointer cannot loop forever.
func materializePath(byID map[string]*domain.WikiNode, node *domain.WikiNode) string {
	segments := []string{node.Name}
	cur := node
	for i := 0; cur.ParentID != nil && i < 64; i++ {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			break
		}
		segments = append([]string{parent.Name}, segments...)
		cur = parent
	}
	return "/" + strings.Join(segments, "/")
}

// assembleStructure nests a (depth, sort_order) ordered node list.
// Nodes whose parent is outside the list become roots of the result,
// which makes the same walk serve both the forest and subtree views.
func assembleStructure(nodes []*domain.WikiNode, ancestorID *string) *StructureResponse {
	folders := make(map[string]*TreeFolder, len(nodes))
	for _, n := range nodes {
		if n.IsFolder() {
			folders[n.NodeID] = &TreeFolder{
				Folder:  n,
				Folders: []*TreeFolder{},
				Files:   []*domain.WikiNode{},
			}
		}
	}

	resp := &StructureResponse{Folders: []*TreeFolder{}, Files: []*domain.WikiNode{}}
	for _, n := range nodes {
		var parent *TreeFolder
		if n.ParentID != nil {
			parent = folders[*n.ParentID]
		}
		switch {
		case n.IsFolder():
			tf := folders[n.NodeID]
			if parent != nil && (ancestorID == nil || n.NodeID != *ancestorID) {
				parent.Folders = append(parent.Folders, tf)
			} else {
				resp.Folders = append(resp.Folders, tf)
			}
		case parent != nil:
			parent.Files = append(parent.Files, n)
		default:
			resp.Files = append(resp.Files, n)
		}
	}
	return resp
}
