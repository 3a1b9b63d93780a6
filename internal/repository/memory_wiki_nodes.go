package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lumir-wiki/internal/domain"

	"github.com/google/uuid"
)

// MemoryWikiNodesRepo keeps the wiki tree in process memory. Used when
// the DB is not ready (local `go run`) and as the substrate for unit
// tests. Same contract as the Postgres repo, including the tri-state of
// permission id sets and soft-delete visibility.
type MemoryWikiNodesRepo struct {
	mu    sync.RWMutex
	nodes map[string]*domain.WikiNode
}

func NewMemoryWikiNodesRepo() *MemoryWikiNodesRepo {
	return &MemoryWikiNodesRepo{nodes: map[string]*domain.WikiNode{}}
}

var _ WikiNodesRepository = (*MemoryWikiNodesRepo)(nil)

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func cloneNode(n *domain.WikiNode) *domain.WikiNode {
	c := *n
	c.PermissionRankIDs = cloneStrings(n.PermissionRankIDs)
	c.PermissionPositionIDs = cloneStrings(n.PermissionPositionIDs)
	c.PermissionDepartmentIDs = cloneStrings(n.PermissionDepartmentIDs)
	if n.Attachments != nil {
		c.Attachments = make([]domain.Attachment, len(n.Attachments))
		copy(c.Attachments, n.Attachments)
	}
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortNodes(nodes []*domain.WikiNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func (r *MemoryWikiNodesRepo) liveNode(nodeID string) (*domain.WikiNode, error) {
	n, ok := r.nodes[nodeID]
	if !ok || n.DeletedAt != nil {
		return nil, fmt.Errorf("wiki node %s: %w", nodeID, domain.ErrNotFound)
	}
	return n, nil
}

func (r *MemoryWikiNodesRepo) liveChildren(parentID *string) []*domain.WikiNode {
	var out []*domain.WikiNode
	for _, n := range r.nodes {
		if n.DeletedAt == nil && sameParent(n.ParentID, parentID) {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func (r *MemoryWikiNodesRepo) GetNode(_ context.Context, nodeID string) (*domain.WikiNode, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node_id is required: %w", domain.ErrValidation)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return nil, err
	}
	return cloneNode(n), nil
}

func (r *MemoryWikiNodesRepo) ListChildren(_ context.Context, parentID *string) ([]*domain.WikiNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	children := r.liveChildren(parentID)
	out := make([]*domain.WikiNode, 0, len(children))
	for _, n := range children {
		out = append(out, cloneNode(n))
	}
	return out, nil
}

func (r *MemoryWikiNodesRepo) collectSubtree(rootID string) []*domain.WikiNode {
	out := []*domain.WikiNode{r.nodes[rootID]}
	queue := []string{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		id := cur
		for _, child := range r.liveChildren(&id) {
			out = append(out, child)
			queue = append(queue, child.NodeID)
		}
	}
	return out
}

func (r *MemoryWikiNodesRepo) ListSubtree(_ context.Context, rootID string) ([]*domain.WikiNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.liveNode(rootID); err != nil {
		return nil, err
	}
	nodes := r.collectSubtree(rootID)
	sortNodes(nodes)
	out := make([]*domain.WikiNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, cloneNode(n))
	}
	return out, nil
}

func (r *MemoryWikiNodesRepo) ListAll(_ context.Context) ([]*domain.WikiNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WikiNode
	for _, n := range r.nodes {
		if n.DeletedAt == nil {
			out = append(out, cloneNode(n))
		}
	}
	sortNodes(out)
	return out, nil
}

func (r *MemoryWikiNodesRepo) ListRestricted(_ context.Context) ([]*domain.WikiNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WikiNode
	for _, n := range r.nodes {
		if n.DeletedAt == nil && n.HasExplicitRestriction() {
			out = append(out, cloneNode(n))
		}
	}
	sortNodes(out)
	return out, nil
}

func (r *MemoryWikiNodesRepo) FindChildFolderByName(_ context.Context, parentID *string, name string) (*domain.WikiNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.liveChildren(parentID) {
		if n.IsFolder() && n.Name == name {
			return cloneNode(n), nil
		}
	}
	return nil, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
}

func (r *MemoryWikiNodesRepo) SearchFiles(_ context.Context, query string) ([]*domain.WikiNode, error) {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WikiNode
	for _, n := range r.nodes {
		if n.DeletedAt != nil || !n.IsFile() {
			continue
		}
		if strings.Contains(strings.ToLower(n.Name), q) ||
			(n.Title != nil && strings.Contains(strings.ToLower(*n.Title), q)) ||
			(n.Content != nil && strings.Contains(strings.ToLower(*n.Content), q)) {
			out = append(out, cloneNode(n))
		}
	}
	sortNodes(out)
	return out, nil
}

func (r *MemoryWikiNodesRepo) nextSortOrder(parentID *string, excludeID string) int {
	max := 0
	for _, n := range r.liveChildren(parentID) {
		if n.NodeID != excludeID && n.SortOrder > max {
			max = n.SortOrder
		}
	}
	return max + 1
}

func (r *MemoryWikiNodesRepo) CreateNode(_ context.Context, node *domain.WikiNode) (string, error) {
	if node.Name == "" {
		return "", fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if node.NodeType != domain.NodeTypeFolder && node.NodeType != domain.NodeTypeFile {
		return "", fmt.Errorf("invalid node type %q: %w", node.NodeType, domain.ErrValidation)
	}
	if node.ParentID == nil && node.IsFile() {
		return "", fmt.Errorf("files must be created under a folder: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	depth := 0
	if node.ParentID != nil {
		parent, err := r.liveNode(*node.ParentID)
		if err != nil {
			return "", err
		}
		if !parent.IsFolder() {
			return "", fmt.Errorf("parent %s is not a folder: %w", *node.ParentID, domain.ErrValidation)
		}
		depth = parent.Depth + 1
	}

	stored := cloneNode(node)
	if stored.NodeID == "" {
		stored.NodeID = uuid.NewString()
	}
	stored.Depth = depth
	stored.SortOrder = r.nextSortOrder(node.ParentID, stored.NodeID)
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.UpdatedBy = stored.CreatedBy
	stored.DeletedAt = nil

	r.nodes[stored.NodeID] = stored
	return stored.NodeID, nil
}

func (r *MemoryWikiNodesRepo) RenameNode(_ context.Context, nodeID, name, updatedBy string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}
	n.Name = name
	n.UpdatedBy = updatedBy
	n.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWikiNodesRepo) UpdateFolder(_ context.Context, nodeID string, upd FolderUpdate) error {
	if upd.Name == nil && upd.SortOrder == nil {
		return fmt.Errorf("no fields to update: %w", domain.ErrValidation)
	}
	if upd.Name != nil && *upd.Name == "" {
		return fmt.Errorf("name must not be empty: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}
	if !n.IsFolder() {
		return fmt.Errorf("wiki node %s: %w", nodeID, domain.ErrNotFound)
	}
	if upd.Name != nil {
		n.Name = *upd.Name
	}
	if upd.SortOrder != nil {
		n.SortOrder = *upd.SortOrder
	}
	n.UpdatedBy = upd.UpdatedBy
	n.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWikiNodesRepo) UpdateFile(_ context.Context, nodeID string, upd FileUpdate) error {
	if upd.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}
	if !n.IsFile() {
		return fmt.Errorf("wiki node %s: %w", nodeID, domain.ErrNotFound)
	}
	n.Name = upd.Name
	n.Title = upd.Title
	n.Content = upd.Content
	n.Attachments = upd.Attachments
	n.UpdatedBy = upd.UpdatedBy
	n.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWikiNodesRepo) SetPublic(_ context.Context, nodeID string, upd PublicUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}
	n.IsPublic = upd.IsPublic
	if n.IsFolder() {
		if upd.IsPublic {
			n.PermissionRankIDs = nil
			n.PermissionPositionIDs = nil
			n.PermissionDepartmentIDs = nil
		} else {
			n.PermissionRankIDs = cloneStrings(upd.RankIDs)
			n.PermissionPositionIDs = cloneStrings(upd.PositionIDs)
			n.PermissionDepartmentIDs = cloneStrings(upd.DepartmentIDs)
		}
	}
	n.UpdatedBy = upd.UpdatedBy
	n.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWikiNodesRepo) MoveNode(_ context.Context, nodeID string, newParentID *string, updatedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}

	newDepth := 0
	if newParentID != nil {
		if *newParentID == nodeID {
			return fmt.Errorf("cannot move a node under itself: %w", domain.ErrConflict)
		}
		parent, err := r.liveNode(*newParentID)
		if err != nil {
			return err
		}
		if !parent.IsFolder() {
			return fmt.Errorf("parent %s is not a folder: %w", *newParentID, domain.ErrValidation)
		}
		for cur := parent; cur.ParentID != nil; {
			if *cur.ParentID == nodeID {
				return fmt.Errorf("cannot move a node under its own descendant: %w", domain.ErrConflict)
			}
			next, err := r.liveNode(*cur.ParentID)
			if err != nil {
				return err
			}
			cur = next
		}
		newDepth = parent.Depth + 1
	} else if node.IsFile() {
		return fmt.Errorf("files must stay under a folder: %w", domain.ErrValidation)
	}

	delta := newDepth - node.Depth
	if delta != 0 {
		for _, n := range r.collectSubtree(nodeID) {
			n.Depth += delta
		}
	}
	node.ParentID = nil
	if newParentID != nil {
		p := *newParentID
		node.ParentID = &p
	}
	node.SortOrder = r.nextSortOrder(newParentID, nodeID)
	node.UpdatedBy = updatedBy
	node.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWikiNodesRepo) SoftDeleteSubtree(_ context.Context, nodeID, deletedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.liveNode(nodeID); err != nil {
		return err
	}
	now := time.Now()
	for _, n := range r.collectSubtree(nodeID) {
		n.DeletedAt = &now
		n.UpdatedBy = deletedBy
		n.UpdatedAt = now
	}
	return nil
}

func (r *MemoryWikiNodesRepo) SoftDeleteNodeOnly(_ context.Context, nodeID, deletedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.liveNode(nodeID)
	if err != nil {
		return err
	}
	if !n.IsFolder() {
		return fmt.Errorf("node %s is not a folder: %w", nodeID, domain.ErrValidation)
	}
	if children := r.liveChildren(&nodeID); len(children) > 0 {
		return fmt.Errorf("folder %s has %d children: %w", nodeID, len(children), domain.ErrConflict)
	}
	now := time.Now()
	n.DeletedAt = &now
	n.UpdatedBy = deletedBy
	n.UpdatedAt = now
	return nil
}

// replacePermissionIDs is used by MemoryPermissionLogsRepo to rewrite a
// node's id sets under this repo's lock.
func (r *MemoryWikiNodesRepo) replacePermissionIDs(nodeID string, repl PermissionReplacement, updatedBy string) (ReplaceCounts, domain.PermissionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts ReplaceCounts
	n, err := r.liveNode(nodeID)
	if err != nil {
		return counts, domain.PermissionSnapshot{}, err
	}

	n.PermissionRankIDs, counts.Ranks = substituteIDs(n.PermissionRankIDs, repl.Ranks)
	n.PermissionPositionIDs, counts.Positions = substituteIDs(n.PermissionPositionIDs, repl.Positions)
	n.PermissionDepartmentIDs, counts.Departments = substituteIDs(n.PermissionDepartmentIDs, repl.Departments)
	n.UpdatedBy = updatedBy
	n.UpdatedAt = time.Now()

	snapshot := domain.PermissionSnapshot{
		RankIDs:       cloneStrings(n.PermissionRankIDs),
		PositionIDs:   cloneStrings(n.PermissionPositionIDs),
		DepartmentIDs: cloneStrings(n.PermissionDepartmentIDs),
	}
	return counts, snapshot, nil
}
