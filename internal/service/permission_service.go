package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
)

// maxAncestorWalk bounds the upward permission walk; matches the tree
// depth limit enforced by the node repository.
const maxAncestorWalk = 64

// PermissionService resolves effective permissions through the ancestor
// chain and performs the admin replace-permissions repair.
type PermissionService struct {
	nodes  repository.WikiNodesRepository
	logs   repository.PermissionLogsRepository
	logger *zap.Logger
}

func NewPermissionService(nodes repository.WikiNodesRepository, logs repository.PermissionLogsRepository, logger *zap.Logger) *PermissionService {
	return &PermissionService{nodes: nodes, logs: logs, logger: logger}
}

// ReplacePermissionsRequest maps invalid stored ids to their current
// directory equivalents, per id kind.
type ReplacePermissionsRequest struct {
	Departments map[string]string `json:"departments"`
	Ranks       map[string]string `json:"ranks"`
	Positions   map[string]string `json:"positions"`
	Note        string            `json:"note"`
}

// ReplacePermissionsResponse reports what the repair touched.
type ReplacePermissionsResponse struct {
	Node         *domain.WikiNode          `json:"node"`
	Counts       repository.ReplaceCounts  `json:"counts"`
	ResolvedLogs int                       `json:"resolvedLogs"`
}

// EffectivePermission resolves a node's visibility.
//
// Files: private is admin-only; public delegates to the parent folder.
// Folders: the first non-public folder walking upward wins; a chain of
// public folders all the way to the root is public.
func (s *PermissionService) EffectivePermission(ctx context.Context, nodeID string) (*domain.EffectivePermission, error) {
	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	cur := node
	if cur.IsFile() {
		if !cur.IsPublic {
			return &domain.EffectivePermission{Scope: domain.ScopeAdminOnly}, nil
		}
		if cur.ParentID == nil {
			return &domain.EffectivePermission{Scope: domain.ScopePublic}, nil
		}
		cur, err = s.nodes.GetNode(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < maxAncestorWalk; i++ {
		if cur.HasExplicitRestriction() {
			return &domain.EffectivePermission{
				Scope:         domain.ScopeRestricted,
				RankIDs:       cur.PermissionRankIDs,
				PositionIDs:   cur.PermissionPositionIDs,
				DepartmentIDs: cur.PermissionDepartmentIDs,
				SourceNodeID:  cur.NodeID,
			}, nil
		}
		if cur.ParentID == nil {
			return &domain.EffectivePermission{Scope: domain.ScopePublic}, nil
		}
		cur, err = s.nodes.GetNode(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("ancestor chain of node %s exceeds depth limit", nodeID)
}

// ReplacePermissions substitutes stale directory ids on one node and
// resolves the matching open drift logs in a single transaction.
func (s *PermissionService) ReplacePermissions(ctx context.Context, nodeID string, req *ReplacePermissionsRequest, adminID string) (*ReplacePermissionsResponse, error) {
	if len(req.Departments) == 0 && len(req.Ranks) == 0 && len(req.Positions) == 0 {
		return nil, fmt.Errorf("%w: no replacements given", domain.ErrValidation)
	}
	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if !node.HasExplicitRestriction() {
		return nil, fmt.Errorf("%w: node %s carries no explicit restriction", domain.ErrValidation, nodeID)
	}

	repl := repository.PermissionReplacement{
		Departments: req.Departments,
		Ranks:       req.Ranks,
		Positions:   req.Positions,
	}
	note := req.Note
	if note == "" {
		note = "permissions replaced by admin"
	}
	outcome, err := s.logs.ReplacePermissions(ctx, nodeID, repl, adminID, note)
	if err != nil {
		return nil, err
	}
	updated, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Replaced wiki permissions",
		zap.String("node_id", nodeID),
		zap.String("admin_id", adminID),
		zap.Int("replaced_departments", outcome.Counts.Departments),
		zap.Int("replaced_ranks", outcome.Counts.Ranks),
		zap.Int("replaced_positions", outcome.Counts.Positions),
		zap.Int("resolved_logs", outcome.ResolvedLogs))

	return &ReplacePermissionsResponse{
		Node:         updated,
		Counts:       outcome.Counts,
		ResolvedLogs: outcome.ResolvedLogs,
	}, nil
}
