package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lumir-wiki/internal/directory"
	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
)

// ReconcilerService periodically compares every restricted folder's
// stored id sets against the HR directory snapshot, appending DETECTED
// logs for stale ids and auto-resolving logs whose id came back or was
// removed from the node.
//
// It runs on an interval and can be nudged between ticks via Trigger.
type ReconcilerService struct {
	nodes    repository.WikiNodesRepository
	logs     repository.PermissionLogsRepository
	provider directory.Provider
	interval time.Duration
	trigger  chan struct{}
	logger   *zap.Logger
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked      int `json:"checked"`
	Detected     int `json:"detected"`
	AutoResolved int `json:"autoResolved"`
	Failed       int `json:"failed"`
}

func NewReconcilerService(
	nodes repository.WikiNodesRepository,
	logs repository.PermissionLogsRepository,
	provider directory.Provider,
	interval time.Duration,
	logger *zap.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		nodes:    nodes,
		logs:     logs,
		provider: provider,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Trigger requests an out-of-band pass. Never blocks; a pending
// request absorbs further triggers until the loop drains it.
func (s *ReconcilerService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives the reconciliation loop until ctx is cancelled. One pass
// runs immediately on start so restarts do not wait a full interval.
func (s *ReconcilerService) Run(ctx context.Context) {
	s.logger.Info("Starting permission reconciler", zap.Duration("interval", s.interval))

	s.runAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping permission reconciler")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		case <-s.trigger:
			s.runAndLog(ctx)
		}
	}
}

func (s *ReconcilerService) runAndLog(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Reconciliation pass failed", zap.Error(err))
		return
	}
	s.logger.Info("Reconciliation pass finished",
		zap.Int("checked", report.Checked),
		zap.Int("detected", report.Detected),
		zap.Int("auto_resolved", report.AutoResolved),
		zap.Int("failed", report.Failed))
}

// RunOnce executes a single full pass. A failure on one node is
// counted and skipped so the rest of the tree still reconciles; only
// failures before any node work (snapshot fetch, folder listing) abort
// the pass.
func (s *ReconcilerService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	snap, err := s.provider.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := s.nodes.ListRestricted(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for _, folder := range folders {
		report.Checked++
		detected, resolved, err := s.reconcileNode(ctx, folder, snap)
		if err != nil {
			report.Failed++
			s.logger.Warn("Failed to reconcile node",
				zap.String("node_id", folder.NodeID),
				zap.Error(err))
			continue
		}
		report.Detected += detected
		report.AutoResolved += resolved
	}
	return report, nil
}

// reconcileNode checks one restricted folder: stale stored ids gain an
// open DETECTED log, and open logs whose id is valid again or no
// longer stored are auto-resolved.
func (s *ReconcilerService) reconcileNode(ctx context.Context, node *domain.WikiNode, snap *directory.Snapshot) (detected, resolved int, err error) {
	stored := map[domain.InvalidKind]map[string]bool{
		domain.InvalidKindDepartment: {},
		domain.InvalidKindRank:       {},
		domain.InvalidKindPosition:   {},
	}
	type staleID struct {
		kind domain.InvalidKind
		id   string
	}
	var stale []staleID

	collect := func(kind domain.InvalidKind, ids []string, valid func(string) bool) {
		for _, id := range ids {
			stored[kind][id] = true
			if !valid(id) {
				stale = append(stale, staleID{kind: kind, id: id})
			}
		}
	}
	collect(domain.InvalidKindDepartment, node.PermissionDepartmentIDs, snap.HasDepartment)
	collect(domain.InvalidKindRank, node.PermissionRankIDs, snap.HasRank)
	collect(domain.InvalidKindPosition, node.PermissionPositionIDs, snap.HasPosition)

	snapshot := domain.PermissionSnapshot{
		RankIDs:       node.PermissionRankIDs,
		PositionIDs:   node.PermissionPositionIDs,
		DepartmentIDs: node.PermissionDepartmentIDs,
	}
	for _, st := range stale {
		inserted, err := s.logs.InsertDetected(ctx, &domain.WikiPermissionLog{
			NodeID:      node.NodeID,
			Action:      domain.LogActionDetected,
			InvalidKind: st.kind,
			InvalidID:   st.id,
			Snapshot:    snapshot,
		})
		if err != nil {
			return detected, resolved, err
		}
		if inserted {
			detected++
			s.logger.Info("Detected stale permission id",
				zap.String("node_id", node.NodeID),
				zap.String("kind", string(st.kind)),
				zap.String("invalid_id", st.id))
		}
	}

	open, err := s.logs.ListOpenForNode(ctx, node.NodeID)
	if err != nil {
		return detected, resolved, err
	}
	for _, log := range open {
		if s.stillStale(log, stored, snap) {
			continue
		}
		n, err := s.logs.ResolveOpen(ctx, node.NodeID, log.InvalidKind, log.InvalidID, nil, "automatically resolved")
		if err != nil {
			return detected, resolved, err
		}
		resolved += n
	}
	return detected, resolved, nil
}

// stillStale reports whether an open detection remains justified: the
// id is still stored on the node and still missing from the directory.
func (s *ReconcilerService) stillStale(log *domain.WikiPermissionLog, stored map[domain.InvalidKind]map[string]bool, snap *directory.Snapshot) bool {
	if !stored[log.InvalidKind][log.InvalidID] {
		return false
	}
	switch log.InvalidKind {
	case domain.InvalidKindDepartment:
		return !snap.HasDepartment(log.InvalidID)
	case domain.InvalidKindRank:
		return !snap.HasRank(log.InvalidID)
	case domain.InvalidKindPosition:
		return !snap.HasPosition(log.InvalidID)
	}
	return false
}
