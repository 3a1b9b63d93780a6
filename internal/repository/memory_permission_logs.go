package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lumir-wiki/internal/domain"

	"github.com/google/uuid"
)

// MemoryPermissionLogsRepo keeps the drift audit trail in memory. It
// holds the memory nodes repo so ReplacePermissions can mirror the
// Postgres repo's single-transaction semantics.
type MemoryPermissionLogsRepo struct {
	mu         sync.Mutex
	nodes      *MemoryWikiNodesRepo
	logs       map[string]*domain.WikiPermissionLog
	dismissals map[string]map[string]struct{} // logID -> adminID set
}

func NewMemoryPermissionLogsRepo(nodes *MemoryWikiNodesRepo) *MemoryPermissionLogsRepo {
	return &MemoryPermissionLogsRepo{
		nodes:      nodes,
		logs:       map[string]*domain.WikiPermissionLog{},
		dismissals: map[string]map[string]struct{}{},
	}
}

var _ PermissionLogsRepository = (*MemoryPermissionLogsRepo)(nil)

func cloneLog(l *domain.WikiPermissionLog) *domain.WikiPermissionLog {
	c := *l
	c.Snapshot.RankIDs = cloneStrings(l.Snapshot.RankIDs)
	c.Snapshot.PositionIDs = cloneStrings(l.Snapshot.PositionIDs)
	c.Snapshot.DepartmentIDs = cloneStrings(l.Snapshot.DepartmentIDs)
	if l.ResolvedAt != nil {
		t := *l.ResolvedAt
		c.ResolvedAt = &t
	}
	if l.ResolvedBy != nil {
		s := *l.ResolvedBy
		c.ResolvedBy = &s
	}
	if l.Note != nil {
		s := *l.Note
		c.Note = &s
	}
	return &c
}

func (r *MemoryPermissionLogsRepo) openFor(nodeID string, kind domain.InvalidKind, invalidID string) *domain.WikiPermissionLog {
	for _, l := range r.logs {
		if l.Open() && l.NodeID == nodeID && l.InvalidKind == kind && l.InvalidID == invalidID {
			return l
		}
	}
	return nil
}

func (r *MemoryPermissionLogsRepo) InsertDetected(_ context.Context, log *domain.WikiPermissionLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.openFor(log.NodeID, log.InvalidKind, log.InvalidID) != nil {
		return false, nil
	}

	stored := cloneLog(log)
	if stored.LogID == "" {
		stored.LogID = uuid.NewString()
	}
	stored.Action = domain.LogActionDetected
	stored.DetectedAt = time.Now()
	stored.ResolvedAt = nil
	stored.ResolvedBy = nil
	r.logs[stored.LogID] = stored
	return true, nil
}

func (r *MemoryPermissionLogsRepo) resolveOpenLocked(nodeID string, kind domain.InvalidKind, invalidID string, resolvedBy *string, note string) int {
	resolved := 0
	now := time.Now()
	for _, l := range r.logs {
		if l.Open() && l.NodeID == nodeID && l.InvalidKind == kind && l.InvalidID == invalidID {
			l.Action = domain.LogActionResolved
			t := now
			l.ResolvedAt = &t
			l.ResolvedBy = nil
			if resolvedBy != nil {
				s := *resolvedBy
				l.ResolvedBy = &s
			}
			n := note
			l.Note = &n
			resolved++
		}
	}
	return resolved
}

func (r *MemoryPermissionLogsRepo) ResolveOpen(_ context.Context, nodeID string, kind domain.InvalidKind, invalidID string, resolvedBy *string, note string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveOpenLocked(nodeID, kind, invalidID, resolvedBy, note), nil
}

func (r *MemoryPermissionLogsRepo) appendResolvedLocked(log *domain.WikiPermissionLog) {
	stored := cloneLog(log)
	if stored.LogID == "" {
		stored.LogID = uuid.NewString()
	}
	stored.Action = domain.LogActionResolved
	now := time.Now()
	stored.DetectedAt = now
	stored.ResolvedAt = &now
	r.logs[stored.LogID] = stored
}

func (r *MemoryPermissionLogsRepo) AppendResolved(_ context.Context, log *domain.WikiPermissionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendResolvedLocked(log)
	return nil
}

func (r *MemoryPermissionLogsRepo) ReplacePermissions(_ context.Context, nodeID string, repl PermissionReplacement, resolvedBy string, note string) (*ReplaceOutcome, error) {
	counts, snapshot, err := r.nodes.replacePermissionIDs(nodeID, repl, resolvedBy)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := &ReplaceOutcome{Counts: counts}
	for _, m := range []struct {
		kind domain.InvalidKind
		ids  map[string]string
	}{
		{domain.InvalidKindRank, repl.Ranks},
		{domain.InvalidKindPosition, repl.Positions},
		{domain.InvalidKindDepartment, repl.Departments},
	} {
		for oldID := range m.ids {
			outcome.ResolvedLogs += r.resolveOpenLocked(nodeID, m.kind, oldID, &resolvedBy, note)
		}
	}

	if outcome.ResolvedLogs == 0 {
		r.appendResolvedLocked(&domain.WikiPermissionLog{
			NodeID:     nodeID,
			ResolvedBy: &resolvedBy,
			Note:       &note,
			Snapshot:   snapshot,
		})
	}
	return outcome, nil
}

func (r *MemoryPermissionLogsRepo) GetLog(_ context.Context, logID string) (*domain.WikiPermissionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[logID]
	if !ok {
		return nil, fmt.Errorf("permission log %s: %w", logID, domain.ErrNotFound)
	}
	return cloneLog(l), nil
}

func sortLogs(logs []*domain.WikiPermissionLog) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].DetectedAt.Equal(logs[j].DetectedAt) {
			return logs[i].DetectedAt.After(logs[j].DetectedAt)
		}
		return logs[i].LogID < logs[j].LogID
	})
}

func (r *MemoryPermissionLogsRepo) ListLogs(_ context.Context, resolved *bool) ([]*domain.WikiPermissionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WikiPermissionLog
	for _, l := range r.logs {
		if resolved != nil && *resolved == l.Open() {
			continue
		}
		out = append(out, cloneLog(l))
	}
	sortLogs(out)
	return out, nil
}

func (r *MemoryPermissionLogsRepo) ListOpenForNode(_ context.Context, nodeID string) ([]*domain.WikiPermissionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WikiPermissionLog
	for _, l := range r.logs {
		if l.Open() && l.NodeID == nodeID {
			out = append(out, cloneLog(l))
		}
	}
	sortLogs(out)
	return out, nil
}

func (r *MemoryPermissionLogsRepo) ListUnread(_ context.Context, adminID string) ([]*domain.WikiPermissionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WikiPermissionLog
	for _, l := range r.logs {
		if !l.Open() {
			continue
		}
		if _, dismissed := r.dismissals[l.LogID][adminID]; dismissed {
			continue
		}
		out = append(out, cloneLog(l))
	}
	sortLogs(out)
	return out, nil
}

func (r *MemoryPermissionLogsRepo) InsertDismissal(_ context.Context, logID, adminID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[logID]; !ok {
		return false, fmt.Errorf("permission log %s: %w", logID, domain.ErrNotFound)
	}
	if _, dismissed := r.dismissals[logID][adminID]; dismissed {
		return false, nil
	}
	if r.dismissals[logID] == nil {
		r.dismissals[logID] = map[string]struct{}{}
	}
	r.dismissals[logID][adminID] = struct{}{}
	return true, nil
}
