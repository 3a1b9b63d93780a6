package directory

import (
	"context"
	"sync"
)

// StaticProvider serves a fixed, mutable snapshot. Used when no
// directory service is configured (dev) and in tests.
type StaticProvider struct {
	mu          sync.RWMutex
	departments map[string]struct{}
	ranks       map[string]struct{}
	positions   map[string]struct{}
}

func NewStaticProvider(departmentIDs, rankIDs, positionIDs []string) *StaticProvider {
	p := &StaticProvider{
		departments: map[string]struct{}{},
		ranks:       map[string]struct{}{},
		positions:   map[string]struct{}{},
	}
	p.SetDepartments(departmentIDs)
	p.SetRanks(rankIDs)
	p.SetPositions(positionIDs)
	return p
}

func (p *StaticProvider) Snapshot(_ context.Context) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := &Snapshot{
		DepartmentIDs: make(map[string]struct{}, len(p.departments)),
		RankIDs:       make(map[string]struct{}, len(p.ranks)),
		PositionIDs:   make(map[string]struct{}, len(p.positions)),
	}
	for id := range p.departments {
		snap.DepartmentIDs[id] = struct{}{}
	}
	for id := range p.ranks {
		snap.RankIDs[id] = struct{}{}
	}
	for id := range p.positions {
		snap.PositionIDs[id] = struct{}{}
	}
	return snap, nil
}

func (p *StaticProvider) SetDepartments(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.departments = map[string]struct{}{}
	for _, id := range ids {
		p.departments[id] = struct{}{}
	}
}

func (p *StaticProvider) SetRanks(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ranks = map[string]struct{}{}
	for _, id := range ids {
		p.ranks[id] = struct{}{}
	}
}

func (p *StaticProvider) SetPositions(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = map[string]struct{}{}
	for _, id := range ids {
		p.positions[id] = struct{}{}
	}
}
