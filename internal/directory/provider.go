package directory

import "context"

// Snapshot is the current valid id universe of the HR directory.
type Snapshot struct {
	DepartmentIDs map[string]struct{}
	RankIDs       map[string]struct{}
	PositionIDs   map[string]struct{}
}

func (s *Snapshot) HasDepartment(id string) bool {
	_, ok := s.DepartmentIDs[id]
	return ok
}

func (s *Snapshot) HasRank(id string) bool {
	_, ok := s.RankIDs[id]
	return ok
}

func (s *Snapshot) HasPosition(id string) bool {
	_, ok := s.PositionIDs[id]
	return ok
}

// Provider supplies the current directory snapshot. Implementations must
// be safe for concurrent use; the reconciler and read-path triggers may
// call Snapshot from multiple goroutines.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// snapshotPayload is the wire/cache representation of a Snapshot.
type snapshotPayload struct {
	DepartmentIDs []string `json:"departmentIds"`
	RankIDs       []string `json:"rankIds"`
	PositionIDs   []string `json:"positionIds"`
}

func (p *snapshotPayload) toSnapshot() *Snapshot {
	snap := &Snapshot{
		DepartmentIDs: make(map[string]struct{}, len(p.DepartmentIDs)),
		RankIDs:       make(map[string]struct{}, len(p.RankIDs)),
		PositionIDs:   make(map[string]struct{}, len(p.PositionIDs)),
	}
	for _, id := range p.DepartmentIDs {
		snap.DepartmentIDs[id] = struct{}{}
	}
	for _, id := range p.RankIDs {
		snap.RankIDs[id] = struct{}{}
	}
	for _, id := range p.PositionIDs {
		snap.PositionIDs[id] = struct{}{}
	}
	return snap
}

func payloadFromSnapshot(s *Snapshot) *snapshotPayload {
	p := &snapshotPayload{
		DepartmentIDs: make([]string, 0, len(s.DepartmentIDs)),
		RankIDs:       make([]string, 0, len(s.RankIDs)),
		PositionIDs:   make([]string, 0, len(s.PositionIDs)),
	}
	for id := range s.DepartmentIDs {
		p.DepartmentIDs = append(p.DepartmentIDs, id)
	}
	for id := range s.RankIDs {
		p.RankIDs = append(p.RankIDs, id)
	}
	for id := range s.PositionIDs {
		p.PositionIDs = append(p.PositionIDs, id)
	}
	return p
}
