package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
)

func newLogFixture(t *testing.T) (*PermissionLogService, *repository.MemoryPermissionLogsRepo) {
	t.Helper()
	nodes := repository.NewMemoryWikiNodesRepo()
	logs := repository.NewMemoryPermissionLogsRepo(nodes)
	return NewPermissionLogService(logs, zap.NewNop()), logs
}

func insertOpenLog(t *testing.T, logs *repository.MemoryPermissionLogsRepo, nodeID, invalidID string) *domain.WikiPermissionLog {
	t.Helper()
	inserted, err := logs.InsertDetected(context.Background(), &domain.WikiPermissionLog{
		NodeID:      nodeID,
		InvalidKind: domain.InvalidKindDepartment,
		InvalidID:   invalidID,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	open, err := logs.ListOpenForNode(context.Background(), nodeID)
	require.NoError(t, err)
	for _, l := range open {
		if l.InvalidID == invalidID {
			return l
		}
	}
	t.Fatalf("inserted log for %s not found", invalidID)
	return nil
}

func TestDismiss_CountsRepeatsAndUnknownIDs(t *testing.T) {
	svc, logs := newLogFixture(t)
	ctx := context.Background()

	log := insertOpenLog(t, logs, "node-1", "dept-gone")

	resp, err := svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{log.LogID}}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Dismissed)
	assert.Equal(t, 0, resp.AlreadyDismissed)

	// Same admin again: counted, not an error.
	resp, err = svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{log.LogID, "00000000-0000-0000-0000-00000000dead"}}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Dismissed)
	assert.Equal(t, 1, resp.AlreadyDismissed)
	assert.Equal(t, []string{"00000000-0000-0000-0000-00000000dead"}, resp.NotFound)

	// A different admin has their own read state.
	resp, err = svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{log.LogID}}, "admin-2")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Dismissed)
}

func TestDismiss_Validation(t *testing.T) {
	svc, _ := newLogFixture(t)
	ctx := context.Background()

	_, err := svc.Dismiss(ctx, &DismissRequest{}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{" "}}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Malformed ids are rejected up front, never counted as notFound.
	_, err = svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{"not-a-uuid"}}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListUnread_FiltersPerAdmin(t *testing.T) {
	svc, logs := newLogFixture(t)
	ctx := context.Background()

	a := insertOpenLog(t, logs, "node-1", "dept-a")
	insertOpenLog(t, logs, "node-1", "dept-b")

	_, err := svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{a.LogID}}, "admin-1")
	require.NoError(t, err)

	unread, err := svc.ListUnread(ctx, "admin-1")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "dept-b", unread[0].InvalidID)

	// admin-2 never dismissed anything.
	unread, err = svc.ListUnread(ctx, "admin-2")
	require.NoError(t, err)
	assert.Len(t, unread, 2)
}

func TestListUnread_ExcludesResolvedButListLogsKeepsThem(t *testing.T) {
	svc, logs := newLogFixture(t)
	ctx := context.Background()

	insertOpenLog(t, logs, "node-1", "dept-a")
	_, err := logs.ResolveOpen(ctx, "node-1", domain.InvalidKindDepartment, "dept-a", nil, "automatically resolved")
	require.NoError(t, err)

	unread, err := svc.ListUnread(ctx, "admin-1")
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := svc.ListLogs(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	onlyOpen, err := svc.ListLogs(ctx, boolPtr(false))
	require.NoError(t, err)
	assert.Empty(t, onlyOpen)
}

func TestDismissalSurvivesResolution(t *testing.T) {
	svc, logs := newLogFixture(t)
	ctx := context.Background()

	log := insertOpenLog(t, logs, "node-1", "dept-a")
	_, err := svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{log.LogID}}, "admin-1")
	require.NoError(t, err)

	_, err = logs.ResolveOpen(ctx, "node-1", domain.InvalidKindDepartment, "dept-a", nil, "automatically resolved")
	require.NoError(t, err)

	// Re-dismissing after resolution is still the already-dismissed case.
	resp, err := svc.Dismiss(ctx, &DismissRequest{LogIDs: []string{log.LogID}}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AlreadyDismissed)
}
