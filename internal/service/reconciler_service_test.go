package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lumir-wiki/internal/directory"
	"lumir-wiki/internal/repository"
)

func newReconcilerFixture(t *testing.T, provider directory.Provider) (*ReconcilerService, *WikiTreeService, *PermissionService, *repository.MemoryPermissionLogsRepo) {
	t.Helper()
	nodes := repository.NewMemoryWikiNodesRepo()
	logs := repository.NewMemoryPermissionLogsRepo(nodes)
	rec := NewReconcilerService(nodes, logs, provider, time.Hour, zap.NewNop())
	tree := NewWikiTreeService(nodes, rec, zap.NewNop())
	perms := NewPermissionService(nodes, logs, zap.NewNop())
	return rec, tree, perms, logs
}

func TestRunOnce_DetectsStaleIDsIdempotently(t *testing.T) {
	provider := directory.NewStaticProvider([]string{"dept-valid"}, []string{"rank-valid"}, nil)
	rec, tree, _, logs := newReconcilerFixture(t, provider)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, true, nil)
	restrictFolder(t, tree, folder.NodeID, []string{"dept-valid", "dept-gone"}, []string{"rank-valid"}, []string{"pos-gone"})

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 2, report.Detected) // dept-gone + pos-gone
	assert.Equal(t, 0, report.Failed)

	// A second pass over unchanged state appends nothing.
	report, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Detected)
	assert.Equal(t, 0, report.AutoResolved)

	open, err := logs.ListOpenForNode(ctx, folder.NodeID)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestRunOnce_AutoResolvesWhenIDReturns(t *testing.T) {
	provider := directory.NewStaticProvider(nil, nil, nil)
	rec, tree, _, logs := newReconcilerFixture(t, provider)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, true, nil)
	restrictFolder(t, tree, folder.NodeID, []string{"dept-1"}, nil, nil)

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Detected)

	// The department reappears in the directory (e.g. rename rollback).
	provider.SetDepartments([]string{"dept-1"})

	report, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Detected)
	assert.Equal(t, 1, report.AutoResolved)

	resolved, err := logs.ListLogs(ctx, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Nil(t, resolved[0].ResolvedBy) // system auto-resolution
	require.NotNil(t, resolved[0].Note)
	assert.Equal(t, "automatically resolved", *resolved[0].Note)
}

func TestRunOnce_AutoResolvesWhenIDRemovedFromNode(t *testing.T) {
	provider := directory.NewStaticProvider([]string{"dept-valid"}, nil, nil)
	rec, tree, _, logs := newReconcilerFixture(t, provider)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, true, nil)
	restrictFolder(t, tree, folder.NodeID, []string{"dept-gone"}, nil, nil)

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Detected)

	// Admin rewrites the restriction without the stale id.
	restrictFolder(t, tree, folder.NodeID, []string{"dept-valid"}, nil, nil)

	report, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AutoResolved)

	open, err := logs.ListOpenForNode(ctx, folder.NodeID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDetectThenReplace_NoRedetection(t *testing.T) {
	provider := directory.NewStaticProvider([]string{"dept-new"}, nil, nil)
	rec, tree, perms, logs := newReconcilerFixture(t, provider)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, true, nil)
	restrictFolder(t, tree, folder.NodeID, []string{"dept-old"}, nil, nil)

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Detected)

	resp, err := perms.ReplacePermissions(ctx, folder.NodeID, &ReplacePermissionsRequest{
		Departments: map[string]string{"dept-old": "dept-new"},
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, 1, resp.ResolvedLogs)

	// The repaired node is clean: nothing to detect, nothing open.
	report, err = rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Detected)
	assert.Equal(t, 0, report.AutoResolved)

	open, err := logs.ListOpenForNode(ctx, folder.NodeID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunOnce_SkipsPublicAndDeletedFolders(t *testing.T) {
	provider := directory.NewStaticProvider(nil, nil, nil)
	rec, tree, _, _ := newReconcilerFixture(t, provider)
	ctx := context.Background()

	public := mustCreateFolder(t, tree, "Public", nil, true, nil)
	_ = public
	deleted := mustCreateFolder(t, tree, "Gone", nil, true, nil)
	restrictFolder(t, tree, deleted.NodeID, []string{"dept-x"}, nil, nil)
	require.NoError(t, tree.DeleteFolder(ctx, deleted.NodeID, true, "admin-1"))

	report, err := rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.Equal(t, 0, report.Detected)
}

func TestTrigger_NeverBlocks(t *testing.T) {
	provider := directory.NewStaticProvider(nil, nil, nil)
	rec, _, _, _ := newReconcilerFixture(t, provider)

	// Without a running loop the buffered channel absorbs one request
	// and drops the rest.
	for i := 0; i < 10; i++ {
		rec.Trigger()
	}
}

func TestRun_TriggerCausesImmediatePass(t *testing.T) {
	provider := directory.NewStaticProvider(nil, nil, nil)
	rec, tree, _, logs := newReconcilerFixture(t, provider)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	folder := mustCreateFolder(t, tree, "HR", nil, true, nil)

	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	// Restrict after the startup pass, then nudge.
	restrictFolder(t, tree, folder.NodeID, []string{"dept-gone"}, nil, nil)
	rec.Trigger()

	require.Eventually(t, func() bool {
		open, err := logs.ListOpenForNode(context.Background(), folder.NodeID)
		return err == nil && len(open) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
