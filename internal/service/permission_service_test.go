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

func newPermissionFixture(t *testing.T) (*PermissionService, *WikiTreeService, *repository.MemoryPermissionLogsRepo) {
	t.Helper()
	nodes := repository.NewMemoryWikiNodesRepo()
	logs := repository.NewMemoryPermissionLogsRepo(nodes)
	tree := NewWikiTreeService(nodes, nil, zap.NewNop())
	perms := NewPermissionService(nodes, logs, zap.NewNop())
	return perms, tree, logs
}

func restrictFolder(t *testing.T, tree *WikiTreeService, folderID string, deptIDs, rankIDs, positionIDs []string) {
	t.Helper()
	_, err := tree.SetFolderPublic(context.Background(), folderID, &SetPublicRequest{
		IsPublic:                false,
		PermissionDepartmentIDs: deptIDs,
		PermissionRankIDs:       rankIDs,
		PermissionPositionIDs:   positionIDs,
	}, "admin-1")
	require.NoError(t, err)
}

func TestEffectivePermission_PublicChain(t *testing.T) {
	perms, tree, _ := newPermissionFixture(t)
	ctx := context.Background()

	root := mustCreateFolder(t, tree, "Docs", nil, true, nil)
	sub := mustCreateFolder(t, tree, "Guides", &root.NodeID, true, nil)
	file := mustCreateFile(t, tree, "guide.md", sub.NodeID)

	for _, id := range []string{root.NodeID, sub.NodeID, file.NodeID} {
		perm, err := perms.EffectivePermission(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ScopePublic, perm.Scope)
		assert.Empty(t, perm.SourceNodeID)
	}
}

func TestEffectivePermission_NearestRestrictedAncestorWins(t *testing.T) {
	perms, tree, _ := newPermissionFixture(t)
	ctx := context.Background()

	root := mustCreateFolder(t, tree, "Docs", nil, true, nil)
	restricted := mustCreateFolder(t, tree, "HR", &root.NodeID, true, nil)
	restrictFolder(t, tree, restricted.NodeID, []string{"dept-hr"}, []string{"rank-3"}, nil)
	// A public folder below the restricted one still resolves to it.
	inner := mustCreateFolder(t, tree, "Policies", &restricted.NodeID, true, nil)
	file := mustCreateFile(t, tree, "policy.md", inner.NodeID)

	perm, err := perms.EffectivePermission(ctx, file.NodeID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeRestricted, perm.Scope)
	assert.Equal(t, restricted.NodeID, perm.SourceNodeID)
	assert.Equal(t, []string{"dept-hr"}, perm.DepartmentIDs)
	assert.Equal(t, []string{"rank-3"}, perm.RankIDs)
}

func TestEffectivePermission_PrivateFileIsAdminOnly(t *testing.T) {
	perms, tree, _ := newPermissionFixture(t)
	ctx := context.Background()

	root := mustCreateFolder(t, tree, "Docs", nil, true, nil)
	file := mustCreateFile(t, tree, "secret.md", root.NodeID)
	_, err := tree.SetFilePublic(ctx, file.NodeID, false, "admin-1")
	require.NoError(t, err)

	perm, err := perms.EffectivePermission(ctx, file.NodeID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeAdminOnly, perm.Scope)
	// Private short-circuits: ancestors are not consulted.
	assert.Empty(t, perm.SourceNodeID)
}

func TestEffectivePermission_RestrictedToNobody(t *testing.T) {
	perms, tree, _ := newPermissionFixture(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "Vault", nil, true, nil)
	restrictFolder(t, tree, folder.NodeID, []string{}, []string{}, []string{})

	perm, err := perms.EffectivePermission(ctx, folder.NodeID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeRestricted, perm.Scope)
	assert.NotNil(t, perm.DepartmentIDs)
	assert.Empty(t, perm.DepartmentIDs)
}

func TestReplacePermissions_SubstitutesAndResolves(t *testing.T) {
	perms, tree, logs := newPermissionFixture(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, false, []string{"dept-old", "dept-keep"})

	_, err := logs.InsertDetected(ctx, &domain.WikiPermissionLog{
		NodeID:      folder.NodeID,
		InvalidKind: domain.InvalidKindDepartment,
		InvalidID:   "dept-old",
	})
	require.NoError(t, err)

	resp, err := perms.ReplacePermissions(ctx, folder.NodeID, &ReplacePermissionsRequest{
		Departments: map[string]string{"dept-old": "dept-new"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Counts.Departments)
	assert.Equal(t, 1, resp.ResolvedLogs)
	assert.ElementsMatch(t, []string{"dept-new", "dept-keep"}, resp.Node.PermissionDepartmentIDs)

	open, err := logs.ListOpenForNode(ctx, folder.NodeID)
	require.NoError(t, err)
	assert.Empty(t, open)

	resolved, err := logs.ListLogs(ctx, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].ResolvedBy)
	assert.Equal(t, "admin-1", *resolved[0].ResolvedBy)
}

func TestReplacePermissions_AbsentIDIsCountedNoOp(t *testing.T) {
	perms, tree, logs := newPermissionFixture(t)
	ctx := context.Background()

	folder := mustCreateFolder(t, tree, "HR", nil, false, []string{"dept-a"})

	resp, err := perms.ReplacePermissions(ctx, folder.NodeID, &ReplacePermissionsRequest{
		Departments: map[string]string{"dept-missing": "dept-new"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Counts.Departments)
	assert.Equal(t, 0, resp.ResolvedLogs)
	assert.Equal(t, []string{"dept-a"}, resp.Node.PermissionDepartmentIDs)

	// The admin action still leaves an audit row.
	resolved, err := logs.ListLogs(ctx, boolPtr(true))
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestReplacePermissions_Validation(t *testing.T) {
	perms, tree, _ := newPermissionFixture(t)
	ctx := context.Background()

	_, err := perms.ReplacePermissions(ctx, "missing", &ReplacePermissionsRequest{
		Departments: map[string]string{"a": "b"},
	}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	public := mustCreateFolder(t, tree, "Docs", nil, true, nil)
	_, err = perms.ReplacePermissions(ctx, public.NodeID, &ReplacePermissionsRequest{
		Departments: map[string]string{"a": "b"},
	}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = perms.ReplacePermissions(ctx, public.NodeID, &ReplacePermissionsRequest{}, "admin-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func boolPtr(b bool) *bool { return &b }
