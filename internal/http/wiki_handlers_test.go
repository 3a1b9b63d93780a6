package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/repository"
	"lumir-wiki/internal/service"
)

type testEnv struct {
	router *Router
	nodes  *repository.MemoryWikiNodesRepo
	logs   *repository.MemoryPermissionLogsRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	nodes := repository.NewMemoryWikiNodesRepo()
	logs := repository.NewMemoryPermissionLogsRepo(nodes)

	tree := service.NewWikiTreeService(nodes, nil, logger)
	perms := service.NewPermissionService(nodes, logs, logger)
	logSvc := service.NewPermissionLogService(logs, logger)

	router := NewRouter(logger)
	router.RegisterWikiFolderRoutes(NewWikiFoldersHandler(tree, logger))
	router.RegisterWikiFileRoutes(NewWikiFilesHandler(tree, logger))
	router.RegisterPermissionLogRoutes(NewPermissionLogsHandler(logSvc, perms, logger))

	return &testEnv{router: router, nodes: nodes, logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Admin-Id", "admin-1")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func createFolderViaAPI(t *testing.T, e *testEnv, name string, parentID string) string {
	t.Helper()
	body := `{"name":"` + name + `"}`
	if parentID != "" {
		body = `{"name":"` + name + `","parentId":"` + parentID + `"}`
	}
	w := e.do(t, http.MethodPost, "/admin/api/v1/wiki/folders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	envelope := decodeResult(t, w)
	result := envelope["result"].(map[string]any)
	return result["id"].(string)
}

func TestCreateFolder_ReturnsEnvelope(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/admin/api/v1/wiki/folders", `{"name":"Docs"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeResult(t, w)
	assert.Equal(t, float64(2000), envelope["code"])
	assert.Equal(t, "success", envelope["type"])
	result := envelope["result"].(map[string]any)
	assert.Equal(t, "Docs", result["name"])
	assert.Equal(t, true, result["isPublic"])
}

func TestCreateFolder_MissingAdminHeader(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/v1/wiki/folders", strings.NewReader(`{"name":"Docs"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "X-Admin-Id")
}

func TestGetFolder_InvalidAndMissingIDs(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/4fa046a1-53e8-44a8-a539-f7b8b3b5f4a1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteFolderOnly_ConflictWhenNonEmpty(t *testing.T) {
	e := newTestEnv(t)

	rootID := createFolderViaAPI(t, e, "Docs", "")
	createFolderViaAPI(t, e, "Sub", rootID)

	w := e.do(t, http.MethodDelete, "/admin/api/v1/wiki/folders/"+rootID+"/only", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// Cascade delete clears the subtree.
	w = e.do(t, http.MethodDelete, "/admin/api/v1/wiki/folders/"+rootID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/"+rootID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFileLifecycleViaAPI(t *testing.T) {
	e := newTestEnv(t)

	folderID := createFolderViaAPI(t, e, "Docs", "")

	w := e.do(t, http.MethodPost, "/admin/api/v1/wiki/files",
		`{"name":"guide.md","parentId":"`+folderID+`","title":"Guide","content":"hello"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fileID := decodeResult(t, w)["result"].(map[string]any)["id"].(string)

	w = e.do(t, http.MethodPut, "/admin/api/v1/wiki/files/"+fileID,
		`{"name":"guide.md","title":"Guide v2","content":"updated"}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)["result"].(map[string]any)
	assert.Equal(t, "Guide v2", result["title"])

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/files/search?query=guide", "")
	require.Equal(t, http.StatusOK, w.Code)
	hits := decodeResult(t, w)["result"].([]any)
	require.Len(t, hits, 1)
	assert.Equal(t, "/Docs/guide.md", hits[0].(map[string]any)["path"])

	w = e.do(t, http.MethodDelete, "/admin/api/v1/wiki/files/"+fileID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFolderByPathAndStructureViaAPI(t *testing.T) {
	e := newTestEnv(t)

	rootID := createFolderViaAPI(t, e, "회의록", "")
	createFolderViaAPI(t, e, "2024", rootID)

	w := e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/by-path?path=/회의록/2024", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)["result"].(map[string]any)
	assert.Equal(t, "/회의록/2024", result["path"])

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/structure", "")
	require.Equal(t, http.StatusOK, w.Code)
	folders := decodeResult(t, w)["result"].(map[string]any)["folders"].([]any)
	require.Len(t, folders, 1)

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/folders/by-path?path=/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEffectivePermissionEndpoint(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	folderID := createFolderViaAPI(t, e, "HR", "")
	w := e.do(t, http.MethodPatch, "/admin/api/v1/wiki/folders/"+folderID+"/public",
		`{"isPublic":false,"permissionDepartmentIds":["dept-hr"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/"+folderID+"/effective-permission", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)["result"].(map[string]any)
	assert.Equal(t, "restricted", result["scope"])
	assert.Equal(t, folderID, result["sourceNodeId"])

	node, err := e.nodes.GetNode(ctx, folderID)
	require.NoError(t, err)
	assert.False(t, node.IsPublic)
}

func TestReplacePermissionsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	folderID := createFolderViaAPI(t, e, "HR", "")
	w := e.do(t, http.MethodPatch, "/admin/api/v1/wiki/folders/"+folderID+"/public",
		`{"isPublic":false,"permissionDepartmentIds":["dept-old"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := e.logs.InsertDetected(ctx, &domain.WikiPermissionLog{
		NodeID:      folderID,
		InvalidKind: domain.InvalidKindDepartment,
		InvalidID:   "dept-old",
	})
	require.NoError(t, err)

	w = e.do(t, http.MethodPatch, "/admin/api/v1/wiki/"+folderID+"/replace-permissions",
		`{"departments":{"dept-old":"dept-new"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)["result"].(map[string]any)
	assert.Equal(t, float64(1), result["resolvedLogs"])
	counts := result["counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["replacedDepartments"])
}

func TestPermissionLogListAndDismissViaAPI(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.logs.InsertDetected(ctx, &domain.WikiPermissionLog{
		NodeID:      "11111111-1111-1111-1111-111111111111",
		InvalidKind: domain.InvalidKindRank,
		InvalidID:   "rank-gone",
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/admin/api/v1/wiki/permission-logs/unread", "")
	require.Equal(t, http.StatusOK, w.Code)
	logs := decodeResult(t, w)["result"].([]any)
	require.Len(t, logs, 1)
	logID := logs[0].(map[string]any)["id"].(string)

	w = e.do(t, http.MethodPatch, "/admin/api/v1/wiki/permission-logs/dismiss",
		`{"logIds":["`+logID+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)["result"].(map[string]any)
	assert.Equal(t, float64(1), result["dismissed"])

	w = e.do(t, http.MethodGet, "/admin/api/v1/wiki/permission-logs/unread", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeResult(t, w)["result"])
}

func TestDismissEndpoint_RejectsMalformedLogID(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPatch, "/admin/api/v1/wiki/permission-logs/dismiss",
		`{"logIds":["not-a-uuid"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, "/admin/api/v1/wiki/permission-logs/dismiss",
		`{"logIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportLogsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.logs.InsertDetected(ctx, &domain.WikiPermissionLog{
		NodeID:      "11111111-1111-1111-1111-111111111111",
		InvalidKind: domain.InvalidKindPosition,
		InvalidID:   "pos-gone",
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/admin/api/v1/wiki/permission-logs/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
