package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lumir-wiki/internal/service"
)

const (
	logsPrefix = "/admin/api/v1/wiki/permission-logs/"
	wikiPrefix = "/admin/api/v1/wiki/"
)

// PermissionLogsHandler serves the drift audit API and the node-scoped
// permission endpoints.
type PermissionLogsHandler struct {
	logs   *service.PermissionLogService
	perms  *service.PermissionService
	logger *zap.Logger
}

func NewPermissionLogsHandler(logs *service.PermissionLogService, perms *service.PermissionService, logger *zap.Logger) *PermissionLogsHandler {
	return &PermissionLogsHandler{logs: logs, perms: perms, logger: logger}
}

func (h *PermissionLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/wiki/permission-logs" && r.Method == http.MethodGet:
		h.ListLogs(w, r)
	case r.URL.Path == logsPrefix+"unread" && r.Method == http.MethodGet:
		h.ListUnread(w, r)
	case r.URL.Path == logsPrefix+"export" && r.Method == http.MethodGet:
		h.ExportLogs(w, r)
	case r.URL.Path == logsPrefix+"dismiss" && r.Method == http.MethodPatch:
		h.Dismiss(w, r)
	case strings.HasPrefix(r.URL.Path, logsPrefix) && r.Method == http.MethodGet:
		h.GetLog(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ServeNodeScoped dispatches /{nodeId}/replace-permissions and
// /{nodeId}/effective-permission under the bare wiki prefix.
func (h *PermissionLogsHandler) ServeNodeScoped(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/replace-permissions") && r.Method == http.MethodPatch:
		h.ReplacePermissions(w, r)
	case strings.HasSuffix(r.URL.Path, "/effective-permission") && r.Method == http.MethodGet:
		h.EffectivePermission(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PermissionLogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resolved *bool
	switch strings.TrimSpace(r.URL.Query().Get("resolved")) {
	case "true":
		v := true
		resolved = &v
	case "false":
		v := false
		resolved = &v
	}
	logs, err := h.logs.ListLogs(ctx, resolved)
	if err != nil {
		h.logger.Error("ListLogs failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(logs))
}

func (h *PermissionLogsHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	logs, err := h.logs.ListUnread(ctx, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(logs))
}

func (h *PermissionLogsHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _, ok := pathUUID(w, r, logsPrefix)
	if !ok {
		return
	}
	log, err := h.logs.GetLog(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(log))
}

func (h *PermissionLogsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.DismissRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	resp, err := h.logs.Dismiss(ctx, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *PermissionLogsHandler) ReplacePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, wikiPrefix)
	if !ok {
		return
	}

	var req service.ReplacePermissionsRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	resp, err := h.perms.ReplacePermissions(ctx, id, &req, adminID)
	if err != nil {
		h.logger.Error("ReplacePermissions failed", zap.String("node_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *PermissionLogsHandler) EffectivePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _, ok := pathUUID(w, r, wikiPrefix)
	if !ok {
		return
	}
	perm, err := h.perms.EffectivePermission(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(perm))
}
