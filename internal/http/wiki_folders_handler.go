package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/service"
)

const foldersPrefix = "/admin/api/v1/wiki/folders/"

// WikiFoldersHandler serves the folder side of the wiki tree API.
type WikiFoldersHandler struct {
	tree   *service.WikiTreeService
	logger *zap.Logger
}

func NewWikiFoldersHandler(tree *service.WikiTreeService, logger *zap.Logger) *WikiFoldersHandler {
	return &WikiFoldersHandler{tree: tree, logger: logger}
}

func (h *WikiFoldersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/wiki/folders" && r.Method == http.MethodPost:
		h.CreateFolder(w, r)
	case r.URL.Path == foldersPrefix+"structure" && r.Method == http.MethodGet:
		h.GetStructure(w, r)
	case r.URL.Path == foldersPrefix+"by-path" && r.Method == http.MethodGet:
		h.GetByPath(w, r)
	case strings.HasSuffix(r.URL.Path, "/children") && r.Method == http.MethodGet:
		h.GetChildren(w, r)
	case strings.HasSuffix(r.URL.Path, "/name") && r.Method == http.MethodPatch:
		h.RenameFolder(w, r)
	case strings.HasSuffix(r.URL.Path, "/path") && r.Method == http.MethodPatch:
		h.MoveFolder(w, r)
	case strings.HasSuffix(r.URL.Path, "/public") && r.Method == http.MethodPatch:
		h.SetFolderPublic(w, r)
	case strings.HasSuffix(r.URL.Path, "/only") && r.Method == http.MethodDelete:
		h.DeleteFolderOnly(w, r)
	case strings.HasPrefix(r.URL.Path, foldersPrefix) && r.Method == http.MethodGet:
		h.GetFolder(w, r)
	case strings.HasPrefix(r.URL.Path, foldersPrefix) && r.Method == http.MethodPatch:
		h.UpdateFolder(w, r)
	case strings.HasPrefix(r.URL.Path, foldersPrefix) && r.Method == http.MethodDelete:
		h.DeleteFolder(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *WikiFoldersHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.CreateFolderRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	folder, err := h.tree.CreateFolder(ctx, &req, adminID)
	if err != nil {
		h.logger.Error("CreateFolder failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(folder))
}

func (h *WikiFoldersHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ancestorID *string
	if v := strings.TrimSpace(r.URL.Query().Get("ancestor_id")); v != "" {
		ancestorID = &v
	}
	resp, err := h.tree.Structure(ctx, ancestorID)
	if err != nil {
		h.logger.Error("GetStructure failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *WikiFoldersHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.tree.ByPath(ctx, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *WikiFoldersHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}
	folder, err := h.tree.GetFolder(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(folder))
}

func (h *WikiFoldersHandler) GetChildren(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}
	children, err := h.tree.Children(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(children))
}

func (h *WikiFoldersHandler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}

	var req service.UpdateFolderRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	folder, err := h.tree.UpdateFolder(ctx, id, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(folder))
}

func (h *WikiFoldersHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	folder, err := h.tree.RenameFolder(ctx, id, payload.Name, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(folder))
}

func (h *WikiFoldersHandler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}

	var req service.MoveNodeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	folder, err := h.tree.MoveNode(ctx, id, domain.NodeTypeFolder, &req, adminID)
	if err != nil {
		h.logger.Error("MoveFolder failed", zap.String("node_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(folder))
}

func (h *WikiFoldersHandler) SetFolderPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}

	var req service.SetPublicRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	folder, err := h.tree.SetFolderPublic(ctx, id, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(folder))
}

func (h *WikiFoldersHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	h.deleteFolder(w, r, true)
}

func (h *WikiFoldersHandler) DeleteFolderOnly(w http.ResponseWriter, r *http.Request) {
	h.deleteFolder(w, r, false)
}

func (h *WikiFoldersHandler) deleteFolder(w http.ResponseWriter, r *http.Request, cascade bool) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, foldersPrefix)
	if !ok {
		return
	}

	if err := h.tree.DeleteFolder(ctx, id, cascade, adminID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
}
