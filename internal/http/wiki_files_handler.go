package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lumir-wiki/internal/domain"
	"lumir-wiki/internal/service"
)

const filesPrefix = "/admin/api/v1/wiki/files/"

// WikiFilesHandler serves the file side of the wiki tree API.
type WikiFilesHandler struct {
	tree   *service.WikiTreeService
	logger *zap.Logger
}

func NewWikiFilesHandler(tree *service.WikiTreeService, logger *zap.Logger) *WikiFilesHandler {
	return &WikiFilesHandler{tree: tree, logger: logger}
}

func (h *WikiFilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/admin/api/v1/wiki/files" && r.Method == http.MethodGet:
		h.ListFiles(w, r)
	case r.URL.Path == "/admin/api/v1/wiki/files" && r.Method == http.MethodPost:
		h.CreateFile(w, r)
	case r.URL.Path == filesPrefix+"search" && r.Method == http.MethodGet:
		h.SearchFiles(w, r)
	case r.URL.Path == filesPrefix+"empty" && r.Method == http.MethodPost:
		h.CreateEmptyFile(w, r)
	case strings.HasSuffix(r.URL.Path, "/path") && r.Method == http.MethodPatch:
		h.MoveFile(w, r)
	case strings.HasSuffix(r.URL.Path, "/public") && r.Method == http.MethodPatch:
		h.SetFilePublic(w, r)
	case strings.HasPrefix(r.URL.Path, filesPrefix) && r.Method == http.MethodGet:
		h.GetFile(w, r)
	case strings.HasPrefix(r.URL.Path, filesPrefix) && r.Method == http.MethodPut:
		h.UpdateFile(w, r)
	case strings.HasPrefix(r.URL.Path, filesPrefix) && r.Method == http.MethodDelete:
		h.DeleteFile(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *WikiFilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var folderID *string
	if v := strings.TrimSpace(r.URL.Query().Get("folder_id")); v != "" {
		folderID = &v
	}
	files, err := h.tree.ListFiles(ctx, folderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(files))
}

func (h *WikiFilesHandler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hits, err := h.tree.SearchFiles(ctx, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(hits))
}

func (h *WikiFilesHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}

	var req service.CreateFileRequest
	if err := readBodyJSON(r, 8<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	file, err := h.tree.CreateFile(ctx, &req, adminID)
	if err != nil {
		h.logger.Error("CreateFile failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(file))
}

// CreateEmptyFile creates a name-only placeholder document the admin
// fills in later.
func (h *WikiFilesHandler) CreateEmptyFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	req := service.CreateFileRequest{Name: payload.Name, ParentID: payload.ParentID}
	file, err := h.tree.CreateFile(ctx, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(file))
}

func (h *WikiFilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _, ok := pathUUID(w, r, filesPrefix)
	if !ok {
		return
	}
	file, err := h.tree.GetFile(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(file))
}

func (h *WikiFilesHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, filesPrefix)
	if !ok {
		return
	}

	var req service.UpdateFileRequest
	if err := readBodyJSON(r, 8<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	file, err := h.tree.UpdateFile(ctx, id, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(file))
}

func (h *WikiFilesHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, filesPrefix)
	if !ok {
		return
	}

	var req service.MoveNodeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	file, err := h.tree.MoveNode(ctx, id, domain.NodeTypeFile, &req, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(file))
}

func (h *WikiFilesHandler) SetFilePublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, filesPrefix)
	if !ok {
		return
	}

	var payload struct {
		IsPublic bool `json:"isPublic"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	file, err := h.tree.SetFilePublic(ctx, id, payload.IsPublic, adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(file))
}

func (h *WikiFilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, ok := adminIDFromReq(w, r)
	if !ok {
		return
	}
	id, _, ok := pathUUID(w, r, filesPrefix)
	if !ok {
		return
	}

	if err := h.tree.DeleteFile(ctx, id, adminID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
}
