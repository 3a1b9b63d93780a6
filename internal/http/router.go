package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps the standard library http.ServeMux; no third-party
// routing dependency is needed for a prefix-dispatched admin API.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterWikiFolderRoutes registers the folder side of the tree API.
func (r *Router) RegisterWikiFolderRoutes(h *WikiFoldersHandler) {
	r.Handle("/admin/api/v1/wiki/folders", h.ServeHTTP)
	r.Handle("/admin/api/v1/wiki/folders/", h.ServeHTTP)
}

// RegisterWikiFileRoutes registers the file side of the tree API.
func (r *Router) RegisterWikiFileRoutes(h *WikiFilesHandler) {
	r.Handle("/admin/api/v1/wiki/files", h.ServeHTTP)
	r.Handle("/admin/api/v1/wiki/files/", h.ServeHTTP)
}

// RegisterPermissionLogRoutes registers the drift audit API plus the
// node-scoped permission endpoints under the bare wiki prefix.
func (r *Router) RegisterPermissionLogRoutes(h *PermissionLogsHandler) {
	r.Handle("/admin/api/v1/wiki/permission-logs", h.ServeHTTP)
	r.Handle("/admin/api/v1/wiki/permission-logs/", h.ServeHTTP)
	// /{id}/replace-permissions and /{id}/effective-permission; the
	// folders/files/permission-logs prefixes above win on longest match.
	r.Handle("/admin/api/v1/wiki/", h.ServeNodeScoped)
}
