package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"lumir-wiki/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// statusForError maps domain error kinds to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), Fail(err.Error()))
}

// adminIDFromReq reads the acting admin's id, injected by the upstream
// gateway after authentication.
func adminIDFromReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	adminID := strings.TrimSpace(r.Header.Get("X-Admin-Id"))
	if adminID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("missing X-Admin-Id header"))
		return "", false
	}
	return adminID, true
}

// pathUUID extracts and validates the {id} path segment after prefix.
// Extra segments beyond the id are returned as rest ("" when none).
func pathUUID(w http.ResponseWriter, r *http.Request, prefix string) (id, rest string, ok bool) {
	tail := strings.TrimPrefix(r.URL.Path, prefix)
	id, rest, _ = strings.Cut(tail, "/")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid id: "+id))
		return "", "", false
	}
	return id, rest, true
}
