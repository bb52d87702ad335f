package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mapster/mapster/internal/common"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}

// duplicateDetail is the message shown when an owner reuses a name.
func duplicateDetail(name string) string {
	return fmt.Sprintf("An itinerary named '%s' already exists in your profile.", name)
}

// fail maps a service error onto a problem response. Ownership failures are
// reported exactly like missing records.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrPermission):
		writeProblem(w, http.StatusNotFound, "Not Found", "not found", r.URL.Path)
	case errors.Is(err, common.ErrDuplicateName):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
	case errors.As(err, &tooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), r.URL.Path)
	case errors.Is(err, common.ErrFilterParse), errors.Is(err, common.ErrInvalidWatermark),
		errors.Is(err, common.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrRefreshTokenExpired):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
	case errors.Is(err, common.ErrUserExists):
		writeProblem(w, http.StatusConflict, "Conflict", "username already taken", r.URL.Path)
	default:
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "internal error", r.URL.Path)
	}
}
