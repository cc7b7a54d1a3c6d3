package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeErr maps domain errors to responses; anything unexpected is logged
// and reported as 500.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := domain.IsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Validation failed", Errors: v})
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrConflict):
		writeDetail(w, http.StatusConflict, "Conflict")
	case errors.Is(err, domain.ErrUnauthorized):
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
	default:
		s.Logger.Error("handler_error",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.ValidationErrors{"body": fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// caller returns the authenticated account id; RequireUser guarantees it.
func caller(r *http.Request) domain.AccountID {
	id, _ := apimw.AccountID(r.Context())
	return id
}
