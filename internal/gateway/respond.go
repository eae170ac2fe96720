package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
)

// maxBodyBytes caps request bodies. Tool arguments are the largest
// legitimate payload and fit comfortably.
const maxBodyBytes = 1 << 20

// errorBody is the uniform failure envelope. Details appear only when
// the error carries structured context.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Error(context.Background(), "json encode error", "error", err)
	}
}

// writeError maps an error chain to the structured failure envelope.
// Classified errors keep their message; anything else is an opaque 500
// so internal detail never leaks.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		s.deps.Logger.Error(r.Context(), "unclassified handler error",
			"method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "internal server error",
			Code:  string(apperr.KindInternal),
		})
		return
	}

	status := apperr.HTTPStatus(appErr.Kind)
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error(r.Context(), "handler error",
			"method", r.Method, "path", r.URL.Path, "kind", string(appErr.Kind), "error", err)
		s.writeJSON(w, status, errorBody{
			Error: "internal server error",
			Code:  appErr.Code(),
		})
		return
	}

	s.writeJSON(w, status, errorBody{
		Error:   appErr.Message,
		Code:    appErr.Code(),
		Details: appErr.Details,
	})
}

// decodeJSON reads a bounded JSON request body. Failures come back as
// validation errors ready for writeError.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}
