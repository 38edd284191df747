package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zpdzap/modidock/internal/broker"
	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/pathguard"
	"github.com/zpdzap/modidock/internal/registry"
)

var (
	errBadRequest = errors.New("bad request")
	errNotText    = errors.New("file is not valid UTF-8")
)

// errorBody is what clients see. Detail is a fixed string per code so nothing
// about the host filesystem leaks.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type apiError struct {
	status int
	body   errorBody
}

// --- Error mapping ---

func classify(err error) apiError {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apiError{http.StatusRequestEntityTooLarge, errorBody{"too_large", "request body is too large"}}
	case errors.Is(err, errBadRequest):
		return apiError{http.StatusBadRequest, errorBody{"bad_request", "request is missing required fields or is malformed"}}
	case errors.Is(err, errNotText):
		return apiError{http.StatusUnsupportedMediaType, errorBody{"not_text", "file is not UTF-8 text and cannot be edited here"}}
	case errors.Is(err, registry.ErrUnknownContainer):
		return apiError{http.StatusNotFound, errorBody{"not_found", "container is not managed here"}}
	case errors.Is(err, pathguard.ErrForbidden):
		return apiError{http.StatusForbidden, errorBody{"forbidden", "file is not editable for this container"}}
	case errors.Is(err, broker.ErrIO):
		return apiError{http.StatusInternalServerError, errorBody{"io_error", "file could not be read or written"}}
	case errors.Is(err, engine.ErrRuntime):
		return apiError{http.StatusInternalServerError, errorBody{"runtime_error", "container runtime request failed"}}
	default:
		return apiError{http.StatusInternalServerError, errorBody{"internal", "internal server error"}}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	level := slog.LevelInfo
	if e.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"code", e.body.Error,
		"err", err,
	)
	writeJSON(w, e.status, e.body)
}
