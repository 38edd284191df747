package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/zpdzap/modidock/internal/broker"
	"github.com/zpdzap/modidock/internal/engine"
)

// statusWorkers bounds concurrent engine lookups for one listing.
const statusWorkers = 8

type fileView struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

type containerView struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"displayName"`
	Icon        string        `json:"icon"`
	Status      engine.Status `json:"status"`
	Files       []fileView    `json:"files"`
}

type fileContents struct {
	Contents string `json:"contents"`
}

type writeFileRequest struct {
	Container string  `json:"container"`
	File      string  `json:"file"`
	Contents  *string `json:"contents"`
}

func (r writeFileRequest) validate() error {
	switch {
	case r.Container == "":
		return fmt.Errorf("%w: container is required", errBadRequest)
	case r.File == "":
		return fmt.Errorf("%w: file is required", errBadRequest)
	case r.Contents == nil:
		return fmt.Errorf("%w: contents is required", errBadRequest)
	}
	return nil
}

type restartRequest struct {
	Container string `json:"container"`
}

func (r restartRequest) validate() error {
	if r.Container == "" {
		return fmt.Errorf("%w: container is required", errBadRequest)
	}
	return nil
}

type success struct {
	Success bool `json:"success"`
}

// --- Handlers ---

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog.Entries()
	views := make([]containerView, len(entries))

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(statusWorkers)
	for i, e := range entries {
		files := make([]fileView, len(e.AllowedFiles))
		for j, f := range e.AllowedFiles {
			files[j] = fileView{Path: f.RelativePath, Label: f.Label}
		}
		views[i] = containerView{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Icon:        e.Icon,
			Status:      engine.StatusUnknown,
			Files:       files,
		}
		g.Go(func() error {
			views[i].Status = s.containers.Status(ctx, e.ID)
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, rel := q.Get("container"), q.Get("file")
	if id == "" || rel == "" {
		s.writeError(w, r, fmt.Errorf("%w: container and file query parameters are required", errBadRequest))
		return
	}

	data, err := s.files.Read(r.Context(), id, rel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Contents travel as a JSON string; anything else would come back
	// rewritten on save.
	if !utf8.Valid(data) {
		s.writeError(w, r, errNotText)
		return
	}

	w.Header().Set("ETag", `"`+broker.Digest(data)+`"`)
	writeJSON(w, http.StatusOK, fileContents{Contents: string(data)})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.files.Write(r.Context(), req.Container, req.File, []byte(*req.Contents)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.containers.Restart(r.Context(), req.Container); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

type health struct {
	Status     string `json:"status"`
	Containers int    `json:"containers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, health{Status: "ok", Containers: len(s.catalog.Entries())})
}

// noRoute answers every /api/ request no route claimed: 405 for a known
// endpoint hit with the wrong method, 404 otherwise.
func (s *Server) noRoute(allowed map[string][]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if methods, ok := allowed[r.URL.Path]; ok {
			w.Header().Set("Allow", strings.Join(methods, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Detail: "method not allowed for this endpoint"})
			return
		}
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Detail: "no such endpoint"})
	})
}

// --- Encoding ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q", errBadRequest, ct)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after request body", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
