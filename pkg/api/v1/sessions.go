// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 holds the versioned REST routes.
package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fwdslsh/dispatch-sub012/pkg/auth"
	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/runs"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

// SessionsRoutes defines the routes for session management.
type SessionsRoutes struct {
	orch *runs.Orchestrator
}

// SessionsRouter creates a new SessionsRoutes instance.
func SessionsRouter(orch *runs.Orchestrator) http.Handler {
	routes := SessionsRoutes{orch: orch}

	r := chi.NewRouter()
	r.Get("/", routes.listSessions)
	r.Post("/", routes.createSession)
	r.Get("/{id}", routes.getSession)
	r.Patch("/{id}", routes.updateSession)
	r.Delete("/{id}", routes.closeSession)
	r.Get("/{id}/events", routes.listEvents)

	return r
}

func (s *SessionsRoutes) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}

	q := r.URL.Query()
	filter := session.Filter{
		Kind:          q.Get("kind"),
		Status:        session.Status(q.Get("status")),
		WorkspacePath: q.Get("workspace"),
		PinnedOnly:    q.Get("pinned") == "true",
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, errors.NewInvalidArgumentError("unknown status "+string(filter.Status), nil))
		return
	}

	sessions, err := s.orch.List(r.Context(), identity.UserID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

func (s *SessionsRoutes) createSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidArgumentError("invalid request body", err))
		return
	}

	created, err := s.orch.Create(r.Context(), identity.UserID, runs.CreateOptions{
		Kind:          req.Kind,
		WorkspacePath: req.WorkspacePath,
		Title:         req.Title,
		Cols:          req.Cols,
		Rows:          req.Rows,
		Env:           req.Env,
		Argv:          req.Argv,
		ResumeFromID:  req.ResumeFromID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *SessionsRoutes) getSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}

	found, err := s.orch.Get(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// updateSession applies the mutable session fields: title and pinned.
// Absent fields are left unchanged.
func (s *SessionsRoutes) updateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}
	id := chi.URLParam(r, "id")

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidArgumentError("invalid request body", err))
		return
	}
	if req.Title == nil && req.Pinned == nil {
		writeError(w, errors.NewInvalidArgumentError("nothing to update", nil))
		return
	}

	if req.Title != nil {
		if err := s.orch.Rename(r.Context(), identity.UserID, id, *req.Title); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Pinned != nil {
		if err := s.orch.Pin(r.Context(), identity.UserID, id, *req.Pinned); err != nil {
			writeError(w, err)
			return
		}
	}

	updated, err := s.orch.Get(r.Context(), identity.UserID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *SessionsRoutes) closeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}

	if err := s.orch.Close(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *SessionsRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errors.NewNotAuthenticatedError("authentication required", nil))
		return
	}

	afterSeq, err := queryInt64(r, "afterSeq", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt64(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := s.orch.Events(r.Context(), identity.UserID, chi.URLParam(r, "id"), afterSeq, int(limit))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := eventListResponse{Events: events, NextAfterSeq: afterSeq}
	if len(events) > 0 {
		resp.NextAfterSeq = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.NewInvalidArgumentError(name+" must be an integer", err)
	}
	return val, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}

// writeError renders a typed core error as its HTTP equivalent.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.TypeOf(err)
	switch code {
	case errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrNotAuthenticated:
		status = http.StatusUnauthorized
	case errors.ErrNotAuthorized:
		status = http.StatusForbidden
	case errors.ErrInvalidArgument:
		status = http.StatusBadRequest
	case errors.ErrConflict, errors.ErrSessionClosed:
		status = http.StatusConflict
	case errors.ErrAdapterFailure:
		status = http.StatusBadGateway
	case errors.ErrOverflow:
		status = http.StatusTooManyRequests
	case errors.ErrStoreFailure:
		status = http.StatusInternalServerError
	default:
		code = errors.ErrStoreFailure
	}
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "code", code, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}

// Request and response types

type createSessionRequest struct {
	// Kind selects the adapter (pty, ai, web-view, ...).
	Kind string `json:"kind"`
	// WorkspacePath is resolved against the configured workspace root.
	WorkspacePath string `json:"workspacePath,omitempty"`
	Title         string `json:"title,omitempty"`
	Cols          int    `json:"cols,omitempty"`
	Rows          int    `json:"rows,omitempty"`
	// Env entries are merged over the server environment.
	Env  map[string]string `json:"env,omitempty"`
	Argv []string          `json:"argv,omitempty"`
	// ResumeFromID seeds the session from a closed one of the same kind.
	ResumeFromID string `json:"resumeFromId,omitempty"`
}

type updateSessionRequest struct {
	Title  *string `json:"title,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}

type sessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
}

type eventListResponse struct {
	Events []session.Event `json:"events"`
	// NextAfterSeq is the cursor for the following page.
	NextAfterSeq int64 `json:"nextAfterSeq"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
