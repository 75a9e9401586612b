/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/pollctl"
	"github.com/estatehub/portal-sync/pkg/types"
	"github.com/estatehub/portal-sync/pkg/workerpool"
)

const maxBodyBytes = 1 << 20

type API struct {
	pool *workerpool.Pool
}

var logger = logging.New("api")

func NewAPI(pool *workerpool.Pool) *API {
	return &API{
		pool: pool,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

// writeFailure maps a pool error onto its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, workerpool.ErrSessionNotFound),
		errors.Is(err, workerpool.ErrViewNotFound):
		code = http.StatusNotFound
	case errors.Is(err, types.ErrUnknownResource),
		errors.Is(err, pollctl.ErrInvalidPolicy):
		code = http.StatusBadRequest
	case errors.Is(err, workerpool.ErrTooManyViews):
		code = http.StatusConflict
	case errors.Is(err, workerpool.ErrPoolClosed):
		code = http.StatusServiceUnavailable
	default:
		logger.Errorf("request failed: %v", err)
	}
	writeError(w, err.Error(), code)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// CreateSession registers a dashboard client. The body may carry the
// initial visibility; it defaults to visible.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.VisibilityRequest
	if err := decodeBody(r, w, &req); err != nil {
		logger.Warnf("invalid session body: %v", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	visible := req.Visible == nil || *req.Visible

	id, err := a.pool.CreateSession(visible)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.SessionResponse{SessionID: id, Visible: visible})
}

func (a *API) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.CloseSession(r.PathValue("session_id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetVisibility records whether the session's dashboard is in the
// foreground. It doubles as the session heartbeat.
func (a *API) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req types.VisibilityRequest
	if err := decodeBody(r, w, &req); err != nil {
		logger.Warnf("invalid visibility body: %v", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Visible == nil {
		writeError(w, "visible is required", http.StatusBadRequest)
		return
	}

	if err := a.pool.SetVisibility(r.PathValue("session_id"), *req.Visible); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ListViews(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	views, err := a.pool.ListViews(sessionID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ViewListResponse{SessionID: sessionID, Views: views})
}

func (a *API) CreateView(w http.ResponseWriter, r *http.Request) {
	var req types.CreateViewRequest
	if err := decodeBody(r, w, &req); err != nil {
		logger.Warnf("invalid view body: %v", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Resource) == "" {
		writeError(w, "resource is required", http.StatusBadRequest)
		return
	}

	view, err := a.pool.AddView(r.PathValue("session_id"), req.Resource, req.Query)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Location", "/views/"+view.ID)
	writeJSON(w, http.StatusCreated, types.CreateViewResponse{ViewID: view.ID})
}

func (a *API) GetView(w http.ResponseWriter, r *http.Request) {
	st, err := a.pool.ViewStatus(r.PathValue("view_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetSnapshot serves the latest payload of a view. A matching If-None-Match
// yields 304; a view that has not been fetched yet yields 204.
func (a *API) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := a.pool.Snapshot(r.PathValue("view_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h := w.Header()
	h.Set("ETag", snap.ETag)
	h.Set("Cache-Control", "no-cache")
	h.Set("Last-Modified", snap.FetchedAt.UTC().Format(http.TimeFormat))
	h.Set("X-Snapshot-Changed", strconv.FormatBool(snap.Changed))

	if etagMatches(r.Header.Get("If-None-Match"), snap.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(snap.Payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Payload)
}

func (a *API) RefreshView(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.RefreshView(r.PathValue("view_id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) DeleteView(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.RemoveView(r.PathValue("view_id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type HealthResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// HealthHandler implements a combined liveness/readiness check.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !a.pool.Running() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unavailable",
			Details: "worker pool is not running",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
