/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"net/http"

	"github.com/estatehub/portal-sync/pkg/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router returns the HTTP handler for the API.
func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	// -------------------------
	// Sessions
	// -------------------------
	mux.HandleFunc("POST /sessions", a.CreateSession)
	mux.HandleFunc("DELETE /sessions/{session_id}", a.CloseSession)
	mux.HandleFunc("PUT /sessions/{session_id}/visibility", a.SetVisibility)
	mux.HandleFunc("GET /sessions/{session_id}/views", a.ListViews)
	mux.HandleFunc("POST /sessions/{session_id}/views", a.CreateView)

	// -------------------------
	// Views
	// -------------------------
	mux.HandleFunc("GET /views/{view_id}", a.GetView)
	mux.HandleFunc("GET /views/{view_id}/snapshot", a.GetSnapshot)
	mux.HandleFunc("POST /views/{view_id}/refresh", a.RefreshView)
	mux.HandleFunc("DELETE /views/{view_id}", a.DeleteView)

	mux.HandleFunc("GET /healthz", a.HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	swagger.Mount(mux)

	return mux
}
