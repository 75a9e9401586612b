/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package types

import "time"

// ----------------------------
// API Request / Response Types
// ----------------------------

type SessionResponse struct {
	SessionID string `json:"session_id"`
	Visible   bool   `json:"visible"`
}

type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

type CreateViewRequest struct {
	Resource string            `json:"resource"`
	Query    map[string]string `json:"query,omitempty"`
}

type CreateViewResponse struct {
	ViewID string `json:"view_id"`
}

// ViewStatus is the poll state of a view as served to dashboard clients.
type ViewStatus struct {
	View
	IntervalMs      int64      `json:"interval_ms"`
	Paused          bool       `json:"paused"`
	UnchangedStreak int        `json:"unchanged_streak"`
	Visible         bool       `json:"visible"`
	Fetches         int64      `json:"fetches"`
	LastFetchAt     *time.Time `json:"last_fetch_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ETag            string     `json:"etag,omitempty"`
}

type ViewListResponse struct {
	SessionID string       `json:"session_id"`
	Views     []ViewStatus `json:"views"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
