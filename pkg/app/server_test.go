/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/estatehub/portal-sync/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: "http://127.0.0.1:1"},
		Server:  config.ServerConfig{HTTPAddr: "127.0.0.1:0", ShutdownTimeoutSec: 1},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, s.Handler())

	// The pool has not been started yet.
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Polling.Comparator = "fuzzy"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return w.Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
}

func TestRunReportsListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = "127.0.0.1:-1"
	s, err := New(cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run to fail")
	}
}
