/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package swagger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDocumentIsValidYAML(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(Document(), &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for path, methods := range map[string][]string{
		"/sessions":                         {"post"},
		"/sessions/{session_id}":            {"delete"},
		"/sessions/{session_id}/visibility": {"put"},
		"/sessions/{session_id}/views":      {"get", "post"},
		"/views/{view_id}":                  {"get", "delete"},
		"/views/{view_id}/snapshot":         {"get"},
		"/views/{view_id}/refresh":          {"post"},
		"/healthz":                          {"get"},
	} {
		require.Contains(t, doc.Paths, path)
		for _, m := range methods {
			assert.Contains(t, doc.Paths[path], m, path)
		}
	}
}

func TestMount(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger.yaml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, Document(), w.Body.Bytes())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger", nil))
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/swagger.yaml", w.Header().Get("Location"))
}
