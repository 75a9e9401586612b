/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package swagger

import (
	_ "embed"
	"net/http"
)

//go:embed swagger.yaml
var document []byte

// Document returns the embedded OpenAPI document.
func Document() []byte {
	return document
}

// Mount attaches swagger.yaml to the given mux.
func Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(document)
	})

	mux.HandleFunc("GET /swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger.yaml", http.StatusMovedPermanently)
	})
}
