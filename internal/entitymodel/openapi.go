// Package entitymodel exposes the report API contract and the schema version
// shared by the record store backends.
package entitymodel

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPISpec returns a defensive copy of the embedded report API OpenAPI
// document.
func OpenAPISpec() []byte {
	return append([]byte(nil), openAPISpec...)
}

// NewOpenAPIHandler returns an http.Handler that serves the embedded OpenAPI
// YAML with a static content-type.
func NewOpenAPIHandler() http.Handler {
	spec := OpenAPISpec()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
	})
}
