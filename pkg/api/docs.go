package api

import (
	_ "embed"
	"net/http"
)

// openapiSpec is the hand-maintained contract for the /v1 surface; the
// swagger UI mounted at /docs/ renders it.
//
//go:embed openapi.yaml
var openapiSpec []byte

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapiSpec)
}
