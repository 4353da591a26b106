// Package server exposes the triage engine over HTTP. Handlers never
// return 5xx for engine degradation: collaborator failures surface as
// best-effort results, and malformed input yields safe defaults.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tabguard-ai/tabguard/internal/triage"
)

// Server wraps the HTTP surface for the triage engine.
type Server struct {
	mux    *http.ServeMux
	engine *triage.Engine
}

// NewServer wires routes against an assembled engine.
func NewServer(engine *triage.Engine) *Server {
	s := &Server{mux: http.NewServeMux(), engine: engine}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/classify", s.handleClassify)
	s.mux.HandleFunc("/v1/services", s.handleServices)
	s.mux.HandleFunc("/v1/sanitize", s.handleSanitize)
	s.mux.HandleFunc("/v1/risk/assess", s.handleRiskAssess)
	s.mux.HandleFunc("/v1/risk/explain", s.handleRiskExplain)

	return s
}

// Handler returns the route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	log.Printf("tabguard engine listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: response write failed: %v", err)
	}
}
