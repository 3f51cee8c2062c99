//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /v1/openapi.json", s.handleOpenAPI)
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)

	s.mux.HandleFunc("GET /v1/analyses", s.handleListAnalyses)
	s.mux.HandleFunc("POST /v1/analyses", s.handleAnalyze)
	s.mux.HandleFunc("GET /v1/analyses/{topic}", s.handleGetAnalysis)
	s.mux.HandleFunc("DELETE /v1/analyses/{topic}", s.handleDeleteAnalysis)
	s.mux.HandleFunc("POST /v1/analyses/{topic}/questions", s.handleQuestion)
	s.mux.HandleFunc("GET /v1/analyses/{topic}/history", s.handleHistory)
	s.mux.HandleFunc("GET /v1/analyses/{topic}/export", s.handleExport)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}
