//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pgEdge/venture-scout/internal/pipeline"
	"github.com/pgEdge/venture-scout/internal/report"
)

// progressBuffer bounds the progress events queued for a streaming
// client. A run emits far fewer checkpoints than this.
const progressBuffer = 32

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	RAGEnabled bool   `json:"rag_enabled"`
}

// AnalyzeRequest starts an analysis. The topic is used verbatim as the
// session key. Model and Temperature override the configured analysis
// model for this run and for questions on its report.
type AnalyzeRequest struct {
	Topic       string   `json:"topic"`
	Stream      bool     `json:"stream"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// AnalysesResponse is the response for the list analyses endpoint.
type AnalysesResponse struct {
	Analyses []pipeline.Info `json:"analyses"`
}

// HistoryResponse is the transcript of a topic.
type HistoryResponse struct {
	Topic    string             `json:"topic"`
	Messages []pipeline.Message `json:"messages"`
}

// StreamEvent is one Server-Sent Event of a streaming analysis. Type is
// "progress", "done" or "error".
type StreamEvent struct {
	Type     string                     `json:"type"`
	Progress *pipeline.Progress         `json:"progress,omitempty"`
	Result   *pipeline.AnalysisResponse `json:"result,omitempty"`
	Error    *ErrorDetail               `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleHealth handles the GET /v1/health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		RAGEnabled: s.analyses.RAGEnabled(),
	})
}

// handleListAnalyses handles the GET /v1/analyses endpoint.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	topics := s.analyses.Topics()
	if topics == nil {
		topics = []pipeline.Info{}
	}
	s.respondJSON(w, http.StatusOK, AnalysesResponse{Analyses: topics})
}

// handleAnalyze handles the POST /v1/analyses endpoint.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Topic) == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "topic is required")
		return
	}
	if t := req.Temperature; t != nil && (*t < 0 || *t > 2) {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"temperature must be between 0 and 2")
		return
	}
	opts := pipeline.Options{Model: req.Model, Temperature: req.Temperature}

	// A run outlives the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("failed to clear write deadline", "error", err)
	}

	if req.Stream {
		s.streamAnalysis(w, r, req.Topic, opts)
		return
	}

	resp, err := s.analyses.Analyze(r.Context(), req.Topic, opts, nil)
	if err != nil {
		s.logger.Error("analysis failed", "topic", req.Topic, "error", err)
		s.respondManagerError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// streamAnalysis runs an analysis and reports its progress using
// Server-Sent Events. The stream ends with a done or error event.
func (s *Server) streamAnalysis(w http.ResponseWriter, r *http.Request, topic string, opts pipeline.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "STREAMING_ERROR",
			"streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	type outcome struct {
		resp *pipeline.AnalysisResponse
		err  error
	}

	progress := make(chan pipeline.Progress, progressBuffer)
	done := make(chan outcome, 1)

	go func() {
		resp, err := s.analyses.Analyze(r.Context(), topic, opts, func(p pipeline.Progress) {
			// Never block the pipeline on a slow client.
			select {
			case progress <- p:
			default:
			}
		})
		done <- outcome{resp: resp, err: err}
	}()

	sendProgress := func(p pipeline.Progress) {
		s.sendSSE(w, flusher, StreamEvent{Type: "progress", Progress: &p})
	}

	for {
		select {
		case p := <-progress:
			sendProgress(p)

		case out := <-done:
		drain:
			for {
				select {
				case p := <-progress:
					sendProgress(p)
				default:
					break drain
				}
			}

			if out.err != nil {
				s.logger.Error("analysis failed", "topic", topic, "error", out.err)
				_, detail := errorFor(out.err)
				s.sendSSE(w, flusher, StreamEvent{Type: "error", Error: &detail})
				return
			}
			s.sendSSE(w, flusher, StreamEvent{Type: "done", Result: out.resp})
			return

		case <-r.Context().Done():
			s.logger.Debug("client disconnected during streaming", "topic", topic)
			return
		}
	}
}

// handleGetAnalysis handles the GET /v1/analyses/{topic} endpoint.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	detail, err := s.analyses.Analysis(r.PathValue("topic"))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

// handleDeleteAnalysis handles the DELETE /v1/analyses/{topic} endpoint.
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.analyses.Delete(r.PathValue("topic")); err != nil {
		s.respondManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuestion handles the POST /v1/analyses/{topic}/questions endpoint.
func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	var req pipeline.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "question is required")
		return
	}

	resp, err := s.analyses.Ask(r.Context(), topic, req)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleHistory handles the GET /v1/analyses/{topic}/history endpoint.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	messages, err := s.analyses.History(topic)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	if messages == nil {
		messages = []pipeline.Message{}
	}

	s.respondJSON(w, http.StatusOK, HistoryResponse{Topic: topic, Messages: messages})
}

// handleExport handles the GET /v1/analyses/{topic}/export endpoint.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	export, err := s.analyses.Export(r.PathValue("topic"), format)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": export.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		s.logger.Error("failed to write export", "error", err)
	}
}

// errorFor maps a manager error to an HTTP status and error detail.
func errorFor(err error) (int, ErrorDetail) {
	var pipelineErr *pipeline.PipelineError

	switch {
	case errors.Is(err, pipeline.ErrTopicNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "TOPIC_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, pipeline.ErrRAGUnavailable):
		return http.StatusConflict, ErrorDetail{Code: "RAG_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, pipeline.ErrSessionReplaced):
		return http.StatusConflict, ErrorDetail{Code: "TOPIC_REPLACED", Message: err.Error()}
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()}
	case errors.As(err, &pipelineErr):
		return http.StatusBadGateway, ErrorDetail{Code: "PIPELINE_FAILED", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error()}
}

// respondManagerError sends the error response matching err.
func (s *Server) respondManagerError(w http.ResponseWriter, err error) {
	status, detail := errorFor(err)
	s.respondError(w, status, detail.Code, detail.Message)
}

// sendSSE sends a Server-Sent Event.
func (s *Server) sendSSE(w http.ResponseWriter, flusher http.Flusher, event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal SSE event", "error", err)
		return
	}

	// SSE format: data: {json}\n\n
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		s.logger.Error("failed to write SSE event", "error", err)
		return
	}

	flusher.Flush()
}

// respondJSON sends a JSON response with RFC 8631 Link header for API discovery.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Link", `</v1/openapi.json>; rel="service-desc"`)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
