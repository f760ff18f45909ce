package rag

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/achouhan93/clusterchat-go/internal/observability"
)

// Server exposes the §4.11/§6 HTTP API over a Processor.
type Server struct {
	processor *Processor
	mux       *http.ServeMux
}

// NewServer builds the RAG HTTP API server wired to processor.
func NewServer(processor *Processor) *Server {
	s := &Server{processor: processor, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("POST /embed", s.handleEmbed)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.processor.Ask(r.Context(), req)
	if err != nil {
		var invalid *InvalidRequestError
		if errors.As(err, &invalid) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		observability.LoggerWithTrace(r.Context()).Error().Err(err).
			Str("question_type", req.QuestionType).Msg("rag: ask failed")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type embedRequest struct {
	Query string `json:"query"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, errors.New("query must not be empty"))
		return
	}

	vector, err := s.processor.Embed(r.Context(), req.Query)
	if err != nil {
		observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("rag: embed failed")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, embedResponse{Embedding: vector})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
