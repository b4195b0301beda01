package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardloop/guardloop/internal/hooks"
	"github.com/guardloop/guardloop/internal/model"
	"github.com/guardloop/guardloop/internal/session"
)

type preActionRequest struct {
	SessionID      string   `json:"session_id"`
	RequestText    string   `json:"request_text"`
	CandidateTools []string `json:"candidate_tools,omitempty"`
}

type midTrajectoryRequest struct {
	SessionID string                `json:"session_id"`
	Delta     model.TranscriptDelta `json:"delta"`
}

type postActionRequest struct {
	SessionID  string           `json:"session_id"`
	ToolResult model.ToolResult `json:"tool_result"`
}

type releaseRequest struct {
	DecisionID string `json:"decision_id"`
	ReviewerID string `json:"reviewer_id"`
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":     s.pipeline.Profile().Name,
		"config_hash": s.pipeline.ConfigHash(),
		"config":      s.pipeline.Config(),
	})
}

func (s *Server) handlePreAction(w http.ResponseWriter, r *http.Request) {
	var req preActionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.EvaluatePreAction(r.Context(), req.SessionID, req.RequestText, req.CandidateTools)
	s.respond(w, res, err)
}

func (s *Server) handleMidTrajectory(w http.ResponseWriter, r *http.Request) {
	var req midTrajectoryRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.EvaluateMidTrajectory(r.Context(), req.SessionID, &req.Delta)
	s.respond(w, res, err)
}

func (s *Server) handlePostAction(w http.ResponseWriter, r *http.Request) {
	var req postActionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.EvaluatePostAction(r.Context(), req.SessionID, &req.ToolResult)
	s.respond(w, res, err)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.Release(chi.URLParam(r, "id"), req.DecisionID, req.ReviewerID)
	s.respond(w, res, err)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.Terminate(chi.URLParam(r, "id"), req.Reason)
	s.respond(w, res, err)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipeline.Summary(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) respond(w http.ResponseWriter, res *hooks.Result, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError maps pipeline errors onto HTTP status codes. Caller
// mistakes are 4xx; state corruption is the only 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var inputErr *hooks.InputError
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.Is(err, hooks.ErrSessionNotFound),
		errors.Is(err, session.ErrDecisionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrTerminal),
		errors.Is(err, session.ErrNotReleasable):
		status = http.StatusConflict
	case errors.Is(err, hooks.ErrStateCorrupt):
		s.logger.Error("state corruption surfaced to API", "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
