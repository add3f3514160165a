package http

import (
	"net/http"

	"dindin/internal/core"
	"dindin/internal/services"
)

type taskAccepted struct {
	TaskID string      `json:"task_id"`
	Month  core.Period `json:"month"`
	Status string      `json:"status"`
}

// assistantReady writes 503 when no assistant is configured.
func (s *Server) assistantReady(w http.ResponseWriter, r *http.Request) bool {
	if s.assistant == nil || !s.assistant.Enabled() {
		writeError(w, r, services.ErrAssistantDisabled)
		return false
	}
	return true
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.assistant.StartCategorization(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("Location", "/api/assistant/tasks/"+id).
		Body(taskAccepted{TaskID: id, Month: p, Status: "pending"}).
		Write(w)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	snap, err := s.assistant.Task(user, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	if err := s.assistant.CancelTask(user, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	text, err := s.assistant.Insights(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": p, "insights": text})
}

func (s *Server) handleAssistantSummary(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.assistant.Summary(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !s.assistantReady(w, r) {
		return
	}
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var payload askPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := s.assistant.Ask(r.Context(), user, sanitizeInput(payload.Question))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
