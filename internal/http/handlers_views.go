package http

import (
	"net/http"

	"dindin/internal/core"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.tx.Summary(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.tx.Breakdown(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDues lists fixed and installment expenses due within the week.
func (s *Server) handleDues(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	dues, err := s.tx.Dues(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]core.Transaction{"dues": nonNil(dues)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	u, err := s.tx.Profile(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
