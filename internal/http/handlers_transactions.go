package http

import (
	"net/http"

	"dindin/internal/core"
)

type listResponse struct {
	Month        core.Period        `json:"month"`
	Transactions []core.Transaction `json:"transactions"`
}

// handleListTransactions returns the month's records, or every record when
// month=all.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("month") == "all" {
		txs, err := s.tx.Transactions(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": nonNil(txs)})
		return
	}
	p, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.tx.List(r.Context(), user, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Month: p, Transactions: nonNil(txs)})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var payload transactionPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := payload.toCreate()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tx.Create(r.Context(), user, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	var payload transactionPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := payload.toRequest(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tx.Update(r.Context(), user, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.Changed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "transaction not found", Code: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	scope, err := deleteScopeParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tx.Delete(r.Context(), user, r.PathValue("id"), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.Changed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "transaction not found", Code: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	progress, err := s.tx.Chain(r.Context(), user, r.PathValue("installmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func nonNil(txs []core.Transaction) []core.Transaction {
	if txs == nil {
		return []core.Transaction{}
	}
	return txs
}
