package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"dindin/internal/core"
	"dindin/internal/installments"
	applog "dindin/internal/log"
	"dindin/internal/services"
	"dindin/internal/tasks"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the response. A nil body writes only the status line.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// writeError maps err to a status and logs server-side failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		applog.FromContext(r.Context()).Error("Request failed",
			slog.String(applog.FieldOperation, r.Method+" "+r.URL.Path),
			slog.String(applog.FieldError, msg))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

var validationErrors = []error{
	errBadRequest,
	core.ErrInvalidAmount, core.ErrEmptyDescription, core.ErrDescriptionTooLong,
	core.ErrMissingAccount, core.ErrUnknownAccount, core.ErrNoAccounts,
	core.ErrInvalidType, core.ErrInvalidNature, core.ErrInvalidInstallments,
	core.ErrInvalidDate, core.ErrInvalidPeriod, core.ErrInvalidDay, core.ErrInvalidMonth,
	installments.ErrInstallmentType, installments.ErrUnknownMode, installments.ErrUnknownScope,
	services.ErrEmptyQuestion,
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, installments.ErrModeRequiresChain), errors.Is(err, installments.ErrMissingRenegotiation):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, services.ErrAssistantDisabled):
		return http.StatusServiceUnavailable, "assistant_disabled"
	case errors.Is(err, tasks.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest, "invalid_request"
		}
	}
	return http.StatusInternalServerError, "internal"
}
