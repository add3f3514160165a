package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"dindin/internal/core"
	"dindin/internal/installments"
	"dindin/internal/services"
)

const (
	maxBodyBytes = 64 << 10
	// HeaderUserID selects the ledger a request acts on.
	HeaderUserID = "X-User-ID"
)

// errBadRequest marks malformed input that never reached validation.
var errBadRequest = errors.New("malformed request")

// flexAmount accepts a decimal string ("1234,56") or a JSON number.
type flexAmount struct {
	raw string
	set bool
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("%w: amount must be a string or number", errBadRequest)
		}
		s = n.String()
	}
	a.raw, a.set = strings.TrimSpace(s), true
	return nil
}

type transactionPayload struct {
	Description  string          `json:"description"`
	Amount       flexAmount      `json:"amount"`
	AmountCents  *int64          `json:"amount_cents"`
	Date         string          `json:"date"`
	Category     *string         `json:"category"`
	AccountID    string          `json:"account_id"`
	Type         string          `json:"type"`
	Nature       string          `json:"nature"`
	Installments int             `json:"installments"`
	Mode         string          `json:"mode"`
	Renegotiate  *renegotiateDTO `json:"renegotiate"`
}

type renegotiateDTO struct {
	NewTotal      flexAmount `json:"new_total"`
	NewTotalCents *int64     `json:"new_total_cents"`
	NewCount      int        `json:"new_count"`
}

type askPayload struct {
	Question string `json:"question"`
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, errBadRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return nil
}

func parseAmount(a flexAmount, cents *int64) (core.Money, error) {
	if cents != nil {
		return core.Cents(*cents), nil
	}
	if !a.set {
		return core.Money{}, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	return core.ParseMoney(a.raw)
}

func (p transactionPayload) common() (core.Money, core.Date, core.TransactionType, core.Nature, error) {
	amount, err := parseAmount(p.Amount, p.AmountCents)
	if err != nil {
		return core.Money{}, core.Date{}, "", "", err
	}
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Money{}, core.Date{}, "", "", err
	}
	var typ core.TransactionType
	if p.Type != "" {
		if typ, err = core.ParseTransactionType(p.Type); err != nil {
			return core.Money{}, core.Date{}, "", "", err
		}
	}
	nature, err := core.ParseNature(p.Nature)
	if err != nil {
		return core.Money{}, core.Date{}, "", "", err
	}
	return amount, date, typ, nature, nil
}

func (p transactionPayload) toCreate() (services.CreateInput, error) {
	amount, date, typ, nature, err := p.common()
	if err != nil {
		return services.CreateInput{}, err
	}
	return services.CreateInput{
		Description:  sanitizeInput(p.Description),
		Amount:       amount,
		Date:         date,
		Category:     core.CategoryPtr(sanitizeInput(derefString(p.Category))),
		AccountID:    strings.TrimSpace(p.AccountID),
		Type:         typ,
		Nature:       nature,
		Installments: p.Installments,
	}, nil
}

// toRequest builds an edit. The amount is optional outside single mode.
func (p transactionPayload) toRequest(id string) (installments.Request, error) {
	mode, err := installments.ParseMode(p.Mode)
	if err != nil {
		return installments.Request{}, err
	}
	if mode != installments.Single && !p.Amount.set && p.AmountCents == nil {
		zero := int64(0)
		p.AmountCents = &zero
	}
	amount, date, typ, nature, err := p.common()
	if err != nil {
		return installments.Request{}, err
	}
	req := installments.Request{
		TargetID: id,
		Mode:     mode,
		Edit: installments.Edit{
			Description: sanitizeInput(p.Description),
			Amount:      amount,
			Date:        date,
			Category:    core.CategoryPtr(sanitizeInput(derefString(p.Category))),
			AccountID:   strings.TrimSpace(p.AccountID),
			Type:        typ,
			Nature:      nature,
		},
	}
	if p.Renegotiate != nil {
		total, err := parseAmount(p.Renegotiate.NewTotal, p.Renegotiate.NewTotalCents)
		if err != nil {
			return installments.Request{}, err
		}
		req.Renegotiation = &installments.Renegotiation{NewTotal: total, Count: p.Renegotiate.NewCount}
	}
	return req, nil
}

// userID returns the caller's ledger id, or fallback when the header is absent.
func userID(r *http.Request, fallback string) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return fallback, nil
	}
	if len(id) > 64 {
		return "", fmt.Errorf("%w: user id too long", errBadRequest)
	}
	for _, c := range id {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != '_' && c != '.' && c != '@' {
			return "", fmt.Errorf("%w: invalid user id", errBadRequest)
		}
	}
	return id, nil
}

// monthParam reads ?month=YYYY-MM, defaulting to the current month.
func monthParam(r *http.Request) (core.Period, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.CurrentPeriod(), nil
	}
	return core.ParsePeriod(v)
}

func deleteScopeParam(r *http.Request) (installments.DeleteScope, error) {
	return installments.ParseDeleteScope(strings.TrimSpace(r.URL.Query().Get("scope")))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sanitizeInput trims and drops control characters.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
