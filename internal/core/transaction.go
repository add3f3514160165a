package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TransactionType classifies the movement of money.
type TransactionType string

const (
	TypeExpense     TransactionType = "expense"
	TypeIncome      TransactionType = "income"
	TypeLoan        TransactionType = "loan"
	TypeTransfer    TransactionType = "transfer"
	TypeLoanPayment TransactionType = "loan_payment"
)

// ParseTransactionType validates a wire value.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeLoan, TypeTransfer, TypeLoanPayment:
		return true
	}
	return false
}

// CountsAsExpense reports whether the type contributes to period expenses.
func (t TransactionType) CountsAsExpense() bool {
	return t == TypeExpense || t == TypeLoanPayment
}

// Nature refines a transaction type. NatureNone encodes as JSON null.
type Nature string

const (
	NatureNone         Nature = ""
	NatureFixed        Nature = "fixed"
	NatureVariable     Nature = "variable"
	NatureExtraIncome  Nature = "extra_income"
	NatureSalary       Nature = "salary"
	NatureLoanPayment  Nature = "loan_payment"
	NatureLoanReceived Nature = "loan_received"
	NatureInstallment  Nature = "installment"
)

// ParseNature validates a wire value. Empty input is NatureNone.
func ParseNature(s string) (Nature, error) {
	n := Nature(strings.TrimSpace(s))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidNature, s)
	}
	return n, nil
}

func (n Nature) Valid() bool {
	switch n {
	case NatureNone, NatureFixed, NatureVariable, NatureExtraIncome, NatureSalary,
		NatureLoanPayment, NatureLoanReceived, NatureInstallment:
		return true
	}
	return false
}

func (n Nature) MarshalJSON() ([]byte, error) {
	if n == NatureNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

func (n *Nature) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NatureNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNature, string(b))
	}
	parsed, err := ParseNature(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Transaction is one ledger record. Installment records additionally carry
// the chain attributes; a chain is identified only by InstallmentID.
type Transaction struct {
	ID                string          `json:"id"`
	AccountID         string          `json:"account_id"`
	Type              TransactionType `json:"type"`
	Nature            Nature          `json:"nature"`
	Description       string          `json:"description"`
	Category          *string         `json:"category"`
	Amount            Money           `json:"amount_cents"`
	Date              Date            `json:"date"`
	MonthReference    string          `json:"month_reference"`
	IsInstallment     bool            `json:"is_installment"`
	InstallmentID     string          `json:"installment_id,omitempty"`
	InstallmentNumber int             `json:"installment_number,omitempty"`
	TotalInstallments int             `json:"total_installments,omitempty"`
	OriginalAmount    Money           `json:"original_amount_cents,omitzero"`
}

// InChain reports whether the transaction belongs to an installment chain.
func (t Transaction) InChain() bool {
	return t.IsInstallment && t.InstallmentID != ""
}

// SetDate changes the date and re-derives the month reference.
func (t *Transaction) SetDate(d Date) {
	t.Date = d
	t.MonthReference = d.MonthReference()
}

// CategoryName returns the category or "" when unset.
func (t Transaction) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// SetCategory stores name, or clears the category when name is blank.
func (t *Transaction) SetCategory(name string) {
	t.Category = CategoryPtr(name)
}

// RefreshSuffix rewrites the " (i/N)" description suffix from the chain
// attributes. Standalone transactions lose any stale suffix.
func (t *Transaction) RefreshSuffix() {
	base := BaseDescription(t.Description)
	if t.InChain() {
		t.Description = InstallmentDescription(base, t.InstallmentNumber, t.TotalInstallments)
		return
	}
	t.Description = base
}

// Validate checks the fields a caller supplies when recording a transaction.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if !t.Nature.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidNature, t.Nature)
	}
	return nil
}

var suffixRe = regexp.MustCompile(`\s*\(\d+/\d+\)\s*$`)

// BaseDescription strips a trailing " (i/N)" installment suffix.
func BaseDescription(s string) string {
	return strings.TrimSpace(suffixRe.ReplaceAllString(s, ""))
}

// InstallmentDescription renders "<base> (i/N)".
func InstallmentDescription(base string, number, total int) string {
	return fmt.Sprintf("%s (%d/%d)", BaseDescription(base), number, total)
}

// CategoryPtr returns nil for a blank name.
func CategoryPtr(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}
