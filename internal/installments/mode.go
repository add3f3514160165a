// Package installments expands purchases into installment chains and plans
// edits and deletions of existing chains.
//
// Every planner here is pure: it reads a Collection and returns a
// ledger.Changeset for the caller to apply.
package installments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dindin/internal/core"
)

var (
	ErrModeRequiresChain    = errors.New("propagation mode requires an installment chain")
	ErrMissingRenegotiation = errors.New("renegotiation requires a new total and installment count")
	ErrInstallmentType      = errors.New("installments are only available for expenses")
	ErrUnknownMode          = errors.New("unknown propagation mode")
	ErrUnknownScope         = errors.New("unknown delete scope")
)

// Collection is the read side of a transaction store.
type Collection interface {
	Get(id string) (core.Transaction, bool)
	Chain(installmentID string) []core.Transaction
}

// Mode selects how an edit of one installment propagates to its chain.
type Mode int

const (
	// Single edits only the target.
	Single Mode = iota
	// AllFuture copies descriptive fields to the target and later members.
	AllFuture
	// Renegotiate replaces the unpaid tail with a new schedule.
	Renegotiate
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return Single, nil
	case "all-future", "all_future", "future":
		return AllFuture, nil
	case "renegotiate":
		return Renegotiate, nil
	}
	return Single, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case AllFuture:
		return "all-future"
	case Renegotiate:
		return "renegotiate"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// DeleteScope selects how much of a chain a deletion removes.
type DeleteScope int

const (
	DeleteSingle DeleteScope = iota
	DeleteFuture
)

func ParseDeleteScope(s string) (DeleteScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return DeleteSingle, nil
	case "future", "all-future", "all_future":
		return DeleteFuture, nil
	}
	return DeleteSingle, fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

func (s DeleteScope) String() string {
	if s == DeleteFuture {
		return "future"
	}
	return "single"
}

// NewID returns a random transaction id.
func NewID() string { return uuid.NewString() }

// NewChainID returns a time-ordered id for a new installment chain.
func NewChainID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
