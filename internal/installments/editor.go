package installments

import (
	"fmt"
	"strings"

	"dindin/internal/core"
	"dindin/internal/ledger"
)

// Edit carries the new field values of an edited transaction. Type and
// Nature are optional and only applied to standalone transactions.
type Edit struct {
	Description string
	Amount      core.Money
	Date        core.Date
	Category    *string
	AccountID   string
	Type        core.TransactionType
	Nature      core.Nature
}

func (e Edit) validate(mode Mode) error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	base := core.BaseDescription(e.Description)
	if strings.TrimSpace(base) == "" {
		return core.ErrEmptyDescription
	}
	if len(base) > core.MaxDescriptionLength {
		return core.ErrDescriptionTooLong
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return core.ErrMissingAccount
	}
	if mode == Single {
		if err := e.Amount.Validate(); err != nil {
			return err
		}
	}
	if e.Type != "" && !e.Type.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidType, e.Type)
	}
	if !e.Nature.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidNature, e.Nature)
	}
	return nil
}

// Renegotiation replaces the tail of a chain starting at the edited member
// with Count installments summing to NewTotal.
type Renegotiation struct {
	NewTotal core.Money
	Count    int
}

func (r Renegotiation) Validate() error {
	if r.Count < 1 || r.Count > core.MaxInstallments {
		return fmt.Errorf("%w: %d", core.ErrInvalidInstallments, r.Count)
	}
	return r.NewTotal.Validate()
}

// Request is an edit of one transaction.
type Request struct {
	TargetID      string
	Edit          Edit
	Mode          Mode
	Renegotiation *Renegotiation
}

// Outcome reports what a plan did. Changed is false when the target was not
// found; that is not an error.
type Outcome struct {
	Changed bool
	Target  core.Transaction
}

// Editor plans edits of transactions and installment chains.
type Editor struct {
	NewID func() string
}

func NewEditor() *Editor { return &Editor{NewID: NewID} }

// Plan computes the changeset for req without touching c. Validation and
// mode misuse are reported before anything is planned.
func (e *Editor) Plan(c Collection, req Request) (ledger.Changeset, Outcome, error) {
	target, ok := c.Get(req.TargetID)
	if !ok {
		return ledger.Changeset{}, Outcome{}, nil
	}
	if err := req.Edit.validate(req.Mode); err != nil {
		return ledger.Changeset{}, Outcome{}, err
	}
	if req.Mode != Single && !target.InChain() {
		return ledger.Changeset{}, Outcome{}, fmt.Errorf("%w: %s on %s", ErrModeRequiresChain, req.Mode, target.ID)
	}

	var cs ledger.Changeset
	switch req.Mode {
	case Single:
		cs.Upserts = []core.Transaction{editSingle(target, req.Edit)}
	case AllFuture:
		cs.Upserts = editFuture(c.Chain(target.InstallmentID), target.InstallmentNumber, req.Edit)
	case Renegotiate:
		if req.Renegotiation == nil {
			return ledger.Changeset{}, Outcome{}, ErrMissingRenegotiation
		}
		if err := req.Renegotiation.Validate(); err != nil {
			return ledger.Changeset{}, Outcome{}, err
		}
		anchor := applyDescriptive(target, req.Edit)
		anchor.SetDate(req.Edit.Date)
		var err error
		cs, err = resolve(c.Chain(target.InstallmentID), anchor, *req.Renegotiation, e.NewID)
		if err != nil {
			return ledger.Changeset{}, Outcome{}, err
		}
	default:
		return ledger.Changeset{}, Outcome{}, fmt.Errorf("%w: %d", ErrUnknownMode, int(req.Mode))
	}
	if err := checkMembers(cs.Upserts); err != nil {
		return ledger.Changeset{}, Outcome{}, err
	}

	out := Outcome{Changed: true, Target: target}
	for _, t := range cs.Upserts {
		if t.ID == target.ID {
			out.Target = t
		}
	}
	return cs, out, nil
}

// checkMembers rejects planned records whose date or rendered description
// cannot be stored, such as a tail pushed past the last representable year.
func checkMembers(txs []core.Transaction) error {
	for _, t := range txs {
		if err := t.Date.Validate(); err != nil {
			return fmt.Errorf("%s: %w", t.Description, err)
		}
		if len(t.Description) > core.MaxDescriptionLength {
			return core.ErrDescriptionTooLong
		}
	}
	return nil
}

func applyDescriptive(t core.Transaction, e Edit) core.Transaction {
	t.Description = core.BaseDescription(e.Description)
	t.Category = e.Category
	t.AccountID = e.AccountID
	t.RefreshSuffix()
	return t
}

func editSingle(t core.Transaction, e Edit) core.Transaction {
	t = applyDescriptive(t, e)
	t.Amount = e.Amount
	t.SetDate(e.Date)
	if !t.InChain() {
		if e.Type != "" {
			t.Type = e.Type
		}
		t.Nature = e.Nature
	}
	return t
}

// editFuture applies e to members numbered from k on. Member j is dated the
// edited date advanced by j-k months; amounts are kept.
func editFuture(chain []core.Transaction, k int, e Edit) []core.Transaction {
	var out []core.Transaction
	for _, m := range chain {
		if m.InstallmentNumber < k {
			continue
		}
		m = applyDescriptive(m, e)
		m.SetDate(e.Date.AddMonths(m.InstallmentNumber - k))
		out = append(out, m)
	}
	return out
}
