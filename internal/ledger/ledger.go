// Package ledger holds a user's transactions in memory together with an
// explicit chain index (installment id -> ordered member ids).
//
// A Ledger is not safe for concurrent use; callers serialize access.
package ledger

import (
	"errors"
	"fmt"
	"slices"

	"dindin/internal/core"
)

var (
	ErrDuplicateID = errors.New("duplicate transaction id")
	ErrBrokenChain = errors.New("installment chain invariant violated")
)

// Changeset is a batch of mutations applied all-or-nothing.
type Changeset struct {
	Upserts []core.Transaction
	Removes []string
}

func (c Changeset) IsEmpty() bool { return len(c.Upserts) == 0 && len(c.Removes) == 0 }

// IDs lists every transaction id the changeset touches.
func (c Changeset) IDs() []string {
	ids := make([]string, 0, len(c.Upserts)+len(c.Removes))
	for _, t := range c.Upserts {
		ids = append(ids, t.ID)
	}
	return append(ids, c.Removes...)
}

// Ledger is an ordered transaction collection.
type Ledger struct {
	byID   map[string]core.Transaction
	order  []string
	chains map[string][]string
}

// New builds a ledger from stored transactions, rebuilding the chain index.
func New(txs []core.Transaction) (*Ledger, error) {
	l := &Ledger{
		byID:   make(map[string]core.Transaction, len(txs)),
		order:  make([]string, 0, len(txs)),
		chains: make(map[string][]string),
	}
	for _, t := range txs {
		if _, dup := l.byID[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		l.byID[t.ID] = t
		l.order = append(l.order, t.ID)
	}
	l.reindex()
	return l, nil
}

func (l *Ledger) Len() int { return len(l.order) }

// Get returns a copy of the transaction with the given id.
func (l *Ledger) Get(id string) (core.Transaction, bool) {
	t, ok := l.byID[id]
	return t, ok
}

// All returns the transactions in insertion order.
func (l *Ledger) All() []core.Transaction {
	out := make([]core.Transaction, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Chain returns the members of an installment chain ordered by number.
func (l *Ledger) Chain(installmentID string) []core.Transaction {
	ids := l.chains[installmentID]
	out := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.byID[id])
	}
	return out
}

// ChainIDs lists the installment ids currently indexed.
func (l *Ledger) ChainIDs() []string {
	ids := make([]string, 0, len(l.chains))
	for id := range l.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Apply validates the changeset against the chain invariants and applies
// it. On error nothing is changed. New ids are appended at the end.
func (l *Ledger) Apply(cs Changeset) error {
	next := make(map[string]core.Transaction, len(l.byID)+len(cs.Upserts))
	for id, t := range l.byID {
		next[id] = t
	}
	order := slices.Clone(l.order)
	touched := make(map[string]struct{})

	for _, id := range cs.Removes {
		if t, ok := next[id]; ok {
			if t.InChain() {
				touched[t.InstallmentID] = struct{}{}
			}
			delete(next, id)
		}
	}
	seen := make(map[string]struct{}, len(cs.Upserts))
	for _, t := range cs.Upserts {
		if t.ID == "" {
			return fmt.Errorf("%w: empty id", ErrDuplicateID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		seen[t.ID] = struct{}{}
		if prev, ok := l.byID[t.ID]; ok && prev.InChain() {
			touched[prev.InstallmentID] = struct{}{}
		}
		if _, exists := next[t.ID]; !exists {
			order = append(order, t.ID)
		}
		next[t.ID] = t
		if t.InChain() {
			touched[t.InstallmentID] = struct{}{}
		}
	}
	order = slices.DeleteFunc(order, func(id string) bool {
		_, ok := next[id]
		return !ok
	})

	for cid := range touched {
		if err := checkChain(cid, next); err != nil {
			return err
		}
	}

	l.byID = next
	l.order = compactOrder(order)
	l.reindex()
	return nil
}

func compactOrder(order []string) []string {
	seen := make(map[string]struct{}, len(order))
	return slices.DeleteFunc(order, func(id string) bool {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
		return false
	})
}

// checkChain verifies numbering is unique and contiguous, that every member
// agrees on the total and that month references match dates.
func checkChain(cid string, txs map[string]core.Transaction) error {
	var members []core.Transaction
	for _, t := range txs {
		if t.InChain() && t.InstallmentID == cid {
			members = append(members, t)
		}
	}
	if len(members) == 0 {
		return nil
	}
	slices.SortFunc(members, func(a, b core.Transaction) int { return a.InstallmentNumber - b.InstallmentNumber })
	start := members[0].InstallmentNumber
	if start < 1 {
		return fmt.Errorf("%w: chain %s starts at %d", ErrBrokenChain, cid, start)
	}
	total := members[0].TotalInstallments
	for i, m := range members {
		if m.InstallmentNumber != start+i {
			return fmt.Errorf("%w: chain %s numbering gap at %d", ErrBrokenChain, cid, m.InstallmentNumber)
		}
		if m.TotalInstallments != total {
			return fmt.Errorf("%w: chain %s disagrees on total", ErrBrokenChain, cid)
		}
		if m.MonthReference != m.Date.MonthReference() {
			return fmt.Errorf("%w: %s month reference %s for date %s", ErrBrokenChain, m.ID, m.MonthReference, m.Date)
		}
	}
	if last := members[len(members)-1].InstallmentNumber; last > total {
		return fmt.Errorf("%w: chain %s number %d exceeds total %d", ErrBrokenChain, cid, last, total)
	}
	return nil
}

func (l *Ledger) reindex() {
	clear(l.chains)
	for _, id := range l.order {
		t := l.byID[id]
		if t.InChain() {
			l.chains[t.InstallmentID] = append(l.chains[t.InstallmentID], id)
		}
	}
	for cid, ids := range l.chains {
		slices.SortStableFunc(ids, func(a, b string) int {
			return l.byID[a].InstallmentNumber - l.byID[b].InstallmentNumber
		})
		l.chains[cid] = ids
	}
}
