package installments

import (
	"fmt"

	"dindin/internal/core"
	"dindin/internal/ledger"
)

// PlanDelete computes the removal of id. Deleting one chain member closes the
// numbering gap; DeleteFuture drops the member and every later one.
func PlanDelete(c Collection, id string, scope DeleteScope) (ledger.Changeset, Outcome, error) {
	target, ok := c.Get(id)
	if !ok {
		return ledger.Changeset{}, Outcome{}, nil
	}
	if !target.InChain() {
		if scope == DeleteFuture {
			return ledger.Changeset{}, Outcome{}, fmt.Errorf("%w: delete %s on %s", ErrModeRequiresChain, scope, id)
		}
		return ledger.Changeset{Removes: []string{id}}, Outcome{Changed: true, Target: target}, nil
	}

	chain := c.Chain(target.InstallmentID)
	k := target.InstallmentNumber
	var cs ledger.Changeset
	switch scope {
	case DeleteSingle:
		cs.Removes = []string{id}
		remaining := target.TotalInstallments - 1
		original := target.OriginalAmount.Sub(target.Amount)
		if original.Cents < 0 {
			original = core.Money{}
		}
		for _, m := range chain {
			if m.ID == id {
				continue
			}
			if m.InstallmentNumber > k {
				m.InstallmentNumber--
			}
			m.TotalInstallments = remaining
			m.OriginalAmount = original
			m.RefreshSuffix()
			cs.Upserts = append(cs.Upserts, m)
		}
	case DeleteFuture:
		var kept []core.Transaction
		var sum core.Money
		for _, m := range chain {
			if m.InstallmentNumber >= k {
				cs.Removes = append(cs.Removes, m.ID)
				continue
			}
			kept = append(kept, m)
			sum = sum.Add(m.Amount)
		}
		for _, m := range kept {
			m.TotalInstallments = k - 1
			m.OriginalAmount = sum
			m.RefreshSuffix()
			cs.Upserts = append(cs.Upserts, m)
		}
	default:
		return ledger.Changeset{}, Outcome{}, fmt.Errorf("%w: %d", ErrUnknownScope, int(scope))
	}
	return cs, Outcome{Changed: true, Target: target}, nil
}
