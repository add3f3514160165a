package installments

import (
	"dindin/internal/core"
	"dindin/internal/ledger"
)

// resolve rebuilds the chain from the anchor on: the tail becomes r.Count
// installments numbered k..k+r.Count-1, dated from the anchor's date and
// summing to r.NewTotal. Members before k keep amount and date but take the
// new total count and original amount.
func resolve(chain []core.Transaction, anchor core.Transaction, r Renegotiation, newID func() string) (ledger.Changeset, error) {
	parts, err := r.NewTotal.Split(r.Count)
	if err != nil {
		return ledger.Changeset{}, err
	}
	k := anchor.InstallmentNumber
	last := k + r.Count - 1

	existing := make(map[int]core.Transaction, len(chain))
	var past core.Money
	for _, m := range chain {
		existing[m.InstallmentNumber] = m
		if m.InstallmentNumber < k {
			past = past.Add(m.Amount)
		}
	}
	original := past.Add(r.NewTotal)

	var cs ledger.Changeset
	for _, m := range chain {
		switch {
		case m.InstallmentNumber < k:
			m.TotalInstallments = last
			m.OriginalAmount = original
			m.RefreshSuffix()
			cs.Upserts = append(cs.Upserts, m)
		case m.InstallmentNumber > last:
			cs.Removes = append(cs.Removes, m.ID)
		}
	}

	for i := 0; i < r.Count; i++ {
		num := k + i
		m, ok := existing[num]
		switch {
		case num == k:
			m = anchor
		case !ok:
			m = anchor
			m.ID = newID()
		}
		m.Type = anchor.Type
		m.Nature = anchor.Nature
		m.Description = anchor.Description
		m.Category = anchor.Category
		m.AccountID = anchor.AccountID
		m.IsInstallment = true
		m.InstallmentID = anchor.InstallmentID
		m.InstallmentNumber = num
		m.TotalInstallments = last
		m.OriginalAmount = original
		m.Amount = parts[i]
		m.SetDate(anchor.Date.AddMonths(i))
		m.RefreshSuffix()
		cs.Upserts = append(cs.Upserts, m)
	}
	return cs, nil
}
