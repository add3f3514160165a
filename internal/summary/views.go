package summary

import (
	"slices"

	"dindin/internal/core"
)

// DueWindowDays is how far ahead UpcomingDues looks.
const DueWindowDays = 7

type (
	// Breakdown splits a month's spending into installments, fixed and
	// variable parts.
	Breakdown struct {
		Period       string             `json:"period"`
		Total        core.Money         `json:"total_cents"`
		Installments core.Money         `json:"installments_cents"`
		Fixed        core.Money         `json:"fixed_cents"`
		Variable     core.Money         `json:"variable_cents"`
		Items        []core.Transaction `json:"items"`
	}

	// ChainProgress reports how much of an installment chain is paid.
	// A member counts as paid once its date is before today.
	ChainProgress struct {
		InstallmentID string             `json:"installment_id"`
		Description   string             `json:"description"`
		Total         core.Money         `json:"total_cents"`
		Paid          core.Money         `json:"paid_cents"`
		Remaining     core.Money         `json:"remaining_cents"`
		PaidCount     int                `json:"paid_count"`
		Count         int                `json:"count"`
		Members       []core.Transaction `json:"members"`
	}
)

// ExpenseBreakdown is the statement view of month p.
func ExpenseBreakdown(txs []core.Transaction, p core.Period) Breakdown {
	b := Breakdown{Period: p.String(), Items: []core.Transaction{}}
	for _, t := range InPeriod(txs, p) {
		if !t.Type.CountsAsExpense() {
			continue
		}
		b.Total = b.Total.Add(t.Amount)
		switch {
		case t.IsInstallment || t.Nature == core.NatureInstallment:
			b.Installments = b.Installments.Add(t.Amount)
		case t.Nature == core.NatureFixed:
			b.Fixed = b.Fixed.Add(t.Amount)
		}
		b.Items = append(b.Items, t)
	}
	b.Variable = b.Total.Sub(b.Installments).Sub(b.Fixed)
	slices.SortStableFunc(b.Items, func(x, y core.Transaction) int { return x.Date.Compare(y.Date.Time) })
	return b
}

// UpcomingDues lists fixed and installment expenses due within
// DueWindowDays of today, soonest first.
func UpcomingDues(txs []core.Transaction, today core.Date) []core.Transaction {
	limit := today.AddDays(DueWindowDays)
	out := []core.Transaction{}
	for _, t := range txs {
		if !t.Type.CountsAsExpense() {
			continue
		}
		if t.Nature != core.NatureFixed && t.Nature != core.NatureInstallment && !t.IsInstallment {
			continue
		}
		if t.Date.Before(today) || t.Date.After(limit) {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return a.Date.Compare(b.Date.Time) })
	return out
}

// Progress summarizes a chain in installment order as of today.
func Progress(chain []core.Transaction, today core.Date) ChainProgress {
	members := slices.Clone(chain)
	slices.SortFunc(members, func(a, b core.Transaction) int { return a.InstallmentNumber - b.InstallmentNumber })
	p := ChainProgress{Count: len(members), Members: members}
	if len(members) == 0 {
		p.Members = []core.Transaction{}
		return p
	}
	p.InstallmentID = members[0].InstallmentID
	p.Description = core.BaseDescription(members[0].Description)
	var sum core.Money
	for _, m := range members {
		sum = sum.Add(m.Amount)
		if m.Date.Before(today) {
			p.Paid = p.Paid.Add(m.Amount)
			p.PaidCount++
		}
	}
	p.Total = members[0].OriginalAmount
	if p.Total.IsZero() {
		p.Total = sum
	}
	p.Remaining = p.Total.Sub(p.Paid)
	return p
}
