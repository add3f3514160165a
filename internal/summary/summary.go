// Package summary derives period figures from a transaction collection.
// Every function is pure and never modifies its input.
package summary

import (
	"cmp"
	"slices"
	"strings"

	"dindin/internal/core"
)

type (
	Numbers struct {
		TotalIncome  float64 `json:"total_income"`
		TotalExpense float64 `json:"total_expense"`
		Balance      float64 `json:"balance"`
	}

	CategoryAmount struct {
		Category          string  `json:"category"`
		Amount            float64 `json:"amount"`
		PercentOfExpenses float64 `json:"percent_of_expenses"`
	}

	// PeriodSummary is the derived monthly view. Highlights, Suggestions and
	// SummaryText stay empty unless filled by the assistant.
	PeriodSummary struct {
		PeriodLabel string           `json:"period_label"`
		Numbers     Numbers          `json:"numbers"`
		Categories  []CategoryAmount `json:"categories"`
		Highlights  []string         `json:"highlights"`
		Suggestions []string         `json:"suggestions"`
		SummaryText string           `json:"summary_text"`
	}
)

// InPeriod returns the transactions whose month reference matches p,
// newest first.
func InPeriod(txs []core.Transaction, p core.Period) []core.Transaction {
	ref := p.String()
	var out []core.Transaction
	for _, t := range txs {
		if t.MonthReference == ref {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return b.Date.Compare(a.Date.Time) })
	return out
}

// ForPeriod aggregates the month p. Income counts type income; expense counts
// expense and loan_payment. Loans and transfers are ignored.
func ForPeriod(txs []core.Transaction, p core.Period) PeriodSummary {
	var income, expense int64
	buckets := make(map[string]int64)
	for _, t := range txs {
		if t.MonthReference != p.String() {
			continue
		}
		switch {
		case t.Type == core.TypeIncome:
			income += t.Amount.Cents
		case t.Type.CountsAsExpense():
			expense += t.Amount.Cents
			name := strings.TrimSpace(t.CategoryName())
			if name == "" {
				name = core.UncategorizedLabel
			}
			buckets[name] += t.Amount.Cents
		}
	}

	cats := make([]CategoryAmount, 0, len(buckets))
	for name, cents := range buckets {
		var pct float64
		if expense > 0 {
			pct = float64(cents) / float64(expense)
		}
		cats = append(cats, CategoryAmount{Category: name, Amount: core.Cents(cents).Major(), PercentOfExpenses: pct})
	}
	slices.SortFunc(cats, func(a, b CategoryAmount) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})

	return PeriodSummary{
		PeriodLabel: p.Label(),
		Numbers: Numbers{
			TotalIncome:  core.Cents(income).Major(),
			TotalExpense: core.Cents(expense).Major(),
			Balance:      core.Cents(income - expense).Major(),
		},
		Categories:  cats,
		Highlights:  []string{},
		Suggestions: []string{},
	}
}
