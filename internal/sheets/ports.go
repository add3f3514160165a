// Package sheets mirrors a user's monthly transactions to a spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"slices"

	"dindin/internal/core"
)

// Exporter replaces the exported contents of one month.
type Exporter interface {
	ExportMonth(ctx context.Context, userID string, p core.Period, txs []core.Transaction) error
}

// Header is the first row of every exported tab.
var Header = []string{"date", "description", "category", "type", "amount", "installment"}

// TabName names the tab holding userID's month p.
func TabName(userID string, p core.Period) string {
	if userID == "" {
		return fmt.Sprintf("Transactions %s", p)
	}
	return fmt.Sprintf("Transactions %s (%s)", p, userID)
}

// Rows renders the header plus the transactions of p, oldest first.
func Rows(p core.Period, txs []core.Transaction) [][]string {
	ref := p.String()
	var month []core.Transaction
	for _, t := range txs {
		if t.MonthReference == ref {
			month = append(month, t)
		}
	}
	slices.SortStableFunc(month, func(a, b core.Transaction) int { return a.Date.Compare(b.Date.Time) })

	rows := make([][]string, 0, len(month)+1)
	rows = append(rows, slices.Clone(Header))
	for _, t := range month {
		var installment string
		if t.InChain() {
			installment = fmt.Sprintf("%d/%d", t.InstallmentNumber, t.TotalInstallments)
		}
		rows = append(rows, []string{
			t.Date.String(),
			t.Description,
			t.CategoryName(),
			string(t.Type),
			t.Amount.String(),
			installment,
		})
	}
	return rows
}
