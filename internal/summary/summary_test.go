package summary

import (
	"testing"

	"dindin/internal/core"
)

func tx(id string, typ core.TransactionType, cents int64, d core.Date, category string) core.Transaction {
	t := core.Transaction{ID: id, AccountID: "acc1", Type: typ, Description: id, Amount: core.Cents(cents), Category: core.CategoryPtr(category)}
	t.SetDate(d)
	return t
}

func TestForPeriodScenario(t *testing.T) {
	jan := core.NewPeriod(2024, 1)
	txs := []core.Transaction{
		tx("salary", core.TypeIncome, 500000, core.NewDate(2024, 1, 5), ""),
		tx("food", core.TypeExpense, 20000, core.NewDate(2024, 1, 10), "Food"),
		tx("rent", core.TypeExpense, 80000, core.NewDate(2024, 1, 1), "Rent"),
		tx("feb", core.TypeExpense, 99999, core.NewDate(2024, 2, 1), "Food"),
		tx("loan", core.TypeLoan, 100000, core.NewDate(2024, 1, 3), ""),
	}

	s := ForPeriod(txs, jan)
	if s.Numbers.TotalIncome != 5000.00 || s.Numbers.TotalExpense != 1000.00 || s.Numbers.Balance != 4000.00 {
		t.Fatalf("unexpected numbers %+v", s.Numbers)
	}
	if len(s.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", s.Categories)
	}
	if s.Categories[0].Category != "Rent" || s.Categories[0].PercentOfExpenses != 0.80 {
		t.Fatalf("unexpected first category %+v", s.Categories[0])
	}
	if s.Categories[1].Category != "Food" || s.Categories[1].PercentOfExpenses != 0.20 {
		t.Fatalf("unexpected second category %+v", s.Categories[1])
	}
	if s.PeriodLabel != "janeiro de 2024" {
		t.Fatalf("label %q", s.PeriodLabel)
	}
}

func TestForPeriodZeroSafety(t *testing.T) {
	cases := []struct {
		name string
		txs  []core.Transaction
	}{
		{"empty", nil},
		{"income only", []core.Transaction{tx("i", core.TypeIncome, 1000, core.NewDate(2024, 3, 1), "")}},
		{"zero expense", []core.Transaction{tx("e", core.TypeExpense, 0, core.NewDate(2024, 3, 1), "Food")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := ForPeriod(tc.txs, core.NewPeriod(2024, 3))
			for _, c := range s.Categories {
				if c.PercentOfExpenses != 0 {
					t.Fatalf("expected 0 percent, got %v", c.PercentOfExpenses)
				}
			}
			if s.Categories == nil || s.Highlights == nil {
				t.Fatal("slices should encode as empty arrays")
			}
		})
	}
}

func TestForPeriodUncategorizedAndLoanPayment(t *testing.T) {
	txs := []core.Transaction{
		tx("a", core.TypeExpense, 300, core.NewDate(2024, 5, 1), ""),
		tx("b", core.TypeLoanPayment, 700, core.NewDate(2024, 5, 2), ""),
		tx("c", core.TypeTransfer, 5000, core.NewDate(2024, 5, 3), "Moradia"),
	}
	s := ForPeriod(txs, core.NewPeriod(2024, 5))
	if len(s.Categories) != 1 || s.Categories[0].Category != core.UncategorizedLabel || s.Categories[0].Amount != 10.0 {
		t.Fatalf("unexpected categories %+v", s.Categories)
	}
	if s.Numbers.TotalExpense != 10.0 || s.Numbers.Balance != -10.0 {
		t.Fatalf("unexpected numbers %+v", s.Numbers)
	}
}

func TestForPeriodDoesNotMutate(t *testing.T) {
	txs := []core.Transaction{tx("a", core.TypeExpense, 300, core.NewDate(2024, 5, 1), "Food")}
	before := txs[0]
	first := ForPeriod(txs, core.NewPeriod(2024, 5))
	second := ForPeriod(txs, core.NewPeriod(2024, 5))
	if txs[0] != before || first.Numbers != second.Numbers {
		t.Fatal("aggregation is not side-effect free")
	}
}

func TestExpenseBreakdown(t *testing.T) {
	inst := tx("inst", core.TypeExpense, 1000, core.NewDate(2024, 6, 10), "")
	inst.IsInstallment, inst.InstallmentID, inst.Nature = true, "c", core.NatureInstallment
	fixed := tx("fixed", core.TypeExpense, 2500, core.NewDate(2024, 6, 5), "")
	fixed.Nature = core.NatureFixed
	txs := []core.Transaction{
		inst, fixed,
		tx("var", core.TypeExpense, 500, core.NewDate(2024, 6, 1), ""),
		tx("in", core.TypeIncome, 9999, core.NewDate(2024, 6, 1), ""),
	}
	b := ExpenseBreakdown(txs, core.NewPeriod(2024, 6))
	if b.Total.Cents != 4000 || b.Installments.Cents != 1000 || b.Fixed.Cents != 2500 || b.Variable.Cents != 500 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if len(b.Items) != 3 || b.Items[0].ID != "var" {
		t.Fatalf("items not sorted by date: %+v", b.Items)
	}
}

func TestUpcomingDues(t *testing.T) {
	today := core.NewDate(2024, 6, 10)
	mk := func(id string, d core.Date, n core.Nature) core.Transaction {
		t := tx(id, core.TypeExpense, 100, d, "")
		t.Nature = n
		return t
	}
	txs := []core.Transaction{
		mk("later", today.AddDays(8), core.NatureFixed),
		mk("edge", today.AddDays(7), core.NatureInstallment),
		mk("today", today, core.NatureFixed),
		mk("past", today.AddDays(-1), core.NatureFixed),
		mk("variable", today.AddDays(1), core.NatureVariable),
	}
	dues := UpcomingDues(txs, today)
	if len(dues) != 2 || dues[0].ID != "today" || dues[1].ID != "edge" {
		t.Fatalf("unexpected dues %+v", dues)
	}
}

func TestProgress(t *testing.T) {
	var chain []core.Transaction
	start := core.NewDate(2024, 1, 15)
	for i := 3; i >= 1; i-- {
		m := tx("m", core.TypeExpense, 1000, start.AddMonths(i-1), "")
		m.IsInstallment, m.InstallmentID = true, "c"
		m.InstallmentNumber, m.TotalInstallments = i, 3
		m.OriginalAmount = core.Cents(3000)
		m.Description = core.InstallmentDescription("Sofá", i, 3)
		chain = append(chain, m)
	}
	p := Progress(chain, core.NewDate(2024, 2, 20))
	if p.PaidCount != 2 || p.Paid.Cents != 2000 || p.Remaining.Cents != 1000 || p.Total.Cents != 3000 {
		t.Fatalf("unexpected progress %+v", p)
	}
	if p.Description != "Sofá" || p.Members[0].InstallmentNumber != 1 {
		t.Fatalf("unexpected ordering or description %+v", p)
	}
	if empty := Progress(nil, core.Today()); empty.Count != 0 || empty.Members == nil {
		t.Fatalf("unexpected empty progress %+v", empty)
	}
}
