package installments

import (
	"fmt"
	"strings"

	"dindin/internal/core"
)

// Purchase describes a purchase to be paid in Count monthly installments.
type Purchase struct {
	Description string
	Total       core.Money
	Count       int
	Start       core.Date
	Category    *string
	AccountID   string
	Type        core.TransactionType
}

func (p Purchase) Validate() error {
	if p.Count < 2 || p.Count > core.MaxInstallments {
		return fmt.Errorf("%w: %d", core.ErrInvalidInstallments, p.Count)
	}
	if err := p.Total.Validate(); err != nil {
		return err
	}
	if err := p.Start.Validate(); err != nil {
		return err
	}
	if err := p.Start.AddMonths(p.Count - 1).Validate(); err != nil {
		return err
	}
	base := core.BaseDescription(p.Description)
	if strings.TrimSpace(base) == "" {
		return core.ErrEmptyDescription
	}
	if len(core.InstallmentDescription(base, p.Count, p.Count)) > core.MaxDescriptionLength {
		return core.ErrDescriptionTooLong
	}
	if strings.TrimSpace(p.AccountID) == "" {
		return core.ErrMissingAccount
	}
	if p.Type != "" && p.Type != core.TypeExpense {
		return fmt.Errorf("%w: %q", ErrInstallmentType, p.Type)
	}
	return nil
}

// Generator expands purchases into installment chains.
type Generator struct {
	NewID      func() string
	NewChainID func() string
}

func NewGenerator() *Generator {
	return &Generator{NewID: NewID, NewChainID: NewChainID}
}

// Generate returns the Count installment records of p. Member i is dated
// Start advanced by i-1 calendar months, and the amounts sum to Total.
func (g *Generator) Generate(p Purchase) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	parts, err := p.Total.Split(p.Count)
	if err != nil {
		return nil, err
	}
	chainID := g.NewChainID()
	base := core.BaseDescription(p.Description)
	out := make([]core.Transaction, p.Count)
	for i := range out {
		t := core.Transaction{
			ID:                g.NewID(),
			AccountID:         p.AccountID,
			Type:              core.TypeExpense,
			Nature:            core.NatureInstallment,
			Description:       core.InstallmentDescription(base, i+1, p.Count),
			Category:          p.Category,
			Amount:            parts[i],
			IsInstallment:     true,
			InstallmentID:     chainID,
			InstallmentNumber: i + 1,
			TotalInstallments: p.Count,
			OriginalAmount:    p.Total,
		}
		t.SetDate(p.Start.AddMonths(i))
		out[i] = t
	}
	return out, nil
}
