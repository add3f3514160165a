package core

import (
	"fmt"
	"strings"
)

// AccountType is where money is held.
type AccountType string

const (
	AccountBank       AccountType = "bank"
	AccountCreditCard AccountType = "credit_card"
	AccountCash       AccountType = "cash"
	AccountPix        AccountType = "pix"
)

func (a AccountType) Valid() bool {
	switch a {
	case AccountBank, AccountCreditCard, AccountCash, AccountPix:
		return true
	}
	return false
}

type (
	Account struct {
		ID   string      `json:"id"`
		Name string      `json:"name"`
		Type AccountType `json:"type"`
	}

	CategoryConfig struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Icon      string `json:"icon"`
		IsVisible bool   `json:"isVisible"`
	}

	// User is the per-user profile. The ledger treats categories and
	// accounts as opaque configuration.
	User struct {
		ID         string           `json:"id"`
		Name       string           `json:"name"`
		Username   string           `json:"username"`
		Email      string           `json:"email,omitempty"`
		Phone      string           `json:"phone,omitempty"`
		Categories []CategoryConfig `json:"categories"`
		Accounts   []Account        `json:"accounts"`
	}
)

// DefaultCategories is the category set of a new profile.
func DefaultCategories() []CategoryConfig {
	names := []struct{ name, icon string }{
		{"Alimentação", "🍔"},
		{"Transporte", "🚗"},
		{"Lazer", "☕"},
		{"Moradia", "🏠"},
		{"Saúde", "💊"},
		{"Educação", "🎓"},
		{"Supermercado", "🛒"},
		{"Assinaturas", "📱"},
		{"Contas", "⚡"},
		{"Compras gerais", "🛍️"},
		{"Investimentos", "📈"},
		{"Impostos e taxas", "📄"},
		{"Renda", "💼"},
		{"Outros", "🏷️"},
	}
	out := make([]CategoryConfig, len(names))
	for i, n := range names {
		out[i] = CategoryConfig{ID: fmt.Sprintf("cat-%d", i+1), Name: n.name, Icon: n.icon, IsVisible: true}
	}
	return out
}

// DefaultAccounts is the account set of a new profile.
func DefaultAccounts() []Account {
	return []Account{
		{ID: "acc1", Name: "Nubank", Type: AccountBank},
		{ID: "acc2", Name: "Itaú Personalité", Type: AccountBank},
		{ID: "acc3", Name: "Visa Infinite", Type: AccountCreditCard},
		{ID: "acc4", Name: "Chave Pix Principal", Type: AccountPix},
		{ID: "acc5", Name: "Dinheiro", Type: AccountCash},
	}
}

// NewUser returns a profile populated with the default configuration.
func NewUser(id string) User {
	return User{
		ID:         id,
		Name:       id,
		Username:   id,
		Categories: DefaultCategories(),
		Accounts:   DefaultAccounts(),
	}
}

// Account looks up an account by id.
func (u User) Account(id string) (Account, bool) {
	for _, a := range u.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// HasCategory matches a category name case-insensitively.
func (u User) HasCategory(name string) bool {
	for _, c := range u.Categories {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// CategoryNames lists the visible category names in profile order.
func (u User) CategoryNames() []string {
	out := make([]string, 0, len(u.Categories))
	for _, c := range u.Categories {
		if c.IsVisible {
			out = append(out, c.Name)
		}
	}
	return out
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	for _, a := range u.Accounts {
		if !a.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidAccountType, a.Type)
		}
	}
	return nil
}
