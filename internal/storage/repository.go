package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"dindin/internal/core"
)

// Repository stores typed user data on top of a KV. Callers never see keys.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

func transactionsKey(userID string) string { return "users/" + userID + "/transactions" }
func profileKey(userID string) string      { return "users/" + userID + "/profile" }

// LoadTransactions returns the user's transactions, or nil when none are stored.
func (r *Repository) LoadTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	raw, ok, err := r.kv.Get(ctx, transactionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var txs []core.Transaction
	if err := json.Unmarshal([]byte(raw), &txs); err != nil {
		return nil, fmt.Errorf("decode transactions for %s: %w", userID, err)
	}
	// Older records may lack the derived month reference.
	for i := range txs {
		if txs[i].MonthReference == "" && !txs[i].Date.IsZero() {
			txs[i].MonthReference = txs[i].Date.MonthReference()
		}
	}
	return txs, nil
}

// SaveTransactions replaces the user's whole collection.
func (r *Repository) SaveTransactions(ctx context.Context, userID string, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	b, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	if err := r.kv.Set(ctx, transactionsKey(userID), string(b)); err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}
	slog.DebugContext(ctx, "Transactions saved", "user_id", userID, "count", len(txs))
	return nil
}

// LoadProfile returns the stored profile and whether one exists.
func (r *Repository) LoadProfile(ctx context.Context, userID string) (core.User, bool, error) {
	raw, ok, err := r.kv.Get(ctx, profileKey(userID))
	if err != nil {
		return core.User{}, false, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		return core.User{}, false, nil
	}
	var u core.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return core.User{}, false, fmt.Errorf("decode profile for %s: %w", userID, err)
	}
	return u, true, nil
}

func (r *Repository) SaveProfile(ctx context.Context, u core.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := r.kv.Set(ctx, profileKey(u.ID), string(b)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// DeleteUser removes everything stored for the user.
func (r *Repository) DeleteUser(ctx context.Context, userID string) error {
	for _, key := range []string{transactionsKey(userID), profileKey(userID)} {
		if err := r.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("delete user %s: %w", userID, err)
		}
	}
	return nil
}
