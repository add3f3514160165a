package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"dindin/internal/amqp"
	"dindin/internal/assistant"
	"dindin/internal/cache"
	"dindin/internal/core"
	"dindin/internal/installments"
	"dindin/internal/ledger"
	applog "dindin/internal/log"
	"dindin/internal/storage"
	"dindin/internal/summary"
)

// ErrNotFound is returned by read operations for unknown ids.
var ErrNotFound = errors.New("not found")

// Publisher announces ledger mutations. *amqp.Client satisfies it.
type Publisher interface {
	PublishMutation(ctx context.Context, msg *amqp.MutationMessage) error
}

// Observer is told which months of a user's ledger changed.
type Observer interface {
	LedgerChanged(ctx context.Context, userID string, months []string)
}

// CreateInput is a new transaction. Installments >= 2 turns an expense into
// an installment chain starting at Date.
type CreateInput struct {
	Description  string
	Amount       core.Money
	Date         core.Date
	Category     *string
	AccountID    string
	Type         core.TransactionType
	Nature       core.Nature
	Installments int
}

// MutationResult reports an applied change. Warnings carry non-fatal
// problems such as a failed save; the in-memory ledger stays authoritative.
type MutationResult struct {
	Changed      bool               `json:"changed"`
	Transactions []core.Transaction `json:"transactions"`
	Removed      []string           `json:"removed"`
	Warnings     []string           `json:"warnings,omitempty"`
}

type book struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
}

// planFunc computes a changeset against the current ledger.
type planFunc func(l *ledger.Ledger) (ledger.Changeset, installments.Outcome, error)

// TransactionService orchestrates ledger mutations: validate, plan, apply,
// save, publish and notify. Mutations of one user are serialized.
type TransactionService struct {
	repo      *storage.Repository
	publisher Publisher
	profiles  *cache.LRUCache[core.User]
	generator *installments.Generator
	editor    *installments.Editor
	newID     func() string
	today     func() core.Date

	mu    sync.Mutex
	books map[string]*book
	group singleflight.Group

	obsMu     sync.RWMutex
	observers []Observer
}

// NewTransactionService wires the service. publisher and profiles are optional.
func NewTransactionService(repo *storage.Repository, publisher Publisher, profiles *cache.LRUCache[core.User]) *TransactionService {
	return &TransactionService{
		repo:      repo,
		publisher: publisher,
		profiles:  profiles,
		generator: installments.NewGenerator(),
		editor:    installments.NewEditor(),
		newID:     installments.NewID,
		today:     core.Today,
		books:     make(map[string]*book),
	}
}

// Subscribe registers an observer for committed mutations.
func (s *TransactionService) Subscribe(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

func (s *TransactionService) book(ctx context.Context, userID string) (*book, error) {
	s.mu.Lock()
	b, ok := s.books[userID]
	s.mu.Unlock()
	if ok {
		return b, nil
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		s.mu.Lock()
		if b, ok := s.books[userID]; ok {
			s.mu.Unlock()
			return b, nil
		}
		s.mu.Unlock()

		txs, err := s.repo.LoadTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		l, err := ledger.New(txs)
		if err != nil {
			return nil, fmt.Errorf("load ledger for %s: %w", userID, err)
		}
		b := &book{ledger: l}
		s.mu.Lock()
		s.books[userID] = b
		s.mu.Unlock()
		slog.DebugContext(ctx, "Ledger loaded", applog.FieldComponent, applog.ComponentLedger,
			applog.FieldUserID, userID, applog.FieldCount, l.Len())
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*book), nil
}

// Profile returns the user's profile, creating the default one on first use.
func (s *TransactionService) Profile(ctx context.Context, userID string) (core.User, error) {
	if s.profiles != nil {
		if u, ok := s.profiles.Get(userID); ok {
			return u, nil
		}
	}
	u, found, err := s.repo.LoadProfile(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if !found {
		u = core.NewUser(userID)
		if err := s.repo.SaveProfile(ctx, u); err != nil {
			slog.WarnContext(ctx, "Failed to store default profile",
				applog.NewFields().WithComponent(applog.ComponentStorage).WithUser(userID).WithError(err, applog.ErrorTypeDatabase).ToSlice()...)
		}
	}
	if s.profiles != nil {
		s.profiles.Set(userID, u)
	}
	return u, nil
}

func (s *TransactionService) checkAccount(ctx context.Context, userID, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return core.ErrMissingAccount
	}
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if len(profile.Accounts) == 0 {
		return core.ErrNoAccounts
	}
	if _, ok := profile.Account(accountID); !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownAccount, accountID)
	}
	return nil
}

// Create records a standalone transaction or, for expenses with two or more
// installments, a whole chain.
func (s *TransactionService) Create(ctx context.Context, userID string, in CreateInput) (MutationResult, error) {
	if in.Installments < 0 {
		return MutationResult{}, fmt.Errorf("%w: %d", core.ErrInvalidInstallments, in.Installments)
	}
	if in.Type == "" {
		in.Type = core.TypeExpense
	}

	var txs []core.Transaction
	if in.Installments >= 2 {
		generated, err := s.generator.Generate(installments.Purchase{
			Description: in.Description,
			Total:       in.Amount,
			Count:       in.Installments,
			Start:       in.Date,
			Category:    in.Category,
			AccountID:   in.AccountID,
			Type:        in.Type,
		})
		if err != nil {
			return MutationResult{}, err
		}
		txs = generated
	} else {
		t := core.Transaction{
			ID:          s.newID(),
			AccountID:   in.AccountID,
			Type:        in.Type,
			Nature:      in.Nature,
			Description: core.BaseDescription(in.Description),
			Category:    in.Category,
			Amount:      in.Amount,
		}
		t.SetDate(in.Date)
		if err := t.Validate(); err != nil {
			return MutationResult{}, err
		}
		txs = []core.Transaction{t}
	}
	if err := s.checkAccount(ctx, userID, in.AccountID); err != nil {
		return MutationResult{}, err
	}

	return s.commit(ctx, userID, amqp.OpCreated, "", func(*ledger.Ledger) (ledger.Changeset, installments.Outcome, error) {
		return ledger.Changeset{Upserts: txs}, installments.Outcome{Changed: true, Target: txs[0]}, nil
	})
}

// Update edits one transaction with the given propagation mode. An unknown
// id yields Changed=false before the edit itself is checked.
func (s *TransactionService) Update(ctx context.Context, userID string, req installments.Request) (MutationResult, error) {
	return s.commit(ctx, userID, amqp.OpUpdated, req.Mode.String(), func(l *ledger.Ledger) (ledger.Changeset, installments.Outcome, error) {
		if _, ok := l.Get(req.TargetID); !ok {
			return ledger.Changeset{}, installments.Outcome{}, nil
		}
		if err := s.checkAccount(ctx, userID, req.Edit.AccountID); err != nil {
			return ledger.Changeset{}, installments.Outcome{}, err
		}
		return s.editor.Plan(l, req)
	})
}

// Delete removes a transaction, or a chain member and its successors.
func (s *TransactionService) Delete(ctx context.Context, userID, id string, scope installments.DeleteScope) (MutationResult, error) {
	return s.commit(ctx, userID, amqp.OpDeleted, "", func(l *ledger.Ledger) (ledger.Changeset, installments.Outcome, error) {
		return installments.PlanDelete(l, id, scope)
	})
}

// ApplyCategorization sets suggested categories and natures. Suggestions for
// ids no longer in the ledger are dropped. Chain members keep their nature.
func (s *TransactionService) ApplyCategorization(ctx context.Context, userID string, cats []assistant.Categorization) (MutationResult, error) {
	return s.commit(ctx, userID, amqp.OpCategorized, "", func(l *ledger.Ledger) (ledger.Changeset, installments.Outcome, error) {
		var cs ledger.Changeset
		seen := make(map[string]struct{})
		for _, c := range cats {
			t, ok := l.Get(c.ID)
			if !ok {
				continue
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			if c.Category != "" {
				t.SetCategory(c.Category)
			}
			if c.Nature != core.NatureNone && !t.InChain() {
				t.Nature = c.Nature
			}
			cs.Upserts = append(cs.Upserts, t)
		}
		return cs, installments.Outcome{Changed: len(cs.Upserts) > 0}, nil
	})
}

// commit plans and applies a mutation under the user's lock. mode only
// labels the log record.
func (s *TransactionService) commit(ctx context.Context, userID, op, mode string, plan planFunc) (MutationResult, error) {
	b, err := s.book(ctx, userID)
	if err != nil {
		return MutationResult{}, err
	}

	b.mu.Lock()
	cs, out, err := plan(b.ledger)
	if err != nil {
		b.mu.Unlock()
		return MutationResult{}, err
	}
	if !out.Changed || cs.IsEmpty() {
		b.mu.Unlock()
		return MutationResult{Transactions: []core.Transaction{}, Removed: []string{}}, nil
	}

	months := affectedMonths(b.ledger, cs)
	if err := b.ledger.Apply(cs); err != nil {
		b.mu.Unlock()
		return MutationResult{}, fmt.Errorf("apply %s: %w", op, err)
	}
	res := MutationResult{
		Changed:      true,
		Transactions: slices.Clone(cs.Upserts),
		Removed:      slices.Clone(cs.Removes),
	}
	if res.Removed == nil {
		res.Removed = []string{}
	}
	if res.Transactions == nil {
		res.Transactions = []core.Transaction{}
	}
	if err := s.repo.SaveTransactions(ctx, userID, b.ledger.All()); err != nil {
		slog.ErrorContext(ctx, "Failed to persist ledger", applog.NewFields().
			WithComponent(applog.ComponentStorage).WithUser(userID).WithOperation(applog.OpSave).
			WithError(err, applog.ErrorTypeDatabase).ToSlice()...)
		res.Warnings = append(res.Warnings, "changes applied but not saved: "+err.Error())
	}
	b.mu.Unlock()

	fields := applog.NewFields().WithComponent(applog.ComponentLedger).WithUser(userID).
		WithOperation(op).WithMutation(mode, cs.IDs(), months)
	fields[applog.FieldTransactionID] = out.Target.ID
	if out.Target.InChain() {
		fields[applog.FieldInstallmentID] = out.Target.InstallmentID
	}
	slog.InfoContext(ctx, "Ledger mutated", fields.ToSlice()...)

	msg := amqp.NewMutationMessage(userID, op, months, cs.IDs())
	if out.Target.InChain() {
		msg.InstallmentID = out.Target.InstallmentID
	}
	s.publish(ctx, msg)
	s.notify(ctx, userID, months)
	return res, nil
}

func affectedMonths(l *ledger.Ledger, cs ledger.Changeset) []string {
	set := make(map[string]struct{})
	for _, t := range cs.Upserts {
		set[t.MonthReference] = struct{}{}
		if prev, ok := l.Get(t.ID); ok {
			set[prev.MonthReference] = struct{}{}
		}
	}
	for _, id := range cs.Removes {
		if prev, ok := l.Get(id); ok {
			set[prev.MonthReference] = struct{}{}
		}
	}
	months := make([]string, 0, len(set))
	for m := range set {
		if m != "" {
			months = append(months, m)
		}
	}
	slices.Sort(months)
	return months
}

func (s *TransactionService) publish(ctx context.Context, msg *amqp.MutationMessage) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping mutation event", applog.FieldComponent, applog.ComponentAMQP)
		return
	}
	if err := s.publisher.PublishMutation(ctx, msg); err != nil {
		// The ledger is already saved; export catches up on the next event.
		slog.WarnContext(ctx, "Failed to publish mutation event", applog.NewFields().
			WithComponent(applog.ComponentAMQP).WithUser(msg.UserID).WithOperation(applog.OpPublish).
			WithError(err, applog.ErrorTypeNetwork).ToSlice()...)
	}
}

func (s *TransactionService) notify(ctx context.Context, userID string, months []string) {
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.LedgerChanged(ctx, userID, months)
	}
}

// Transactions returns a copy of the user's whole collection.
func (s *TransactionService) Transactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	b, err := s.book(ctx, userID)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.All(), nil
}

// List returns the transactions of period p, newest first.
func (s *TransactionService) List(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := summary.InPeriod(txs, p)
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

// Summary aggregates period p.
func (s *TransactionService) Summary(ctx context.Context, userID string, p core.Period) (summary.PeriodSummary, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return summary.PeriodSummary{}, err
	}
	return summary.ForPeriod(txs, p), nil
}

// Breakdown splits the expenses of period p into installments, fixed and
// variable spending.
func (s *TransactionService) Breakdown(ctx context.Context, userID string, p core.Period) (summary.Breakdown, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return summary.Breakdown{}, err
	}
	return summary.ExpenseBreakdown(txs, p), nil
}

// Dues lists expenses falling due within the next days.
func (s *TransactionService) Dues(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := summary.UpcomingDues(txs, s.today())
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

// Chain returns the progress of one installment chain.
func (s *TransactionService) Chain(ctx context.Context, userID, installmentID string) (summary.ChainProgress, error) {
	b, err := s.book(ctx, userID)
	if err != nil {
		return summary.ChainProgress{}, err
	}
	b.mu.RLock()
	chain := b.ledger.Chain(installmentID)
	b.mu.RUnlock()
	if len(chain) == 0 {
		return summary.ChainProgress{}, fmt.Errorf("installment chain %s: %w", installmentID, ErrNotFound)
	}
	return summary.Progress(chain, s.today()), nil
}

// Close drops the loaded books. Stores and clients are owned by the caller.
func (s *TransactionService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.books)
	return nil
}
