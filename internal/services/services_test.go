package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"dindin/internal/amqp"
	"dindin/internal/assistant"
	"dindin/internal/cache"
	"dindin/internal/core"
	"dindin/internal/installments"
	"dindin/internal/storage"
	"dindin/internal/tasks"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.MutationMessage
	err  error
}

func (p *recordingPublisher) PublishMutation(_ context.Context, msg *amqp.MutationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) last() *amqp.MutationMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return nil
	}
	return p.msgs[len(p.msgs)-1]
}

type recordingObserver struct {
	mu     sync.Mutex
	events [][]string
}

func (o *recordingObserver) LedgerChanged(_ context.Context, _ string, months []string) {
	o.mu.Lock()
	o.events = append(o.events, months)
	o.mu.Unlock()
}

// flakyKV fails writes while failSet is true.
type flakyKV struct {
	*storage.MemoryStore
	mu      sync.Mutex
	failSet bool
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

type fixture struct {
	svc   *TransactionService
	kv    *flakyKV
	pub   *recordingPublisher
	obs   *recordingObserver
	today core.Date
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kv:    &flakyKV{MemoryStore: storage.NewMemoryStore()},
		pub:   &recordingPublisher{},
		obs:   &recordingObserver{},
		today: core.NewDate(2024, 1, 28),
	}
	f.svc = NewTransactionService(storage.NewRepository(f.kv), f.pub, cache.NewLRUCache[core.User](10, time.Minute))
	f.svc.today = func() core.Date { return f.today }
	f.svc.Subscribe(f.obs)
	return f
}

func expense(desc string, cents int64, d core.Date) CreateInput {
	return CreateInput{
		Description: desc,
		Amount:      core.Cents(cents),
		Date:        d,
		AccountID:   "acc1",
		Type:        core.TypeExpense,
	}
}

func TestCreateStandalone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, "u1", expense("Mercado", 15000, core.NewDate(2024, 1, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || len(res.Transactions) != 1 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	created := res.Transactions[0]
	if created.MonthReference != "2024-01" || created.IsInstallment {
		t.Fatalf("unexpected transaction %+v", created)
	}

	msg := f.pub.last()
	if msg == nil || msg.Operation != amqp.OpCreated || !slices.Equal(msg.Months, []string{"2024-01"}) {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(f.obs.events) != 1 {
		t.Fatalf("observer should be notified once, got %d", len(f.obs.events))
	}

	// A fresh service over the same store sees the saved ledger.
	reloaded := NewTransactionService(storage.NewRepository(f.kv), nil, nil)
	txs, err := reloaded.List(ctx, "u1", core.NewPeriod(2024, 1))
	if err != nil || len(txs) != 1 || txs[0].ID != created.ID {
		t.Fatalf("reload failed: %+v %v", txs, err)
	}
}

func TestCreateInstallments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := expense("TV", 30000, core.NewDate(2024, 1, 31))
	in.Installments = 3
	res, err := f.svc.Create(ctx, "u1", in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transactions) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(res.Transactions))
	}
	chainID := res.Transactions[0].InstallmentID
	if msg := f.pub.last(); msg.InstallmentID != chainID || !slices.Equal(msg.Months, []string{"2024-01", "2024-02", "2024-03"}) {
		t.Fatalf("unexpected message %+v", msg)
	}

	progress, err := f.svc.Chain(ctx, "u1", chainID)
	if err != nil {
		t.Fatal(err)
	}
	if progress.Count != 3 || progress.Total.Cents != 30000 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if _, err := f.svc.Chain(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	feb, _ := f.svc.List(ctx, "u1", core.NewPeriod(2024, 2))
	if len(feb) != 1 || feb[0].Date.String() != "2024-02-29" || feb[0].Description != "TV (2/3)" {
		t.Fatalf("unexpected february %+v", feb)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := core.NewDate(2024, 1, 10)

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"zero amount", expense("x", 0, d), core.ErrInvalidAmount},
		{"empty description", expense("  ", 100, d), core.ErrEmptyDescription},
		{"missing account", func() CreateInput { in := expense("x", 100, d); in.AccountID = ""; return in }(), core.ErrMissingAccount},
		{"unknown account", func() CreateInput { in := expense("x", 100, d); in.AccountID = "nope"; return in }(), core.ErrUnknownAccount},
		{"negative installments", func() CreateInput { in := expense("x", 100, d); in.Installments = -1; return in }(), core.ErrInvalidInstallments},
		{"income installments", func() CreateInput {
			in := expense("x", 100, d)
			in.Type, in.Installments = core.TypeIncome, 3
			return in
		}(), installments.ErrInstallmentType},
		{"invalid date", expense("x", 100, core.Date{}), core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, "u1", tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if txs, _ := f.svc.Transactions(ctx, "u1"); len(txs) != 0 {
		t.Fatalf("nothing should be applied, got %d", len(txs))
	}
	if len(f.pub.msgs) != 0 {
		t.Fatal("no event should be published for rejected input")
	}
}

func TestCreateChainWithinStorableDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		start core.Date
		count int
		want  error
	}{
		{"last member after 9999-12-31", core.NewDate(9999, 12, 15), 2, core.ErrInvalidDate},
		{"more than the installment limit", core.NewDate(2024, 1, 15), core.MaxInstallments + 1, core.ErrInvalidInstallments},
		{"ends in the last storable month", core.NewDate(9999, 11, 15), 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := expense("Notebook", 10000, tt.start)
			in.Installments = tt.count
			if _, err := f.svc.Create(ctx, "u1", in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	reloaded := NewTransactionService(storage.NewRepository(f.kv), nil, nil)
	txs, err := reloaded.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("saved ledger must load again: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected only the valid chain, got %d records", len(txs))
	}
	for _, tx := range txs {
		if tx.MonthReference != tx.Date.String()[:7] {
			t.Fatalf("month reference %s for %s", tx.MonthReference, tx.Date)
		}
	}
}

func TestCreateWithoutAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := core.NewUser("u2")
	u.Accounts = nil
	if err := storage.NewRepository(f.kv).SaveProfile(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, "u2", expense("x", 100, core.NewDate(2024, 1, 1))); !errors.Is(err, core.ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := expense("TV", 30000, core.NewDate(2024, 1, 15))
	in.Installments = 3
	created, err := f.svc.Create(ctx, "u1", in)
	if err != nil {
		t.Fatal(err)
	}
	second := created.Transactions[1]

	t.Run("unknown id", func(t *testing.T) {
		res, err := f.svc.Update(ctx, "u1", installments.Request{
			TargetID: "missing",
			Edit:     installments.Edit{Description: "x", Amount: core.Cents(1), Date: core.NewDate(2024, 1, 1), AccountID: "acc1"},
		})
		if err != nil || res.Changed {
			t.Fatalf("expected unchanged result, got %+v %v", res, err)
		}
	})

	t.Run("unknown id with unknown account", func(t *testing.T) {
		res, err := f.svc.Update(ctx, "u1", installments.Request{
			TargetID: "missing",
			Edit:     installments.Edit{Description: "x", Amount: core.Cents(1), Date: core.NewDate(2024, 1, 1), AccountID: "nope"},
		})
		if err != nil || res.Changed {
			t.Fatalf("a missing target is a no-op before the account is checked, got %+v %v", res, err)
		}
	})

	t.Run("known id with unknown account", func(t *testing.T) {
		_, err := f.svc.Update(ctx, "u1", installments.Request{
			TargetID: second.ID,
			Edit:     installments.Edit{Description: "x", Amount: core.Cents(1), Date: core.NewDate(2024, 1, 1), AccountID: "nope"},
		})
		if !errors.Is(err, core.ErrUnknownAccount) {
			t.Fatalf("expected ErrUnknownAccount, got %v", err)
		}
	})

	t.Run("all future", func(t *testing.T) {
		res, err := f.svc.Update(ctx, "u1", installments.Request{
			TargetID: second.ID,
			Mode:     installments.AllFuture,
			Edit: installments.Edit{
				Description: "Televisão (2/3)",
				Date:        core.NewDate(2024, 2, 20),
				AccountID:   "acc3",
				Category:    core.CategoryPtr("Compras gerais"),
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Transactions) != 2 {
			t.Fatalf("expected 2 updated members, got %d", len(res.Transactions))
		}
		chain, _ := f.svc.Chain(ctx, "u1", second.InstallmentID)
		if chain.Members[0].Description != "TV (1/3)" {
			t.Fatalf("first member must be untouched: %+v", chain.Members[0])
		}
		if chain.Members[2].Description != "Televisão (3/3)" || chain.Members[2].Date.String() != "2024-03-20" {
			t.Fatalf("unexpected third member %+v", chain.Members[2])
		}
	})

	t.Run("renegotiate requires chain", func(t *testing.T) {
		solo, _ := f.svc.Create(ctx, "u1", expense("Café", 500, core.NewDate(2024, 1, 2)))
		_, err := f.svc.Update(ctx, "u1", installments.Request{
			TargetID:      solo.Transactions[0].ID,
			Mode:          installments.Renegotiate,
			Renegotiation: &installments.Renegotiation{NewTotal: core.Cents(100), Count: 2},
			Edit:          installments.Edit{Description: "Café", Date: core.NewDate(2024, 1, 2), AccountID: "acc1"},
		})
		if !errors.Is(err, installments.ErrModeRequiresChain) {
			t.Fatalf("expected ErrModeRequiresChain, got %v", err)
		}
	})
}

func TestMutationLogFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newFixture(t)
	ctx := context.Background()
	in := expense("TV", 30000, core.NewDate(2024, 1, 15))
	in.Installments = 3
	created, err := f.svc.Create(ctx, "u1", in)
	if err != nil {
		t.Fatal(err)
	}
	second := created.Transactions[1]
	buf.Reset()

	if _, err := f.svc.Update(ctx, "u1", installments.Request{
		TargetID: second.ID,
		Mode:     installments.AllFuture,
		Edit:     installments.Edit{Description: "TV", Date: second.Date, AccountID: "acc1"},
	}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"component=ledger",
		"user_id=u1",
		"operation=updated",
		"mode=all-future",
		"count=2",
		"transaction_id=" + second.ID,
		"installment_id=" + second.InstallmentID,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestDeleteFuture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := expense("Sofá", 40000, core.NewDate(2024, 1, 5))
	in.Installments = 4
	created, _ := f.svc.Create(ctx, "u1", in)
	third := created.Transactions[2]

	res, err := f.svc.Delete(ctx, "u1", third.ID, installments.DeleteFuture)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 2 || len(res.Transactions) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if msg := f.pub.last(); msg.Operation != amqp.OpDeleted || !slices.Contains(msg.Months, "2024-04") {
		t.Fatalf("removed months must be announced: %+v", msg)
	}
	progress, _ := f.svc.Chain(ctx, "u1", third.InstallmentID)
	if progress.Count != 2 || progress.Total.Cents != 20000 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	res, err = f.svc.Delete(ctx, "u1", "missing", installments.DeleteSingle)
	if err != nil || res.Changed {
		t.Fatalf("unknown id should be a no-op, got %+v %v", res, err)
	}
}

func TestSaveFailureKeepsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Profile(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	f.kv.mu.Lock()
	f.kv.failSet = true
	f.kv.mu.Unlock()

	res, err := f.svc.Create(ctx, "u1", expense("Mercado", 1000, core.NewDate(2024, 1, 3)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected a persistence warning, got %+v", res.Warnings)
	}
	if txs, _ := f.svc.Transactions(ctx, "u1"); len(txs) != 1 {
		t.Fatal("in-memory ledger should keep the change")
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	res, err := f.svc.Create(context.Background(), "u1", expense("Mercado", 1000, core.NewDate(2024, 1, 3)))
	if err != nil || !res.Changed || len(res.Warnings) != 0 {
		t.Fatalf("publish failure must not fail the mutation: %+v %v", res, err)
	}
}

func TestApplyCategorizationDropsStaleIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, "u1", expense("iFood", 4590, core.NewDate(2024, 1, 10)))
	id := created.Transactions[0].ID

	res, err := f.svc.ApplyCategorization(ctx, "u1", []assistant.Categorization{
		{ID: id, Category: "Alimentação", Nature: core.NatureVariable},
		{ID: "gone", Category: "Lazer"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].CategoryName() != "Alimentação" || res.Transactions[0].Nature != core.NatureVariable {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = f.svc.ApplyCategorization(ctx, "u1", []assistant.Categorization{{ID: "gone"}})
	if err != nil || res.Changed {
		t.Fatalf("only stale ids should change nothing: %+v %v", res, err)
	}
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Create(ctx, "u1", expense(fmt.Sprintf("item %d", i), 100, core.NewDate(2024, 1, 1+i%28))); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	txs, _ := f.svc.Transactions(ctx, "u1")
	if len(txs) != 20 {
		t.Fatalf("expected 20 transactions, got %d", len(txs))
	}
	saved, _ := storage.NewRepository(f.kv).LoadTransactions(ctx, "u1")
	if len(saved) != 20 {
		t.Fatalf("last save should hold every transaction, got %d", len(saved))
	}
}

func TestReadViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rent := expense("Aluguel", 150000, core.NewDate(2024, 1, 30))
	rent.Nature = core.NatureFixed
	f.svc.Create(ctx, "u1", rent)
	income := expense("Salário", 500000, core.NewDate(2024, 1, 5))
	income.Type = core.TypeIncome
	f.svc.Create(ctx, "u1", income)

	s, err := f.svc.Summary(ctx, "u1", core.NewPeriod(2024, 1))
	if err != nil {
		t.Fatal(err)
	}
	if s.Numbers.TotalIncome != 5000 || s.Numbers.TotalExpense != 1500 || s.Numbers.Balance != 3500 {
		t.Fatalf("unexpected numbers %+v", s.Numbers)
	}
	b, _ := f.svc.Breakdown(ctx, "u1", core.NewPeriod(2024, 1))
	if b.Total.Cents != 150000 || b.Fixed.Cents != 150000 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	dues, _ := f.svc.Dues(ctx, "u1")
	if len(dues) != 1 || dues[0].Description != "Aluguel" {
		t.Fatalf("unexpected dues %+v", dues)
	}
}

type scriptedGenerator struct {
	reply func(assistant.Prompt) string
}

func (g scriptedGenerator) Generate(_ context.Context, p assistant.Prompt) (string, error) {
	return g.reply(p), nil
}

func TestAssistantCategorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, "u1", expense("Uber", 2500, core.NewDate(2024, 1, 12)))
	id := created.Transactions[0].ID

	gen := scriptedGenerator{reply: func(assistant.Prompt) string {
		return fmt.Sprintf("```json\n[{\"id\":%q,\"category\":\"Transporte\",\"nature\":\"variable\"},{\"id\":\"ghost\",\"category\":\"Lazer\"}]\n```", id)
	}}
	runner := tasks.NewRunner(1, time.Second, nil)
	defer runner.Close(ctx)
	svc := NewAssistantService(f.svc, assistant.New(gen, time.Second), runner)

	reqID, err := svc.StartCategorization(ctx, "u1", core.NewPeriod(2024, 1))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := runner.Wait(ctx, reqID)
	if err != nil || snap.Status != tasks.StatusCompleted {
		t.Fatalf("unexpected snapshot %+v %v", snap, err)
	}
	report := snap.Result.(CategorizationReport)
	if report.Suggested != 2 || report.Applied != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	txs, _ := f.svc.List(ctx, "u1", core.NewPeriod(2024, 1))
	if txs[0].CategoryName() != "Transporte" {
		t.Fatalf("category not applied: %+v", txs[0])
	}

	if _, err := svc.Task("someone-else", reqID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tasks are scoped to their user, got %v", err)
	}
}

// waitingGenerator answers only after its context is done.
type waitingGenerator struct {
	started chan struct{}
	reply   string
}

func (g *waitingGenerator) Generate(ctx context.Context, _ assistant.Prompt) (string, error) {
	close(g.started)
	<-ctx.Done()
	return g.reply, nil
}

func TestCancelledCategorizationIsNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, "u1", expense("Uber", 2500, core.NewDate(2024, 1, 12)))
	id := created.Transactions[0].ID

	gen := &waitingGenerator{
		started: make(chan struct{}),
		reply:   fmt.Sprintf(`[{"id":%q,"category":"Transporte"}]`, id),
	}
	runner := tasks.NewRunner(1, 0, nil)
	defer runner.Close(ctx)
	svc := NewAssistantService(f.svc, assistant.New(gen, time.Minute), runner)

	reqID, err := svc.StartCategorization(ctx, "u1", core.NewPeriod(2024, 1))
	if err != nil {
		t.Fatal(err)
	}
	<-gen.started
	if err := svc.CancelTask("u1", reqID); err != nil {
		t.Fatal(err)
	}
	snap, err := runner.Wait(ctx, reqID)
	if err != nil || snap.Status != tasks.StatusCancelled {
		t.Fatalf("unexpected snapshot %+v %v", snap, err)
	}
	txs, _ := f.svc.List(ctx, "u1", core.NewPeriod(2024, 1))
	if txs[0].Category != nil {
		t.Fatalf("cancelled task must not change the ledger: %+v", txs[0])
	}
}

func TestAssistantFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Create(ctx, "u1", expense("Uber", 2500, core.NewDate(2024, 1, 12)))

	gen := scriptedGenerator{reply: func(assistant.Prompt) string { return "not json" }}
	svc := NewAssistantService(f.svc, assistant.New(gen, time.Second), tasks.NewRunner(1, 0, nil))

	s, err := svc.Summary(ctx, "u1", core.NewPeriod(2024, 1))
	if err != nil || s.Numbers.TotalExpense != 25 {
		t.Fatalf("summary should fall back to local figures: %+v %v", s, err)
	}
	if _, err := svc.Ask(ctx, "u1", "  "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}

	disabled := NewAssistantService(f.svc, nil, nil)
	if _, err := disabled.Insights(ctx, "u1", core.NewPeriod(2024, 1)); !errors.Is(err, ErrAssistantDisabled) {
		t.Fatalf("expected ErrAssistantDisabled, got %v", err)
	}
}
