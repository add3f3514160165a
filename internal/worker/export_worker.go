package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"dindin/internal/amqp"
	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/sheets"
	"dindin/internal/storage"
)

const maxParallelExports = 4

// ExportWorker mirrors the months named by mutation events to an exporter.
// It always reloads the saved ledger, so replays and reordering are harmless.
type ExportWorker struct {
	repo     *storage.Repository
	exporter sheets.Exporter
}

func NewExportWorker(repo *storage.Repository, exporter sheets.Exporter) *ExportWorker {
	return &ExportWorker{repo: repo, exporter: exporter}
}

// HandleMutation exports every month of msg. It satisfies amqp.Handler.
func (w *ExportWorker) HandleMutation(ctx context.Context, msg *amqp.MutationMessage) error {
	slog.InfoContext(ctx, "Processing mutation message", applog.NewFields().
		WithComponent(applog.ComponentWorker).WithUser(msg.UserID).WithOperation(msg.Operation).
		WithMutation("", msg.TransactionIDs, msg.Months).ToSlice()...)

	if len(msg.Months) == 0 {
		return nil
	}
	periods := make([]core.Period, 0, len(msg.Months))
	for _, m := range msg.Months {
		p, err := core.ParsePeriod(m)
		if err != nil {
			slog.WarnContext(ctx, "Skipping invalid month in message", applog.FieldComponent, applog.ComponentWorker,
				applog.FieldMonth, m, applog.FieldError, err)
			continue
		}
		periods = append(periods, p)
	}
	return w.export(ctx, msg.UserID, periods)
}

// ExportAll exports every month present in the user's ledger. It is the
// recovery path when events were lost.
func (w *ExportWorker) ExportAll(ctx context.Context, userID string) error {
	txs, err := w.repo.LoadTransactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	var months []string
	for _, t := range txs {
		if !slices.Contains(months, t.MonthReference) {
			months = append(months, t.MonthReference)
		}
	}
	slices.Sort(months)
	periods := make([]core.Period, 0, len(months))
	for _, m := range months {
		if p, err := core.ParsePeriod(m); err == nil {
			periods = append(periods, p)
		}
	}
	return w.exportLoaded(ctx, userID, periods, txs)
}

func (w *ExportWorker) export(ctx context.Context, userID string, periods []core.Period) error {
	txs, err := w.repo.LoadTransactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	return w.exportLoaded(ctx, userID, periods, txs)
}

func (w *ExportWorker) exportLoaded(ctx context.Context, userID string, periods []core.Period, txs []core.Transaction) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelExports)
	for _, p := range periods {
		g.Go(func() error {
			if err := w.exporter.ExportMonth(ctx, userID, p, txs); err != nil {
				return fmt.Errorf("export %s: %w", p, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Export failed", applog.NewFields().WithComponent(applog.ComponentWorker).
			WithUser(userID).WithOperation(applog.OpExport).WithError(err, applog.ErrorTypeNetwork).ToSlice()...)
		return err
	}
	slog.InfoContext(ctx, "Export completed", applog.FieldComponent, applog.ComponentWorker,
		applog.FieldUserID, userID, applog.FieldOperation, applog.OpExport, applog.FieldCount, len(periods))
	return nil
}
