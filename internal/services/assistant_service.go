package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dindin/internal/assistant"
	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/summary"
	"dindin/internal/tasks"
)

var (
	// ErrAssistantDisabled is returned when no text generator is configured.
	ErrAssistantDisabled = errors.New("assistant is not configured")
	ErrEmptyQuestion     = errors.New("question is required")
)

const taskCategorize = "categorize"

// CategorizationReport is the result of a finished categorization task.
type CategorizationReport struct {
	Month     string   `json:"month"`
	Suggested int      `json:"suggested"`
	Applied   int      `json:"applied"`
	Warnings  []string `json:"warnings,omitempty"`
}

// AssistantService runs assistant requests against a user's ledger.
type AssistantService struct {
	tx        *TransactionService
	assistant *assistant.Assistant
	runner    *tasks.Runner
}

// NewAssistantService wires the service. A nil assistant disables every
// operation with ErrAssistantDisabled.
func NewAssistantService(tx *TransactionService, a *assistant.Assistant, runner *tasks.Runner) *AssistantService {
	return &AssistantService{tx: tx, assistant: a, runner: runner}
}

func (s *AssistantService) Enabled() bool { return s.assistant != nil && s.runner != nil }

// StartCategorization queues categorization of the uncategorized
// transactions of p and returns the request id.
func (s *AssistantService) StartCategorization(ctx context.Context, userID string, p core.Period) (string, error) {
	if !s.Enabled() {
		return "", ErrAssistantDisabled
	}
	txs, err := s.tx.List(ctx, userID, p)
	if err != nil {
		return "", err
	}
	var pending []core.Transaction
	for _, t := range txs {
		if t.Category == nil {
			pending = append(pending, t)
		}
	}
	profile, err := s.tx.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	categories := profile.CategoryNames()

	return s.runner.Submit(userID, taskCategorize, func(ctx context.Context) (any, error) {
		report := CategorizationReport{Month: p.String()}
		if len(pending) == 0 {
			return report, nil
		}
		cats, err := s.assistant.Categorize(ctx, pending, categories)
		if err != nil {
			return nil, fmt.Errorf("categorize %s: %w", p, err)
		}
		report.Suggested = len(cats)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.tx.ApplyCategorization(ctx, userID, cats)
		if err != nil {
			return nil, err
		}
		report.Applied = len(res.Transactions)
		report.Warnings = res.Warnings
		fields := applog.NewFields().WithComponent(applog.ComponentAssistant).WithUser(userID).WithOperation(applog.OpCategorize)
		fields[applog.FieldMonth] = p.String()
		fields[applog.FieldCount] = report.Applied
		slog.InfoContext(ctx, "Categorization applied", fields.ToSlice()...)
		return report, nil
	})
}

// Task returns the snapshot of a task owned by userID.
func (s *AssistantService) Task(userID, id string) (tasks.Snapshot, error) {
	if s.runner == nil {
		return tasks.Snapshot{}, ErrAssistantDisabled
	}
	snap, ok := s.runner.Status(id)
	if !ok || snap.UserID != userID {
		return tasks.Snapshot{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return snap, nil
}

// CancelTask stops a task owned by userID.
func (s *AssistantService) CancelTask(userID, id string) error {
	if _, err := s.Task(userID, id); err != nil {
		return err
	}
	s.runner.Cancel(id)
	return nil
}

// Insights describes the spending of p in free text.
func (s *AssistantService) Insights(ctx context.Context, userID string, p core.Period) (string, error) {
	if !s.Enabled() {
		return "", ErrAssistantDisabled
	}
	txs, err := s.tx.Transactions(ctx, userID)
	if err != nil {
		return "", err
	}
	text, err := s.assistant.Insights(ctx, txs, p)
	if err != nil {
		slog.WarnContext(ctx, "Insights fell back to default text", applog.FieldComponent, applog.ComponentAssistant,
			applog.FieldUserID, userID, applog.FieldMonth, p.String(), applog.FieldError, err)
	}
	return text, nil
}

// Summary returns the narrated summary of p, or the local figures when the
// model answer is unusable.
func (s *AssistantService) Summary(ctx context.Context, userID string, p core.Period) (summary.PeriodSummary, error) {
	if !s.Enabled() {
		return summary.PeriodSummary{}, ErrAssistantDisabled
	}
	txs, err := s.tx.Transactions(ctx, userID)
	if err != nil {
		return summary.PeriodSummary{}, err
	}
	narrated, err := s.assistant.MonthlySummary(ctx, txs, p)
	if err != nil {
		slog.WarnContext(ctx, "Summary fell back to local figures", applog.FieldComponent, applog.ComponentAssistant,
			applog.FieldUserID, userID, applog.FieldMonth, p.String(), applog.FieldError, err)
	}
	if narrated == nil {
		return summary.ForPeriod(txs, p), nil
	}
	return *narrated, nil
}

// Ask answers a question about the user's ledger, seeded with the summary of
// the current month.
func (s *AssistantService) Ask(ctx context.Context, userID, question string) (string, error) {
	if !s.Enabled() {
		return "", ErrAssistantDisabled
	}
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	txs, err := s.tx.Transactions(ctx, userID)
	if err != nil {
		return "", err
	}
	current := summary.ForPeriod(txs, s.tx.today().Period())
	answer, err := s.assistant.Ask(ctx, question, txs, &current)
	if err != nil {
		slog.WarnContext(ctx, "Answer fell back to default text", applog.FieldComponent, applog.ComponentAssistant,
			applog.FieldUserID, userID, applog.FieldError, err)
	}
	return answer, nil
}
