// Package assistant asks a text-generation model to categorize transactions
// and to summarize, explain and answer questions about a month of spending.
//
// Model output is untrusted: JSON answers are cleaned before decoding and
// any failure yields a neutral result.
package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/summary"
)

// Categorization is one suggested classification.
type Categorization struct {
	ID       string      `json:"id"`
	Category string      `json:"category"`
	Nature   core.Nature `json:"nature"`
}

// Assistant wraps a TextGenerator with payload shaping and result parsing.
type Assistant struct {
	gen     TextGenerator
	timeout time.Duration
}

func New(gen TextGenerator, timeout time.Duration) *Assistant {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Assistant{gen: gen, timeout: timeout}
}

func (a *Assistant) generate(ctx context.Context, p Payload) (string, error) {
	prompt, err := p.Build()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	start := time.Now()
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "Text generation failed", applog.FieldComponent, applog.ComponentAssistant, applog.FieldMode, p.Mode, applog.FieldError, err)
		return "", err
	}
	slog.DebugContext(ctx, "Text generated", applog.FieldComponent, applog.ComponentAssistant, applog.FieldMode, p.Mode,
		applog.FieldDuration, time.Since(start).Milliseconds(), "chars", len(text))
	return text, nil
}

// Categorize suggests a category and nature per transaction. An unusable
// answer produces an empty result; the error reports collaborator failure.
func (a *Assistant) Categorize(ctx context.Context, txs []core.Transaction, categories []string) ([]Categorization, error) {
	if len(txs) == 0 {
		return []Categorization{}, nil
	}
	text, err := a.generate(ctx, Payload{Mode: ModeCategorize, Context: Context{Transactions: txs, Categories: categories}})
	if err != nil {
		return []Categorization{}, err
	}
	return parseCategorizations(text), nil
}

// MonthlySummary asks the model for a narrated summary seeded with the local
// figures. It returns nil when the answer cannot be decoded.
func (a *Assistant) MonthlySummary(ctx context.Context, txs []core.Transaction, p core.Period) (*summary.PeriodSummary, error) {
	local := summary.ForPeriod(txs, p)
	text, err := a.generate(ctx, Payload{Mode: ModeSummary, Context: Context{
		Transactions: summary.InPeriod(txs, p),
		Period:       periodRef(p),
		Precomputed:  &Precomputed{Summary: &local},
	}})
	if err != nil {
		return nil, err
	}
	var out summary.PeriodSummary
	if err := json.Unmarshal([]byte(CleanJSON(text)), &out); err != nil {
		slog.WarnContext(ctx, "Discarding malformed summary", applog.FieldComponent, applog.ComponentAssistant, applog.FieldError, err)
		return nil, nil
	}
	if out.PeriodLabel == "" {
		out.PeriodLabel = p.Label()
	}
	return &out, nil
}

// Insights returns free text about the month, or FallbackInsights.
func (a *Assistant) Insights(ctx context.Context, txs []core.Transaction, p core.Period) (string, error) {
	text, err := a.generate(ctx, Payload{Mode: ModeInsights, Context: Context{
		Transactions: summary.InPeriod(txs, p),
		Period:       periodRef(p),
	}})
	if text = strings.TrimSpace(text); text == "" {
		return FallbackInsights, err
	}
	return text, nil
}

// Ask answers a free-form question, or returns FallbackAnswer.
func (a *Assistant) Ask(ctx context.Context, question string, txs []core.Transaction, s *summary.PeriodSummary) (string, error) {
	c := Context{Transactions: txs}
	if s != nil {
		c.Precomputed = &Precomputed{Summary: s}
	}
	text, err := a.generate(ctx, Payload{Mode: ModeQNA, Context: c, Question: question})
	if text = strings.TrimSpace(text); text == "" {
		return FallbackAnswer, err
	}
	return text, nil
}

func parseCategorizations(text string) []Categorization {
	var raw []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Nature   string `json:"nature"`
	}
	if err := json.Unmarshal([]byte(CleanJSON(text)), &raw); err != nil {
		slog.Warn("Discarding malformed categorization", applog.FieldComponent, applog.ComponentAssistant, applog.FieldError, err)
		return []Categorization{}
	}
	out := make([]Categorization, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		nature, err := core.ParseNature(r.Nature)
		if err != nil {
			nature = core.NatureNone
		}
		out = append(out, Categorization{ID: r.ID, Category: strings.TrimSpace(r.Category), Nature: nature})
	}
	return out
}

// CleanJSON strips markdown fences and surrounding chatter, keeping the
// outermost JSON array or object.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	if end := strings.LastIndex(s, closer); end > start {
		return strings.TrimSpace(s[start : end+1])
	}
	return s
}
