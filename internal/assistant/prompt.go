package assistant

import (
	"encoding/json"
	"fmt"

	"dindin/internal/core"
	"dindin/internal/summary"
)

// Mode tags the kind of answer requested from the model.
type Mode string

const (
	ModeCategorize Mode = "CATEGORIZE_TRANSACTIONS"
	ModeSummary    Mode = "SUMMARY_MONTH"
	ModeInsights   Mode = "INSIGHTS_MONTH"
	ModeQNA        Mode = "QNA"
)

// Neutral answers used when the model fails or returns nothing.
const (
	FallbackInsights = "Não foi possível gerar insights no momento."
	FallbackAnswer   = "Desculpe, não consegui processar sua pergunta."
)

// SystemInstruction frames every request. Answers are in Brazilian
// Portuguese and JSON modes must return bare JSON.
const SystemInstruction = `Você é o assistente financeiro do DinDin. Você recebe os dados de um único usuário por vez.

Regras:
- Responda sempre em português do Brasil, em tom claro e neutro, sem julgamentos sobre os gastos.
- Use apenas os dados recebidos; nunca invente valores nem compare com outros usuários.
- Não recomende investimentos específicos. Sugestões são gerais e sem garantia de resultado.
- Quando os dados forem insuficientes, diga isso.

Modos (campo "mode" da entrada):
- CATEGORIZE_TRANSACTIONS: responda apenas um array JSON [{"id": "...", "category": "...", "nature": "..."}]. Use as categorias de context.categories quando existirem. nature é um de fixed, variable, extra_income, salary, loan_payment, loan_received, installment.
- SUMMARY_MONTH: responda apenas um objeto JSON {"period_label", "numbers": {"total_income", "total_expense", "balance"}, "categories": [{"category", "amount", "percent_of_expenses"}], "highlights": [], "suggestions": [], "summary_text"}. Valores em reais (número decimal). Parta de context.precomputed.summary quando presente.
- INSIGHTS_MONTH: texto corrido com quebras de linha.
- QNA: responda a pergunta em "question" em texto natural.

Nos modos JSON não use markdown nem texto fora do JSON.`

type (
	PeriodRef struct {
		Month string `json:"month"`
		Label string `json:"label"`
	}

	Precomputed struct {
		Summary *summary.PeriodSummary `json:"summary,omitempty"`
	}

	Context struct {
		Transactions []core.Transaction `json:"transactions"`
		Period       *PeriodRef         `json:"period,omitempty"`
		Categories   []string           `json:"categories,omitempty"`
		Precomputed  *Precomputed       `json:"precomputed,omitempty"`
	}

	// Payload is the JSON document sent as the user turn.
	Payload struct {
		Mode     Mode    `json:"mode"`
		Context  Context `json:"context"`
		Question string  `json:"question,omitempty"`
	}

	// Prompt is what a TextGenerator receives.
	Prompt struct {
		Mode   Mode
		System string
		Body   string
	}
)

func periodRef(p core.Period) *PeriodRef {
	return &PeriodRef{Month: p.String(), Label: p.Label()}
}

// Build encodes the payload into a prompt.
func (p Payload) Build() (Prompt, error) {
	if p.Context.Transactions == nil {
		p.Context.Transactions = []core.Transaction{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode %s payload: %w", p.Mode, err)
	}
	return Prompt{Mode: p.Mode, System: SystemInstruction, Body: string(b)}, nil
}
