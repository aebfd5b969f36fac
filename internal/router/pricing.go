package router

import "github.com/ppiankov/competia/internal/model"

// defaultPricing is the built-in per-1M-token price table, in USD.
// Config entries override it. Used for routing decisions and logging only;
// nothing here is billed in real time.
var defaultPricing = map[string]model.ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	// Local models cost nothing per token.
	"llama3.1": {},
	"mistral":  {},
}

// PriceTable resolves model prices with config overrides on top of the
// built-in table.
type PriceTable struct {
	overrides map[string]model.ModelPricing
}

// NewPriceTable creates a price table with the given config overrides.
func NewPriceTable(overrides map[string]model.ModelPricing) *PriceTable {
	return &PriceTable{overrides: overrides}
}

// Lookup returns the pricing for a model, falling back to the built-in
// table. Unknown models price at zero.
func (t *PriceTable) Lookup(modelName string) model.ModelPricing {
	if t != nil && t.overrides != nil {
		if p, ok := t.overrides[modelName]; ok {
			return p
		}
	}
	return defaultPricing[modelName]
}

// Estimate computes cost = in/1e6*price_in + out/1e6*price_out.
func (t *PriceTable) Estimate(modelName string, inputTokens, outputTokens int) float64 {
	p := t.Lookup(modelName)
	return float64(inputTokens)/1e6*p.InputPer1M + float64(outputTokens)/1e6*p.OutputPer1M
}
