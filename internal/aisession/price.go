package aisession

import "encoding/json"

// ModelPrice is the cost of one model's audio tokens, in cents per 1000
// tokens, input and output priced independently.
type ModelPrice struct {
	InputCentsPer1k  float64 `json:"input_cents_per_1k"`
	OutputCentsPer1k float64 `json:"output_cents_per_1k"`
}

// PriceTable maps model id to its price. There are no hardcoded defaults:
// a model absent from the table simply never accrues cost, since prices
// change independently of code and a stale baked-in price is worse than
// an honest zero.
type PriceTable map[string]ModelPrice

// ParsePriceTable decodes a JSON object of model id -> ModelPrice. An empty
// string yields an empty table.
func ParsePriceTable(raw string) (PriceTable, error) {
	table := PriceTable{}
	if raw == "" {
		return table, nil
	}
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, err
	}
	return table, nil
}

// CostCents computes the cost, in cents, of inputTokens/outputTokens of
// audio on model. Returns 0 for a model with no price entry or for zero
// token counts (a response.done with no usage field).
func (t PriceTable) CostCents(model string, inputTokens, outputTokens int) float64 {
	price, ok := t[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*price.InputCentsPer1k + float64(outputTokens)/1000*price.OutputCentsPer1k
}
