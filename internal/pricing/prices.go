package pricing

import "strings"

// ModelPrice is the per-million-token rate pair for one model family.
type ModelPrice struct {
	InputPerMillion  float64 `json:"inputPerMillion"`
	OutputPerMillion float64 `json:"outputPerMillion"`
}

type priceEntry struct {
	key   string
	price ModelPrice
}

// modelPrices is scanned in declaration order when no exact key matches, so
// more specific keys must come before shorter ones sharing a prefix.
var modelPrices = []priceEntry{
	// Claude (Anthropic)
	{"claude-haiku-4-5", ModelPrice{InputPerMillion: 1.0, OutputPerMillion: 5.0}},
	{"claude-sonnet-4-6", ModelPrice{InputPerMillion: 3.0, OutputPerMillion: 15.0}},
	{"claude-opus-4-6", ModelPrice{InputPerMillion: 5.0, OutputPerMillion: 25.0}},

	// Gemini (Google)
	{"gemini-3-flash-preview", ModelPrice{InputPerMillion: 0.5, OutputPerMillion: 3.0}},

	// OpenRouter
	{"minimax/minimax-m2.5", ModelPrice{InputPerMillion: 0.3, OutputPerMillion: 1.1}},
}

// GetModelPrice returns nil for models missing from the table: an unknown
// model has unknown cost, which is distinct from zero cost.
func GetModelPrice(modelID string) *ModelPrice {
	normalized := strings.ToLower(modelID)

	for _, entry := range modelPrices {
		if entry.key == normalized {
			price := entry.price
			return &price
		}
	}
	for _, entry := range modelPrices {
		if strings.Contains(normalized, entry.key) {
			price := entry.price
			return &price
		}
	}
	return nil
}

// CalculateCost prices one completed call in USD, or nil when the model is
// not in the table.
func CalculateCost(modelID string, inputTokens, outputTokens int64) *float64 {
	price := GetModelPrice(modelID)
	if price == nil {
		return nil
	}

	inputCost := float64(inputTokens) / 1_000_000 * price.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * price.OutputPerMillion

	cost := inputCost + outputCost
	return &cost
}
