// Pricing calculator for OpenAI API costs with service tier support.
//
// Prices are in USD per 1M tokens. Unknown models fall back to the family
// prefix, then to the default bucket; unknown tiers fall back to default.

package metrics

import "strings"

// PricingTier is the per-token pricing for one model family and service tier.
type PricingTier struct {
	InputPer1M       float64
	CachedInputPer1M float64
	OutputPer1M      float64
}

var pricingTable = map[string]map[string]PricingTier{
	"gpt-5": {
		"default": {InputPer1M: 1.25, CachedInputPer1M: 0.125, OutputPer1M: 10.00},
		"flex":    {InputPer1M: 0.625, CachedInputPer1M: 0.0625, OutputPer1M: 5.00},
	},
	"gpt-5.1": {
		"default": {InputPer1M: 1.25, CachedInputPer1M: 0.125, OutputPer1M: 10.00},
		"flex":    {InputPer1M: 0.625, CachedInputPer1M: 0.0625, OutputPer1M: 5.00},
	},
	// Fallback for other model names
	"default": {
		"default": {InputPer1M: 1.25, CachedInputPer1M: 0.125, OutputPer1M: 10.00},
		"flex":    {InputPer1M: 0.625, CachedInputPer1M: 0.0625, OutputPer1M: 5.00},
	},
}

// Cost is the USD cost breakdown of one request.
type Cost struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
	// Breakdown for debugging
	InputCostUncached float64 `json:"input_cost_uncached"`
	InputCostCached   float64 `json:"input_cost_cached"`
}

// PricingFor resolves the pricing tier for a model and service tier.
func PricingFor(modelName, serviceTier string) PricingTier {
	modelKey := strings.ToLower(modelName)
	if _, ok := pricingTable[modelKey]; !ok {
		switch {
		case strings.HasPrefix(modelKey, "gpt-5.1"):
			modelKey = "gpt-5.1"
		case strings.HasPrefix(modelKey, "gpt-5"):
			modelKey = "gpt-5"
		default:
			modelKey = "default"
		}
	}

	tierKey := strings.ToLower(serviceTier)
	if tierKey == "" {
		tierKey = "default"
	}
	tier, ok := pricingTable[modelKey][tierKey]
	if !ok {
		tier = pricingTable[modelKey]["default"]
	}
	return tier
}

// CalculateCost prices a request from its token counts. Cached tokens are
// clamped so they never exceed the prompt total.
func CalculateCost(modelName string, promptTokens, completionTokens, cachedTokens int, serviceTier string) Cost {
	pricing := PricingFor(modelName, serviceTier)

	uncachedTokens := promptTokens - cachedTokens
	if uncachedTokens < 0 {
		uncachedTokens = 0
		cachedTokens = promptTokens
	}

	inputCostUncached := float64(uncachedTokens) / 1_000_000 * pricing.InputPer1M
	inputCostCached := float64(cachedTokens) / 1_000_000 * pricing.CachedInputPer1M
	outputCost := float64(completionTokens) / 1_000_000 * pricing.OutputPer1M

	inputCost := inputCostUncached + inputCostCached
	return Cost{
		InputCost:         inputCost,
		OutputCost:        outputCost,
		TotalCost:         inputCost + outputCost,
		InputCostUncached: inputCostUncached,
		InputCostCached:   inputCostCached,
	}
}
