package usage

// Per-token USD rates by model. Kept deliberately coarse: cost estimates
// feed dashboards and budgets, not invoices.
var ratesPerToken = map[string]float64{
	"claude-3-5-sonnet": 0.000015,
	"claude-3-haiku":    0.000005,
	"claude-3-opus":     0.000075,
	"gpt-4o":            0.000010,
	"gpt-4o-mini":       0.0000006,
	"gpt-4":             0.000030,
}

const defaultRatePerToken = 0.000015

// CalculateCost is a pure lookup-table multiplication. Unknown model
// names fall back to the baseline rate rather than erroring.
func CalculateCost(tokensUsed int, model string) float64 {
	rate, ok := ratesPerToken[model]
	if !ok {
		rate = defaultRatePerToken
	}
	return float64(tokensUsed) * rate
}
