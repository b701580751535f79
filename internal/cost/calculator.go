package cost

// Rates holds pricing configuration for the generation backend.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	EURPerUSD float64              `yaml:"eur_per_usd" mapstructure:"eur_per_usd"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// charsPerToken approximates tokenization for pre-call estimates.
const charsPerToken = 4

// fallbackRate prices models missing from the rate table so estimates
// never come out as zero.
var fallbackRate = ModelRate{Input: 3.00, Output: 15.00}

// Calculator computes EUR costs for model usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	if rates.EURPerUSD <= 0 {
		rates.EURPerUSD = DefaultRates().EURPerUSD
	}
	return &Calculator{rates: rates}
}

func (c *Calculator) rate(model string) ModelRate {
	if r, ok := c.rates.Anthropic[model]; ok {
		return r
	}
	return fallbackRate
}

// Anthropic computes the EUR cost of a completed Anthropic call.
func (c *Calculator) Anthropic(model string, input, output int) float64 {
	rate := c.rate(model)
	usd := (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
	return usd * c.rates.EURPerUSD
}

// Estimate returns the EUR cost charged before a call: the prompt length in
// approximate tokens plus the full output allowance.
func (c *Calculator) Estimate(model string, promptChars int, maxOutputTokens int64) float64 {
	in := promptChars/charsPerToken + 1
	return c.Anthropic(model, in, int(maxOutputTokens))
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		EURPerUSD: 0.92,
	}
}

// MergeRates overlays configured rates on top of the defaults.
func MergeRates(models map[string]ModelRate, eurPerUSD float64) Rates {
	r := DefaultRates()
	for k, v := range models {
		r.Anthropic[k] = v
	}
	if eurPerUSD > 0 {
		r.EURPerUSD = eurPerUSD
	}
	return r
}
