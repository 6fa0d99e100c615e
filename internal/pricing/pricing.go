package pricing

import (
	"fmt"
	"math"
)

// Rate holds the USD price per 1000 tokens for a deployment.
type Rate struct {
	PromptPer1K     float64
	CompletionPer1K float64
	ImagePer1K      float64
}

// rates maps deployment identifiers to their pricing. Deployments not
// listed here are billed at zero.
var rates = map[string]Rate{
	"gpt-4o":                 {PromptPer1K: 0.03, CompletionPer1K: 0.06},
	"gpt-4":                  {PromptPer1K: 0.02, CompletionPer1K: 0.05},
	"gpt-35-turbo":           {PromptPer1K: 0.0015, CompletionPer1K: 0.002},
	"gpt-35-turbo-instruct":  {PromptPer1K: 0.0018, CompletionPer1K: 0.0025},
	"text-embedding-3-large": {PromptPer1K: 0.001, CompletionPer1K: 0.002},
	"dall-e-3":               {ImagePer1K: 0.009},
}

// RateFor returns the pricing for a deployment, or a zero Rate when the
// deployment is unknown.
func RateFor(deploymentID string) Rate {
	return rates[deploymentID]
}

// Cost computes the chargeback in USD for the given token counts,
// rounded to 2 decimal places. Unknown deployments cost 0.
func Cost(deploymentID string, promptTokens, completionTokens, imageTokens uint64) float64 {
	r := rates[deploymentID]
	cost := float64(promptTokens)/1000*r.PromptPer1K +
		float64(completionTokens)/1000*r.CompletionPer1K +
		float64(imageTokens)/1000*r.ImagePer1K
	return round2(cost)
}

// FormatUSD renders an already-rounded cost with exactly two decimals,
// the representation the dashboard consumes.
func FormatUSD(cost float64) string {
	return fmt.Sprintf("%.2f", cost)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
