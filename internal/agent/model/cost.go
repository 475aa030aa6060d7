package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing is the USD price per 1M text tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// Cost is the USD price of one completion call.
type Cost struct {
	Input  float64
	Output float64
}

func (c Cost) Total() float64 {
	return c.Input + c.Output
}

// Longer names first so versioned ids match their most specific family.
var pricingTable = []struct {
	prefix  string
	pricing Pricing
}{
	{"gemini-2.5-flash-lite", Pricing{InputPerM: 0.10, OutputPerM: 0.40}},
	{"gemini-2.5-flash", Pricing{InputPerM: 0.30, OutputPerM: 2.50}},
	{"gemini-2.5-pro", Pricing{InputPerM: 1.25, OutputPerM: 10.00}},
	{"gpt-4o-mini", Pricing{InputPerM: 0.15, OutputPerM: 0.60}},
	{"gpt-4o", Pricing{InputPerM: 2.50, OutputPerM: 10.00}},
}

// PricingFor resolves a model id such as "gemini-2.5-flash-001" to its
// family price. Unknown models are free.
func PricingFor(modelName string) Pricing {
	name := strings.ToLower(strings.TrimPrefix(modelName, "models/"))
	for _, p := range pricingTable {
		if strings.HasPrefix(name, p.prefix) {
			return p.pricing
		}
	}
	return Pricing{}
}

func (p Pricing) Cost(usage *schema.TokenUsage) Cost {
	if usage == nil {
		return Cost{}
	}
	return Cost{
		Input:  p.InputPerM * float64(usage.PromptTokens) / 1_000_000,
		Output: p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000,
	}
}
