package flow

import (
	"sync"

	"github.com/tessellate-ai/floweave/flow/model"
)

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the hosted models the provider adapters
// default to. Prices as of mid-2025; callers with other models should
// register pricing via UsageTracker.SetPricing.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-sonnet-4-20250514": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022": {
		InputPer1M:  0.80,
		OutputPer1M: 4.00,
	},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.5-pro":   {InputPer1M: 1.25, OutputPer1M: 10.00},
}

// UsageTracker accumulates token usage across runs, broken down by model
// and by node, and estimates spend from a pricing table.
//
// Safe for concurrent use; Model and Agent executors record into it from
// parallel dispatch goroutines.
type UsageTracker struct {
	mu      sync.RWMutex
	byModel map[string]model.Usage
	byNode  map[string]model.Usage
	total   model.Usage
	pricing map[string]ModelPricing
}

// NewUsageTracker creates a tracker with the default pricing table.
func NewUsageTracker() *UsageTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &UsageTracker{
		byModel: make(map[string]model.Usage),
		byNode:  make(map[string]model.Usage),
		pricing: pricing,
	}
}

// SetPricing registers or overrides the price of one model.
func (u *UsageTracker) SetPricing(modelName string, p ModelPricing) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pricing[modelName] = p
}

// Record adds one completion's token counts.
func (u *UsageTracker) Record(modelName, nodeID string, usage model.Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()

	m := u.byModel[modelName]
	m.PromptTokens += usage.PromptTokens
	m.CompletionTokens += usage.CompletionTokens
	u.byModel[modelName] = m

	n := u.byNode[nodeID]
	n.PromptTokens += usage.PromptTokens
	n.CompletionTokens += usage.CompletionTokens
	u.byNode[nodeID] = n

	u.total.PromptTokens += usage.PromptTokens
	u.total.CompletionTokens += usage.CompletionTokens
}

// Totals returns the aggregate token counts.
func (u *UsageTracker) Totals() model.Usage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total
}

// ByModel returns per-model token counts.
func (u *UsageTracker) ByModel() map[string]model.Usage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]model.Usage, len(u.byModel))
	for k, v := range u.byModel {
		out[k] = v
	}
	return out
}

// ByNode returns per-node token counts.
func (u *UsageTracker) ByNode() map[string]model.Usage {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]model.Usage, len(u.byNode))
	for k, v := range u.byNode {
		out[k] = v
	}
	return out
}

// EstimatedCost returns the USD spend implied by the recorded usage and
// the pricing table. Models without registered pricing contribute zero.
func (u *UsageTracker) EstimatedCost() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var cost float64
	for name, usage := range u.byModel {
		p, ok := u.pricing[name]
		if !ok {
			continue
		}
		cost += float64(usage.PromptTokens) / 1e6 * p.InputPer1M
		cost += float64(usage.CompletionTokens) / 1e6 * p.OutputPer1M
	}
	return cost
}
