package flow

import (
	"math"
	"testing"

	"github.com/tessellate-ai/floweave/flow/model"
)

func TestUsageTracker_Record(t *testing.T) {
	u := NewUsageTracker()
	u.Record("gpt-4o-mini", "draft", model.Usage{PromptTokens: 100, CompletionTokens: 50})
	u.Record("gpt-4o-mini", "review", model.Usage{PromptTokens: 200, CompletionTokens: 30})
	u.Record("claude-sonnet-4-20250514", "draft", model.Usage{PromptTokens: 400, CompletionTokens: 80})

	total := u.Totals()
	if total.PromptTokens != 700 || total.CompletionTokens != 160 {
		t.Errorf("unexpected totals: %+v", total)
	}

	byModel := u.ByModel()
	if got := byModel["gpt-4o-mini"]; got.PromptTokens != 300 || got.CompletionTokens != 80 {
		t.Errorf("unexpected gpt-4o-mini usage: %+v", got)
	}

	byNode := u.ByNode()
	if got := byNode["draft"]; got.PromptTokens != 500 || got.CompletionTokens != 130 {
		t.Errorf("unexpected draft node usage: %+v", got)
	}
}

func TestUsageTracker_EstimatedCost(t *testing.T) {
	u := NewUsageTracker()
	u.Record("gpt-4o-mini", "n", model.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})

	// 1M prompt at $0.15 plus 1M completion at $0.60.
	if got := u.EstimatedCost(); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("EstimatedCost() = %v, want 0.75", got)
	}

	t.Run("unknown model contributes zero", func(t *testing.T) {
		u := NewUsageTracker()
		u.Record("homegrown-7b", "n", model.Usage{PromptTokens: 1_000_000})
		if got := u.EstimatedCost(); got != 0 {
			t.Errorf("EstimatedCost() = %v, want 0", got)
		}
	})

	t.Run("SetPricing overrides", func(t *testing.T) {
		u := NewUsageTracker()
		u.SetPricing("homegrown-7b", ModelPricing{InputPer1M: 1.00, OutputPer1M: 2.00})
		u.Record("homegrown-7b", "n", model.Usage{PromptTokens: 500_000, CompletionTokens: 500_000})
		if got := u.EstimatedCost(); math.Abs(got-1.50) > 1e-9 {
			t.Errorf("EstimatedCost() = %v, want 1.50", got)
		}
	})
}
