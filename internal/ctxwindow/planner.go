// Package ctxwindow computes the token window to request from the upstream
// daemon for the next call (spec.md §4.5). It is a pure function over the
// model's maximum context, the session's stored configuration, and the most
// recent token usage — there is no teacher analog for this component, so it
// is implemented directly from the spec's policy table rather than adapted
// from an existing file.
package ctxwindow

import (
	"math"
	"time"

	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

const defaultInitialWindow = 8192

// SafeCeiling is floor(0.9 * modelMax), the glossary's "safe ceiling".
func SafeCeiling(modelMax int) int {
	return int(math.Floor(0.9 * float64(modelMax)))
}

// Usage is the most recent assistant token counts, used to detect
// over-threshold usage relative to the current window.
type Usage struct {
	PromptEvalCount int
	EvalCount       int
}

// Plan computes the next (window, reason) pair per the policy in spec.md
// §4.5 and appends a history entry for every non-idempotent decision.
func Plan(modelMax int, model string, messageCount int, cfg *types.ContextWindowConfig, usage *Usage) (int, types.AdjustmentReason) {
	ceiling := SafeCeiling(modelMax)

	if cfg.ManualOverride {
		return cfg.CurrentWindow, types.ReasonManualOverride
	}

	if messageCount == 0 {
		window := min(ceiling, defaultInitialWindow)
		record(cfg, window, types.ReasonInitialSetup)
		cfg.LastModel = model
		return window, types.ReasonInitialSetup
	}

	if usage != nil {
		total := usage.PromptEvalCount + usage.EvalCount
		if float64(total) > 0.5*float64(cfg.CurrentWindow) {
			window := min(ceiling, int(math.Ceil(1.5*float64(total))))
			record(cfg, window, types.ReasonUsageThreshold)
			cfg.LastModel = model
			return window, types.ReasonUsageThreshold
		}
	}

	if cfg.LastModel != "" && cfg.LastModel != model {
		window := min(ceiling, defaultInitialWindow)
		record(cfg, window, types.ReasonModelChange)
		cfg.LastModel = model
		return window, types.ReasonModelChange
	}

	cfg.LastModel = model
	return cfg.CurrentWindow, types.ReasonNoAdjustment
}

func record(cfg *types.ContextWindowConfig, window int, reason types.AdjustmentReason) {
	cfg.CurrentWindow = window
	cfg.LastReason = reason
	cfg.AppendAdjustment(types.ContextWindowAdjustment{Window: window, Reason: reason, Timestamp: time.Now().UTC()})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
