// Package budget decides how the model's context window is split between
// structured summaries, retrieved passages, and the warm narrative slice
// for a single turn.
package budget

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrBudgetOverflow reports that the reserved sections alone exceed the
// context ceiling, or that nothing can be fit even after dropping all
// passages and truncating the warm slice. The turn fails explicitly rather
// than silently clipping.
var ErrBudgetOverflow = errors.New("context budget overflow")

// Range is an inclusive percentage range of the payload budget.
type Range struct {
	Min uint
	Max uint
}

func (r Range) contains(pct float64) bool {
	return pct >= float64(r.Min) && pct <= float64(r.Max)
}

// Config holds the budget envelope for an Allocator.
type Config struct {
	// ContextCeiling is the model's full context window in tokens.
	ContextCeiling uint

	Structured Range
	Passages   Range
	Warm       Range
}

// Reserved is the non-negotiable part of the prompt.
type Reserved struct {
	System    string
	UserInput string
}

// Signals carries the turn-state observations that sway the split.
type Signals struct {
	// DistilledCount is how many passages survived distillation.
	DistilledCount int

	// EntityCount is how many canonical entities the input touches.
	EntityCount int

	// SceneContinuity is true when the input continues the current scene
	// rather than jumping elsewhere.
	SceneContinuity bool
}

// Allocation is the chosen split, in tokens, plus the reasoning behind it.
type Allocation struct {
	PayloadTokens int

	StructuredTokens int
	PassagesTokens   int
	WarmTokens       int

	StructuredPct float64
	PassagesPct   float64
	WarmPct       float64

	Justification string
}

type Allocator struct {
	cfg     Config
	counter TokenCounter
	logger  *zap.Logger
}

func NewAllocator(cfg Config, counter TokenCounter, logger *zap.Logger) *Allocator {
	return &Allocator{
		cfg:     cfg,
		counter: counter,
		logger:  logger,
	}
}

// Allocate computes the payload budget left after the reserved sections and
// splits it into the three categories. The chosen percentages always lie
// inside their configured ranges and sum to at most 100; when the desired
// percentages overrun, everything above the minima is scaled down
// proportionally.
func (a *Allocator) Allocate(reserved Reserved, signals Signals) (*Allocation, error) {
	systemTokens := a.counter.Count(reserved.System)
	inputTokens := a.counter.Count(reserved.UserInput)

	payload := int(a.cfg.ContextCeiling) - systemTokens - inputTokens
	if payload <= 0 {
		return nil, fmt.Errorf("%w: ceiling %d, system %d, input %d",
			ErrBudgetOverflow, a.cfg.ContextCeiling, systemTokens, inputTokens)
	}

	structured, passages, warm, reasons := a.choosePercents(signals)

	alloc := &Allocation{
		PayloadTokens:    payload,
		StructuredTokens: payload * int(structured*100) / 10000,
		PassagesTokens:   payload * int(passages*100) / 10000,
		WarmTokens:       payload * int(warm*100) / 10000,
		StructuredPct:    structured,
		PassagesPct:      passages,
		WarmPct:          warm,
	}

	alloc.Justification = fmt.Sprintf(
		"payload %d tokens (ceiling %d - system %d - input %d); structured %.0f%% (%d tok), passages %.0f%% (%d tok), warm %.0f%% (%d tok); %s",
		payload, a.cfg.ContextCeiling, systemTokens, inputTokens,
		structured, alloc.StructuredTokens,
		passages, alloc.PassagesTokens,
		warm, alloc.WarmTokens,
		strings.Join(reasons, ", "))

	return alloc, nil
}

// choosePercents starts each category at its range midpoint and leans
// toward the extremes the signals justify, then reconciles the triple.
func (a *Allocator) choosePercents(signals Signals) (structured, passages, warm float64, reasons []string) {
	structured = midpoint(a.cfg.Structured)
	passages = midpoint(a.cfg.Passages)
	warm = midpoint(a.cfg.Warm)

	if signals.EntityCount >= 3 {
		structured = float64(a.cfg.Structured.Max)
		reasons = append(reasons, fmt.Sprintf("%d entities in play favor summaries", signals.EntityCount))
	} else if signals.EntityCount == 0 {
		structured = float64(a.cfg.Structured.Min)
		reasons = append(reasons, "no entities resolved, minimal summaries")
	}

	if signals.DistilledCount >= 5 {
		passages = float64(a.cfg.Passages.Max)
		reasons = append(reasons, fmt.Sprintf("%d distilled passages favor cold context", signals.DistilledCount))
	} else if signals.DistilledCount == 0 {
		passages = float64(a.cfg.Passages.Min)
		reasons = append(reasons, "nothing distilled, minimal passages")
	}

	if signals.SceneContinuity {
		warm = float64(a.cfg.Warm.Max)
		reasons = append(reasons, "scene continues, favoring recent prose")
	}

	structured, passages, warm = reconcile(
		[3]float64{structured, passages, warm},
		[3]Range{a.cfg.Structured, a.cfg.Passages, a.cfg.Warm},
	)

	if len(reasons) == 0 {
		reasons = append(reasons, "no strong signals, midpoint split")
	}

	return structured, passages, warm, reasons
}

// reconcile clamps each percentage into its range, then scales the amounts
// above the minima down proportionally until the triple sums to 100 or less.
// Minima are never violated; config validation guarantees they sum under 100.
func reconcile(desired [3]float64, ranges [3]Range) (float64, float64, float64) {
	var sum float64
	for i := range desired {
		if desired[i] < float64(ranges[i].Min) {
			desired[i] = float64(ranges[i].Min)
		}
		if desired[i] > float64(ranges[i].Max) {
			desired[i] = float64(ranges[i].Max)
		}
		sum += desired[i]
	}

	if sum <= 100 {
		return desired[0], desired[1], desired[2]
	}

	excess := sum - 100
	var reducible float64
	for i := range desired {
		reducible += desired[i] - float64(ranges[i].Min)
	}
	if reducible <= 0 {
		return desired[0], desired[1], desired[2]
	}

	scale := excess / reducible
	for i := range desired {
		desired[i] -= (desired[i] - float64(ranges[i].Min)) * scale
	}

	return desired[0], desired[1], desired[2]
}

func midpoint(r Range) float64 {
	return (float64(r.Min) + float64(r.Max)) / 2
}
