// Package proposal manages the approve/reject/expire lifecycle of generated
// trade proposals and the budget-constrained bulk approval flow.
package proposal

import (
	"errors"
	"time"

	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
)

var (
	ErrNotFound       = errors.New("proposal not found")
	ErrInvalidState   = errors.New("proposal can no longer be modified")
	ErrDeadlinePassed = errors.New("proposal deadline has passed")
	ErrOverBudget     = errors.New("selection exceeds approval budget")
	ErrInvalidInput   = errors.New("invalid proposal input")
)

// State is the lifecycle state of a proposal. Expired is never stored: it is
// derived at read time from the deadline against the caller's clock reading.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
)

// nakedMarginRate approximates broker margin for positions whose max loss is
// unbounded; budget checks must never treat unbounded as a finite loss.
const nakedMarginRate = 0.20

// Proposal is a generated candidate trade awaiting a human decision
type Proposal struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	StrategyID string         `json:"strategy_id"`
	Legs       []position.Leg `json:"legs"`

	// Theoretical subset carried for display and budget checks
	EntryTarget    float64   `json:"entry_target"` // net debit (+) / credit (-)
	EntryTolerance float64   `json:"entry_tolerance"`
	MaxRisk        float64   `json:"max_risk"`
	MaxProfit      float64   `json:"max_profit"`
	ProbOfProfit   *float64  `json:"prob_of_profit,omitempty"`
	Breakevens     []float64 `json:"breakevens"`

	Deadline       time.Time `json:"deadline"`
	BudgetRequired float64   `json:"budget_required"`
	State          State     `json:"state"`

	// Cached theoretical profile; cleared on edit, recomputed on demand
	Profile *payoff.TheoreticalProfile `json:"profile,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// EffectiveState derives the read-time state: a stored Pending past its
// deadline reads as Expired. now must be a single clock reading supplied by
// the caller so one logical operation cannot observe both states.
func (p *Proposal) EffectiveState(now time.Time) State {
	if p.State == StatePending && now.After(p.Deadline) {
		return StateExpired
	}
	return p.State
}

// EditPatch carries the editable fields of a pending proposal. Nil fields are
// left unchanged.
type EditPatch struct {
	Legs           []position.Leg `json:"legs,omitempty"`
	EntryTarget    *float64       `json:"entry_target,omitempty"`
	EntryTolerance *float64       `json:"entry_tolerance,omitempty"`
}

// budgetFor derives the cash a proposal ties up: absolute max loss when
// bounded, otherwise an approximate naked margin requirement on the short
// notional.
func budgetFor(profile *payoff.TheoreticalProfile, legs []position.Leg) float64 {
	if profile == nil {
		return 0
	}
	if !profile.MaxLossUnbounded {
		if profile.MaxLoss < 0 {
			return -profile.MaxLoss
		}
		return 0
	}
	var shortQty float64
	for _, leg := range legs {
		if leg.Direction == position.Sell && leg.IsOption() {
			shortQty += float64(leg.Quantity)
		}
	}
	return nakedMarginRate * profile.Spot * shortQty
}
