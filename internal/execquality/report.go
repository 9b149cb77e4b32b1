// Package execquality compares a live position's actual performance against
// its theoretical baseline: slippage, quality score, and an attribution of
// the performance gap that closes exactly.
package execquality

import (
	"errors"
	"fmt"

	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
)

var (
	ErrNotApplicable = errors.New("quality score not applicable: theoretical baseline is not positive")
	ErrInvalidInput  = errors.New("invalid execution quality input")
)

// Attribution decomposes the total performance gap (actual P&L minus the
// theoretical baseline) into its sources. The four components always sum
// exactly to TotalGap: the residual market bucket absorbs whatever entry
// slippage, exit slippage, and Greeks variance do not explain.
type Attribution struct {
	EntrySlippage  float64 `json:"entry_slippage"`
	ExitSlippage   float64 `json:"exit_slippage"` // zero until close
	GreeksVariance float64 `json:"greeks_variance"`
	MarketMovement float64 `json:"market_movement"`
	TotalGap       float64 `json:"total_gap"`
}

// Report is the on-demand execution quality snapshot for a position
type Report struct {
	PositionID string `json:"position_id"`

	// QualityScore is nil when the theoretical expected value is not a
	// positive baseline; it is never coerced to 0 or 100.
	QualityScore *float64 `json:"quality_score,omitempty"`

	EntrySlippage    float64  `json:"entry_slippage"`              // currency, negative = worse fill
	ExitSlippage     float64  `json:"exit_slippage"`               // currency, zero until close
	TotalSlippage    float64  `json:"total_slippage"`              // currency
	EntrySlippagePct *float64 `json:"entry_slippage_pct,omitempty"` // % of theoretical edge
	ExitSlippagePct  *float64 `json:"exit_slippage_pct,omitempty"`

	GreeksVariance position.Greeks `json:"greeks_variance"` // actual - theoretical, per Greek
	Attribution    Attribution     `json:"attribution"`
}

// ComputeReport builds an execution quality report from the theoretical
// profile and the live actual state. Pure; invoked on demand or at close.
func ComputeReport(profile *payoff.TheoreticalProfile, actual position.ActualState) (*Report, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: nil theoretical profile", ErrInvalidInput)
	}

	entrySlip := entrySlippage(profile.EntryPrice, actual.EntryFillPrice)
	exitSlip := exitSlippage(actual)
	variance := actual.Greeks.Sub(profile.Greeks)

	report := &Report{
		PositionID:     actual.PositionID,
		EntrySlippage:  entrySlip,
		ExitSlippage:   exitSlip,
		TotalSlippage:  entrySlip + exitSlip,
		GreeksVariance: variance,
	}

	theoPnL := 0.0
	if profile.ExpectedValue != nil {
		theoPnL = *profile.ExpectedValue
	}

	if profile.ExpectedValue != nil && *profile.ExpectedValue > 0 {
		ev := *profile.ExpectedValue
		score := clamp(100*actual.PnL()/ev, 0, 100)
		report.QualityScore = &score

		entryPct := 100 * entrySlip / ev
		exitPct := 100 * exitSlip / ev
		report.EntrySlippagePct = &entryPct
		report.ExitSlippagePct = &exitPct
	}

	gap := actual.PnL() - theoPnL
	greeksTerm := varianceContribution(variance, actual)
	report.Attribution = Attribution{
		EntrySlippage:  entrySlip,
		ExitSlippage:   exitSlip,
		GreeksVariance: greeksTerm,
		MarketMovement: gap - entrySlip - exitSlip - greeksTerm,
		TotalGap:       gap,
	}

	return report, nil
}

// Score returns the quality score alone, or ErrNotApplicable when the
// theoretical expected value is not a usable positive baseline.
func Score(profile *payoff.TheoreticalProfile, actual position.ActualState) (float64, error) {
	if profile == nil {
		return 0, fmt.Errorf("%w: nil theoretical profile", ErrInvalidInput)
	}
	if profile.ExpectedValue == nil || *profile.ExpectedValue <= 0 {
		return 0, ErrNotApplicable
	}
	return clamp(100*actual.PnL() / *profile.ExpectedValue, 0, 100), nil
}

// entrySlippage normalizes the fill difference so that a worse fill for the
// position owner is negative, for both debit and credit entries. Prices use
// the net-debit convention (credits are negative), so paying more than
// theoretical, or collecting less credit, both show up as actual > theoretical.
func entrySlippage(theoretical, actual float64) float64 {
	return theoretical - actual
}

// exitSlippage is zero until the position closes; at close the mark at close
// time is the theoretical exit reference.
func exitSlippage(actual position.ActualState) float64 {
	if !actual.IsClosed() || actual.ExitFillPrice == nil {
		return 0
	}
	return *actual.ExitFillPrice - actual.CurrentMark
}

// varianceContribution approximates the P&L explained by Greek divergence via
// first-order Taylor terms against the observed market moves.
func varianceContribution(variance position.Greeks, actual position.ActualState) float64 {
	return variance.Delta*actual.UnderlyingMove +
		variance.Vega*actual.VolMove +
		variance.Theta*actual.DaysElapsed
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
