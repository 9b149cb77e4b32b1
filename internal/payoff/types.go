// Package payoff computes the theoretical risk/reward profile of a multi-leg
// options position: payoff curve, breakevens, max profit/loss with unbounded
// detection, probability of profit, and aggregate Greeks.
package payoff

import (
	"errors"
	"time"

	"ai-trader-engine/internal/position"
)

var ErrInvalidInput = errors.New("invalid payoff input")

// CurvePoint is one sample of the terminal payoff curve
type CurvePoint struct {
	Price  float64 `json:"price"`
	Payoff float64 `json:"payoff"`
}

// SampleRange controls the terminal price grid the curve is evaluated on
type SampleRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// DefaultSamples is the minimum grid resolution
const DefaultSamples = 121

// DefaultSampleRange returns the standard grid: +/-30% of spot
func DefaultSampleRange(spot float64) SampleRange {
	return SampleRange{
		Min:     spot * 0.70,
		Max:     spot * 1.30,
		Samples: DefaultSamples,
	}
}

// TheoreticalProfile is the immutable risk/reward baseline of a position at a
// fixed spot and volatility snapshot. MaxProfit/MaxLoss carry explicit
// unbounded flags; downstream risk checks must never treat an unbounded bound
// as a large finite number.
type TheoreticalProfile struct {
	Symbol     string          `json:"symbol"`
	Spot       float64         `json:"spot"`
	EntryPrice float64         `json:"entry_price"` // net debit (+) or credit (-)
	Curve      []CurvePoint    `json:"curve"`
	Breakevens []float64       `json:"breakevens"` // ascending
	MaxProfit  float64         `json:"max_profit"`
	MaxLoss    float64         `json:"max_loss"`
	MaxProfitUnbounded bool    `json:"max_profit_unbounded"`
	MaxLossUnbounded   bool    `json:"max_loss_unbounded"`
	ProbOfProfit  *float64     `json:"prob_of_profit,omitempty"` // 0-100, nil without a distribution
	ExpectedValue *float64     `json:"expected_value,omitempty"`
	Greeks     position.Greeks `json:"greeks"`
	ComputedAt time.Time       `json:"computed_at"`
}
