// Package position defines the multi-leg position domain model shared by the
// payoff calculator, the execution-quality tracker, and the proposal store.
package position

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoLegs               = errors.New("position has no legs")
	ErrBadQuantity          = errors.New("leg quantity must be positive")
	ErrMissingStrike        = errors.New("option leg missing strike")
	ErrMissingExpiry        = errors.New("option leg missing expiration")
	ErrOptionFieldsOnEquity = errors.New("equity leg must not carry option fields")
)

// LegKind identifies the instrument type of a leg
type LegKind string

const (
	KindEquity LegKind = "equity"
	KindCall   LegKind = "call"
	KindPut    LegKind = "put"
)

// Direction is the side of a leg; quantity stays positive, sign comes from here
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Leg is one component of a multi-leg position. Strike and Expiration are
// required for option legs and must be absent on equity legs.
type Leg struct {
	Kind       LegKind   `json:"kind"`
	Direction  Direction `json:"direction"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"` // premium per contract for options, fill price for equity

	Strike       float64   `json:"strike,omitempty"`
	Expiration   time.Time `json:"expiration,omitempty"`
	DaysToExpiry int       `json:"days_to_expiry,omitempty"`
	TargetDelta  float64   `json:"target_delta,omitempty"`
	ImpliedVol   float64   `json:"implied_vol,omitempty"`
}

// IsOption reports whether the leg is a call or put
func (l Leg) IsOption() bool {
	return l.Kind == KindCall || l.Kind == KindPut
}

// SignedQuantity returns quantity with the direction sign applied
func (l Leg) SignedQuantity() float64 {
	if l.Direction == Sell {
		return -float64(l.Quantity)
	}
	return float64(l.Quantity)
}

// Validate checks the leg invariants
func (l Leg) Validate() error {
	if l.Quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrBadQuantity, l.Quantity)
	}
	switch l.Kind {
	case KindEquity:
		if l.Strike != 0 || !l.Expiration.IsZero() || l.DaysToExpiry != 0 || l.TargetDelta != 0 || l.ImpliedVol != 0 {
			return ErrOptionFieldsOnEquity
		}
	case KindCall, KindPut:
		if l.Strike <= 0 {
			return ErrMissingStrike
		}
		if l.Expiration.IsZero() {
			return ErrMissingExpiry
		}
	default:
		return fmt.Errorf("unknown leg kind %q", l.Kind)
	}
	if l.Direction != Buy && l.Direction != Sell {
		return fmt.Errorf("unknown leg direction %q", l.Direction)
	}
	return nil
}

// Position is an ordered, non-empty collection of legs on one underlying
// sharing an entry window.
type Position struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Legs      []Leg     `json:"legs"`
	EnteredAt time.Time `json:"entered_at"`
}

// Validate checks the position and all of its legs
func (p Position) Validate() error {
	if len(p.Legs) == 0 {
		return ErrNoLegs
	}
	for i, leg := range p.Legs {
		if err := leg.Validate(); err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}
	}
	return nil
}

// NetDebit returns the net premium of the position: positive when the
// position was entered for a debit, negative for a credit.
func (p Position) NetDebit() float64 {
	var net float64
	for _, leg := range p.Legs {
		net += leg.SignedQuantity() * leg.EntryPrice
	}
	return net
}

// Greeks holds the aggregate first-order sensitivities of a position
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Add returns the component-wise sum
func (g Greeks) Add(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + other.Delta,
		Gamma: g.Gamma + other.Gamma,
		Theta: g.Theta + other.Theta,
		Vega:  g.Vega + other.Vega,
	}
}

// Scale returns the Greeks multiplied by factor (used for signed quantity weighting)
func (g Greeks) Scale(factor float64) Greeks {
	return Greeks{
		Delta: g.Delta * factor,
		Gamma: g.Gamma * factor,
		Theta: g.Theta * factor,
		Vega:  g.Vega * factor,
	}
}

// Sub returns the component-wise difference g - other
func (g Greeks) Sub(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta - other.Delta,
		Gamma: g.Gamma - other.Gamma,
		Theta: g.Theta - other.Theta,
		Vega:  g.Vega - other.Vega,
	}
}

// ActualState tracks a live position's fills and marks against its
// theoretical baseline. Owned by the position store once a position is entered.
type ActualState struct {
	PositionID     string     `json:"position_id"`
	EntryFillPrice float64    `json:"entry_fill_price"`
	EntrySlippage  float64    `json:"entry_slippage"` // theoretical - actual fill; negative = worse fill
	CurrentMark    float64    `json:"current_mark"`
	UnrealizedPnL  float64    `json:"unrealized_pnl"`
	RealizedPnL    *float64   `json:"realized_pnl,omitempty"` // set only at close
	ExitFillPrice  *float64   `json:"exit_fill_price,omitempty"`
	Greeks         Greeks     `json:"greeks"` // recomputed from live marks
	UnderlyingMove float64    `json:"underlying_move"` // spot change since entry
	VolMove        float64    `json:"vol_move"`        // IV change since entry
	DaysElapsed    float64    `json:"days_elapsed"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// IsClosed reports whether the position has been closed out
func (a ActualState) IsClosed() bool {
	return a.ClosedAt != nil
}

// PnL returns realized P&L when closed, unrealized otherwise
func (a ActualState) PnL() float64 {
	if a.RealizedPnL != nil {
		return *a.RealizedPnL
	}
	return a.UnrealizedPnL
}
