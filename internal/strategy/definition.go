// Package strategy defines the declarative strategy template and the
// validator that gates it before it may be saved or emit proposals.
package strategy

import (
	"ai-trader-engine/internal/position"
)

// AllocationMode selects how per-trade capital is determined
type AllocationMode string

const (
	AllocationFixedCash AllocationMode = "fixed_cash"
	AllocationPercent   AllocationMode = "percent"
)

// UniverseFilters narrow which underlyings the strategy may trade
type UniverseFilters struct {
	PriceMin             float64 `json:"price_min"`
	PriceMax             float64 `json:"price_max"`
	MinLiquidity         float64 `json:"min_liquidity"`          // minimum average daily volume
	SpreadCeiling        float64 `json:"spread_ceiling"`         // max bid/ask spread as fraction of mid, [0,1]
	EarningsBlackoutDays int     `json:"earnings_blackout_days"` // 0 = no blackout
}

// LegTemplate describes one leg of the strategy without concrete strikes;
// strikes are resolved at proposal generation time from the target delta.
type LegTemplate struct {
	Kind        position.LegKind   `json:"kind"`
	Direction   position.Direction `json:"direction"`
	TargetDelta float64            `json:"target_delta"`
	TargetDTE   int                `json:"target_dte"`
}

// SizingPolicy controls capital allocation per trade and across the portfolio
type SizingPolicy struct {
	Mode                   AllocationMode `json:"mode"`
	PerTradeCash           float64        `json:"per_trade_cash"`
	MaxConcurrentPositions int            `json:"max_concurrent_positions"`
	PortfolioHeatCeiling   float64        `json:"portfolio_heat_ceiling"` // percent of portfolio at risk, (0,100]
}

// ExitPolicy controls when positions opened by the strategy are closed
type ExitPolicy struct {
	ProfitTargetPct float64 `json:"profit_target_pct"`
	MaxLossPct      float64 `json:"max_loss_pct"`
	TimeExitDays    int     `json:"time_exit_days"` // 0 = no time exit
	UseOCOBracket   bool    `json:"use_oco_bracket"`
}

// Definition is the declarative strategy template. It is persisted only after
// passing Validate with zero blocking errors.
type Definition struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Goal     string          `json:"goal"`
	Universe UniverseFilters `json:"universe"`
	Legs     []LegTemplate   `json:"legs"`
	Sizing   SizingPolicy    `json:"sizing"`
	Exit     ExitPolicy      `json:"exit"`
}
