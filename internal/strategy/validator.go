package strategy

import "fmt"

// Warning thresholds. These gate soft advisories, not saves.
const (
	looseSpreadCeiling = 0.10 // spreads wider than 10% of mid admit illiquid names
	highHeatCeiling    = 50.0
)

// Issue is a single validation finding attributable to a specific field
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the structured outcome of validating a strategy definition.
// Valid is true iff there are no blocking errors; warnings allow saving after
// explicit confirmation.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validate checks a strategy definition against the blocking rules and
// warning heuristics. Pure and idempotent; the definition is not mutated.
func Validate(def Definition) Result {
	var errs, warns []Issue

	addErr := func(field, code, format string, args ...interface{}) {
		errs = append(errs, Issue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}
	addWarn := func(field, code, format string, args ...interface{}) {
		warns = append(warns, Issue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if def.Name == "" {
		addErr("name", "required", "strategy name is required")
	}
	if def.Goal == "" {
		addErr("goal", "required", "strategy goal is required")
	}

	u := def.Universe
	if u.PriceMax <= u.PriceMin {
		addErr("priceMax", "inverted_range", "price range is inverted: max %.2f <= min %.2f", u.PriceMax, u.PriceMin)
	}
	if u.MinLiquidity < 0 {
		addErr("minLiquidity", "negative", "minimum liquidity cannot be negative")
	}
	if u.SpreadCeiling < 0 || u.SpreadCeiling > 1 {
		addErr("spreadCeiling", "out_of_range", "spread ceiling %.2f must be within [0,1]", u.SpreadCeiling)
	}
	if u.EarningsBlackoutDays < 0 {
		addErr("earningsBlackoutDays", "negative", "earnings blackout days cannot be negative")
	}

	if len(def.Legs) == 0 {
		addErr("legs", "required", "leg template must have at least one leg")
	}

	s := def.Sizing
	if s.PerTradeCash <= 0 {
		addErr("perTradeCash", "non_positive", "per-trade cash must be positive, got %.2f", s.PerTradeCash)
	}
	if s.MaxConcurrentPositions <= 0 {
		addErr("maxConcurrentPositions", "non_positive", "max concurrent positions must be positive, got %d", s.MaxConcurrentPositions)
	}
	if s.PortfolioHeatCeiling <= 0 || s.PortfolioHeatCeiling > 100 {
		addErr("portfolioHeatCeiling", "out_of_range", "portfolio heat ceiling %.2f must be within (0,100]", s.PortfolioHeatCeiling)
	}

	e := def.Exit
	if e.ProfitTargetPct < 0 {
		addErr("profitTargetPct", "negative", "profit target cannot be negative")
	}
	if e.MaxLossPct < 0 {
		addErr("maxLossPct", "negative", "max loss cannot be negative")
	}
	if e.TimeExitDays < 0 {
		addErr("timeExitDays", "negative", "time exit days cannot be negative")
	}

	// Warnings only make sense on otherwise-sane fields
	if u.SpreadCeiling > looseSpreadCeiling && u.SpreadCeiling <= 1 {
		addWarn("spreadCeiling", "loose_spread", "spread ceiling %.2f admits illiquid names; consider %.2f or tighter", u.SpreadCeiling, looseSpreadCeiling)
	}
	if s.PortfolioHeatCeiling > highHeatCeiling && s.PortfolioHeatCeiling <= 100 {
		addWarn("portfolioHeatCeiling", "high_heat", "portfolio heat ceiling %.1f%% is unusually high", s.PortfolioHeatCeiling)
	}
	if u.EarningsBlackoutDays == 0 {
		addWarn("earningsBlackoutDays", "no_blackout", "no earnings blackout configured; proposals may straddle earnings")
	}
	if e.TimeExitDays > 0 {
		if maxDTE := maxTemplateDTE(def.Legs); maxDTE > 0 && e.TimeExitDays > maxDTE {
			addWarn("timeExitDays", "beyond_expiry", "time exit at %d days is beyond the leg template's %d DTE", e.TimeExitDays, maxDTE)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func maxTemplateDTE(legs []LegTemplate) int {
	max := 0
	for _, leg := range legs {
		if leg.TargetDTE > max {
			max = leg.TargetDTE
		}
	}
	return max
}
