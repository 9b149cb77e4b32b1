package payoff

import (
	"testing"

	"ai-trader-engine/internal/position"
)

func TestAggregateGreeks_EquityOnly(t *testing.T) {
	pos := position.Position{
		Symbol: "AAPL",
		Legs: []position.Leg{
			{Kind: position.KindEquity, Direction: position.Buy, Quantity: 100, EntryPrice: 180},
		},
	}
	g := AggregateGreeks(pos, 185)
	if !floatEquals(g.Delta, 100, 1e-9) {
		t.Errorf("expected delta 100 for 100 long shares, got %f", g.Delta)
	}
	if g.Gamma != 0 || g.Theta != 0 || g.Vega != 0 {
		t.Errorf("equity legs must contribute zero gamma/theta/vega, got %+v", g)
	}
}

func TestAggregateGreeks_SignedSum(t *testing.T) {
	long := position.Position{
		Symbol: "SPY",
		Legs:   []position.Leg{optionLeg(position.KindCall, position.Buy, 1, 100, 3.00)},
	}
	short := position.Position{
		Symbol: "SPY",
		Legs:   []position.Leg{optionLeg(position.KindCall, position.Sell, 1, 100, 3.00)},
	}

	gLong := AggregateGreeks(long, 100)
	gShort := AggregateGreeks(short, 100)

	if !floatEquals(gLong.Delta, -gShort.Delta, 1e-9) {
		t.Errorf("short call delta must mirror long: %f vs %f", gLong.Delta, gShort.Delta)
	}
	if gLong.Delta < 0.4 || gLong.Delta > 0.6 {
		t.Errorf("ATM call delta should be near 0.5, got %f", gLong.Delta)
	}
	if gLong.Gamma <= 0 {
		t.Errorf("long option gamma must be positive, got %f", gLong.Gamma)
	}
	if gLong.Theta >= 0 {
		t.Errorf("long option theta must be negative, got %f", gLong.Theta)
	}
	if gLong.Vega <= 0 {
		t.Errorf("long option vega must be positive, got %f", gLong.Vega)
	}
}

func TestAggregateGreeks_PutDeltaNegative(t *testing.T) {
	pos := position.Position{
		Symbol: "SPY",
		Legs:   []position.Leg{optionLeg(position.KindPut, position.Buy, 1, 100, 3.00)},
	}
	g := AggregateGreeks(pos, 100)
	if g.Delta >= 0 {
		t.Errorf("long put delta must be negative, got %f", g.Delta)
	}
}

func TestAggregateGreeks_DegenerateExpiry(t *testing.T) {
	leg := optionLeg(position.KindCall, position.Buy, 1, 90, 11.00)
	leg.DaysToExpiry = 0
	pos := position.Position{Symbol: "SPY", Legs: []position.Leg{leg}}

	g := AggregateGreeks(pos, 100)
	if !floatEquals(g.Delta, 1, 1e-9) {
		t.Errorf("expired ITM call collapses to intrinsic delta 1, got %f", g.Delta)
	}
	if g.Vega != 0 {
		t.Errorf("expired option has no vega, got %f", g.Vega)
	}
}
