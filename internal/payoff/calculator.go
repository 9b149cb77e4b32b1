package payoff

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ai-trader-engine/internal/position"
)

// breakevenEpsilon is the payoff magnitude below which a sample counts as an
// exact zero crossing
const breakevenEpsilon = 1e-9

// Compute evaluates the theoretical profile of a position at the given spot.
// dist may be nil, in which case probability of profit and expected value are
// omitted rather than guessed. The function is pure and safe for concurrent use.
func Compute(pos position.Position, spot float64, rng SampleRange, dist *Distribution) (*TheoreticalProfile, error) {
	if err := pos.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if spot <= 0 {
		return nil, fmt.Errorf("%w: spot must be positive, got %f", ErrInvalidInput, spot)
	}
	if rng.Samples == 0 && rng.Min == 0 && rng.Max == 0 {
		rng = DefaultSampleRange(spot)
	}
	if rng.Max <= rng.Min || rng.Min < 0 {
		return nil, fmt.Errorf("%w: bad sample range [%f, %f]", ErrInvalidInput, rng.Min, rng.Max)
	}
	if rng.Samples < DefaultSamples {
		rng.Samples = DefaultSamples
	}

	curve := sampleCurve(pos, rng)
	breakevens := findBreakevens(curve)
	maxProfit, maxLoss := curveExtrema(curve)

	upSlope, downSlope := boundarySlopes(pos)
	profitUnbounded := upSlope > 0
	lossUnbounded := upSlope < 0

	// The downside is price-floored at zero, so exposure there is always
	// finite. Fold the P=0 payoff into the extrema when the curve is still
	// sloping at the lower boundary.
	if downSlope != 0 && rng.Min > 0 {
		atZero := terminalPayoff(pos, 0)
		if atZero > maxProfit {
			maxProfit = atZero
		}
		if atZero < maxLoss {
			maxLoss = atZero
		}
	}

	profile := &TheoreticalProfile{
		Symbol:             pos.Symbol,
		Spot:               spot,
		EntryPrice:         pos.NetDebit(),
		Curve:              curve,
		Breakevens:         breakevens,
		MaxProfit:          maxProfit,
		MaxLoss:            maxLoss,
		MaxProfitUnbounded: profitUnbounded,
		MaxLossUnbounded:   lossUnbounded,
		Greeks:             AggregateGreeks(pos, spot),
		ComputedAt:         time.Now().UTC(),
	}

	if dist != nil {
		pop, ev := dist.Integrate(curve, upSlope)
		profile.ProbOfProfit = &pop
		profile.ExpectedValue = &ev
	}

	return profile, nil
}

// terminalPayoff is the position's profit/loss if the underlying settles at p
func terminalPayoff(pos position.Position, p float64) float64 {
	var total float64
	for _, leg := range pos.Legs {
		qty := leg.SignedQuantity()
		switch leg.Kind {
		case position.KindEquity:
			total += qty * (p - leg.EntryPrice)
		case position.KindCall:
			total += qty * (math.Max(0, p-leg.Strike) - leg.EntryPrice)
		case position.KindPut:
			total += qty * (math.Max(0, leg.Strike-p) - leg.EntryPrice)
		}
	}
	return total
}

func sampleCurve(pos position.Position, rng SampleRange) []CurvePoint {
	curve := make([]CurvePoint, rng.Samples)
	step := (rng.Max - rng.Min) / float64(rng.Samples-1)
	for i := 0; i < rng.Samples; i++ {
		p := rng.Min + step*float64(i)
		curve[i] = CurvePoint{Price: p, Payoff: terminalPayoff(pos, p)}
	}
	return curve
}

// findBreakevens scans consecutive samples for sign changes and linearly
// interpolates the zero crossing. All crossings are reported, ascending.
func findBreakevens(curve []CurvePoint) []float64 {
	var breakevens []float64
	for i := 1; i < len(curve); i++ {
		prev, cur := curve[i-1], curve[i]
		if math.Abs(prev.Payoff) < breakevenEpsilon {
			breakevens = append(breakevens, prev.Price)
			continue
		}
		if math.Abs(cur.Payoff) < breakevenEpsilon {
			continue // picked up as prev on the next iteration, or below for the last sample
		}
		if prev.Payoff*cur.Payoff < 0 {
			// Linear interpolation between the straddling samples
			t := prev.Payoff / (prev.Payoff - cur.Payoff)
			breakevens = append(breakevens, prev.Price+t*(cur.Price-prev.Price))
		}
	}
	if n := len(curve); n > 0 && math.Abs(curve[n-1].Payoff) < breakevenEpsilon {
		breakevens = append(breakevens, curve[n-1].Price)
	}
	sort.Float64s(breakevens)
	return dedupeAscending(breakevens)
}

func dedupeAscending(xs []float64) []float64 {
	if len(xs) < 2 {
		return xs
	}
	out := xs[:1]
	for _, x := range xs[1:] {
		if x-out[len(out)-1] > breakevenEpsilon {
			out = append(out, x)
		}
	}
	return out
}

func curveExtrema(curve []CurvePoint) (maxProfit, maxLoss float64) {
	maxProfit = math.Inf(-1)
	maxLoss = math.Inf(1)
	for _, pt := range curve {
		if pt.Payoff > maxProfit {
			maxProfit = pt.Payoff
		}
		if pt.Payoff < maxLoss {
			maxLoss = pt.Payoff
		}
	}
	return maxProfit, maxLoss
}

// boundarySlopes returns the structural payoff slope beyond the highest strike
// (up) and below the lowest strike (down). A nonzero upper slope means the
// exposure genuinely continues without bound in that direction; the sampled
// extremum must then be flagged unbounded rather than reported as a number.
func boundarySlopes(pos position.Position) (up, down float64) {
	for _, leg := range pos.Legs {
		qty := leg.SignedQuantity()
		switch leg.Kind {
		case position.KindEquity:
			up += qty
			down += qty
		case position.KindCall:
			up += qty // calls are linear above their strike
		case position.KindPut:
			down -= qty // puts are linear (negative slope) below their strike
		}
	}
	return up, down
}
