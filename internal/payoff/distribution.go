package payoff

import "math"

// Distribution is a lognormal terminal-price distribution, parameterized by
// the implied volatility snapshot and time to expiration. Collaborators build
// one from market data; the calculator only consumes it.
type Distribution struct {
	Spot         float64 // current underlying price
	Vol          float64 // annualized implied volatility, e.g. 0.25
	TimeToExpiry float64 // year fraction
}

// NewDistribution builds a lognormal distribution from an IV snapshot.
// Returns nil when the parameters cannot support one, so callers fall back to
// omitting probability of profit instead of guessing.
func NewDistribution(spot, vol, timeToExpiry float64) *Distribution {
	if spot <= 0 || vol <= 0 || timeToExpiry <= 0 {
		return nil
	}
	return &Distribution{Spot: spot, Vol: vol, TimeToExpiry: timeToExpiry}
}

// CDF returns P(terminal price <= price) under the zero-drift lognormal model
func (d *Distribution) CDF(price float64) float64 {
	if price <= 0 {
		return 0
	}
	sigma := d.Vol * math.Sqrt(d.TimeToExpiry)
	mu := math.Log(d.Spot) - 0.5*sigma*sigma
	return normCDF((math.Log(price) - mu) / sigma)
}

// Integrate walks the payoff curve and accumulates the probability mass where
// payoff > 0 (as a 0-100 percentage) and the probability-weighted expected
// value. Tail mass beyond the sampled range is assigned using the structural
// boundary slope so deep-tail profit is not silently dropped.
func (d *Distribution) Integrate(curve []CurvePoint, upperSlope float64) (pop, ev float64) {
	if len(curve) < 2 {
		return 0, 0
	}

	var profitMass float64
	for i := 1; i < len(curve); i++ {
		prev, cur := curve[i-1], curve[i]
		mass := d.CDF(cur.Price) - d.CDF(prev.Price)
		midPayoff := 0.5 * (prev.Payoff + cur.Payoff)
		ev += mass * midPayoff
		if midPayoff > 0 {
			profitMass += mass
		}
	}

	// Lower tail: everything below the first sample behaves like the first
	// sample's payoff (strikes are inside the range by construction).
	lowerMass := d.CDF(curve[0].Price)
	ev += lowerMass * curve[0].Payoff
	if curve[0].Payoff > 0 {
		profitMass += lowerMass
	}

	// Upper tail: payoff continues with the structural slope.
	last := curve[len(curve)-1]
	upperMass := 1 - d.CDF(last.Price)
	tailPayoff := last.Payoff
	if upperSlope != 0 {
		// First-order continuation at one range-width beyond the boundary
		tailPayoff += upperSlope * (last.Price - curve[0].Price)
	}
	ev += upperMass * tailPayoff
	if tailPayoff > 0 {
		profitMass += upperMass
	}

	return profitMass * 100, ev
}
