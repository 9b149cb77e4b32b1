package payoff

import (
	"math"

	"ai-trader-engine/internal/position"
)

// daysPerYear converts the leg's DTE into the year fraction Black-Scholes expects
const daysPerYear = 365.0

// AggregateGreeks sums each leg's per-contract Greeks weighted by signed
// quantity. Equity legs contribute delta equal to their signed quantity and
// zero elsewhere.
func AggregateGreeks(pos position.Position, spot float64) position.Greeks {
	var total position.Greeks
	for _, leg := range pos.Legs {
		total = total.Add(legGreeks(leg, spot).Scale(leg.SignedQuantity()))
	}
	return total
}

// legGreeks returns the per-unit Greeks of a single leg
func legGreeks(leg position.Leg, spot float64) position.Greeks {
	if leg.Kind == position.KindEquity {
		return position.Greeks{Delta: 1}
	}

	t := float64(leg.DaysToExpiry) / daysPerYear
	vol := leg.ImpliedVol
	if t <= 0 || vol <= 0 {
		// Degenerate case: expired or no vol snapshot. Delta collapses to
		// the intrinsic indicator, everything else to zero.
		return position.Greeks{Delta: intrinsicDelta(leg, spot)}
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/leg.Strike) + 0.5*vol*vol*t) / (vol * sqrtT)

	var delta float64
	if leg.Kind == position.KindCall {
		delta = normCDF(d1)
	} else {
		delta = normCDF(d1) - 1
	}

	gamma := normPDF(d1) / (spot * vol * sqrtT)
	vega := spot * normPDF(d1) * sqrtT / 100.0                     // per 1 vol point
	theta := -(spot * normPDF(d1) * vol) / (2 * sqrtT) / daysPerYear // per calendar day

	return position.Greeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega}
}

func intrinsicDelta(leg position.Leg, spot float64) float64 {
	switch {
	case leg.Kind == position.KindCall && spot > leg.Strike:
		return 1
	case leg.Kind == position.KindPut && spot < leg.Strike:
		return -1
	}
	return 0
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
