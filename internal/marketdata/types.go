// Package marketdata provides quote access for the engine: a provider
// interface, a simulated provider for development, and a websocket stream
// client for live feeds.
package marketdata

import (
	"context"
	"errors"
	"time"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// Quote is a point-in-time underlying quote with its at-the-money implied vol
type Quote struct {
	Symbol     string    `json:"symbol"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Last       float64   `json:"last"`
	ImpliedVol float64   `json:"implied_vol"` // ATM IV, annualized fraction
	Volume     float64   `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
}

// Mid returns the bid/ask midpoint, falling back to last when one side is empty
func (q *Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// SpreadFraction returns the bid/ask spread as a fraction of mid, or 0 when
// the quote is one-sided.
func (q *Quote) SpreadFraction() float64 {
	mid := q.Mid()
	if q.Bid <= 0 || q.Ask <= 0 || mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid
}

// QuoteProvider supplies underlying quotes. Implementations must be safe for
// concurrent use.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}
