package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockProvider serves simulated quotes from a seeded random walk. Used when
// no live feed is configured so the full proposal pipeline can run locally.
type MockProvider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	symbols map[string]*mockState
}

type mockState struct {
	price float64
	vol   float64
}

// defaultUniverse seeds a handful of liquid underlyings
var defaultUniverse = map[string]mockState{
	"SPY":  {price: 580.00, vol: 0.16},
	"QQQ":  {price: 500.00, vol: 0.20},
	"IWM":  {price: 225.00, vol: 0.22},
	"AAPL": {price: 230.00, vol: 0.26},
	"TSLA": {price: 340.00, vol: 0.55},
}

// NewMockProvider creates a simulated quote source. A fixed seed makes runs
// reproducible in tests.
func NewMockProvider(seed int64) *MockProvider {
	p := &MockProvider{
		rng:     rand.New(rand.NewSource(seed)),
		symbols: make(map[string]*mockState),
	}
	for sym, st := range defaultUniverse {
		s := st
		p.symbols[sym] = &s
	}
	return p
}

// AddSymbol registers an underlying with a starting price and implied vol
func (p *MockProvider) AddSymbol(symbol string, price, vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols[symbol] = &mockState{price: price, vol: vol}
}

// GetQuote returns the current simulated quote, advancing the walk one step
func (p *MockProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	// Small lognormal step per call, vol drifts slowly and stays positive
	step := st.vol / math.Sqrt(252*390) // per-minute scale
	st.price *= math.Exp(step * p.rng.NormFloat64())
	st.vol = math.Max(0.05, st.vol+0.001*p.rng.NormFloat64())

	spread := st.price * 0.0002
	return &Quote{
		Symbol:     symbol,
		Bid:        st.price - spread/2,
		Ask:        st.price + spread/2,
		Last:       st.price,
		ImpliedVol: st.vol,
		Volume:     1_000_000 + 500_000*p.rng.Float64(),
		Timestamp:  time.Now().UTC(),
	}, nil
}
