package position

import (
	"fmt"
	"sync"
	"time"
)

// MarkUpdate carries one live mark observation for an open position.
// Mark is the position's net liquidation value in net-debit convention, so
// P&L is simply mark minus entry fill.
type MarkUpdate struct {
	Mark       float64   `json:"mark"`
	Spot       float64   `json:"spot"`
	ImpliedVol float64   `json:"implied_vol"`
	Greeks     Greeks    `json:"greeks"` // aggregate position Greeks recomputed at the new marks
	At         time.Time `json:"at"`
}

// Store tracks live positions and their actual state. Writes are serialized;
// the theoretical baseline each position is measured against lives with the
// proposal it came from.
type Store struct {
	mu        sync.RWMutex
	positions map[string]*Position
	actuals   map[string]*ActualState
	entrySpot map[string]float64
	entryVol  map[string]float64
}

// NewStore creates an empty position store
func NewStore() *Store {
	return &Store{
		positions: make(map[string]*Position),
		actuals:   make(map[string]*ActualState),
		entrySpot: make(map[string]float64),
		entryVol:  make(map[string]float64),
	}
}

// Open registers a newly entered position with its actual entry fill.
// theoreticalEntry is the profile's net debit; the stored entry slippage is
// sign-normalized so a worse fill is negative.
func (s *Store) Open(pos Position, entryFill, theoreticalEntry, spot, impliedVol float64, at time.Time) (*ActualState, error) {
	if err := pos.Validate(); err != nil {
		return nil, err
	}
	if pos.ID == "" {
		return nil, fmt.Errorf("position id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[pos.ID]; exists {
		return nil, fmt.Errorf("position %s already open", pos.ID)
	}

	actual := &ActualState{
		PositionID:     pos.ID,
		EntryFillPrice: entryFill,
		EntrySlippage:  theoreticalEntry - entryFill,
		CurrentMark:    entryFill,
		UpdatedAt:      at,
	}

	p := pos
	s.positions[pos.ID] = &p
	s.actuals[pos.ID] = actual
	s.entrySpot[pos.ID] = spot
	s.entryVol[pos.ID] = impliedVol

	return snapshotActual(actual), nil
}

// UpdateMark applies a live mark observation to an open position
func (s *Store) UpdateMark(id string, update MarkUpdate) (*ActualState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual, ok := s.actuals[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}
	if actual.IsClosed() {
		return nil, fmt.Errorf("position %s is closed", id)
	}

	actual.CurrentMark = update.Mark
	actual.UnrealizedPnL = update.Mark - actual.EntryFillPrice
	actual.Greeks = update.Greeks
	actual.UnderlyingMove = update.Spot - s.entrySpot[id]
	actual.VolMove = update.ImpliedVol - s.entryVol[id]
	if entered := s.positions[id].EnteredAt; !entered.IsZero() {
		actual.DaysElapsed = update.At.Sub(entered).Hours() / 24
	}
	actual.UpdatedAt = update.At

	return snapshotActual(actual), nil
}

// Close finalizes a position with its exit fill, setting realized P&L
func (s *Store) Close(id string, exitFill float64, at time.Time) (*ActualState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual, ok := s.actuals[id]
	if !ok {
		return nil, fmt.Errorf("position %s not found", id)
	}
	if actual.IsClosed() {
		return nil, fmt.Errorf("position %s already closed", id)
	}

	realized := exitFill - actual.EntryFillPrice
	actual.RealizedPnL = &realized
	actual.ExitFillPrice = &exitFill
	actual.ClosedAt = &at
	actual.UpdatedAt = at

	return snapshotActual(actual), nil
}

// Get returns the position and its actual state
func (s *Store) Get(id string) (*Position, *ActualState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[id]
	if !ok {
		return nil, nil, fmt.Errorf("position %s not found", id)
	}
	p := *pos
	p.Legs = append([]Leg(nil), pos.Legs...)
	return &p, snapshotActual(s.actuals[id]), nil
}

// List returns actual state for every tracked position
func (s *Store) List() []*ActualState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ActualState, 0, len(s.actuals))
	for _, a := range s.actuals {
		out = append(out, snapshotActual(a))
	}
	return out
}

func snapshotActual(a *ActualState) *ActualState {
	cp := *a
	return &cp
}
