package proposal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
)

// Store is the explicit proposal store behind the lifecycle operations.
// Every state transition is a compare-and-set on the expected state under the
// store lock, so a losing concurrent writer observes ErrInvalidState instead
// of silently overwriting.
type Store struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
	logger    zerolog.Logger
}

// NewStore creates an empty proposal store. The logger records a decision
// audit trail on every transition.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		proposals: make(map[string]*Proposal),
		logger:    logger,
	}
}

// Add registers a new proposal built from a theoretical profile. The budget
// requirement and the displayed theoretical subset are derived here so every
// proposal in the store is internally consistent.
func (s *Store) Add(symbol, strategyID string, legs []position.Leg, profile *payoff.TheoreticalProfile, deadline time.Time, now time.Time) (*Proposal, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: nil theoretical profile", ErrInvalidInput)
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: proposal needs at least one leg", ErrInvalidInput)
	}
	if !deadline.After(now) {
		return nil, fmt.Errorf("%w: deadline %s is not in the future", ErrInvalidInput, deadline.Format(time.RFC3339))
	}

	p := &Proposal{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		StrategyID:     strategyID,
		Legs:           legs,
		EntryTarget:    profile.EntryPrice,
		EntryTolerance: defaultEntryTolerance(profile.EntryPrice),
		MaxRisk:        profile.MaxLoss,
		MaxProfit:      profile.MaxProfit,
		ProbOfProfit:   profile.ProbOfProfit,
		Breakevens:     profile.Breakevens,
		Deadline:       deadline,
		BudgetRequired: budgetFor(profile, legs),
		State:          StatePending,
		Profile:        profile,
		CreatedAt:      now,
	}

	s.mu.Lock()
	s.proposals[p.ID] = p
	s.mu.Unlock()

	s.logger.Info().
		Str("proposal_id", p.ID).
		Str("symbol", symbol).
		Str("strategy_id", strategyID).
		Float64("budget_required", p.BudgetRequired).
		Time("deadline", deadline).
		Msg("proposal created")

	return p.snapshot(), nil
}

// Get returns a copy of the proposal with its read-time effective state
func (s *Store) Get(id string, now time.Time) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := p.snapshot()
	out.State = p.EffectiveState(now)
	return out, nil
}

// List returns copies of all proposals, pending first, newest first within a
// state, each carrying its effective state for the given clock reading.
func (s *Store) List(now time.Time) []*Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		cp := p.snapshot()
		cp.State = p.EffectiveState(now)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].State == StatePending) != (out[j].State == StatePending) {
			return out[i].State == StatePending
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Approve transitions a pending proposal to approved. Fails with
// ErrDeadlinePassed when now is past the deadline; the proposal then simply
// reads as expired and there is no remediation.
func (s *Store) Approve(id string, now time.Time) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.State != StatePending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.State)
	}
	if now.After(p.Deadline) {
		return nil, fmt.Errorf("%w: %s expired at %s", ErrDeadlinePassed, id, p.Deadline.Format(time.RFC3339))
	}

	s.transition(p, StatePending, StateApproved, now)
	return p.snapshot(), nil
}

// Reject transitions a pending proposal to rejected. Always allowed while
// pending, even after the deadline.
func (s *Store) Reject(id string, now time.Time) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.State != StatePending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.State)
	}

	s.transition(p, StatePending, StateRejected, now)
	return p.snapshot(), nil
}

// Reprice updates the entry target to the current mid without changing
// lifecycle state. Only a live pending proposal can be repriced.
func (s *Store) Reprice(id string, currentMid float64, now time.Time) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.EffectiveState(now) != StatePending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.EffectiveState(now))
	}

	old := p.EntryTarget
	p.EntryTarget = currentMid
	p.EntryTolerance = defaultEntryTolerance(currentMid)

	s.logger.Info().
		Str("proposal_id", id).
		Float64("old_target", old).
		Float64("new_target", currentMid).
		Msg("proposal repriced")

	return p.snapshot(), nil
}

// Edit applies a patch to a live pending proposal. Editing invalidates the
// cached theoretical profile, which must be recomputed before the proposal's
// risk numbers are trusted again.
func (s *Store) Edit(id string, patch EditPatch, now time.Time) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.EffectiveState(now) != StatePending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.EffectiveState(now))
	}

	if patch.Legs != nil {
		if len(patch.Legs) == 0 {
			return nil, fmt.Errorf("%w: edit cannot remove all legs", ErrInvalidInput)
		}
		for i, leg := range patch.Legs {
			if err := leg.Validate(); err != nil {
				return nil, fmt.Errorf("%w: leg %d: %v", ErrInvalidInput, i, err)
			}
		}
		p.Legs = patch.Legs
	}
	if patch.EntryTarget != nil {
		p.EntryTarget = *patch.EntryTarget
	}
	if patch.EntryTolerance != nil {
		p.EntryTolerance = *patch.EntryTolerance
	}

	p.Profile = nil // stale after any edit

	s.logger.Info().
		Str("proposal_id", id).
		Bool("legs_changed", patch.Legs != nil).
		Msg("proposal edited, cached profile invalidated")

	return p.snapshot(), nil
}

// RefreshProfile recomputes and caches the theoretical profile of a pending
// proposal after an edit, updating the derived budget and risk subset.
func (s *Store) RefreshProfile(id string, spot float64, rng payoff.SampleRange, dist *payoff.Distribution, now time.Time) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.EffectiveState(now) != StatePending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.EffectiveState(now))
	}

	profile, err := payoff.Compute(position.Position{Symbol: p.Symbol, Legs: p.Legs}, spot, rng, dist)
	if err != nil {
		return nil, err
	}

	p.Profile = profile
	p.MaxRisk = profile.MaxLoss
	p.MaxProfit = profile.MaxProfit
	p.ProbOfProfit = profile.ProbOfProfit
	p.Breakevens = profile.Breakevens
	p.BudgetRequired = budgetFor(profile, p.Legs)

	return p.snapshot(), nil
}

// transition performs the compare-and-set; callers hold the write lock and
// have already verified the expected state, so a mismatch here is a race
// lost to another writer.
func (s *Store) transition(p *Proposal, from, to State, now time.Time) bool {
	if p.State != from {
		return false
	}
	p.State = to
	decided := now
	p.DecidedAt = &decided

	s.logger.Info().
		Str("proposal_id", p.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Time("decided_at", now).
		Msg("proposal state transition")

	return true
}

func (p *Proposal) snapshot() *Proposal {
	cp := *p
	cp.Legs = append([]position.Leg(nil), p.Legs...)
	cp.Breakevens = append([]float64(nil), p.Breakevens...)
	return &cp
}

// defaultEntryTolerance gives a fill tolerance of 2% of the target's
// magnitude, floored so tiny credits still have working room.
func defaultEntryTolerance(target float64) float64 {
	tol := 0.02 * abs(target)
	if tol < 0.05 {
		tol = 0.05
	}
	return tol
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
