package proposal

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// BulkApprove approves every selected proposal iff the summed budget
// requirement fits the cash ceiling. When the selection does not fit, the
// call refuses with ErrOverBudget and leaves every proposal pending; pruning
// the selection is a separate user action (see SuggestWithinBudget), never an
// implicit side effect of approval.
func (s *Store) BulkApprove(ids []string, budget float64, now time.Time) ([]*Proposal, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty selection", ErrInvalidInput)
	}
	if budget < 0 {
		return nil, fmt.Errorf("%w: negative budget", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole selection before touching any state so a refusal
	// leaves the store untouched.
	selected := make([]*Proposal, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	var total float64
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate id %s in selection", ErrInvalidInput, id)
		}
		seen[id] = true

		p, ok := s.proposals[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if p.State != StatePending {
			return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, p.State)
		}
		if now.After(p.Deadline) {
			return nil, fmt.Errorf("%w: %s", ErrDeadlinePassed, id)
		}
		selected = append(selected, p)
		total += p.BudgetRequired
	}

	if total > budget {
		return nil, fmt.Errorf("%w: selection requires %.2f against a ceiling of %.2f (over by %.2f)",
			ErrOverBudget, total, budget, total-budget)
	}

	out := make([]*Proposal, 0, len(selected))
	for _, p := range selected {
		s.transition(p, StatePending, StateApproved, now)
		out = append(out, p.snapshot())
	}

	s.logger.Info().
		Int("approved", len(out)).
		Float64("total_budget", total).
		Float64("ceiling", budget).
		Msg("bulk approval committed")

	return out, nil
}

// SuggestWithinBudget returns the subset of the selection that maximizes
// total value while its summed budget requirement stays within the ceiling.
// It is a read-only pruning aid for the user after an over-budget refusal;
// nothing is approved. Value is the expected value when the proposal carries
// one, otherwise its max profit.
func (s *Store) SuggestWithinBudget(ids []string, budget float64, now time.Time) ([]string, error) {
	if budget < 0 {
		return nil, fmt.Errorf("%w: negative budget", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]budgetItem, 0, len(ids))
	for _, id := range ids {
		p, ok := s.proposals[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if p.EffectiveState(now) != StatePending {
			continue // terminal proposals cannot be part of any approval
		}
		items = append(items, budgetItem{
			id:    id,
			cost:  int(math.Ceil(p.BudgetRequired * 100)),
			value: proposalValue(p),
		})
	}
	if len(items) == 0 {
		return nil, nil
	}

	capacity := int(budget * 100)

	// 0/1 knapsack over cents. For very large ceilings fall back to a
	// density-greedy pass to keep the table small.
	const maxCapacity = 10_000_000 // $100k in cents
	if capacity > maxCapacity {
		return greedySelect(items, capacity), nil
	}

	best := make([]float64, capacity+1)
	take := make([][]bool, len(items))
	for i := range take {
		take[i] = make([]bool, capacity+1)
	}
	for i, it := range items {
		for c := capacity; c >= it.cost; c-- {
			if cand := best[c-it.cost] + it.value; cand > best[c] {
				best[c] = cand
				take[i][c] = true
			}
		}
	}

	var chosen []string
	c := capacity
	for i := len(items) - 1; i >= 0; i-- {
		if take[i][c] {
			chosen = append(chosen, items[i].id)
			c -= items[i].cost
		}
	}
	sort.Strings(chosen)
	return chosen, nil
}

// budgetItem is a proposal reduced to what the knapsack needs
type budgetItem struct {
	id    string
	cost  int // budget requirement in cents
	value float64
}

func greedySelect(items []budgetItem, capacity int) []string {
	sorted := append([]budgetItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		di := sorted[i].value / float64(max(sorted[i].cost, 1))
		dj := sorted[j].value / float64(max(sorted[j].cost, 1))
		return di > dj
	})
	var chosen []string
	remaining := capacity
	for _, it := range sorted {
		if it.cost <= remaining && it.value > 0 {
			chosen = append(chosen, it.id)
			remaining -= it.cost
		}
	}
	sort.Strings(chosen)
	return chosen
}

func proposalValue(p *Proposal) float64 {
	if p.ProbOfProfit != nil && p.Profile != nil && p.Profile.ExpectedValue != nil {
		return *p.Profile.ExpectedValue
	}
	return p.MaxProfit
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
