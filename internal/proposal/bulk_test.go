package proposal

import (
	"errors"
	"testing"
	"time"
)

func addProposals(t *testing.T, s *Store, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := addProposal(t, s, baseTime.Add(time.Hour))
		ids = append(ids, p.ID)
	}
	return ids
}

func TestBulkApprove_SelectionFits(t *testing.T) {
	s := testStore()
	ids := addProposals(t, s, 3) // each needs ~3.50
	now := baseTime.Add(time.Minute)

	approved, err := s.BulkApprove(ids, 20, now)
	if err != nil {
		t.Fatalf("BulkApprove failed: %v", err)
	}
	if len(approved) != 3 {
		t.Fatalf("expected all 3 approved, got %d", len(approved))
	}
	for _, p := range approved {
		if p.State != StateApproved {
			t.Errorf("proposal %s not approved: %s", p.ID, p.State)
		}
	}
}

func TestBulkApprove_OverBudgetLeavesAllPending(t *testing.T) {
	s := testStore()
	ids := addProposals(t, s, 3) // total ~10.50
	now := baseTime.Add(time.Minute)

	_, err := s.BulkApprove(ids, 7, now)
	if !errors.Is(err, ErrOverBudget) {
		t.Fatalf("expected ErrOverBudget, got %v", err)
	}

	// No silent truncation: every proposal stays pending
	for _, id := range ids {
		p, err := s.Get(id, now)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if p.State != StatePending {
			t.Errorf("proposal %s must remain pending after refusal, got %s", id, p.State)
		}
	}
}

func TestBulkApprove_NeverExceedsCeiling(t *testing.T) {
	s := testStore()
	ids := addProposals(t, s, 4)
	now := baseTime.Add(time.Minute)

	var total float64
	for _, id := range ids {
		p, _ := s.Get(id, now)
		total += p.BudgetRequired
	}

	approved, err := s.BulkApprove(ids, total, now)
	if err != nil {
		t.Fatalf("BulkApprove at exact ceiling failed: %v", err)
	}
	var used float64
	for _, p := range approved {
		used += p.BudgetRequired
	}
	if used > total {
		t.Errorf("approved budget %f exceeds ceiling %f", used, total)
	}
}

func TestBulkApprove_FailsOnBadSelection(t *testing.T) {
	s := testStore()
	ids := addProposals(t, s, 2)
	now := baseTime.Add(time.Minute)

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.BulkApprove(append(ids, "missing"), 100, now)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := s.BulkApprove([]string{ids[0], ids[0]}, 100, now)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("expired proposal in selection", func(t *testing.T) {
		_, err := s.BulkApprove(ids, 100, baseTime.Add(2*time.Hour))
		if !errors.Is(err, ErrDeadlinePassed) {
			t.Errorf("expected ErrDeadlinePassed, got %v", err)
		}
	})

	t.Run("rejected proposal in selection", func(t *testing.T) {
		if _, err := s.Reject(ids[0], now); err != nil {
			t.Fatalf("Reject failed: %v", err)
		}
		_, err := s.BulkApprove(ids, 100, now)
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		// The untouched proposal is still pending
		p, _ := s.Get(ids[1], now)
		if p.State != StatePending {
			t.Errorf("unaffected proposal must stay pending, got %s", p.State)
		}
	})

	t.Run("empty selection", func(t *testing.T) {
		_, err := s.BulkApprove(nil, 100, now)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSuggestWithinBudget_MaximizesValue(t *testing.T) {
	s := testStore()
	now := baseTime.Add(time.Minute)

	// Three spreads with identical budgets (~3.50 each): a ceiling of ~7
	// admits exactly two of them.
	ids := addProposals(t, s, 3)

	chosen, err := s.SuggestWithinBudget(ids, 7.10, now)
	if err != nil {
		t.Fatalf("SuggestWithinBudget failed: %v", err)
	}
	if len(chosen) != 2 {
		t.Fatalf("expected 2 suggested proposals, got %d", len(chosen))
	}

	// Suggestion is read-only: everything stays pending
	for _, id := range ids {
		p, _ := s.Get(id, now)
		if p.State != StatePending {
			t.Errorf("suggestion must not approve anything, %s is %s", id, p.State)
		}
	}
}

func TestSuggestWithinBudget_SkipsTerminal(t *testing.T) {
	s := testStore()
	now := baseTime.Add(time.Minute)
	ids := addProposals(t, s, 2)

	if _, err := s.Reject(ids[0], now); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	chosen, err := s.SuggestWithinBudget(ids, 100, now)
	if err != nil {
		t.Fatalf("SuggestWithinBudget failed: %v", err)
	}
	if len(chosen) != 1 || chosen[0] != ids[1] {
		t.Errorf("expected only the pending proposal, got %v", chosen)
	}
}

func TestStore_ConcurrentDecisionsRace(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))
	now := baseTime.Add(time.Minute)

	results := make(chan error, 2)
	go func() { _, err := s.Approve(p.ID, now); results <- err }()
	go func() { _, err := s.Reject(p.ID, now); results <- err }()

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("loser must observe ErrInvalidState, got %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("exactly one of two racing decisions must lose, got %d failures", failures)
	}

	got, _ := s.Get(p.ID, now)
	if got.State != StateApproved && got.State != StateRejected {
		t.Errorf("proposal must land in a terminal state, got %s", got.State)
	}
}
