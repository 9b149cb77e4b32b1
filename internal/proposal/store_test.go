package proposal

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
)

var baseTime = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func testStore() *Store {
	return NewStore(zerolog.Nop())
}

func spreadLegs() []position.Leg {
	exp := baseTime.AddDate(0, 0, 45)
	return []position.Leg{
		{Kind: position.KindPut, Direction: position.Sell, Quantity: 1, EntryPrice: 3.00, Strike: 575, Expiration: exp, DaysToExpiry: 45, ImpliedVol: 0.22},
		{Kind: position.KindPut, Direction: position.Buy, Quantity: 1, EntryPrice: 1.50, Strike: 570, Expiration: exp, DaysToExpiry: 45, ImpliedVol: 0.24},
	}
}

func mustProfile(t *testing.T, legs []position.Leg, spot float64) *payoff.TheoreticalProfile {
	t.Helper()
	profile, err := payoff.Compute(position.Position{Symbol: "SPY", Legs: legs}, spot, payoff.SampleRange{}, nil)
	if err != nil {
		t.Fatalf("profile computation failed: %v", err)
	}
	return profile
}

func addProposal(t *testing.T, s *Store, deadline time.Time) *Proposal {
	t.Helper()
	legs := spreadLegs()
	p, err := s.Add("SPY", "strat-1", legs, mustProfile(t, legs, 580), deadline, baseTime)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return p
}

func TestStore_AddDerivesBudget(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	if p.State != StatePending {
		t.Errorf("new proposal must be pending, got %s", p.State)
	}
	// Put credit spread: max loss = -(5 - 1.50) = -3.50, budget = 3.50
	if p.BudgetRequired < 3.4 || p.BudgetRequired > 3.6 {
		t.Errorf("expected budget near 3.50, got %f", p.BudgetRequired)
	}
	if p.Profile == nil {
		t.Error("new proposal should cache its theoretical profile")
	}
}

func TestStore_ApproveBeforeDeadline(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	approved, err := s.Approve(p.ID, baseTime.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.State != StateApproved {
		t.Errorf("expected approved, got %s", approved.State)
	}
	if approved.DecidedAt == nil {
		t.Error("approval must record the decision time")
	}
}

func TestStore_ApproveAfterDeadline(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	_, err := s.Approve(p.ID, baseTime.Add(2*time.Hour))
	if !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}

	// The proposal reads as expired but was never stored as such
	got, err := s.Get(p.ID, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateExpired {
		t.Errorf("expected derived expired state, got %s", got.State)
	}
	earlier, _ := s.Get(p.ID, baseTime.Add(30*time.Minute))
	if earlier.State != StatePending {
		t.Errorf("same proposal must read pending at an earlier clock, got %s", earlier.State)
	}
}

func TestStore_RejectAlwaysAllowedWhilePending(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	// Past the deadline, approval is gone but rejection still works
	rejected, err := s.Reject(p.ID, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.State != StateRejected {
		t.Errorf("expected rejected, got %s", rejected.State)
	}
}

func TestStore_TerminalStatesAreFinal(t *testing.T) {
	s := testStore()
	now := baseTime.Add(10 * time.Minute)

	p := addProposal(t, s, baseTime.Add(time.Hour))
	if _, err := s.Approve(p.ID, now); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if _, err := s.Approve(p.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double approve: expected ErrInvalidState, got %v", err)
	}
	if _, err := s.Reject(p.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reject after approve: expected ErrInvalidState, got %v", err)
	}
	if _, err := s.Reprice(p.ID, 1.25, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reprice after approve: expected ErrInvalidState, got %v", err)
	}
	if _, err := s.Edit(p.ID, EditPatch{}, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("edit after approve: expected ErrInvalidState, got %v", err)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := testStore()
	now := baseTime

	if _, err := s.Get("missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Approve("missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Reject("missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reject: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Reprice("missing", 1.0, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reprice: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Edit("missing", EditPatch{}, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit: expected ErrNotFound, got %v", err)
	}
}

func TestStore_RepriceKeepsState(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	repriced, err := s.Reprice(p.ID, -1.65, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reprice failed: %v", err)
	}
	if repriced.State != StatePending {
		t.Errorf("reprice must not change state, got %s", repriced.State)
	}
	if repriced.EntryTarget != -1.65 {
		t.Errorf("expected new entry target -1.65, got %f", repriced.EntryTarget)
	}
	if repriced.Profile == nil {
		t.Error("reprice must not invalidate the cached profile")
	}
}

func TestStore_EditInvalidatesProfile(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))
	now := baseTime.Add(time.Minute)

	newLegs := spreadLegs()
	newLegs[0].Strike = 580
	edited, err := s.Edit(p.ID, EditPatch{Legs: newLegs}, now)
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.State != StatePending {
		t.Errorf("edit must not change state, got %s", edited.State)
	}
	if edited.Profile != nil {
		t.Error("edit must invalidate the cached theoretical profile")
	}

	refreshed, err := s.RefreshProfile(p.ID, 580, payoff.SampleRange{}, nil, now)
	if err != nil {
		t.Fatalf("RefreshProfile failed: %v", err)
	}
	if refreshed.Profile == nil {
		t.Fatal("refresh must restore the cached profile")
	}
	// Strikes moved from 575/570 to 580/570: width 10, wider max loss
	if refreshed.BudgetRequired <= p.BudgetRequired {
		t.Errorf("widened spread must require more budget: %f <= %f", refreshed.BudgetRequired, p.BudgetRequired)
	}
}

func TestStore_EditRejectedAfterDeadline(t *testing.T) {
	s := testStore()
	p := addProposal(t, s, baseTime.Add(time.Hour))

	_, err := s.Edit(p.ID, EditPatch{}, baseTime.Add(2*time.Hour))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("edit on an expired proposal: expected ErrInvalidState, got %v", err)
	}
}

func TestStore_AddValidation(t *testing.T) {
	s := testStore()
	legs := spreadLegs()
	profile := mustProfile(t, legs, 580)

	if _, err := s.Add("SPY", "s", legs, nil, baseTime.Add(time.Hour), baseTime); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil profile: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Add("SPY", "s", nil, profile, baseTime.Add(time.Hour), baseTime); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("no legs: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Add("SPY", "s", legs, profile, baseTime.Add(-time.Hour), baseTime); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("past deadline: expected ErrInvalidInput, got %v", err)
	}
}

func TestStore_ListPendingFirst(t *testing.T) {
	s := testStore()
	now := baseTime.Add(time.Minute)

	a := addProposal(t, s, baseTime.Add(time.Hour))
	b := addProposal(t, s, baseTime.Add(time.Hour))
	if _, err := s.Reject(a.ID, now); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	list := s.List(now)
	if len(list) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(list))
	}
	if list[0].ID != b.ID || list[0].State != StatePending {
		t.Errorf("pending proposal must sort first, got %s (%s)", list[0].ID, list[0].State)
	}
}

func TestStore_UnboundedRiskUsesMarginBudget(t *testing.T) {
	s := testStore()
	exp := baseTime.AddDate(0, 0, 30)
	legs := []position.Leg{
		{Kind: position.KindCall, Direction: position.Sell, Quantity: 1, EntryPrice: 2.00, Strike: 105, Expiration: exp, DaysToExpiry: 30, ImpliedVol: 0.3},
	}
	p, err := s.Add("XYZ", "strat-naked", legs, mustProfile(t, legs, 100), baseTime.Add(time.Hour), baseTime)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	// Naked short call: unbounded max loss must map to a margin-style
	// budget, never to the sampled extremum.
	want := nakedMarginRate * 100 * 1
	if p.BudgetRequired != want {
		t.Errorf("expected margin budget %f, got %f", want, p.BudgetRequired)
	}
}
