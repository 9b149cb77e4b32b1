package position

import (
	"math"
	"testing"
	"time"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

var entryTime = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func testPosition(id string) Position {
	return Position{
		ID:     id,
		Symbol: "SPY",
		Legs: []Leg{
			{Kind: KindPut, Direction: Sell, Quantity: 1, EntryPrice: 3.00, Strike: 575, Expiration: entryTime.AddDate(0, 0, 45), DaysToExpiry: 45},
			{Kind: KindPut, Direction: Buy, Quantity: 1, EntryPrice: 1.50, Strike: 570, Expiration: entryTime.AddDate(0, 0, 45), DaysToExpiry: 45},
		},
		EnteredAt: entryTime,
	}
}

func TestStore_OpenComputesEntrySlippage(t *testing.T) {
	s := NewStore()
	// Theoretical credit 1.50 (net debit -1.50), actual fill only 1.40 credit
	actual, err := s.Open(testPosition("p1"), -1.40, -1.50, 580, 0.22, entryTime)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// Collected less credit than theoretical: slippage must be negative
	if !floatEquals(actual.EntrySlippage, -0.10, 1e-9) {
		t.Errorf("expected entry slippage -0.10, got %f", actual.EntrySlippage)
	}
}

func TestStore_OpenRejectsDuplicates(t *testing.T) {
	s := NewStore()
	if _, err := s.Open(testPosition("p1"), -1.50, -1.50, 580, 0.22, entryTime); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := s.Open(testPosition("p1"), -1.50, -1.50, 580, 0.22, entryTime); err == nil {
		t.Error("expected error for duplicate position id")
	}
}

func TestStore_MarkUpdatesTrackMoves(t *testing.T) {
	s := NewStore()
	if _, err := s.Open(testPosition("p1"), -1.50, -1.50, 580, 0.22, entryTime); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	at := entryTime.Add(48 * time.Hour)
	actual, err := s.UpdateMark("p1", MarkUpdate{
		Mark:       -0.80, // spread decayed: cheaper to close
		Spot:       584,
		ImpliedVol: 0.20,
		Greeks:     Greeks{Delta: 0.10, Theta: 0.03},
		At:         at,
	})
	if err != nil {
		t.Fatalf("UpdateMark failed: %v", err)
	}

	if !floatEquals(actual.UnrealizedPnL, 0.70, 1e-9) {
		t.Errorf("expected unrealized P&L 0.70, got %f", actual.UnrealizedPnL)
	}
	if !floatEquals(actual.UnderlyingMove, 4, 1e-9) {
		t.Errorf("expected underlying move 4, got %f", actual.UnderlyingMove)
	}
	if !floatEquals(actual.VolMove, -0.02, 1e-9) {
		t.Errorf("expected vol move -0.02, got %f", actual.VolMove)
	}
	if !floatEquals(actual.DaysElapsed, 2, 1e-9) {
		t.Errorf("expected 2 days elapsed, got %f", actual.DaysElapsed)
	}
}

func TestStore_CloseSetsRealized(t *testing.T) {
	s := NewStore()
	if _, err := s.Open(testPosition("p1"), -1.50, -1.50, 580, 0.22, entryTime); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	closedAt := entryTime.Add(10 * 24 * time.Hour)
	actual, err := s.Close("p1", -0.30, closedAt)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if actual.RealizedPnL == nil || !floatEquals(*actual.RealizedPnL, 1.20, 1e-9) {
		t.Errorf("expected realized P&L 1.20, got %v", actual.RealizedPnL)
	}
	if !actual.IsClosed() {
		t.Error("position must report closed")
	}

	if _, err := s.UpdateMark("p1", MarkUpdate{At: closedAt}); err == nil {
		t.Error("mark updates after close must fail")
	}
	if _, err := s.Close("p1", 0, closedAt); err == nil {
		t.Error("double close must fail")
	}
}

func TestLeg_Validate(t *testing.T) {
	tests := []struct {
		name    string
		leg     Leg
		wantErr bool
	}{
		{"valid equity", Leg{Kind: KindEquity, Direction: Buy, Quantity: 100, EntryPrice: 50}, false},
		{"valid call", Leg{Kind: KindCall, Direction: Sell, Quantity: 1, Strike: 100, Expiration: entryTime}, false},
		{"zero quantity", Leg{Kind: KindEquity, Direction: Buy, Quantity: 0}, true},
		{"negative quantity", Leg{Kind: KindEquity, Direction: Buy, Quantity: -5}, true},
		{"call without strike", Leg{Kind: KindCall, Direction: Buy, Quantity: 1, Expiration: entryTime}, true},
		{"put without expiration", Leg{Kind: KindPut, Direction: Buy, Quantity: 1, Strike: 100}, true},
		{"equity with strike", Leg{Kind: KindEquity, Direction: Buy, Quantity: 1, Strike: 100}, true},
		{"equity with expiration", Leg{Kind: KindEquity, Direction: Buy, Quantity: 1, Expiration: entryTime}, true},
		{"equity with target delta", Leg{Kind: KindEquity, Direction: Buy, Quantity: 1, TargetDelta: 0.30}, true},
		{"equity with dte", Leg{Kind: KindEquity, Direction: Buy, Quantity: 1, DaysToExpiry: 30}, true},
		{"unknown kind", Leg{Kind: "future", Direction: Buy, Quantity: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.leg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPosition_NetDebit(t *testing.T) {
	pos := testPosition("p1")
	// Sold 3.00, bought 1.50: net credit 1.50 = net debit -1.50
	if !floatEquals(pos.NetDebit(), -1.50, 1e-9) {
		t.Errorf("expected net debit -1.50, got %f", pos.NetDebit())
	}
}
