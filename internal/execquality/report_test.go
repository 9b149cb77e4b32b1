package execquality

import (
	"errors"
	"math"
	"testing"
	"time"

	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func profileWithEV(entry float64, ev *float64) *payoff.TheoreticalProfile {
	return &payoff.TheoreticalProfile{
		Symbol:        "SPY",
		Spot:          100,
		EntryPrice:    entry,
		ExpectedValue: ev,
		Greeks:        position.Greeks{Delta: 10, Gamma: 0.5, Theta: -2, Vega: 4},
	}
}

func evPtr(v float64) *float64 { return &v }

func TestComputeReport_EntrySlippageSign(t *testing.T) {
	tests := []struct {
		name        string
		theoretical float64
		actualFill  float64
		wantSign    float64
	}{
		{"debit paid more is worse", 4.50, 4.70, -1},
		{"debit paid less is better", 4.50, 4.30, +1},
		{"credit received less is worse", -1.50, -1.30, -1},
		{"credit received more is better", -1.50, -1.70, +1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := profileWithEV(tt.theoretical, evPtr(2.0))
			actual := position.ActualState{PositionID: "p1", EntryFillPrice: tt.actualFill}
			report, err := ComputeReport(profile, actual)
			if err != nil {
				t.Fatalf("ComputeReport failed: %v", err)
			}
			if report.EntrySlippage*tt.wantSign <= 0 {
				t.Errorf("entry slippage %f, want sign %f", report.EntrySlippage, tt.wantSign)
			}
		})
	}
}

func TestComputeReport_AttributionCloses(t *testing.T) {
	closedPnL := 1.80
	exitFill := 1.95
	closedAt := time.Now()

	tests := []struct {
		name   string
		actual position.ActualState
	}{
		{
			name: "open position",
			actual: position.ActualState{
				PositionID:     "p1",
				EntryFillPrice: 4.60,
				CurrentMark:    5.10,
				UnrealizedPnL:  0.50,
				Greeks:         position.Greeks{Delta: 12, Gamma: 0.4, Theta: -2.5, Vega: 4.2},
				UnderlyingMove: 1.5,
				VolMove:        -0.02,
				DaysElapsed:    3,
			},
		},
		{
			name: "closed position",
			actual: position.ActualState{
				PositionID:     "p2",
				EntryFillPrice: 4.60,
				CurrentMark:    2.00,
				RealizedPnL:    &closedPnL,
				ExitFillPrice:  &exitFill,
				ClosedAt:       &closedAt,
				Greeks:         position.Greeks{Delta: 8, Theta: -1.5, Vega: 3.1},
				UnderlyingMove: -2.2,
				VolMove:        0.04,
				DaysElapsed:    11,
			},
		},
		{
			name: "no moves at all",
			actual: position.ActualState{
				PositionID:     "p3",
				EntryFillPrice: 4.50,
				Greeks:         position.Greeks{Delta: 10, Gamma: 0.5, Theta: -2, Vega: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := profileWithEV(4.50, evPtr(2.0))
			report, err := ComputeReport(profile, tt.actual)
			if err != nil {
				t.Fatalf("ComputeReport failed: %v", err)
			}
			a := report.Attribution
			sum := a.EntrySlippage + a.ExitSlippage + a.GreeksVariance + a.MarketMovement
			if !floatEquals(sum, a.TotalGap, 1e-12) {
				t.Errorf("attribution does not close: components sum %f, total gap %f", sum, a.TotalGap)
			}
			wantGap := tt.actual.PnL() - 2.0
			if !floatEquals(a.TotalGap, wantGap, 1e-12) {
				t.Errorf("total gap %f, want %f", a.TotalGap, wantGap)
			}
		})
	}
}

func TestComputeReport_ExitSlippageZeroUntilClose(t *testing.T) {
	profile := profileWithEV(4.50, evPtr(2.0))
	actual := position.ActualState{PositionID: "p1", EntryFillPrice: 4.55, CurrentMark: 5.00}
	report, err := ComputeReport(profile, actual)
	if err != nil {
		t.Fatalf("ComputeReport failed: %v", err)
	}
	if report.ExitSlippage != 0 {
		t.Errorf("exit slippage must be zero before close, got %f", report.ExitSlippage)
	}
}

func TestComputeReport_QualityScore(t *testing.T) {
	tests := []struct {
		name      string
		ev        *float64
		pnl       float64
		wantScore *float64
	}{
		{"half of expected value", evPtr(2.0), 1.0, evPtr(50)},
		{"exceeds expected value clamps to 100", evPtr(2.0), 5.0, evPtr(100)},
		{"loss clamps to 0", evPtr(2.0), -1.0, evPtr(0)},
		{"zero expected value not applicable", evPtr(0), 1.0, nil},
		{"negative expected value not applicable", evPtr(-0.5), 1.0, nil},
		{"missing expected value not applicable", nil, 1.0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := profileWithEV(4.50, tt.ev)
			actual := position.ActualState{PositionID: "p1", EntryFillPrice: 4.50, UnrealizedPnL: tt.pnl}
			report, err := ComputeReport(profile, actual)
			if err != nil {
				t.Fatalf("ComputeReport failed: %v", err)
			}
			if tt.wantScore == nil {
				if report.QualityScore != nil {
					t.Errorf("expected no quality score, got %f", *report.QualityScore)
				}
				return
			}
			if report.QualityScore == nil {
				t.Fatal("expected quality score, got none")
			}
			if !floatEquals(*report.QualityScore, *tt.wantScore, 1e-9) {
				t.Errorf("score %f, want %f", *report.QualityScore, *tt.wantScore)
			}
		})
	}
}

func TestScore_NotApplicable(t *testing.T) {
	profile := profileWithEV(4.50, evPtr(-1.0))
	_, err := Score(profile, position.ActualState{UnrealizedPnL: 1.0})
	if !errors.Is(err, ErrNotApplicable) {
		t.Errorf("expected ErrNotApplicable, got %v", err)
	}
}

func TestComputeReport_NilProfile(t *testing.T) {
	_, err := ComputeReport(nil, position.ActualState{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestComputeReport_GreeksVariance(t *testing.T) {
	profile := profileWithEV(4.50, evPtr(2.0))
	actual := position.ActualState{
		PositionID:     "p1",
		EntryFillPrice: 4.50,
		Greeks:         position.Greeks{Delta: 12, Gamma: 0.7, Theta: -2.5, Vega: 3.5},
	}
	report, err := ComputeReport(profile, actual)
	if err != nil {
		t.Fatalf("ComputeReport failed: %v", err)
	}
	want := position.Greeks{Delta: 2, Gamma: 0.2, Theta: -0.5, Vega: -0.5}
	got := report.GreeksVariance
	if !floatEquals(got.Delta, want.Delta, 1e-9) || !floatEquals(got.Gamma, want.Gamma, 1e-9) ||
		!floatEquals(got.Theta, want.Theta, 1e-9) || !floatEquals(got.Vega, want.Vega, 1e-9) {
		t.Errorf("greeks variance %+v, want %+v", got, want)
	}
}
