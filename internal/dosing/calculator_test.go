package dosing

import (
	"errors"
	"math"
	"testing"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestCalculate_Scenario(t *testing.T) {
	rec, err := Calculate(70, 100, 70, 0, TrendStable)
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	if rec == nil {
		t.Fatal("Calculate() returned nil recommendation")
	}

	checks := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"CarbFactor", rec.CarbFactor, 7.142857},
		{"DextroseProjectedDecay", rec.DextroseProjectedDecay, 22.5},
		{"DextroseGrams", rec.DextroseGrams, 7.35},
		{"BananaProjectedDecay", rec.BananaProjectedDecay, 45},
		{"BananaGrams", rec.BananaGrams, 95.4545},
		{"BananaCount", rec.BananaCount, 0.7954},
	}
	for _, c := range checks {
		if !approxEqual(c.got, c.expected, 0.001) {
			t.Errorf("%s = %f, want %f", c.name, c.got, c.expected)
		}
	}

	if rec.DextroseWindowMinutes != 15 {
		t.Errorf("DextroseWindowMinutes = %d, want 15", rec.DextroseWindowMinutes)
	}
	if rec.BananaWindowMinutes != 30 {
		t.Errorf("BananaWindowMinutes = %d, want 30", rec.BananaWindowMinutes)
	}
	if rec.TrendNote != "" {
		t.Errorf("TrendNote = %q, want empty", rec.TrendNote)
	}
}

func TestCalculate_NoCorrectionNeeded(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		target  float64
	}{
		{"at target", 100, 100},
		{"above target", 150, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Calculate(tt.current, tt.target, 70, -3, TrendFall)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if rec != nil {
				t.Errorf("Calculate() = %+v, want nil", rec)
			}
		})
	}
}

func TestCalculate_PositiveDoses(t *testing.T) {
	trends := []Trend{TrendStrongFall, TrendFall, TrendStable, TrendRise, TrendStrongRise, TrendUnknown}
	deltas := []float64{-20, -5, 0, 0.05, 5}

	for _, trend := range trends {
		for _, delta := range deltas {
			rec, err := Calculate(99.9, 100, 80, delta, trend)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if rec.DextroseGrams <= 0 || rec.BananaGrams <= 0 || rec.BananaCount <= 0 {
				t.Errorf("Calculate(trend=%v, delta=%v) = %+v, want positive doses", trend, delta, rec)
			}
			if !approxEqual(rec.BananaCount, rec.BananaGrams/120, 1e-9) {
				t.Errorf("BananaCount = %v, want %v", rec.BananaCount, rec.BananaGrams/120)
			}
		}
	}
}

func TestCalculate_MonotonicInDifference(t *testing.T) {
	var prev *Recommendation
	for current := 99.0; current >= 40; current -= 5 {
		rec, err := Calculate(current, 100, 65, -4, TrendFall)
		if err != nil {
			t.Fatalf("Calculate() error: %v", err)
		}
		if prev != nil {
			if rec.DextroseGrams <= prev.DextroseGrams {
				t.Errorf("DextroseGrams at %v = %v, want more than %v", current, rec.DextroseGrams, prev.DextroseGrams)
			}
			if rec.BananaGrams <= prev.BananaGrams {
				t.Errorf("BananaGrams at %v = %v, want more than %v", current, rec.BananaGrams, prev.BananaGrams)
			}
		}
		prev = rec
	}
}

func TestCalculate_TrendOrdering(t *testing.T) {
	ordered := []Trend{TrendStrongFall, TrendFall, TrendStable, TrendRise, TrendStrongRise}

	var prev *Recommendation
	for _, trend := range ordered {
		rec, err := Calculate(60, 110, 75, 2, trend)
		if err != nil {
			t.Fatalf("Calculate() error: %v", err)
		}
		if prev != nil && rec.DextroseGrams >= prev.DextroseGrams {
			t.Errorf("DextroseGrams for %v = %v, want less than %v", trend, rec.DextroseGrams, prev.DextroseGrams)
		}
		if prev != nil && rec.BananaGrams >= prev.BananaGrams {
			t.Errorf("BananaGrams for %v = %v, want less than %v", trend, rec.BananaGrams, prev.BananaGrams)
		}
		if rec.TrendNote != trend.Note() {
			t.Errorf("TrendNote = %q, want %q", rec.TrendNote, trend.Note())
		}
		prev = rec
	}
}

func TestCalculate_InvalidBodyWeight(t *testing.T) {
	for _, weight := range []float64{0, -70, math.NaN(), math.Inf(1)} {
		_, err := Calculate(70, 100, weight, 0, TrendStable)
		if !errors.Is(err, ErrInvalidBodyWeight) {
			t.Errorf("Calculate(weight=%v) error = %v, want ErrInvalidBodyWeight", weight, err)
		}
	}
}

func TestCalculate_InvalidBodyWeightAboveTarget(t *testing.T) {
	// weight is checked before the target comparison
	for _, current := range []float64{100, 150} {
		rec, err := Calculate(current, 100, 0, 0, TrendStable)
		if !errors.Is(err, ErrInvalidBodyWeight) {
			t.Errorf("Calculate(current=%v, weight=0) error = %v, want ErrInvalidBodyWeight", current, err)
		}
		if rec != nil {
			t.Errorf("Calculate(current=%v, weight=0) = %+v, want nil", current, rec)
		}
	}
}

func TestDecayRate(t *testing.T) {
	tests := []struct {
		name     string
		delta    float64
		expected float64
	}{
		{"zero delta uses default", 0, 1.5},
		{"noise uses default", 0.1, 1.5},
		{"negative noise uses default", -0.1, 1.5},
		{"falling", -10, 2},
		{"rising", 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecayRate(tt.delta); !approxEqual(got, tt.expected, 1e-9) {
				t.Errorf("DecayRate(%v) = %v, want %v", tt.delta, got, tt.expected)
			}
		})
	}
}
