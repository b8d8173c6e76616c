package display

import (
	"strings"
	"testing"
	"time"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/models"
)

func scenario() *dosing.Recommendation {
	return &dosing.Recommendation{
		DextroseGrams:          7.36,
		DextroseWindowMinutes:  15,
		DextroseProjectedDecay: 22.5,
		BananaGrams:            95.45,
		BananaCount:            0.7954,
		BananaWindowMinutes:    30,
		BananaProjectedDecay:   45,
		CarbFactor:             7.142857,
	}
}

func TestGlucose(t *testing.T) {
	tests := []struct {
		mgdl     float64
		unit     string
		expected string
	}{
		{72, UnitMgdl, "72 mg/dL"},
		{72.6, UnitMgdl, "73 mg/dL"},
		{100, UnitMmol, "5.5 mmol/L"},
		{180, "", "180 mg/dL"},
	}

	for _, tt := range tests {
		if got := Glucose(tt.mgdl, tt.unit); got != tt.expected {
			t.Errorf("Glucose(%v, %q) = %q, want %q", tt.mgdl, tt.unit, got, tt.expected)
		}
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		delta    float64
		unit     string
		expected string
	}{
		{5, UnitMgdl, "+5.0 mg/dL"},
		{-8.31, UnitMgdl, "-8.3 mg/dL"},
		{0, UnitMgdl, "0.0 mg/dL"},
		{-18.0182, UnitMmol, "-1.0 mmol/L"},
	}

	for _, tt := range tests {
		if got := Delta(tt.delta, tt.unit); got != tt.expected {
			t.Errorf("Delta(%v, %q) = %q, want %q", tt.delta, tt.unit, got, tt.expected)
		}
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := models.SensorReading{Timestamp: now.Add(-30 * time.Second).UnixMilli()}
	if got := Age(r, now); got != "just now" {
		t.Errorf("Age() = %q, want just now", got)
	}
	r.Timestamp = now.Add(-7 * time.Minute).UnixMilli()
	if got := Age(r, now); got != "7 min ago" {
		t.Errorf("Age() = %q, want 7 min ago", got)
	}
}

func TestRecommendationLines(t *testing.T) {
	rec := scenario()

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"dextrose", Dextrose(rec), "Dextrose: 7.4 g within 15 min (incl. 22.5 mg/dL decay)"},
		{"banana", Banana(rec), "Banana: 95 g (≈ 0.8 bananas) within 30 min (incl. 45.0 mg/dL decay)"},
		{"carb factor", CarbFactor(rec), "Carb factor: 7.14 mg/dL per 1 g carbohydrate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestResult(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := &advice.Result{
		Reading:        models.SensorReading{Glucose: 70, Timestamp: now.Add(-2 * time.Minute).UnixMilli(), Slope: -2.5, Delta: -12.5},
		TargetGlucose:  100,
		Recommendation: scenario(),
	}
	res.Recommendation.TrendNote = dosing.TrendFall.Note()

	out := Result(res, UnitMgdl, now)
	for _, want := range []string{"70 mg/dL ↓", "2 min ago", "Target: 100 mg/dL", "Falling trend", "Dextrose:", "Banana:", Disclaimer} {
		if !strings.Contains(out, want) {
			t.Errorf("Result() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stale") {
		t.Errorf("Result() marks fresh reading stale:\n%s", out)
	}

	res.Recommendation = nil
	res.Stale = true
	out = Result(res, UnitMgdl, now)
	if !strings.Contains(out, "No correction needed") || !strings.Contains(out, "stale") {
		t.Errorf("Result() without recommendation = %q", out)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(&advice.Result{}); got != "No correction needed" {
		t.Errorf("Summary() = %q, want No correction needed", got)
	}
	if got := Summary(&advice.Result{Recommendation: scenario()}); got != "7.4 g dextrose or 95 g banana" {
		t.Errorf("Summary() = %q", got)
	}
}
