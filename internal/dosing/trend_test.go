package dosing

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		slope    float64
		expected Trend
	}{
		{"steep rise", 5.0, TrendStrongRise},
		{"just above strong rise bound", 3.5001, TrendStrongRise},
		{"strong rise bound is rise", 3.5, TrendRise},
		{"rise", 2.5, TrendRise},
		{"rise bound is stable", 2.0, TrendStable},
		{"flat", 0, TrendStable},
		{"just above fall bound", -1.9999, TrendStable},
		{"fall bound is fall", -2.0, TrendFall},
		{"fall", -2.5, TrendFall},
		{"just above strong fall bound", -3.4999, TrendFall},
		{"strong fall bound is strong fall", -3.5, TrendStrongFall},
		{"steep fall", -8, TrendStrongFall},
		{"positive infinity", math.Inf(1), TrendStrongRise},
		{"negative infinity", math.Inf(-1), TrendStrongFall},
		{"NaN", math.NaN(), TrendUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.slope); got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.slope, got, tt.expected)
			}
		})
	}
}

func TestClassify_Thresholds(t *testing.T) {
	// a slope on a threshold takes the category below it
	tests := []struct {
		slope float64
		want  Trend
	}{
		{3.5, TrendRise},
		{2.0, TrendStable},
		{-2.0, TrendFall},
		{-3.5, TrendStrongFall},
	}

	for _, tt := range tests {
		if got := Classify(tt.slope); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.slope, got, tt.want)
		}
	}
}

func TestTrend_MultiplierAndNote(t *testing.T) {
	tests := []struct {
		trend      Trend
		multiplier float64
		note       string
	}{
		{TrendStrongFall, 1.3, "Strongly falling trend: +30% correction"},
		{TrendFall, 1.15, "Falling trend: +15% correction"},
		{TrendStable, 1.0, ""},
		{TrendRise, 0.9, "Rising trend: -10% correction"},
		{TrendStrongRise, 0.8, "Strongly rising trend: -20% correction"},
		{TrendUnknown, 1.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.trend.String(), func(t *testing.T) {
			if got := tt.trend.Multiplier(); got != tt.multiplier {
				t.Errorf("Multiplier() = %v, want %v", got, tt.multiplier)
			}
			if got := tt.trend.Note(); got != tt.note {
				t.Errorf("Note() = %q, want %q", got, tt.note)
			}
		})
	}
}

func TestParseTrend(t *testing.T) {
	tests := []struct {
		input    string
		expected Trend
		wantErr  bool
	}{
		{"strong_fall", TrendStrongFall, false},
		{"↓↓", TrendStrongFall, false},
		{"FALL", TrendFall, false},
		{" stable ", TrendStable, false},
		{"→", TrendStable, false},
		{"↑", TrendRise, false},
		{"strong_rise", TrendStrongRise, false},
		{"", TrendUnknown, false},
		{"?", TrendUnknown, false},
		{"sideways", TrendUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTrend(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrend(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseTrend(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrend_ArrowRoundTrip(t *testing.T) {
	for _, trend := range []Trend{TrendStrongFall, TrendFall, TrendStable, TrendRise, TrendStrongRise} {
		got, err := ParseTrend(trend.Arrow())
		if err != nil {
			t.Fatalf("ParseTrend(%q) error: %v", trend.Arrow(), err)
		}
		if got != trend {
			t.Errorf("ParseTrend(%q) = %v, want %v", trend.Arrow(), got, trend)
		}
	}
}

func TestTrend_JSON(t *testing.T) {
	payload := struct {
		Trend Trend `json:"trend"`
	}{Trend: TrendFall}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}
	if string(data) != `{"trend":"fall"}` {
		t.Errorf("json.Marshal = %s, want {\"trend\":\"fall\"}", data)
	}

	if err := json.Unmarshal([]byte(`{"trend":"↑↑"}`), &payload); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if payload.Trend != TrendStrongRise {
		t.Errorf("Trend = %v, want %v", payload.Trend, TrendStrongRise)
	}
}
