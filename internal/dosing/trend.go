package dosing

import (
	"fmt"
	"math"
	"strings"
)

// Slope thresholds in mg/dL per minute
const (
	strongRiseSlope = 3.5
	riseSlope       = 2.0
	fallSlope       = -2.0
	strongFallSlope = -3.5
)

// Trend is the discretised direction of glucose change
type Trend int

// Trend categories. TrendUnknown is only produced for a non-finite slope.
const (
	TrendUnknown Trend = iota
	TrendStrongFall
	TrendFall
	TrendStable
	TrendRise
	TrendStrongRise
)

// Classify maps a sensor slope (mg/dL per minute) to a trend category.
// A slope exactly on a threshold falls into the lower category: 3.5 is Rise,
// 2.0 is Stable, -2.0 is Fall and -3.5 is StrongFall.
func Classify(slope float64) Trend {
	switch {
	case math.IsNaN(slope):
		return TrendUnknown
	case slope > strongRiseSlope:
		return TrendStrongRise
	case slope > riseSlope:
		return TrendRise
	case slope > fallSlope:
		return TrendStable
	case slope > strongFallSlope:
		return TrendFall
	default:
		return TrendStrongFall
	}
}

// Multiplier returns the correction factor applied to the needed glucose rise
func (t Trend) Multiplier() float64 {
	switch t {
	case TrendStrongFall:
		return 1.3
	case TrendFall:
		return 1.15
	case TrendRise:
		return 0.9
	case TrendStrongRise:
		return 0.8
	default:
		return 1.0
	}
}

// Note returns the human-readable annotation of the applied adjustment
func (t Trend) Note() string {
	switch t {
	case TrendStrongFall:
		return "Strongly falling trend: +30% correction"
	case TrendFall:
		return "Falling trend: +15% correction"
	case TrendRise:
		return "Rising trend: -10% correction"
	case TrendStrongRise:
		return "Strongly rising trend: -20% correction"
	default:
		return ""
	}
}

// Arrow returns the arrow shown next to the glucose value
func (t Trend) Arrow() string {
	switch t {
	case TrendStrongFall:
		return "↓↓"
	case TrendFall:
		return "↓"
	case TrendStable:
		return "→"
	case TrendRise:
		return "↑"
	case TrendStrongRise:
		return "↑↑"
	default:
		return "?"
	}
}

// String returns the stable identifier used in JSON, metrics and history tags
func (t Trend) String() string {
	switch t {
	case TrendStrongFall:
		return "strong_fall"
	case TrendFall:
		return "fall"
	case TrendStable:
		return "stable"
	case TrendRise:
		return "rise"
	case TrendStrongRise:
		return "strong_rise"
	default:
		return "unknown"
	}
}

// ParseTrend parses an identifier ("strong_fall") or an arrow ("↓↓")
func ParseTrend(s string) (Trend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strong_fall", "↓↓":
		return TrendStrongFall, nil
	case "fall", "↓":
		return TrendFall, nil
	case "stable", "→":
		return TrendStable, nil
	case "rise", "↑":
		return TrendRise, nil
	case "strong_rise", "↑↑":
		return TrendStrongRise, nil
	case "unknown", "?", "":
		return TrendUnknown, nil
	}
	return TrendUnknown, fmt.Errorf("unknown trend %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Trend) UnmarshalText(text []byte) error {
	parsed, err := ParseTrend(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
