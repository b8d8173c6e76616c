// Package dosing computes fast-acting carbohydrate doses for low or falling glucose
package dosing

import (
	"errors"
	"math"
)

// Absorption model constants
const (
	// DextroseWindowMinutes is the time dextrose needs to raise glucose
	DextroseWindowMinutes = 15
	// BananaWindowMinutes is the time a banana needs to raise glucose
	BananaWindowMinutes = 30

	carbFactorScale    = 500.0 // divided by body weight (kg)
	deltaWindowMinutes = 5.0   // sensor delta covers five minutes
	minDelta           = 0.1   // below this the delta is treated as noise
	defaultDecayRate   = 1.5   // mg/dL per minute
	bananaEfficiency   = 100.0 / 55.0
	bananaCarbFraction = 0.20
	bananaAverageGrams = 120.0
)

// ErrInvalidBodyWeight is returned when body weight is not a positive finite number
var ErrInvalidBodyWeight = errors.New("body weight must be a positive number")

// Recommendation holds the carbohydrate doses needed to reach the target glucose.
// All values are raw floats; rounding is left to the presentation layer.
type Recommendation struct {
	DextroseGrams          float64 `json:"dextroseGrams"`
	DextroseWindowMinutes  int     `json:"dextroseWindowMinutes"`
	DextroseProjectedDecay float64 `json:"dextroseProjectedDecay"` // mg/dL lost during the window

	BananaGrams          float64 `json:"bananaGrams"` // banana flesh
	BananaCount          float64 `json:"bananaCount"` // average 120 g bananas
	BananaWindowMinutes  int     `json:"bananaWindowMinutes"`
	BananaProjectedDecay float64 `json:"bananaProjectedDecay"`

	CarbFactor float64 `json:"carbFactor"` // mg/dL rise per 1 g carbohydrate
	TrendNote  string  `json:"trendNote"`
}

// CarbFactor returns the glucose rise in mg/dL caused by 1 g of carbohydrate
func CarbFactor(bodyWeight float64) (float64, error) {
	if math.IsNaN(bodyWeight) || math.IsInf(bodyWeight, 0) || bodyWeight <= 0 {
		return 0, ErrInvalidBodyWeight
	}
	return carbFactorScale / bodyWeight, nil
}

// DecayRate estimates how fast glucose keeps falling (mg/dL per minute) while food is absorbed
func DecayRate(delta float64) float64 {
	if d := math.Abs(delta); d > minDelta {
		return d / deltaWindowMinutes
	}
	return defaultDecayRate
}

// Calculate returns the dextrose and banana doses that bring currentGlucose up to
// targetGlucose. A nil recommendation with a nil error means no correction is needed
// because the target is already met.
func Calculate(currentGlucose, targetGlucose, bodyWeight, delta float64, trend Trend) (*Recommendation, error) {
	carbFactor, err := CarbFactor(bodyWeight)
	if err != nil {
		return nil, err
	}
	if currentGlucose >= targetGlucose {
		return nil, nil
	}

	difference := targetGlucose - currentGlucose
	multiplier := trend.Multiplier()
	rate := DecayRate(delta)

	dextroseDecay := rate * DextroseWindowMinutes
	dextroseGrams := (difference + dextroseDecay) * multiplier / carbFactor

	bananaDecay := rate * BananaWindowMinutes
	bananaCarbs := (difference + bananaDecay) * multiplier / carbFactor
	bananaGrams := bananaCarbs * bananaEfficiency / bananaCarbFraction

	return &Recommendation{
		DextroseGrams:          dextroseGrams,
		DextroseWindowMinutes:  DextroseWindowMinutes,
		DextroseProjectedDecay: dextroseDecay,
		BananaGrams:            bananaGrams,
		BananaCount:            bananaGrams / bananaAverageGrams,
		BananaWindowMinutes:    BananaWindowMinutes,
		BananaProjectedDecay:   bananaDecay,
		CarbFactor:             carbFactor,
		TrendNote:              trend.Note(),
	}, nil
}
