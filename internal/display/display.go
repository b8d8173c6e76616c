// Package display formats readings and recommendations for people
package display

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Disclaimer is shown with every recommendation
const Disclaimer = "This calculation is for orientation only. Always consult your doctor or diabetes educator for medical decisions."

// Unit names
const (
	UnitMgdl = "mg/dL"
	UnitMmol = "mmol/L"
)

// Glucose formats a mg/dL value in the given unit
func Glucose(mgdl float64, unit string) string {
	if unit == UnitMmol {
		return fmt.Sprintf("%.1f %s", models.ToMmol(mgdl), UnitMmol)
	}
	return fmt.Sprintf("%d %s", int(math.Round(mgdl)), UnitMgdl)
}

// Delta formats a signed 5-minute delta given in mg/dL
func Delta(delta float64, unit string) string {
	sign := ""
	if delta > 0 {
		sign = "+"
	}
	if unit == UnitMmol {
		return fmt.Sprintf("%s%.1f %s", sign, models.ToMmol(delta), UnitMmol)
	}
	return fmt.Sprintf("%s%.1f %s", sign, delta, UnitMgdl)
}

// Age formats the time since the reading, e.g. "3 min ago"
func Age(r models.SensorReading, now time.Time) string {
	minutes := int(r.Age(now).Minutes())
	if minutes < 1 {
		return "just now"
	}
	return fmt.Sprintf("%d min ago", minutes)
}

// Reading formats a reading as value, arrow and delta: "72 mg/dL ↓ (-8.0 mg/dL)"
func Reading(r models.SensorReading, unit string) string {
	trend := dosing.Classify(r.Slope)
	return fmt.Sprintf("%s %s (%s)", Glucose(r.Glucose, unit), trend.Arrow(), Delta(r.Delta, unit))
}

// Dextrose formats the dextrose dose line
func Dextrose(rec *dosing.Recommendation) string {
	return fmt.Sprintf("Dextrose: %.1f g within %d min (incl. %.1f mg/dL decay)",
		rec.DextroseGrams, rec.DextroseWindowMinutes, rec.DextroseProjectedDecay)
}

// Banana formats the banana dose line; flesh grams are whole grams
func Banana(rec *dosing.Recommendation) string {
	return fmt.Sprintf("Banana: %d g (≈ %.1f bananas) within %d min (incl. %.1f mg/dL decay)",
		int(rec.BananaGrams), rec.BananaCount, rec.BananaWindowMinutes, rec.BananaProjectedDecay)
}

// CarbFactor formats the personal carbohydrate factor
func CarbFactor(rec *dosing.Recommendation) string {
	return fmt.Sprintf("Carb factor: %.2f mg/dL per 1 g carbohydrate", rec.CarbFactor)
}

// Summary is a short single-line form for tooltips and notifications
func Summary(res *advice.Result) string {
	if res.Recommendation == nil {
		return "No correction needed"
	}
	rec := res.Recommendation
	return fmt.Sprintf("%.1f g dextrose or %d g banana", rec.DextroseGrams, int(rec.BananaGrams))
}

// Result formats a full recommendation block
func Result(res *advice.Result, unit string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current: %s, %s", Reading(res.Reading, unit), Age(res.Reading, now))
	if res.Stale {
		b.WriteString(" ⚠ stale")
	}
	fmt.Fprintf(&b, "\nTarget: %s\n", Glucose(res.TargetGlucose, unit))

	rec := res.Recommendation
	if rec == nil {
		b.WriteString("No correction needed\n")
		return b.String()
	}

	if rec.TrendNote != "" {
		b.WriteString(rec.TrendNote)
		b.WriteString("\n")
	}
	b.WriteString(Dextrose(rec))
	b.WriteString("\n")
	b.WriteString(Banana(rec))
	b.WriteString("\n")
	b.WriteString(CarbFactor(rec))
	b.WriteString("\n\n")
	b.WriteString(Disclaimer)
	b.WriteString("\n")
	return b.String()
}
