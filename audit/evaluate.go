package audit

import (
	"fmt"
	"math"
)

// MeasurementRule decides when a point counts as fully measured. The
// historical behavior treats a zero reading as "not yet measured",
// which also makes a true zero-lux reading unrecordable; AllowZero
// relaxes that so a reading equal to MinReading is accepted.
type MeasurementRule struct {
	MinReading float64 `yaml:"minReading" json:"minReading"`
	AllowZero  bool    `yaml:"allowZero" json:"allowZero"`
}

// DefaultMeasurementRule preserves the original strict >0 gate.
func DefaultMeasurementRule() MeasurementRule {
	return MeasurementRule{MinReading: 0, AllowZero: false}
}

// Complete reports whether all four readings are present under the
// rule. An incomplete set is normal flow, not an error: no record is
// created or updated for it.
func (r MeasurementRule) Complete(readings [4]float64) bool {
	for _, v := range readings {
		if r.AllowZero {
			if v < r.MinReading {
				return false
			}
		} else if v <= r.MinReading {
			return false
		}
	}
	return true
}

// Evaluate averages four readings and compares against the Em target.
// The returned average is rounded to one decimal for storage and
// reporting; the verdict is computed on the full-precision mean, with
// the boundary-equal case passing.
func Evaluate(readings [4]float64, targetEm float64) (float64, Verdict, error) {
	for i, v := range readings {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0, "", fmt.Errorf("reading %d (%v): %w", i+1, v, ErrInvalidMeasurement)
		}
	}
	if math.IsNaN(targetEm) || math.IsInf(targetEm, 0) || targetEm <= 0 {
		return 0, "", fmt.Errorf("target em %v: %w", targetEm, ErrInvalidMeasurement)
	}

	mean := (readings[0] + readings[1] + readings[2] + readings[3]) / 4

	verdict := VerdictNoConforme
	if mean >= targetEm {
		verdict = VerdictConforme
	}

	return round1(mean), verdict, nil
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
