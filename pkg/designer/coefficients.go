package designer

import (
	"fmt"
	"math"

	"github.com/cokac/emergent/pkg/graph"
)

// Coefficients weight the three sub-scores of a candidate pair. The struct
// is a value type and is treated as immutable: outcome feedback builds a
// new Coefficients and replaces the old one wholesale, so a caller holding
// a copy never observes a partial adjustment.
type Coefficients struct {
	// Span weights the temporal distance sub-score.
	Span float64 `yaml:"span" json:"span"`

	// Semantic weights tag dissimilarity plus type affinity.
	Semantic float64 `yaml:"semantic" json:"semantic"`

	// CrossSource weights the different-contributor indicator.
	CrossSource float64 `yaml:"cross_source" json:"cross_source"`
}

// DefaultCoefficients returns the calibrated starting coefficients.
func DefaultCoefficients() Coefficients {
	return Coefficients{Span: 0.4, Semantic: 0.3, CrossSource: 0.3}
}

// Coefficient bounds after outcome feedback. No single sub-score may take
// over the combined score entirely, nor vanish from it.
const (
	coefficientMin = 0.05
	coefficientMax = 0.90
)

// adjustStep is how far one outcome nudges the span coefficient.
const adjustStep = 0.02

// Validate checks that every coefficient is non-negative and that the
// coefficients sum to 1 within 1e-9.
func (c Coefficients) Validate() error {
	for _, v := range []float64{c.Span, c.Semantic, c.CrossSource} {
		if v < 0 {
			return fmt.Errorf("%w: pair coefficient %v is negative", graph.ErrValidation, v)
		}
	}
	sum := c.Span + c.Semantic + c.CrossSource
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: pair coefficients sum to %v, want 1", graph.ErrValidation, sum)
	}
	return nil
}

// Normalize returns a copy rescaled to sum 1. The zero value normalizes to
// the defaults rather than dividing by zero.
func (c Coefficients) Normalize() Coefficients {
	sum := c.Span + c.Semantic + c.CrossSource
	if sum <= 0 {
		return DefaultCoefficients()
	}
	return Coefficients{
		Span:        c.Span / sum,
		Semantic:    c.Semantic / sum,
		CrossSource: c.CrossSource / sum,
	}
}

// adjusted returns a new Coefficients with the span coefficient nudged one
// step opposite the sign of the prediction error: overprediction means span
// mattered less than the score assumed, underprediction means it mattered
// more. The other two coefficients absorb the difference pro rata so the
// result still sums to 1, and every coefficient stays within
// [coefficientMin, coefficientMax].
func (c Coefficients) adjusted(predictionError float64) Coefficients {
	step := adjustStep
	if predictionError > 0 {
		step = -adjustStep
	}
	span := clamp(c.Span+step, coefficientMin, coefficientMax)

	rest := c.Semantic + c.CrossSource
	remaining := 1.0 - span
	var semantic, cross float64
	if rest <= 0 {
		semantic = remaining / 2
		cross = remaining / 2
	} else {
		semantic = remaining * c.Semantic / rest
		cross = remaining * c.CrossSource / rest
	}
	return Coefficients{
		Span:        span,
		Semantic:    clamp(semantic, coefficientMin, coefficientMax),
		CrossSource: clamp(cross, coefficientMin, coefficientMax),
	}.Normalize()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
