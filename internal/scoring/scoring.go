// Package scoring converts verdicts into integer point awards. It is the only
// place in the engine where fractional credit is truncated.
package scoring

import (
	"math"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

// stabilise removes floating point noise so that K/N*points lands on the
// exact half it represents before rounding
const stabilise = 1e9

// PointsEarned returns round-half-up(fraction*points) clamped to [0, points]
func PointsEarned(fraction float64, points int) int {
	if points <= 0 || math.IsNaN(fraction) {
		return 0
	}
	fraction = ClampFraction(fraction)

	x := fraction * float64(points)
	x = math.Round(x*stabilise) / stabilise
	earned := int(math.Floor(x + 0.5))

	if earned < 0 {
		return 0
	}
	if earned > points {
		return points
	}
	return earned
}

// Fraction returns earned/total in [0, 1]; a zero total yields 0
func Fraction(earned, total int) float64 {
	if total <= 0 {
		return 0
	}
	return ClampFraction(float64(earned) / float64(total))
}

// ClampFraction bounds f to [0, 1]
func ClampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Score converts a verdict into the points awarded for q
func Score(v domain.Verdict, q *domain.Question) (points int, isCorrect bool) {
	return PointsEarned(v.Fraction, q.Points), v.IsCorrect
}
