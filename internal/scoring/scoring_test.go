package scoring

import (
	"math"
	"testing"

	"github.com/eriker75/onenglish-sub004/internal/domain"
)

func TestPointsEarned(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		points   int
		want     int
	}{
		{"full credit", 1, 10, 10},
		{"no credit", 0, 10, 0},
		{"half of odd budget rounds up", 0.5, 5, 3},
		{"below half rounds down", 0.49, 5, 2},
		{"one third of three", 1.0 / 3.0, 3, 1},
		{"two thirds of ten", 2.0 / 3.0, 10, 7},
		{"clamped above one", 1.7, 4, 4},
		{"clamped below zero", -0.3, 4, 0},
		{"NaN is zero", math.NaN(), 4, 0},
		{"zero budget", 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointsEarned(tt.fraction, tt.points)
			if got != tt.want {
				t.Errorf("PointsEarned(%v, %d) = %d; want %d", tt.fraction, tt.points, got, tt.want)
			}
		})
	}
}

func TestPointsEarned_KOfN(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for points := 0; points <= 30; points++ {
			for k := 0; k <= n; k++ {
				got := PointsEarned(float64(k)/float64(n), points)
				// integer round-half-up of k*points/n
				want := (2*k*points + n) / (2 * n)
				if got != want {
					t.Fatalf("PointsEarned(%d/%d, %d) = %d; want %d", k, n, points, got, want)
				}
			}
		}
	}
}

func TestFraction(t *testing.T) {
	if got := Fraction(5, 10); got != 0.5 {
		t.Errorf("Fraction(5, 10) = %v; want 0.5", got)
	}
	if got := Fraction(3, 0); got != 0 {
		t.Errorf("Fraction(3, 0) = %v; want 0", got)
	}
	if got := Fraction(12, 10); got != 1 {
		t.Errorf("Fraction(12, 10) = %v; want 1", got)
	}
}

func TestScore(t *testing.T) {
	q := &domain.Question{Points: 8}

	points, ok := Score(domain.Correct(), q)
	if points != 8 || !ok {
		t.Errorf("Score(Correct) = %d, %v; want 8, true", points, ok)
	}

	points, ok = Score(domain.Partial(0.25), q)
	if points != 2 || ok {
		t.Errorf("Score(Partial(0.25)) = %d, %v; want 2, false", points, ok)
	}
}
