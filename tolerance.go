// Package levmarq tolerance-based verification for floating-point comparisons
package levmarq

import (
	"fmt"
	"math"
)

// ToleranceConfig defines tolerance parameters for floating-point comparison
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float64

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float64

	// CheckNaN determines if NaN values should be considered equal
	CheckNaN bool

	// CheckInf determines if Inf values should be considered equal
	CheckInf bool
}

// DefaultToleranceConfig returns default tolerance configuration
func DefaultToleranceConfig() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-9,
		RelTol:   1e-9,
		CheckNaN: true,
		CheckInf: true,
	}
}

// FitTolerance returns the tolerance used to compare fitted parameters, which
// are only as good as the convergence tolerance of the solver.
func FitTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol:   1e-4,
		RelTol:   1e-5,
		CheckNaN: false,
		CheckInf: false,
	}
}

// NearEqual checks if two values are equal within tolerance
func NearEqual(a, b float64, tol ToleranceConfig) bool {
	// Handle special cases
	if math.IsNaN(a) || math.IsNaN(b) {
		return tol.CheckNaN && math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return tol.CheckInf && a == b
	}

	// Check if exactly equal (handles ±0)
	if a == b {
		return true
	}

	diff := math.Abs(a - b)
	if diff <= tol.AbsTol {
		return true
	}

	larger := math.Max(math.Abs(a), math.Abs(b))
	return diff <= larger*tol.RelTol
}

// VerificationResult summarizes an element-wise comparison
type VerificationResult struct {
	MaxAbsError float64
	MaxRelError float64
	NumErrors   int
	TotalItems  int
	FirstError  int // Index of first error, -1 if none
}

// VerifyArray compares two arrays and returns detailed results
func VerifyArray(expected, actual []float64, tol ToleranceConfig) VerificationResult {
	result := VerificationResult{
		TotalItems: len(expected),
		FirstError: -1,
	}

	if len(expected) != len(actual) {
		result.NumErrors = len(expected)
		return result
	}

	for i := range expected {
		if NearEqual(expected[i], actual[i], tol) {
			continue
		}
		result.NumErrors++
		if result.FirstError == -1 {
			result.FirstError = i
		}
		absDiff := math.Abs(expected[i] - actual[i])
		if absDiff > result.MaxAbsError {
			result.MaxAbsError = absDiff
		}
		if expected[i] != 0 {
			if rel := absDiff / math.Abs(expected[i]); rel > result.MaxRelError {
				result.MaxRelError = rel
			}
		}
	}

	return result
}

// VerifyIdentity compares a square view against the identity
func VerifyIdentity(m Matrix, tol ToleranceConfig) VerificationResult {
	n := m.Rows()
	expected := make([]float64, 0, n*n)
	actual := make([]float64, 0, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < m.Cols(); c++ {
			v := 0.0
			if r == c {
				v = 1
			}
			expected = append(expected, v)
			actual = append(actual, m.At(r, c))
		}
	}
	return VerifyArray(expected, actual, tol)
}

// String formats the verification result for display
func (r VerificationResult) String() string {
	if r.NumErrors == 0 {
		return "PASS: All values match within tolerance"
	}

	errorRate := float64(r.NumErrors) / float64(r.TotalItems) * 100
	return fmt.Sprintf("FAIL: %d/%d values differ (%.2f%%)\n"+
		"  Max absolute error: %e\n"+
		"  Max relative error: %e\n"+
		"  First error at index: %d",
		r.NumErrors, r.TotalItems, errorRate,
		r.MaxAbsError, r.MaxRelError,
		r.FirstError)
}
