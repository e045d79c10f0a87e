// Package kstest implements the one-sample Kolmogorov-Smirnov test,
// comparing an empirical distribution against a reference CDF.
package kstest

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptySample is returned when a test is requested on no data.
var ErrEmptySample = errors.New("kstest: empty sample")

// Statistic returns the Kolmogorov-Smirnov statistic for the sample
// against the reference distribution: the supremum distance between the
// empirical CDF and cdf.
func Statistic(sample []float64, cdf func(float64) float64) (float64, error) {

	n := len(sample)
	if n == 0 {
		return 0, ErrEmptySample
	}

	xs := make([]float64, n)
	copy(xs, sample)
	sort.Float64s(xs)

	var d float64
	en := float64(n)
	for i, x := range xs {
		f := cdf(x)
		if u := f - float64(i)/en; u > d {
			d = u
		}
		if u := float64(i+1)/en - f; u > d {
			d = u
		}
	}

	return d, nil
}

// PValue returns the asymptotic two-sided p-value for the
// Kolmogorov-Smirnov statistic d computed from a sample of size n,
// using the Kolmogorov limiting distribution with the usual
// effective-sample-size correction.
func PValue(d float64, n int) float64 {

	if n <= 0 {
		return 1
	}

	en := math.Sqrt(float64(n))
	return kolmogorovQ((en + 0.12 + 0.11/en) * d)
}

// kolmogorovQ evaluates the complementary CDF of the Kolmogorov
// distribution at x.
func kolmogorovQ(x float64) float64 {

	if x < 1e-8 {
		return 1
	}

	a := -2 * x * x
	sign := 1.0
	var q float64

	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(a*float64(k)*float64(k))
		q += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}

	q *= 2
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	return q
}

// Uniform01 tests the sample against the Uniform(0,1) distribution and
// returns the statistic and its p-value.  Values outside [0,1] are
// handled through the clamped reference CDF.
func Uniform01(sample []float64) (float64, float64, error) {

	cdf := func(x float64) float64 {
		switch {
		case x < 0:
			return 0
		case x > 1:
			return 1
		default:
			return x
		}
	}

	d, err := Statistic(sample, cdf)
	if err != nil {
		return 0, 0, err
	}

	return d, PValue(d, len(sample)), nil
}
