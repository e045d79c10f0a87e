package formula

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Degree of the regression splines.
const splineDegree = 3

// BSpline is a cubic B-spline basis over the range of a training
// variable.  Interior knots are placed at quantiles of the training
// values, boundary knots at its extremes.  The full basis has df+1
// functions forming a partition of unity; callers that combine the
// basis with an intercept drop the first function.
type BSpline struct {

	// The full knot vector, with the boundary knots repeated
	// degree+1 times.
	knots []float64

	// Number of basis functions, df+1.
	ncoef int

	// Range of the training variable.
	lo, hi float64
}

// NewBSpline constructs a cubic B-spline basis with df degrees of
// freedom from the training values x.  df must be at least the spline
// degree.
func NewBSpline(x []float64, df int) (*BSpline, error) {

	if df < splineDegree {
		return nil, fmt.Errorf("spline basis needs at least %d degrees of freedom, got %d", splineDegree, df)
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("spline basis needs at least 2 observations")
	}

	xs := make([]float64, len(x))
	copy(xs, x)
	sort.Float64s(xs)

	lo := xs[0]
	hi := xs[len(xs)-1]
	if hi <= lo {
		return nil, fmt.Errorf("spline variable has no variation")
	}

	// Interior knots at quantiles of the training values.
	nint := df - splineDegree
	interior := make([]float64, nint)
	for i := 0; i < nint; i++ {
		p := float64(i+1) / float64(nint+1)
		interior[i] = stat.Quantile(p, stat.Empirical, xs, nil)
	}

	var knots []float64
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, lo)
	}
	knots = append(knots, interior...)
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, hi)
	}

	return &BSpline{
		knots: knots,
		ncoef: df + 1,
		lo:    lo,
		hi:    hi,
	}, nil
}

// NumBasis returns the number of basis functions, df+1.
func (b *BSpline) NumBasis() int {
	return b.ncoef
}

// Basis evaluates the basis at the given points, returning one column
// per basis function.  Points outside the training range are clamped
// to the boundary.
func (b *BSpline) Basis(x []float64) [][]float64 {

	cols := make([][]float64, b.ncoef)
	for j := range cols {
		cols[j] = make([]float64, len(x))
	}

	row := make([]float64, b.ncoef)
	for i, t := range x {
		b.basisRow(t, row)
		for j := range cols {
			cols[j][i] = row[j]
		}
	}

	return cols
}

// basisRow fills row with the values of all basis functions at t,
// using the Cox-de Boor recursion.
func (b *BSpline) basisRow(t float64, row []float64) {

	if t < b.lo {
		t = b.lo
	}
	if t > b.hi {
		t = b.hi
	}

	k := splineDegree

	// Knot span containing t.
	span := k
	for span < b.ncoef-1 && t >= b.knots[span+1] {
		span++
	}

	n := make([]float64, k+1)
	left := make([]float64, k+1)
	right := make([]float64, k+1)

	n[0] = 1
	for j := 1; j <= k; j++ {
		left[j] = t - b.knots[span+1-j]
		right[j] = b.knots[span+j] - t
		var saved float64
		for r := 0; r < j; r++ {
			den := right[r+1] + left[j-r]
			var tmp float64
			if den != 0 {
				tmp = n[r] / den
			}
			n[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		n[j] = saved
	}

	for j := range row {
		row[j] = 0
	}
	for r := 0; r <= k; r++ {
		row[span-k+r] = n[r]
	}
}
