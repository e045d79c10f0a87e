package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func splineData(n int) []float64 {
	rng := rand.New(rand.NewSource(99))
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64()
	}
	return x
}

func TestBSplineErrors(t *testing.T) {

	x := splineData(20)

	_, err := NewBSpline(x, 2)
	assert.Error(t, err)

	_, err = NewBSpline([]float64{1}, 3)
	assert.Error(t, err)

	_, err = NewBSpline([]float64{2, 2, 2}, 3)
	assert.Error(t, err)
}

func TestPartitionOfUnity(t *testing.T) {

	x := splineData(200)

	for _, df := range []int{3, 4, 6} {

		bs, err := NewBSpline(x, df)
		assert.NoError(t, err)
		assert.Equal(t, df+1, bs.NumBasis())

		basis := bs.Basis(x)
		assert.Len(t, basis, df+1)

		for i := range x {
			var tot float64
			for _, col := range basis {
				v := col[i]
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
				tot += v
			}
			assert.InDelta(t, 1, tot, 1e-10)
		}
	}
}

func TestBoundaryClamping(t *testing.T) {

	x := splineData(50)
	bs, err := NewBSpline(x, 3)
	assert.NoError(t, err)

	lo := floats.Min(x)
	hi := floats.Max(x)

	// Points beyond the training range evaluate like the nearest
	// boundary.
	inside := bs.Basis([]float64{lo, hi})
	outside := bs.Basis([]float64{lo - 10, hi + 10})
	for j := range inside {
		assert.InDelta(t, inside[j][0], outside[j][0], 1e-12)
		assert.InDelta(t, inside[j][1], outside[j][1], 1e-12)
	}
}

func TestLocalSupport(t *testing.T) {

	n := 101
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) / float64(n-1)
	}

	bs, err := NewBSpline(x, 6)
	assert.NoError(t, err)

	// A cubic basis function vanishes far from its knots, so at the
	// left boundary the rightmost functions are zero.
	basis := bs.Basis([]float64{0})
	k := len(basis)
	assert.InDelta(t, 0, basis[k-1][0], 1e-12)
	assert.InDelta(t, 0, basis[k-2][0], 1e-12)
	assert.Greater(t, basis[0][0], 0.0)
}
