package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestDeterminism(t *testing.T) {

	s1 := New(50, 4, 3)
	s1.GenerateSampleDescription(2, 2)
	s1.Generate()

	s2 := New(50, 4, 3)
	s2.GenerateSampleDescription(2, 2)
	s2.Generate()

	assert.Equal(t, s1.GeneMeans(), s2.GeneMeans())
	assert.Equal(t, s1.Counts(), s2.Counts())
}

func TestSampleDescription(t *testing.T) {

	s := New(7, 1, 0)
	s.GenerateSampleDescription(2, 3)

	assert.Equal(t, []string{"batch0", "batch1", "batch0", "batch1", "batch0", "batch1", "batch0"},
		s.Batch())
	assert.Equal(t, []string{"condition0", "condition1", "condition2", "condition0",
		"condition1", "condition2", "condition0"}, s.Condition())

	// Zero groups collapses to a single homogeneous group.
	s.GenerateSampleDescription(0, 0)
	for i := 0; i < s.NumObs(); i++ {
		assert.Equal(t, "batch0", s.Batch()[i])
		assert.Equal(t, "condition0", s.Condition()[i])
	}
}

func TestDimensions(t *testing.T) {

	s := New(20, 5, 1)
	s.Generate()

	assert.Equal(t, 20, s.NumObs())
	assert.Equal(t, 5, s.NumFeatures())
	assert.Len(t, s.Counts(), 20)
	for _, row := range s.Counts() {
		assert.Len(t, row, 5)
	}
	assert.Len(t, s.GeneMeans(), 5)
	assert.Len(t, s.GeneDispersions(), 5)

	assert.Panics(t, func() { New(0, 5, 1) })
}

func TestMoments(t *testing.T) {

	s := New(20000, 3, 11)
	s.Generate()

	y := make([]float64, s.NumObs())
	for j := 0; j < s.NumFeatures(); j++ {

		for i := range y {
			y[i] = s.Counts()[i][j]
		}

		m := s.GeneMeans()[j]
		a := s.GeneDispersions()[j]
		mean, vr := stat.MeanVariance(y, nil)

		assert.InEpsilon(t, m, mean, 0.1)

		// The counts are over-dispersed relative to Poisson, with
		// variance near m + a*m^2.
		assert.Greater(t, vr, mean)
		assert.InEpsilon(t, m+a*m*m, vr, 0.25)
	}
}

func TestNormal(t *testing.T) {

	s := New(20000, 2, 5)
	s.GenerateNormal()

	y := make([]float64, s.NumObs())
	for j := 0; j < s.NumFeatures(); j++ {
		for i := range y {
			y[i] = s.Counts()[i][j]
		}
		mean := stat.Mean(y, nil)
		assert.InDelta(t, s.GeneMeans()[j], mean, 1)
	}
}
