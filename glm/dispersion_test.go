package glm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// nbSample draws n negative binomial values with the given mean and
// dispersion, as a gamma mixture of Poissons.
func nbSample(n int, mean, alpha float64, seed uint64) []float64 {

	rng := rand.New(rand.NewSource(seed))

	p := 1 - mean/(mean+alpha*mean*mean)
	r := mean * (1 - p) / p

	y := make([]float64, n)
	g := distuv.Gamma{Alpha: r, Beta: (1 - p) / p, Src: rng}
	for i := range y {
		y[i] = distuv.Poisson{Lambda: g.Rand(), Src: rng}.Rand()
	}

	return y
}

func TestProfileDispersion(t *testing.T) {

	n := 3000
	alpha := 0.2
	y := nbSample(n, 50, alpha, 7)

	icept := make([]float64, n)
	one(icept)
	data := [][]float64{y, icept}
	names := []string{"y", "icept"}

	a0 := MomentDispersion(y)
	assert.InEpsilon(t, alpha, a0, 0.5)

	a, err := ProfileDispersion(data, names, "y", []string{"icept"}, DefaultConfig(), a0)
	assert.NoError(t, err)
	assert.InEpsilon(t, alpha, a, 0.3)
}

func TestDispersionClamping(t *testing.T) {

	// A constant sample is maximally under-dispersed.
	y := []float64{5, 5, 5, 5, 5}
	assert.Equal(t, minDispersion, MomentDispersion(y))
}
