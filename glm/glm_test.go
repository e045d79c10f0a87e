package glm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ivirshup/diffxpy/statcore"
)

// testData builds a data set with an intercept, two covariates, and a
// response generated from the given mean function.
func testData(n int, mean func(lp float64) float64, draw func(mu float64, rng *rand.Rand) float64) ([][]float64, []string) {

	rng := rand.New(rand.NewSource(4523))

	icept := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)

	for i := 0; i < n; i++ {
		icept[i] = 1
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		lp := 1 + 0.5*x1[i] - 0.3*x2[i]
		y[i] = draw(mean(lp), rng)
	}

	return [][]float64{y, icept, x1, x2}, []string{"y", "icept", "x1", "x2"}
}

func gaussianData(n int) ([][]float64, []string) {
	return testData(n,
		func(lp float64) float64 { return lp },
		func(mu float64, rng *rand.Rand) float64 { return mu + rng.NormFloat64() })
}

func poissonData(n int) ([][]float64, []string) {
	return testData(n,
		math.Exp,
		func(mu float64, rng *rand.Rand) float64 {
			return distuv.Poisson{Lambda: mu, Src: rng}.Rand()
		})
}

// ols solves the least squares problem for the data columns directly,
// for comparison with the Gaussian GLM fit.
func ols(data [][]float64) []float64 {

	n := len(data[0])
	p := len(data) - 1

	xm := mat.NewDense(n, p, nil)
	for j := 1; j < len(data); j++ {
		xm.SetCol(j-1, data[j])
	}
	yv := mat.NewVecDense(n, data[0])

	var qr mat.QR
	qr.Factorize(xm)
	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, yv); err != nil {
		panic(err)
	}

	return beta.RawVector().Data
}

func TestGaussianMatchesOLS(t *testing.T) {

	data, names := gaussianData(200)

	c := DefaultConfig()
	c.Family = NewFamily(GaussianFamily)

	model := NewGLM(data, names, "y", nil, c)
	rslt, err := model.Fit()
	assert.NoError(t, err)

	beta := ols(data)
	for j := range beta {
		assert.InDelta(t, beta[j], rslt.Params()[j], 1e-8)
	}

	assert.Len(t, rslt.StdErr(), 3)
	assert.Len(t, rslt.PValues(), 3)
	assert.NotEmpty(t, rslt.Summary().String())
}

func TestIRLSGradientAgree(t *testing.T) {

	data, names := poissonData(300)

	c1 := DefaultConfig()
	c1.Family = NewFamily(PoissonFamily)
	r1, err := NewGLM(data, names, "y", nil, c1).Fit()
	assert.NoError(t, err)

	c2 := DefaultConfig()
	c2.Family = NewFamily(PoissonFamily)
	c2.FitMethod = "gradient"
	r2, err := NewGLM(data, names, "y", nil, c2).Fit()
	assert.NoError(t, err)

	for j := range r1.Params() {
		assert.InDelta(t, r1.Params()[j], r2.Params()[j], 1e-4)
	}
	assert.InDelta(t, r1.LogLike(), r2.LogLike(), 1e-5)
}

func TestScoreMatchesNumericalGradient(t *testing.T) {

	data, names := poissonData(100)

	c := DefaultConfig()
	c.Family = NewFamily(PoissonFamily)
	model := NewGLM(data, names, "y", nil, c)

	coeff := []float64{0.2, -0.1, 0.4}

	loglike := func(b []float64) float64 {
		return model.LogLike(NewParams(b), false)
	}

	score := make([]float64, len(coeff))
	model.Score(NewParams(coeff), score)

	ngrad := fd.Gradient(nil, loglike, coeff, nil)
	for j := range score {
		assert.InDelta(t, ngrad[j], score[j], 1e-5)
	}
}

func TestNegBinomInterceptOnly(t *testing.T) {

	// With only an intercept and a log link, the fitted mean is the
	// sample mean for any fixed dispersion.
	rng := rand.New(rand.NewSource(11))
	n := 500
	y := make([]float64, n)
	icept := make([]float64, n)
	g := distuv.Gamma{Alpha: 5, Beta: 0.1, Src: rng}
	for i := 0; i < n; i++ {
		icept[i] = 1
		y[i] = distuv.Poisson{Lambda: g.Rand(), Src: rng}.Rand()
	}

	alpha := MomentDispersion(y)
	assert.Greater(t, alpha, 0.0)

	c := DefaultConfig()
	c.Family = NewNegBinomFamily(alpha, NewLink(LogLink))

	rslt, err := NewGLM([][]float64{y, icept}, []string{"y", "icept"}, "y", nil, c).Fit()
	assert.NoError(t, err)

	assert.InDelta(t, stat.Mean(y, nil), math.Exp(rslt.Params()[0]), 1e-4)
	assert.InDelta(t, 1, rslt.Scale(), 1e-8)
}

func TestMomentDispersion(t *testing.T) {

	// Over-dispersed sample: mean 5, variance well above it.
	y := []float64{0, 10, 2, 8, 0, 12, 3, 5}
	m := stat.Mean(y, nil)
	v := stat.Variance(y, nil)
	assert.Greater(t, v, m)

	assert.InDelta(t, (v-m)/(m*m), MomentDispersion(y), 1e-12)

	// Under-dispersed data clamp at the lower bound.
	z := []float64{2, 2, 2, 2}
	assert.InDelta(t, minDispersion, MomentDispersion(z), 1e-12)
}

func TestIRLSLargeMeanLogLink(t *testing.T) {

	// Log-link fits must converge when the response mean is far from
	// the starting value of the iterations.
	rng := rand.New(rand.NewSource(31))
	n := 400

	icept := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		icept[i] = 1
		x[i] = rng.Float64()
		mu := math.Exp(6 + 0.5*x[i])
		y[i] = distuv.Poisson{Lambda: mu, Src: rng}.Rand()
	}

	c := DefaultConfig()
	c.Family = NewFamily(PoissonFamily)

	rslt, err := NewGLM([][]float64{y, icept, x}, []string{"y", "icept", "x"}, "y", nil, c).Fit()
	assert.NoError(t, err)
	assert.InDelta(t, 6, rslt.Params()[0], 0.1)
	assert.InDelta(t, 0.5, rslt.Params()[1], 0.2)
	assert.False(t, math.IsNaN(rslt.LogLike()))

	// The same holds for the negative binomial family at large means.
	yn := nbSample(500, 500, 0.1, 17)
	iceptn := make([]float64, len(yn))
	one(iceptn)
	cn := DefaultConfig()
	cn.Family = NewNegBinomFamily(MomentDispersion(yn), NewLink(LogLink))

	rn, err := NewGLM([][]float64{yn, iceptn}, []string{"y", "icept"}, "y", nil, cn).Fit()
	assert.NoError(t, err)
	assert.InDelta(t, stat.Mean(yn, nil), math.Exp(rn.Params()[0]), 1e-3)
}

func TestConfigPanics(t *testing.T) {

	data, names := gaussianData(10)

	assert.Panics(t, func() {
		NewGLM(data, names, "y", nil, DefaultConfig())
	})
	assert.Panics(t, func() {
		c := DefaultConfig()
		c.Family = NewFamily(GaussianFamily)
		NewGLM(data, names, "z", nil, c)
	})
	assert.Panics(t, func() {
		c := DefaultConfig()
		c.Family = NewFamily(GaussianFamily)
		NewGLM(data, names[:3], "y", nil, c)
	})
}

func TestVcovAgainstObservedHessian(t *testing.T) {

	// For the canonical Poisson link the observed and expected
	// Hessians coincide at any parameter value.
	data, names := poissonData(80)

	c := DefaultConfig()
	c.Family = NewFamily(PoissonFamily)
	model := NewGLM(data, names, "y", nil, c)

	par := NewParams([]float64{0.3, 0.1, -0.2})
	p := model.NumParams()

	hobs := make([]float64, p*p)
	hexp := make([]float64, p*p)
	model.Hessian(par, statcore.ObsHess, hobs)
	model.Hessian(par, statcore.ExpHess, hexp)

	for i := range hobs {
		assert.InDelta(t, hobs[i], hexp[i], 1e-8)
	}
}
