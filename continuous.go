// Package diffxpy tests genes for differential expression along a
// continuous covariate such as pseudotime.  Each gene is fit with a
// generalized linear model in which the continuous covariate enters
// through a B-spline basis expansion, and the spline coefficients are
// tested jointly with a Wald or likelihood ratio statistic.
package diffxpy

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ivirshup/diffxpy/formula"
	"github.com/ivirshup/diffxpy/glm"
)

// NoiseModel selects the distributional family used to model a gene's
// expression values.
type NoiseModel string

// NoiseNegBinom models over-dispersed counts, NoiseNormal models
// continuous-valued data.
const (
	NoiseNegBinom NoiseModel = "nb"
	NoiseNormal   NoiseModel = "norm"
)

// TestKind selects the hypothesis test statistic.
type TestKind string

// WaldTest tests the spline coefficients jointly against their
// sampling covariance; LRTest compares the log-likelihoods of the full
// and reduced models.
const (
	WaldTest TestKind = "wald"
	LRTest   TestKind = "lrt"
)

// ContinuousConfig configures a Continuous1D analysis.
type ContinuousConfig struct {

	// Names of the genes (features), aligned with the columns of
	// the count matrix.  If nil, names are generated.
	GeneNames []string

	// The location (mean) model, e.g. "~ 1 + pseudotime + batch".
	FormulaLoc string

	// The scale model.  Only intercept-only scale models are
	// supported, i.e. a single dispersion per gene.
	FormulaScale string

	// The name of the continuous covariate that is expanded into a
	// spline basis.
	Continuous string

	// Degrees of freedom of the spline basis.
	SplineDF int

	// The formula term whose coefficients are tested.  Defaults to
	// the continuous covariate.
	FactorToTest string

	// The test statistic to use.
	Test TestKind

	// The noise model to use.
	NoiseModel NoiseModel

	// If set, the dispersion is estimated by moments rather than by
	// profile maximum likelihood.
	QuickScale bool

	// Number of grid points at which the fitted expression curves
	// are evaluated.
	GridPoints int

	// If not nil, write log messages here.
	Log *log.Logger
}

// DefaultContinuousConfig returns a ContinuousConfig with default
// values, to be customized before running an analysis.
func DefaultContinuousConfig() *ContinuousConfig {
	return &ContinuousConfig{
		FormulaScale: "~ 1",
		SplineDF:     3,
		Test:         WaldTest,
		NoiseModel:   NoiseNegBinom,
		QuickScale:   true,
		GridPoints:   50,
	}
}

// geneFit holds the per-gene fitting output.
type geneFit struct {
	params []float64
	ll     float64
	alpha  float64
	pval   float64
	ok     bool
	err    error
}

// Continuous1D tests each gene in the count matrix for differential
// expression along the configured continuous covariate.  counts is an
// observations x features matrix and desc holds the per-observation
// covariates named in the location formula.
func Continuous1D(counts [][]float64, desc *formula.Vars, c *ContinuousConfig) (*TestResult, error) {

	if c == nil {
		c = DefaultContinuousConfig()
	}

	if len(counts) == 0 || len(counts[0]) == 0 {
		return nil, fmt.Errorf("diffxpy: empty count matrix")
	}
	nobs := len(counts)
	ngene := len(counts[0])
	for i := range counts {
		if len(counts[i]) != ngene {
			return nil, fmt.Errorf("diffxpy: ragged count matrix")
		}
	}
	if desc.NumObs() != nobs {
		return nil, fmt.Errorf("diffxpy: count matrix has %d observations, sample description has %d",
			nobs, desc.NumObs())
	}

	genes := c.GeneNames
	if genes == nil {
		genes = make([]string, ngene)
		for j := range genes {
			genes[j] = fmt.Sprintf("gene%d", j)
		}
	}
	if len(genes) != ngene {
		return nil, fmt.Errorf("diffxpy: %d gene names for %d genes", len(genes), ngene)
	}

	if c.Continuous == "" {
		return nil, fmt.Errorf("diffxpy: the continuous covariate must be named")
	}
	if desc.Numeric(c.Continuous) == nil {
		return nil, fmt.Errorf("diffxpy: continuous covariate %q not found in the sample description", c.Continuous)
	}

	switch c.NoiseModel {
	case NoiseNegBinom, NoiseNormal:
	default:
		return nil, fmt.Errorf("diffxpy: unknown noise model %q", c.NoiseModel)
	}
	switch c.Test {
	case WaldTest, LRTest:
	default:
		return nil, fmt.Errorf("diffxpy: unknown test %q", c.Test)
	}

	floc, err := formula.Parse(c.FormulaLoc)
	if err != nil {
		return nil, err
	}
	if !floc.HasTerm(c.Continuous) {
		return nil, fmt.Errorf("diffxpy: location formula does not contain %q", c.Continuous)
	}

	fscale, err := formula.Parse(c.FormulaScale)
	if err != nil {
		return nil, err
	}
	if len(fscale.Terms) > 0 {
		return nil, fmt.Errorf("diffxpy: only intercept scale models are supported, got %q", c.FormulaScale)
	}

	factor := c.FactorToTest
	if factor == "" {
		factor = c.Continuous
	}
	if !floc.HasTerm(factor) {
		return nil, fmt.Errorf("diffxpy: tested factor %q is not in the location formula", factor)
	}

	splineDF := map[string]int{c.Continuous: c.SplineDF}

	design, err := floc.Build(desc, splineDF)
	if err != nil {
		return nil, err
	}
	reduced, err := floc.Drop(factor).Build(desc, splineDF)
	if err != nil {
		return nil, err
	}

	tested := design.TermColumns(factor)
	if len(tested) == 0 {
		return nil, fmt.Errorf("diffxpy: tested factor %q produced no design columns", factor)
	}

	rslt := &TestResult{
		cfg:       c,
		genes:     genes,
		geneIndex: make(map[string]int),
		design:    design,
		tested:    tested,
		pvals:     make([]float64, ngene),
		loglikes:  make([]float64, ngene),
		fits:      make([]geneFit, ngene),
	}
	for j, g := range genes {
		rslt.geneIndex[g] = j
	}
	rslt.setupGrid(desc.Numeric(c.Continuous))

	y := make([]float64, nobs)
	for j := 0; j < ngene; j++ {

		for i := 0; i < nobs; i++ {
			y[i] = counts[i][j]
		}

		gf := fitGene(y, design, reduced, tested, c)
		rslt.fits[j] = gf
		rslt.loglikes[j] = gf.ll

		if gf.ok {
			rslt.pvals[j] = gf.pval
		} else {
			rslt.pvals[j] = math.NaN()
			if c.Log != nil {
				c.Log.Printf("gene %s: %v", genes[j], gf.err)
			}
		}
	}

	return rslt, nil
}

// modelData assembles the glm data columns for one gene: the response
// followed by the design columns.
func modelData(y []float64, d *formula.Design) ([][]float64, []string) {

	data := make([][]float64, 0, len(d.Cols)+1)
	names := make([]string, 0, len(d.Cols)+1)

	data = append(data, y)
	names = append(names, "y")
	data = append(data, d.Cols...)
	names = append(names, d.Names...)

	return data, names
}

// geneFamily builds the GLM family for one gene under the configured
// noise model, estimating the negative binomial dispersion from the
// gene's data.
func geneFamily(y []float64, d *formula.Design, c *ContinuousConfig) (*glm.Family, float64) {

	if c.NoiseModel == NoiseNormal {
		return glm.NewFamily(glm.GaussianFamily), 0
	}

	alpha := glm.MomentDispersion(y)
	if !c.QuickScale {
		data, names := modelData(y, d)
		gc := glm.DefaultConfig()
		gc.Log = c.Log
		if a, err := glm.ProfileDispersion(data, names, "y", d.Names, gc, alpha); err == nil {
			alpha = a
		}
	}

	return glm.NewNegBinomFamily(alpha, glm.NewLink(glm.LogLink)), alpha
}

// fitGene fits the full (and, for the likelihood ratio test, reduced)
// model for one gene and computes the test p-value.  Numerical failure
// is recorded in the returned value rather than aborting the analysis.
func fitGene(y []float64, full, reduced *formula.Design, tested []int, c *ContinuousConfig) geneFit {

	fam, alpha := geneFamily(y, full, c)

	data, names := modelData(y, full)
	gc := glm.DefaultConfig()
	gc.Family = fam
	gc.Log = c.Log

	model := glm.NewGLM(data, names, "y", full.Names, gc)
	fr, err := model.Fit()
	if err != nil {
		return geneFit{ll: math.NaN(), alpha: alpha, err: err}
	}

	gf := geneFit{
		params: fr.Params(),
		ll:     fr.LogLike(),
		alpha:  alpha,
		ok:     true,
	}

	switch c.Test {
	case LRTest:
		rdata, rnames := modelData(y, reduced)
		rc := glm.DefaultConfig()
		rc.Family = fam
		rc.Log = c.Log
		rmodel := glm.NewGLM(rdata, rnames, "y", reduced.Names, rc)
		rr, err := rmodel.Fit()
		if err != nil {
			return geneFit{params: gf.params, ll: gf.ll, alpha: alpha, err: err}
		}
		gf.pval = lrtPValue(fr.LogLike(), rr.LogLike(), len(full.Names)-len(reduced.Names))
	default:
		gf.pval = waldPValue(fr.Params(), fr.VCov(), tested)
	}

	if math.IsNaN(gf.pval) {
		gf.ok = false
	}

	return gf
}

// waldPValue computes the joint Wald test that the parameters at the
// given positions are all zero, against a chi-squared reference with
// one degree of freedom per tested parameter.
func waldPValue(params, vcov []float64, tested []int) float64 {

	k := len(tested)
	p := len(params)

	cv := mat.NewVecDense(k, nil)
	vv := mat.NewDense(k, k, nil)
	for a, i := range tested {
		cv.SetVec(a, params[i])
		for b, j := range tested {
			vv.Set(a, b, vcov[i*p+j])
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(vv, cv); err != nil {
		return math.NaN()
	}

	w := mat.Dot(cv, &sol)
	if w < 0 || math.IsNaN(w) {
		return math.NaN()
	}

	chi2 := distuv.ChiSquared{K: float64(k)}
	return chi2.Survival(w)
}

// lrtPValue computes the likelihood ratio test p-value from the full
// and reduced model log-likelihoods.
func lrtPValue(llFull, llReduced float64, df int) float64 {

	if df <= 0 {
		return math.NaN()
	}

	d := 2 * (llFull - llReduced)
	if math.IsNaN(d) {
		return math.NaN()
	}
	if d < 0 {
		// The reduced model is nested, so a negative statistic is
		// optimizer noise.
		d = 0
	}

	chi2 := distuv.ChiSquared{K: float64(df)}
	return chi2.Survival(d)
}
