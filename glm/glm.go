package glm

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/ivirshup/diffxpy/statcore"
)

// GLM represents a generalized linear model.
type GLM struct {

	// The data to which the model is fit, one column per variable.
	data [][]float64

	// The names of the variables, aligned with the columns of data.
	varnames []string

	// Name and position of the outcome variable
	yname string
	ypos  int

	// Positions of the covariates
	xnames []string
	xpos   []int

	// Name and position of the offset variable, if present.
	offsetname string
	offsetpos  int

	// The GLM family
	fam *Family

	// The GLM link function
	link *Link

	// The GLM variance function
	vari *Variance

	// Either IRLS (default) or gradient.
	fitMethod string

	// Starting values, optional
	start []float64

	// Maximum number of IRLS iterations
	maxiter int

	// How the scale parameter is handled after fitting the mean
	// structure.
	dispersionMethod DispersionForm
	dispersionValue  float64

	// Optimization settings and method, for gradient fitting
	settings *optimize.Settings
	method   optimize.Method

	// If not nil, write log messages here
	log *log.Logger

	// Use concurrent calculations in IRLS if the sample size is at
	// least as large as this value.
	concurrentIRLS int
}

// Config defines the fitting configuration for a GLM.
type Config struct {

	// The GLM family.  Required.
	Family *Family

	// The link function.  If nil, the canonical link of the family
	// is used.
	Link *Link

	// The variance function.  If nil, it is inferred from the
	// family.
	VarFunc *Variance

	// Either "IRLS" (the default) or "gradient".
	FitMethod string

	// Starting values for the fitting algorithm, optional.
	Start []float64

	// Maximum number of IRLS iterations.
	MaxIter int

	// The name of the offset variable, if present.
	OffsetName string

	// How the scale parameter is handled.  If unset, the family
	// default applies.
	Dispersion      DispersionForm
	DispersionValue float64
	dispersionSet   bool

	// Use concurrent calculations in IRLS if the sample size is at
	// least this large.
	ConcurrentIRLS int

	// If not nil, write log messages here.
	Log *log.Logger
}

// DefaultConfig returns a Config with default values, to be customized
// before fitting a model.
func DefaultConfig() *Config {
	return &Config{
		FitMethod:      "IRLS",
		MaxIter:        100,
		ConcurrentIRLS: 10000,
	}
}

// SetDispersion fixes the handling of the scale parameter, overriding
// the family default.
func (c *Config) SetDispersion(form DispersionForm, value float64) *Config {
	c.Dispersion = form
	c.DispersionValue = value
	c.dispersionSet = true
	return c
}

// Params represents the parameters of a fitted GLM: the linear
// predictor coefficients and the scale.
type Params struct {
	coeff []float64
	scale float64
}

// NewParams returns a Params value wrapping the given coefficients,
// with unit scale.
func NewParams(coeff []float64) *Params {
	return &Params{coeff: coeff, scale: 1}
}

// GetCoeff returns the coefficients (slopes for individual covariates)
// from the parameter.
func (p *Params) GetCoeff() []float64 {
	return p.coeff
}

// SetCoeff sets the coefficients (slopes for individual covariates) for
// the parameter.
func (p *Params) SetCoeff(coeff []float64) {
	p.coeff = coeff
}

// Scale returns the scale parameter.
func (p *Params) Scale() float64 {
	return p.scale
}

// Clone produces a deep copy of the parameter value.
func (p *Params) Clone() statcore.Parameter {
	coeff := make([]float64, len(p.coeff))
	copy(coeff, p.coeff)
	return &Params{
		coeff: coeff,
		scale: p.scale,
	}
}

// NewGLM creates a GLM for the given data columns, fitting yname on
// the covariates in xnames.  Configuration errors (unknown variable
// names, missing family, invalid link) panic since they are caller
// misuse; numerical problems during fitting are reported by Fit.
func NewGLM(data [][]float64, varnames []string, yname string, xnames []string, c *Config) *GLM {

	if len(data) != len(varnames) {
		panic("GLM: data and varnames must have the same length")
	}
	for j := 1; j < len(data); j++ {
		if len(data[j]) != len(data[0]) {
			panic("GLM: all data columns must have the same length")
		}
	}

	if c == nil {
		c = DefaultConfig()
	}
	if c.Family == nil {
		panic("GLM: the family must be specified")
	}

	pos := make(map[string]int)
	for k, na := range varnames {
		pos[na] = k
	}

	ypos, ok := pos[yname]
	if !ok {
		panic(fmt.Sprintf("GLM: outcome variable '%s' not found", yname))
	}

	if len(xnames) == 0 {
		for _, na := range varnames {
			if na != yname && na != c.OffsetName {
				xnames = append(xnames, na)
			}
		}
	}

	var xpos []int
	for _, na := range xnames {
		k, ok := pos[na]
		if !ok {
			panic(fmt.Sprintf("GLM: covariate '%s' not found", na))
		}
		xpos = append(xpos, k)
	}

	offsetpos := -1
	if c.OffsetName != "" {
		k, ok := pos[c.OffsetName]
		if !ok {
			panic(fmt.Sprintf("GLM: offset variable '%s' not found", c.OffsetName))
		}
		offsetpos = k
	}

	fitMethod := strings.ToLower(c.FitMethod)
	if fitMethod == "" {
		fitMethod = "irls"
	}
	if fitMethod != "irls" && fitMethod != "gradient" {
		panic(fmt.Sprintf("GLM: fitting method %s not allowed", c.FitMethod))
	}

	maxiter := c.MaxIter
	if maxiter <= 0 {
		maxiter = 100
	}

	concurrent := c.ConcurrentIRLS
	if concurrent <= 0 {
		concurrent = 10000
	}

	model := &GLM{
		data:             data,
		varnames:         varnames,
		yname:            yname,
		ypos:             ypos,
		xnames:           xnames,
		xpos:             xpos,
		offsetname:       c.OffsetName,
		offsetpos:        offsetpos,
		fam:              c.Family,
		link:             c.Link,
		vari:             c.VarFunc,
		fitMethod:        fitMethod,
		start:            c.Start,
		maxiter:          maxiter,
		dispersionMethod: c.Family.dispersionDefaultMethod,
		dispersionValue:  c.Family.dispersionDefaultValue,
		log:              c.Log,
		concurrentIRLS:   concurrent,
	}

	if c.dispersionSet {
		model.dispersionMethod = c.Dispersion
		model.dispersionValue = c.DispersionValue
	}

	model.setup()

	return model
}

func (glm *GLM) setup() {

	if glm.link == nil {
		if glm.fam.link != nil {
			glm.link = glm.fam.link
		} else {
			glm.link = NewLink(glm.fam.validLinks[0])
		}
	}
	if !glm.fam.IsValidLink(glm.link) {
		panic(fmt.Sprintf("GLM: link %s is not valid for family %s", glm.link.Name, glm.fam.Name))
	}

	if glm.vari == nil {
		switch glm.fam.TypeCode {
		case GaussianFamily:
			glm.vari = NewVariance(ConstantVar)
		case PoissonFamily:
			glm.vari = NewVariance(IdentityVar)
		case NegBinomFamily:
			glm.vari = NewNegBinomVariance(glm.fam.alpha)
		default:
			panic(fmt.Sprintf("Unknown GLM family: %s\n", glm.fam.Name))
		}
	}
}

// NumParams returns the number of covariates in the model.
func (glm *GLM) NumParams() int {
	return len(glm.xpos)
}

// NumObs returns the number of observations in the data set.
func (glm *GLM) NumObs() int {
	return len(glm.data[glm.ypos])
}

// Xpos returns the positions of the covariates in the model's data
// columns.
func (glm *GLM) Xpos() []int {
	return glm.xpos
}

// Dataset returns the data columns that are used to fit the model.
func (glm *GLM) Dataset() [][]float64 {
	return glm.data
}

// Family returns the family of the model.
func (glm *GLM) Family() *Family {
	return glm.fam
}

// LinkFunc returns the link function of the model.
func (glm *GLM) LinkFunc() *Link {
	return glm.link
}

// linpred fills lp with the linear predictor at the given coefficients,
// including the offset if one is present.
func (glm *GLM) linpred(coeff []float64, lp []float64) {

	zero(lp)
	for j, k := range glm.xpos {
		floats.AddScaled(lp, coeff[j], glm.data[k])
	}
	if glm.offsetpos != -1 {
		floats.Add(lp, glm.data[glm.offsetpos])
	}
}

// LogLike returns the log-likelihood value for the generalized linear
// model at the given parameter values.
func (glm *GLM) LogLike(params statcore.Parameter, exact bool) float64 {

	gpar := params.(*Params)

	yda := glm.data[glm.ypos]
	n := len(yda)

	linpred := make([]float64, n)
	mn := make([]float64, n)

	glm.linpred(gpar.coeff, linpred)
	glm.link.InvLink(linpred, mn)

	return glm.fam.LogLike(yda, mn, gpar.scale, exact)
}

func scoreFactor(yda, mn, deriv, va, sfac []float64) {
	for i, y := range yda {
		sfac[i] = (y - mn[i]) / (deriv[i] * va[i])
	}
}

// Score calculates the score vector for the generalized linear model at
// the given parameter values and stores it in score.
func (glm *GLM) Score(params statcore.Parameter, score []float64) {

	gpar := params.(*Params)

	yda := glm.data[glm.ypos]
	n := len(yda)

	linpred := make([]float64, n)
	mn := make([]float64, n)
	deriv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	glm.linpred(gpar.coeff, linpred)
	glm.link.InvLink(linpred, mn)
	glm.link.Deriv(mn, deriv)
	glm.vari.Var(mn, va)

	scoreFactor(yda, mn, deriv, va, fac)

	zero(score)
	for j, k := range glm.xpos {
		score[j] = floats.Dot(fac, glm.data[k])
	}
}

// Hessian calculates the Hessian matrix for the model at the given
// parameter values and stores its vectorized form in hess.  Either the
// observed or expected Hessian can be calculated.
func (glm *GLM) Hessian(param statcore.Parameter, ht statcore.HessType, hess []float64) {

	gpar := param.(*Params)

	yda := glm.data[glm.ypos]
	n := len(yda)
	nvar := glm.NumParams()

	xdat := make([][]float64, nvar)
	for j, k := range glm.xpos {
		xdat[j] = glm.data[k]
	}

	linpred := make([]float64, n)
	mn := make([]float64, n)
	lderiv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	glm.linpred(gpar.coeff, linpred)
	glm.link.InvLink(linpred, mn)
	glm.link.Deriv(mn, lderiv)
	glm.vari.Var(mn, va)

	// Factor for the expected Hessian
	for i := 0; i < n; i++ {
		fac[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
	}

	// Adjust the factor for the observed Hessian
	if ht == statcore.ObsHess {
		vad := make([]float64, n)
		lderiv2 := make([]float64, n)
		sfac := make([]float64, n)
		glm.link.Deriv2(mn, lderiv2)
		glm.vari.Deriv(mn, vad)
		scoreFactor(yda, mn, lderiv, va, sfac)

		for i := range fac {
			h := va[i]*lderiv2[i] + lderiv[i]*vad[i]
			h *= sfac[i] * fac[i]
			fac[i] *= 1 + h
		}
	}

	zero(hess)
	glm.hessXprod(xdat, fac, hess)

	// Fill in the upper triangle
	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 < j1; j2++ {
			hess[j2*nvar+j1] = hess[j1*nvar+j2]
		}
	}
}

func (glm *GLM) hessXprod(xdat [][]float64, fac, hess []float64) {

	nvar := len(xdat)

	var wg sync.WaitGroup

	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 <= j1; j2++ {

			wg.Add(1)
			go func(j1, j2 int) {
				x1 := xdat[j1]
				x2 := xdat[j2]
				var u float64
				for i := range x1 {
					u -= fac[i] * x1[i] * x2[i]
				}
				hess[j1*nvar+j2] = u
				wg.Done()
			}(j1, j2)
		}
	}

	wg.Wait()
}

// Fit estimates the parameters of the GLM and returns a results value.
// An error is returned if the optimization fails or the Hessian cannot
// be inverted at the fitted parameters.
func (glm *GLM) Fit() (*Results, error) {

	nvar := glm.NumParams()

	var start []float64
	if glm.start != nil {
		start = glm.start
	} else {
		start = make([]float64, nvar)
	}

	var params []float64
	var err error

	if glm.fitMethod == "gradient" {
		if glm.log != nil {
			glm.log.Print("Fitting using gradient optimization\n")
		}
		params, err = glm.fitGradient(start)
	} else {
		if glm.log != nil {
			glm.log.Print("Fitting using IRLS\n")
		}
		params, err = glm.fitIRLS(start, glm.maxiter)
	}
	if err != nil {
		return nil, err
	}

	var scale float64
	switch glm.dispersionMethod {
	case DispersionFixed:
		scale = glm.dispersionValue
	default:
		scale = glm.EstimateScale(params)
	}

	vcov, err := statcore.GetVcov(glm, &Params{params, scale})
	if err != nil {
		return nil, err
	}
	floats.Scale(scale, vcov)

	ll := glm.LogLike(&Params{params, scale}, true)

	results := &Results{
		BaseResults: statcore.NewBaseResults(glm, ll, params, glm.xnames, vcov),
		scale:       scale,
	}

	return results, nil
}

// fitGradient uses gradient-based optimization to obtain the fitted GLM
// parameters.
func (glm *GLM) fitGradient(start []float64) ([]float64, error) {

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return -glm.LogLike(&Params{x, 1}, false)
		},
		Grad: func(grad, x []float64) {
			glm.Score(&Params{x, 1}, grad)
			floats.Scale(-1, grad)
		},
	}

	if glm.settings == nil {
		glm.settings = &optimize.Settings{}
		glm.settings.GradientThreshold = 1e-6
	}

	if glm.method == nil {
		glm.method = &optimize.BFGS{}
	}

	optrslt, err := optimize.Minimize(p, start, glm.settings, glm.method)
	if err != nil {
		return nil, fmt.Errorf("glm: gradient optimization failed: %v", err)
	}
	if err = optrslt.Status.Err(); err != nil {
		return nil, fmt.Errorf("glm: gradient optimization failed: %v", err)
	}

	params := make([]float64, len(optrslt.X))
	copy(params, optrslt.X)

	return params, nil
}

// OptSettings allows the caller to provide an optimization settings
// value for gradient fitting.
func (glm *GLM) OptSettings(s *optimize.Settings) *GLM {
	glm.settings = s
	return glm
}

// OptMethod sets the optimization method from gonum optimize.
func (glm *GLM) OptMethod(method optimize.Method) *GLM {
	glm.method = method
	return glm
}

// EstimateScale returns a Pearson estimate of the GLM scale parameter
// at the given parameter values.
func (glm *GLM) EstimateScale(params []float64) float64 {

	yda := glm.data[glm.ypos]
	n := len(yda)
	nvar := glm.NumParams()

	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)

	glm.linpred(params, linpred)
	glm.link.InvLink(linpred, mn)
	glm.vari.Var(mn, va)

	var scale float64
	for i, y := range yda {
		r := y - mn[i]
		scale += r * r / va[i]
	}
	scale /= float64(n - nvar)

	return scale
}

// resize returns a float64 slice of length n, using the initial
// subslice of x if it is big enough.
func resize(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[0:n]
	}
	return make([]float64, n)
}

// zero sets all elements of the slice to 0
func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// one sets all elements of the slice to 1
func one(x []float64) {
	for i := range x {
		x[i] = 1
	}
}

// Results describes the results of a fitted generalized linear model.
type Results struct {
	statcore.BaseResults

	scale float64
}

// Scale returns the estimated scale parameter.
func (rslt *Results) Scale() float64 {
	return rslt.scale
}

// Summary summarizes a fitted generalized linear model.
type Summary struct {
	glm     *GLM
	results *Results
}

// Summary returns a value summarizing the fitted model, whose String
// method renders a text table.
func (rslt *Results) Summary() *Summary {

	glm := rslt.Model().(*GLM)

	return &Summary{
		glm:     glm,
		results: rslt,
	}
}

// String returns a string representation of a summary table for the
// model.
func (gs *Summary) String() string {

	sum := &statcore.SummaryTable{
		Title: "Generalized linear model analysis",
		Top: []string{
			fmt.Sprintf("Family:   %s", gs.glm.fam.Name),
			fmt.Sprintf("Link:     %s", gs.glm.link.Name),
			fmt.Sprintf("Variance: %s", gs.glm.vari.Name),
			fmt.Sprintf("Num obs:  %d", gs.glm.NumObs()),
			fmt.Sprintf("Scale:    %f", gs.results.scale),
		},
		ColNames: []string{"Variable   ", "Parameter", "SE", "Z-score", "P-value"},
		ColFmt: []statcore.Fmter{
			statcore.StringFmt, statcore.NumberFmt, statcore.NumberFmt,
			statcore.NumberFmt, statcore.NumberFmt,
		},
		Cols: []interface{}{
			gs.results.Names(),
			gs.results.Params(),
			gs.results.StdErr(),
			gs.results.ZScores(),
			gs.results.PValues(),
		},
	}

	return sum.String()
}
