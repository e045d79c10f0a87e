package diffxpy

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ivirshup/diffxpy/formula"
	"github.com/ivirshup/diffxpy/statcore"
)

// TestResult holds the per-gene output of a Continuous1D analysis.
// Accessors taking gene names panic on unknown names; genes whose fit
// failed numerically report NaN throughout.
type TestResult struct {
	cfg       *ContinuousConfig
	genes     []string
	geneIndex map[string]int

	design *formula.Design
	tested []int

	pvals    []float64
	qvals    []float64
	loglikes []float64
	fits     []geneFit

	// Evaluation grid over the continuous covariate, with the spline
	// basis evaluated on it and the training means of the design
	// columns.
	grid      []float64
	gridBasis [][]float64
	colMeans  []float64

	iceptCol map[int]bool
	contCol  map[int]int
}

// setupGrid prepares the grid on which fitted expression curves are
// evaluated, spanning the observed range of the continuous covariate.
func (tr *TestResult) setupGrid(x []float64) {

	npt := tr.cfg.GridPoints
	if npt < 2 {
		npt = 2
	}

	lo := floats.Min(x)
	hi := floats.Max(x)
	tr.grid = make([]float64, npt)
	floats.Span(tr.grid, lo, hi)

	if bs := tr.design.Spline(tr.cfg.Continuous); bs != nil {
		tr.gridBasis = bs.Basis(tr.grid)
	}

	tr.colMeans = make([]float64, len(tr.design.Cols))
	for j, col := range tr.design.Cols {
		tr.colMeans[j] = stat.Mean(col, nil)
	}

	tr.iceptCol = make(map[int]bool)
	for _, j := range tr.design.TermColumns("icept") {
		tr.iceptCol[j] = true
	}

	// Map design columns of the continuous term to their position
	// within the term, which indexes the spline basis (position m
	// corresponds to basis function m+1, the first being dropped).
	tr.contCol = make(map[int]int)
	for m, j := range tr.design.TermColumns(tr.cfg.Continuous) {
		tr.contCol[j] = m
	}
}

// GeneIDs returns the gene names, aligned with all per-gene slices.
func (tr *TestResult) GeneIDs() []string {
	return tr.genes
}

// PValues returns the per-gene test p-values.
func (tr *TestResult) PValues() []float64 {
	return tr.pvals
}

// LogLikes returns the per-gene full model log-likelihoods.
func (tr *TestResult) LogLikes() []float64 {
	return tr.loglikes
}

// QValues returns the per-gene Benjamini-Hochberg adjusted p-values.
func (tr *TestResult) QValues() []float64 {

	if tr.qvals == nil {
		tr.qvals = bhQValues(tr.pvals)
	}

	return tr.qvals
}

// bhQValues computes Benjamini-Hochberg adjusted p-values.  NaN
// p-values are excluded from the ranking and stay NaN.
func bhQValues(pvals []float64) []float64 {

	q := make([]float64, len(pvals))
	var idx []int
	for i, p := range pvals {
		if math.IsNaN(p) {
			q[i] = math.NaN()
		} else {
			idx = append(idx, i)
		}
	}

	sort.Slice(idx, func(a, b int) bool {
		return pvals[idx[a]] < pvals[idx[b]]
	})

	m := float64(len(idx))
	run := math.Inf(1)
	for k := len(idx) - 1; k >= 0; k-- {
		v := pvals[idx[k]] * m / float64(k+1)
		if v < run {
			run = v
		}
		if run > 1 {
			q[idx[k]] = 1
		} else {
			q[idx[k]] = run
		}
	}

	return q
}

// lookup maps gene names to their positions, panicking on unknown
// names.  A nil argument selects all genes.
func (tr *TestResult) lookup(genes []string) []int {

	if genes == nil {
		ix := make([]int, len(tr.genes))
		for i := range ix {
			ix[i] = i
		}
		return ix
	}

	ix := make([]int, len(genes))
	for i, g := range genes {
		j, ok := tr.geneIndex[g]
		if !ok {
			panic(fmt.Sprintf("diffxpy: unknown gene %q", g))
		}
		ix[i] = j
	}

	return ix
}

// curve evaluates a gene's fitted expression over the grid.  The
// continuous covariate moves along the grid while, if withFactors is
// set, the remaining model terms are held at their training means;
// otherwise they are excluded from the linear predictor.
func (tr *TestResult) curve(gi int, withFactors bool) []float64 {

	mu := make([]float64, len(tr.grid))

	params := tr.fits[gi].params
	if params == nil {
		for k := range mu {
			mu[k] = math.NaN()
		}
		return mu
	}

	for k := range tr.grid {
		var eta float64
		for j, b := range params {
			switch {
			case tr.iceptCol[j]:
				eta += b
			default:
				if m, ok := tr.contCol[j]; ok {
					if tr.gridBasis != nil {
						eta += b * tr.gridBasis[m+1][k]
					} else {
						eta += b * tr.grid[k]
					}
				} else if withFactors {
					eta += b * tr.colMeans[j]
				}
			}
		}
		if tr.cfg.NoiseModel == NoiseNegBinom {
			mu[k] = math.Exp(eta)
		} else {
			mu[k] = eta
		}
	}

	return mu
}

// curveExtrema returns the min and max of a gene's fitted curve and
// the grid locations at which they occur.
func (tr *TestResult) curveExtrema(gi int, withFactors bool) (mn, mx, argmn, argmx float64) {

	mu := tr.curve(gi, withFactors)
	if math.IsNaN(mu[0]) {
		nan := math.NaN()
		return nan, nan, nan, nan
	}

	kmn, kmx := 0, 0
	for k, v := range mu {
		if v < mu[kmn] {
			kmn = k
		}
		if v > mu[kmx] {
			kmx = k
		}
	}

	return mu[kmn], mu[kmx], tr.grid[kmn], tr.grid[kmx]
}

// Max returns, per gene, the maximum of the fitted expression curve
// over the continuous covariate.  If withFactors is set, the model
// terms other than the continuous covariate contribute at their
// training means.  A nil gene list selects all genes.
func (tr *TestResult) Max(genes []string, withFactors bool) []float64 {

	ix := tr.lookup(genes)
	r := make([]float64, len(ix))
	for i, gi := range ix {
		_, r[i], _, _ = tr.curveExtrema(gi, withFactors)
	}

	return r
}

// Min returns, per gene, the minimum of the fitted expression curve
// over the continuous covariate.
func (tr *TestResult) Min(genes []string, withFactors bool) []float64 {

	ix := tr.lookup(genes)
	r := make([]float64, len(ix))
	for i, gi := range ix {
		r[i], _, _, _ = tr.curveExtrema(gi, withFactors)
	}

	return r
}

// ArgMax returns, per gene, the value of the continuous covariate at
// which the fitted expression curve is largest.
func (tr *TestResult) ArgMax(genes []string, withFactors bool) []float64 {

	ix := tr.lookup(genes)
	r := make([]float64, len(ix))
	for i, gi := range ix {
		_, _, _, r[i] = tr.curveExtrema(gi, withFactors)
	}

	return r
}

// ArgMin returns, per gene, the value of the continuous covariate at
// which the fitted expression curve is smallest.
func (tr *TestResult) ArgMin(genes []string, withFactors bool) []float64 {

	ix := tr.lookup(genes)
	r := make([]float64, len(ix))
	for i, gi := range ix {
		_, _, r[i], _ = tr.curveExtrema(gi, withFactors)
	}

	return r
}

// LogFoldChange returns, per gene, the change of the fitted expression
// curve between its extrema over the continuous covariate: the log2
// ratio of the extrema for log-link models, their difference on the
// response scale for identity-link models.
func (tr *TestResult) LogFoldChange(genes []string, withFactors bool) []float64 {

	ix := tr.lookup(genes)
	r := make([]float64, len(ix))
	for i, gi := range ix {
		mn, mx, _, _ := tr.curveExtrema(gi, withFactors)
		if tr.cfg.NoiseModel == NoiseNegBinom {
			if mn <= 0 {
				r[i] = math.NaN()
			} else {
				r[i] = math.Log2(mx / mn)
			}
		} else {
			r[i] = mx - mn
		}
	}

	return r
}

// Summary returns a table of the per-gene test results and fitted
// curve summaries.
func (tr *TestResult) Summary(withFactors bool) *statcore.SummaryTable {

	s := &statcore.SummaryTable{
		Title: "Differential expression along a continuous covariate",
	}

	s.Top = append(s.Top, fmt.Sprintf("Test:             %s", tr.cfg.Test))
	s.Top = append(s.Top, fmt.Sprintf("Noise model:      %s", tr.cfg.NoiseModel))
	s.Top = append(s.Top, fmt.Sprintf("Covariate:        %s", tr.cfg.Continuous))
	s.Top = append(s.Top, fmt.Sprintf("Num. genes:       %d", len(tr.genes)))
	s.Top = append(s.Top, fmt.Sprintf("Num. obs:         %d", tr.design.NumObs()))

	s.ColNames = []string{"Gene", "P-value", "Q-value", "Log2 FC", "Min", "Max"}
	s.ColFmt = []statcore.Fmter{
		statcore.StringFmt, statcore.NumberFmt, statcore.NumberFmt,
		statcore.NumberFmt, statcore.NumberFmt, statcore.NumberFmt,
	}
	s.Cols = []interface{}{
		tr.genes,
		tr.pvals,
		tr.QValues(),
		tr.LogFoldChange(nil, withFactors),
		tr.Min(nil, withFactors),
		tr.Max(nil, withFactors),
	}

	return s
}
