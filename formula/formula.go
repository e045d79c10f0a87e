// Package formula builds regression design matrices from R-style
// formulas like "~ 1 + pseudotime + batch".  Numeric variables enter as
// single columns or as B-spline basis expansions, categorical variables
// are dummy-coded against their first level.
package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Formula is a parsed right-hand-side model formula.
type Formula struct {

	// Whether the model contains an intercept.
	Intercept bool

	// The variable names on the right hand side, in order.
	Terms []string
}

// Parse parses a right-hand-side formula of the form
// "~ 1 + var1 + var2".  A leading "~" is required and no left hand
// side is permitted.
func Parse(fml string) (*Formula, error) {

	s := strings.TrimSpace(fml)
	if !strings.HasPrefix(s, "~") {
		return nil, fmt.Errorf("formula %q must start with '~'", fml)
	}
	s = strings.TrimSpace(s[1:])
	if s == "" {
		return nil, fmt.Errorf("formula %q has an empty right hand side", fml)
	}

	f := &Formula{}
	seen := make(map[string]bool)

	for _, tok := range strings.Split(s, "+") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
			return nil, fmt.Errorf("formula %q has an empty term", fml)
		case tok == "1":
			f.Intercept = true
		case tok == "0":
			f.Intercept = false
		default:
			if strings.ContainsAny(tok, "~*:()") {
				return nil, fmt.Errorf("formula term %q is not supported", tok)
			}
			if seen[tok] {
				return nil, fmt.Errorf("formula %q repeats term %q", fml, tok)
			}
			seen[tok] = true
			f.Terms = append(f.Terms, tok)
		}
	}

	return f, nil
}

// Drop returns a copy of the formula with the named term removed.  It
// is used to construct the reduced model of a likelihood ratio test.
func (f *Formula) Drop(name string) *Formula {

	g := &Formula{Intercept: f.Intercept}
	for _, t := range f.Terms {
		if t != name {
			g.Terms = append(g.Terms, t)
		}
	}

	return g
}

// HasTerm returns whether the formula contains the named term.
func (f *Formula) HasTerm(name string) bool {
	for _, t := range f.Terms {
		if t == name {
			return true
		}
	}
	return false
}

// Vars holds named data columns from which designs are built.
type Vars struct {
	n           int
	numeric     map[string][]float64
	categorical map[string][]string
}

// NewVars returns an empty variable set for n observations.
func NewVars(n int) *Vars {
	return &Vars{
		n:           n,
		numeric:     make(map[string][]float64),
		categorical: make(map[string][]string),
	}
}

// NumObs returns the number of observations.
func (v *Vars) NumObs() int {
	return v.n
}

// AddNumeric adds a numeric column.  The column length must match the
// number of observations.
func (v *Vars) AddNumeric(name string, x []float64) *Vars {
	if len(x) != v.n {
		panic(fmt.Sprintf("variable %s has length %d, want %d", name, len(x), v.n))
	}
	v.numeric[name] = x
	return v
}

// AddCategorical adds a categorical column.  The column length must
// match the number of observations.
func (v *Vars) AddCategorical(name string, x []string) *Vars {
	if len(x) != v.n {
		panic(fmt.Sprintf("variable %s has length %d, want %d", name, len(x), v.n))
	}
	v.categorical[name] = x
	return v
}

// Numeric returns the numeric column with the given name, or nil.
func (v *Vars) Numeric(name string) []float64 {
	return v.numeric[name]
}

// Design is a built design matrix with term bookkeeping.
type Design struct {

	// Column names, aligned with Cols.
	Names []string

	// The design matrix, one slice per column.
	Cols [][]float64

	terms   map[string][]int
	splines map[string]*BSpline
	levels  map[string][]string
}

// NumObs returns the number of observations (rows).
func (d *Design) NumObs() int {
	if len(d.Cols) == 0 {
		return 0
	}
	return len(d.Cols[0])
}

// TermColumns returns the design column indices generated by the named
// formula term ("icept" for the intercept).
func (d *Design) TermColumns(name string) []int {
	return d.terms[name]
}

// Spline returns the basis used to expand the named numeric term, or
// nil if the term was not spline-expanded.
func (d *Design) Spline(name string) *BSpline {
	return d.splines[name]
}

// Levels returns the observed levels of the named categorical term, in
// coding order (the first level is the reference).
func (d *Design) Levels(name string) []string {
	return d.levels[name]
}

// Build constructs the design matrix for the formula from the given
// variables.  Numeric terms named in splineDF are expanded into a
// B-spline basis with the given degrees of freedom.
func (f *Formula) Build(v *Vars, splineDF map[string]int) (*Design, error) {

	d := &Design{
		terms:   make(map[string][]int),
		splines: make(map[string]*BSpline),
		levels:  make(map[string][]string),
	}

	addCol := func(term, name string, col []float64) {
		d.terms[term] = append(d.terms[term], len(d.Cols))
		d.Names = append(d.Names, name)
		d.Cols = append(d.Cols, col)
	}

	if f.Intercept {
		icept := make([]float64, v.n)
		one(icept)
		addCol("icept", "icept", icept)
	}

	for _, t := range f.Terms {

		if x, ok := v.numeric[t]; ok {

			df := splineDF[t]
			if df == 0 {
				addCol(t, t, x)
				continue
			}

			bs, err := NewBSpline(x, df)
			if err != nil {
				return nil, fmt.Errorf("term %s: %v", t, err)
			}
			basis := bs.Basis(x)

			// The first basis function is dropped against the
			// intercept, leaving df columns.
			for j := 1; j < len(basis); j++ {
				addCol(t, fmt.Sprintf("%s_bs%d", t, j), basis[j])
			}
			d.splines[t] = bs
			continue
		}

		if x, ok := v.categorical[t]; ok {

			levels := uniqueLevels(x)
			d.levels[t] = levels

			// Dummy-code against the first level.
			for _, lev := range levels[1:] {
				col := make([]float64, v.n)
				for i := range x {
					if x[i] == lev {
						col[i] = 1
					}
				}
				addCol(t, fmt.Sprintf("%s[%s]", t, lev), col)
			}
			continue
		}

		return nil, fmt.Errorf("formula term %q not found in the data", t)
	}

	if len(d.Cols) == 0 {
		return nil, fmt.Errorf("formula produced an empty design")
	}

	return d, nil
}

func uniqueLevels(x []string) []string {

	seen := make(map[string]bool)
	var levels []string
	for _, v := range x {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)

	return levels
}

func one(x []float64) {
	for i := range x {
		x[i] = 1
	}
}
