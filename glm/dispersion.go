package glm

import (
	"math"
)

// Bounds for the negative binomial dispersion.  Values outside this
// range are numerically indistinguishable from a Poisson model (low
// end) or from pure noise (high end).
const (
	minDispersion = 1e-6
	maxDispersion = 100
)

// MomentDispersion returns a moment estimate of the negative binomial
// dispersion alpha for the count vector y, from the relationship
// variance = mean + alpha*mean^2.  The estimate is clamped to a
// numerically workable range.
func MomentDispersion(y []float64) float64 {

	n := float64(len(y))

	var m float64
	for _, v := range y {
		m += v
	}
	m /= n

	var s2 float64
	for _, v := range y {
		r := v - m
		s2 += r * r
	}
	if n > 1 {
		s2 /= n - 1
	}

	if m <= 0 {
		return minDispersion
	}

	alpha := (s2 - m) / (m * m)
	if alpha < minDispersion {
		alpha = minDispersion
	}
	if alpha > maxDispersion {
		alpha = maxDispersion
	}

	return alpha
}

// ProfileDispersion returns the profile maximum likelihood estimate of
// the negative binomial dispersion for a model of yname on xnames,
// starting the search from alpha0.  The profile is maximized by
// bisection on the log dispersion; the mean structure is refit at every
// candidate value.
func ProfileDispersion(data [][]float64, varnames []string, yname string, xnames []string, c *Config, alpha0 float64) (float64, error) {

	if alpha0 < minDispersion {
		alpha0 = minDispersion
	}
	if alpha0 > maxDispersion {
		alpha0 = maxDispersion
	}

	var lasterr error

	f := func(la float64) float64 {
		alpha := math.Exp(la)

		cc := DefaultConfig()
		cc.Family = NewNegBinomFamily(alpha, NewLink(LogLink))
		if c != nil {
			cc.FitMethod = c.FitMethod
			cc.MaxIter = c.MaxIter
			cc.OffsetName = c.OffsetName
			cc.ConcurrentIRLS = c.ConcurrentIRLS
			cc.Log = c.Log
		}

		model := NewGLM(data, varnames, yname, xnames, cc)
		rslt, err := model.Fit()
		if err != nil {
			lasterr = err
			return math.Inf(-1)
		}
		return rslt.LogLike()
	}

	x1 := math.Log(alpha0)
	x0 := x1 - 2.5
	x2 := x1 + 2.5
	if lo := math.Log(minDispersion); x0 < lo {
		x0 = lo
	}
	if hi := math.Log(maxDispersion); x2 > hi {
		x2 = hi
	}

	y1 := f(x1)
	if math.IsInf(y1, -1) {
		return 0, lasterr
	}

	xm, _ := bisectmax(f, x0, x1, x2, y1, 1e-3)

	return math.Exp(xm), nil
}

// bisectmax maximizes f over the bracket [x0, x2] by bisection, where
// x1 is an interior point with value y1.  It returns the location and
// value of the maximum.
func bisectmax(f func(float64) float64, x0, x1, x2, y1, tol float64) (float64, float64) {

	for x2-x0 > tol {
		if x2-x1 > x1-x0 {
			x := (x1 + x2) / 2
			y := f(x)
			if y > y1 {
				x0 = x1
				y1 = y
				x1 = x
			} else {
				x2 = x
			}
		} else {
			x := (x0 + x1) / 2
			y := f(x)
			if y > y1 {
				x2 = x1
				y1 = y
				x1 = x
			} else {
				x0 = x
			}
		}
	}

	return x1, y1
}
