package glm

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// fitIRLS estimates the model parameters using iteratively reweighted
// least squares, starting from the given coefficients.
func (glm *GLM) fitIRLS(start []float64, maxiter int) ([]float64, error) {

	dtol := 1e-8

	yda := glm.data[glm.ypos]
	n := len(yda)
	nvar := glm.NumParams()

	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)
	lderiv := make([]float64, n)
	irlsw := make([]float64, n)
	adjy := make([]float64, n)

	var nparam mat.VecDense

	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	var params []float64
	if start == nil {
		params = make([]float64, nvar)
	} else {
		params = start
	}

	xdat := make([][]float64, nvar)
	for j, k := range glm.xpos {
		xdat[j] = glm.data[k]
	}

	var off []float64
	if glm.offsetpos != -1 {
		off = glm.data[glm.offsetpos]
	}

	var dev []float64

	for iter := 0; iter < maxiter; iter++ {

		zero(xtx)
		zero(xty)

		zero(linpred)
		for j := range glm.xpos {
			for i := range linpred {
				linpred[i] += xdat[j][i] * params[j]
			}
		}
		if off != nil {
			for i := range linpred {
				linpred[i] += off[i]
			}
		}

		if iter == 0 {
			// The adjusted response combines the linear predictor
			// with the working mean, so the starting values of the
			// two must describe the same fit.
			glm.startingMu(yda, mn)
			glm.link.Link(mn, linpred)
		} else {
			glm.link.InvLink(linpred, mn)
		}

		glm.link.Deriv(mn, lderiv)
		glm.vari.Var(mn, va)

		devi := glm.fam.Deviance(yda, mn, 1)

		// Weights for WLS
		for i := range yda {
			irlsw[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
		}

		// Adjusted response for WLS
		if off == nil {
			for i := range yda {
				adjy[i] = linpred[i] + lderiv[i]*(yda[i]-mn[i])
			}
		} else {
			for i := range yda {
				adjy[i] = linpred[i] + lderiv[i]*(yda[i]-mn[i]) - off[i]
			}
		}

		// Update the weighted moment matrices.  For large data
		// sets this is by far the most expensive step.
		glm.irlsXprod(xdat, adjy, irlsw, xty, xtx)

		// Fill in the unfilled triangle of xtx
		for j1 := 0; j1 < nvar; j1++ {
			for j2 := j1 + 1; j2 < nvar; j2++ {
				xtx[j1*nvar+j2] = xtx[j2*nvar+j1]
			}
		}

		// Update the parameters
		xtxm := mat.NewDense(nvar, nvar, xtx)
		xtyv := mat.NewVecDense(nvar, xty)
		if err := nparam.SolveVec(xtxm, xtyv); err != nil {
			return nil, fmt.Errorf("glm: IRLS weighted least squares is singular: %v", err)
		}
		params = nparam.RawVector().Data

		// Check convergence
		dev = append(dev, devi)
		if len(dev) > 3 && math.Abs(dev[len(dev)-1]-dev[len(dev)-2]) < dtol {
			break
		}

		if glm.log != nil {
			glm.log.Printf("Iteration %d: deviance=%.10f\n", iter+1, devi)
		}
	}

	if glm.log != nil {
		glm.log.Print("IRLS converged\n")
	}

	return params, nil
}

func (glm *GLM) irlsXprod(xdat [][]float64, adjy, irlsw, xty, xtx []float64) {

	if len(adjy) >= glm.concurrentIRLS {
		glm.irlsXprodConcurrent(xdat, adjy, irlsw, xty, xtx)
		return
	}

	nvar := len(xdat)

	for j1 := 0; j1 < nvar; j1++ {

		// Update x' w^-1 yadj
		xda := xdat[j1]
		var u float64
		for i := range adjy {
			u += adjy[i] * xda[i] * irlsw[i]
		}
		xty[j1] += u

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			var u float64
			for i := range xda {
				u += xda[i] * xdb[i] * irlsw[i]
			}
			xtx[j1*nvar+j2] += u
		}
	}
}

// irlsXprodConcurrent is a concurrent version of irlsXprod.
func (glm *GLM) irlsXprodConcurrent(xdat [][]float64, adjy, irlsw, xty, xtx []float64) {

	nvar := len(xdat)

	var wg sync.WaitGroup

	for j1 := 0; j1 < nvar; j1++ {

		xda := xdat[j1]
		wg.Add(1)
		go func(j1 int) {
			var u float64
			for i := range adjy {
				u += adjy[i] * xda[i] * irlsw[i]
			}
			xty[j1] += u
			wg.Done()
		}(j1)

		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			wg.Add(1)
			go func(j1, j2 int) {
				var u float64
				for i := range xda {
					u += xda[i] * xdb[i] * irlsw[i]
				}
				xtx[j1*nvar+j2] += u
				wg.Done()
			}(j1, j2)
		}
	}

	wg.Wait()
}

// startingMu provides an initial mean vector for the IRLS iterations.
func (glm *GLM) startingMu(y []float64, mn []float64) {

	var q float64
	for i := range y {
		q += y[i]
	}
	q /= float64(len(y))

	for i := range mn {
		mn[i] = (y[i] + q) / 2
		if mn[i] < 0.1 {
			mn[i] = 0.1
		}
	}
}
