package glm

import (
	"fmt"
)

// VarianceType is used to specify a GLM variance function.
type VarianceType uint8

// IdentityVar and ConstantVar are the non-parametric variance functions.
const (
	IdentityVar VarianceType = iota
	ConstantVar
)

// Variance represents a GLM variance function.
type Variance struct {
	Name  string
	Var   VecFunc
	Deriv VecFunc
}

// NewVariance returns a new variance function object corresponding to
// the given type code.
func NewVariance(vartype VarianceType) *Variance {

	switch vartype {
	case IdentityVar:
		return &identVariance
	case ConstantVar:
		return &constVariance
	default:
		msg := fmt.Sprintf("Unknown variance function: %d\n", vartype)
		panic(msg)
	}
}

var identVariance = Variance{
	Name:  "Identity",
	Var:   identVar,
	Deriv: identVarDeriv,
}

var constVariance = Variance{
	Name:  "Constant",
	Var:   constVar,
	Deriv: constVarDeriv,
}

func identVar(mn []float64, v []float64) {
	copy(v, mn)
}

func identVarDeriv(mn []float64, v []float64) {
	one(v)
}

func constVar(mn []float64, v []float64) {
	one(v)
}

func constVarDeriv(mn []float64, v []float64) {
	zero(v)
}

// NewNegBinomVariance returns a variance function for the negative
// binomial family, using the given parameter alpha to determine the
// mean/variance relationship.  The variance for mean m is m + alpha*m^2.
func NewNegBinomVariance(alpha float64) *Variance {

	vaf := func(mn []float64, v []float64) {
		for i, m := range mn {
			v[i] = m + alpha*m*m
		}
	}

	vad := func(mn []float64, v []float64) {
		for i, m := range mn {
			v[i] = 1 + 2*alpha*m
		}
	}

	return &Variance{
		Name:  "NegBinom",
		Var:   vaf,
		Deriv: vad,
	}
}
