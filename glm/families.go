package glm

import (
	"fmt"
	"math"
)

// FamilyType is the type of GLM family used in a model.
type FamilyType uint8

// GaussianFamily, ... are the families available for a GLM.
const (
	GaussianFamily FamilyType = iota
	PoissonFamily
	NegBinomFamily
)

// DispersionForm determines how the dispersion (scale) parameter of a
// model is handled after the mean structure has been fit.
type DispersionForm int

// DispersionFree indicates that the scale is estimated from the Pearson
// residuals, DispersionFixed that it is held at a fixed value.
const (
	DispersionFree DispersionForm = iota
	DispersionFixed
)

// LogLikeFunc evaluates and returns the log-likelihood for a GLM.  The
// arguments are the response data, the mean values, the scale
// parameter, and the exact flag.  If the exact flag is false,
// additive factors that are constant with respect to the mean may be
// omitted.
type LogLikeFunc func([]float64, []float64, float64, bool) float64

// DevianceFunc evaluates and returns the deviance for a GLM.  The
// arguments are the response data, the mean values, and the scale
// parameter.
type DevianceFunc func([]float64, []float64, float64) float64

// Family represents a generalized linear model family.
type Family struct {

	// The name of the family
	Name string

	// The numeric code for the family
	TypeCode FamilyType

	// The log-likelihood function for the family
	LogLike LogLikeFunc

	// The deviance function for the family
	Deviance DevianceFunc

	// How the dispersion is handled if not set explicitly.
	dispersionDefaultMethod DispersionForm

	// The default dispersion value for a fixed dispersion
	dispersionDefaultValue float64

	// The names of valid links for this family.  The first listed
	// link is the canonical one.
	validLinks []LinkType

	// The link in use by the family, only specified for the
	// negative binomial family.
	link *Link

	// Auxiliary parameter: the negative binomial dispersion.
	alpha float64
}

// NewFamily returns a family object corresponding to the given type
// code.  The negative binomial family carries a dispersion parameter
// and is constructed with NewNegBinomFamily.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case GaussianFamily:
		return &gaussian
	case PoissonFamily:
		return &poisson
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

var gaussian = Family{
	Name:                    "Gaussian",
	TypeCode:                GaussianFamily,
	LogLike:                 gaussianLogLike,
	Deviance:                gaussianDeviance,
	validLinks:              []LinkType{IdentityLink, LogLink},
	dispersionDefaultMethod: DispersionFree,
	dispersionDefaultValue:  1,
}

var poisson = Family{
	Name:                    "Poisson",
	TypeCode:                PoissonFamily,
	LogLike:                 poissonLogLike,
	Deviance:                poissonDeviance,
	validLinks:              []LinkType{LogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFixed,
	dispersionDefaultValue:  1,
}

// Alpha returns the auxiliary dispersion parameter of the family, which
// is zero except for the negative binomial family.
func (fam *Family) Alpha() float64 {
	return fam.alpha
}

// IsValidLink returns true or false based on whether the link is valid
// for the family.
func (fam *Family) IsValidLink(link *Link) bool {

	for _, q := range fam.validLinks {
		if link.TypeCode == q {
			return true
		}
	}

	return false
}

func gaussianLogLike(y []float64, mn []float64, scale float64, exact bool) float64 {

	var ll float64
	for i := range y {
		r := y[i] - mn[i]
		ll -= r * r / (2 * scale)
	}
	if exact {
		ll -= float64(len(y)) * math.Log(2*math.Pi*scale) / 2
	}
	return ll
}

func poissonLogLike(y []float64, mn []float64, scale float64, exact bool) float64 {

	var ll float64
	for i := range y {
		ll += y[i]*math.Log(mn[i]) - mn[i]
	}

	if exact {
		for i := range y {
			g, _ := math.Lgamma(y[i] + 1)
			ll -= g
		}
	}

	return ll
}

func gaussianDeviance(y []float64, mn []float64, scale float64) float64 {

	var dev float64
	for i := range y {
		r := y[i] - mn[i]
		dev += r * r
	}
	dev /= scale

	return dev
}

func poissonDeviance(y []float64, mn []float64, scale float64) float64 {

	var dev float64
	for i := range y {
		if y[i] > 0 {
			dev += 2 * (y[i]*math.Log(y[i]/mn[i]) - (y[i] - mn[i]))
		} else {
			dev += 2 * mn[i]
		}
	}
	dev /= scale

	return dev
}

// NewNegBinomFamily returns a new family object for the negative
// binomial family, using the given dispersion parameter alpha and link
// function.  The variance for mean m is m + alpha*m^2.
func NewNegBinomFamily(alpha float64, link *Link) *Family {

	if alpha <= 0 {
		msg := fmt.Sprintf("NegBinom dispersion must be positive, got %v\n", alpha)
		panic(msg)
	}
	if link == nil {
		link = NewLink(LogLink)
	}

	loglike := func(y []float64, mn []float64, scale float64, exact bool) float64 {

		var ll float64
		var lp []float64

		lp = resize(lp, len(y))
		link.Link(mn, lp)
		c3, _ := math.Lgamma(1 / alpha)

		for i := range y {

			elp := math.Exp(lp[i])

			c1, _ := math.Lgamma(y[i] + 1/alpha)
			c2, _ := math.Lgamma(y[i] + 1)
			c := c1 - c2 - c3

			v := y[i] * math.Log(alpha*elp/(1+alpha*elp))
			v -= math.Log(1+alpha*elp) / alpha

			ll += v + c
		}

		return ll
	}

	deviance := func(y []float64, mn []float64, scale float64) float64 {

		var dev float64

		for i := range y {
			if y[i] > 0 {
				z1 := y[i] * math.Log(y[i]/mn[i])
				z2 := (y[i] + 1/alpha) * math.Log((1+alpha*y[i])/(1+alpha*mn[i]))
				dev += 2 * (z1 - z2)
			} else {
				dev += 2 * math.Log(1+alpha*mn[i]) / alpha
			}
		}
		dev /= scale

		return dev
	}

	return &Family{
		Name:                    "NegBinom",
		TypeCode:                NegBinomFamily,
		LogLike:                 loglike,
		Deviance:                deviance,
		alpha:                   alpha,
		validLinks:              []LinkType{LogLink},
		link:                    link,
		dispersionDefaultMethod: DispersionFixed,
		dispersionDefaultValue:  1,
	}
}
