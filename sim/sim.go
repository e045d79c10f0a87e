// Package sim generates synthetic single-cell expression data for
// calibration studies: a count matrix with per-gene negative binomial
// noise, and a matching sample description.
package sim

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Ranges for the per-gene parameters drawn by Generate.
const (
	minMean = 10.0
	maxMean = 1000.0
	minSize = 2.0
	maxSize = 10.0
)

// Simulator generates a synthetic expression data set.  Construct with
// New, call GenerateSampleDescription and then Generate (or
// GenerateNormal); afterwards the data are fixed and can be read
// through the accessors.
type Simulator struct {
	nobs  int
	nfeat int

	src rand.Source
	rng *rand.Rand

	// Per-observation group labels.
	condition []string
	batch     []string

	// Per-gene parameters.
	mean  []float64
	alpha []float64
	sd    []float64

	// The observations x features data matrix.
	counts [][]float64
}

// New returns a simulator for the given data dimensions, seeded
// deterministically.
func New(numObs, numFeatures int, seed uint64) *Simulator {

	if numObs <= 0 || numFeatures <= 0 {
		panic("sim: data dimensions must be positive")
	}

	src := rand.NewSource(seed)
	return &Simulator{
		nobs:  numObs,
		nfeat: numFeatures,
		src:   src,
		rng:   rand.New(src),
	}
}

// NumObs returns the number of observations.
func (s *Simulator) NumObs() int {
	return s.nobs
}

// NumFeatures returns the number of features (genes).
func (s *Simulator) NumFeatures() int {
	return s.nfeat
}

// GenerateSampleDescription assigns condition and batch labels to the
// observations, cycling through the requested number of groups.  Zero
// groups means a single homogeneous group.
func (s *Simulator) GenerateSampleDescription(numBatches, numConditions int) {

	if numBatches < 1 {
		numBatches = 1
	}
	if numConditions < 1 {
		numConditions = 1
	}

	s.condition = make([]string, s.nobs)
	s.batch = make([]string, s.nobs)
	for i := 0; i < s.nobs; i++ {
		s.condition[i] = fmt.Sprintf("condition%d", i%numConditions)
		s.batch[i] = fmt.Sprintf("batch%d", i%numBatches)
	}
}

// Condition returns the per-observation condition labels.
func (s *Simulator) Condition() []string {
	return s.condition
}

// Batch returns the per-observation batch labels.
func (s *Simulator) Batch() []string {
	return s.batch
}

// GeneMeans returns the per-gene baseline means drawn by Generate.
func (s *Simulator) GeneMeans() []float64 {
	return s.mean
}

// GeneDispersions returns the per-gene negative binomial dispersions
// drawn by Generate.
func (s *Simulator) GeneDispersions() []float64 {
	return s.alpha
}

// Counts returns the observations x features data matrix.
func (s *Simulator) Counts() [][]float64 {
	return s.counts
}

// Generate draws the per-gene baseline mean and dispersion, then
// fills the count matrix from the negative binomial distribution with
// variance m + alpha*m^2 at mean m.  The group labels assigned by
// GenerateSampleDescription carry no effect, so the data follow a null
// model with respect to any covariate.
func (s *Simulator) Generate() {

	if s.condition == nil {
		s.GenerateSampleDescription(0, 0)
	}

	s.mean = make([]float64, s.nfeat)
	s.alpha = make([]float64, s.nfeat)
	for j := 0; j < s.nfeat; j++ {
		s.mean[j] = minMean + (maxMean-minMean)*s.rng.Float64()
		r := minSize + (maxSize-minSize)*s.rng.Float64()
		s.alpha[j] = 1 / r
	}

	s.counts = make([][]float64, s.nobs)
	for i := range s.counts {
		s.counts[i] = make([]float64, s.nfeat)
	}

	for j := 0; j < s.nfeat; j++ {
		for i := 0; i < s.nobs; i++ {
			s.counts[i][j] = s.negBinom(s.mean[j], s.alpha[j])
		}
	}
}

// GenerateNormal fills the data matrix with Gaussian observations,
// drawing a mean and standard deviation per gene.  Like Generate, the
// data carry no covariate effect.
func (s *Simulator) GenerateNormal() {

	if s.condition == nil {
		s.GenerateSampleDescription(0, 0)
	}

	s.mean = make([]float64, s.nfeat)
	s.sd = make([]float64, s.nfeat)
	for j := 0; j < s.nfeat; j++ {
		s.mean[j] = minMean + (maxMean-minMean)*s.rng.Float64()
		s.sd[j] = 1 + 9*s.rng.Float64()
	}

	s.counts = make([][]float64, s.nobs)
	for i := range s.counts {
		s.counts[i] = make([]float64, s.nfeat)
	}

	for j := 0; j < s.nfeat; j++ {
		no := distuv.Normal{Mu: s.mean[j], Sigma: s.sd[j], Src: s.src}
		for i := 0; i < s.nobs; i++ {
			s.counts[i][j] = no.Rand()
		}
	}
}

// negBinom draws from the negative binomial distribution with the
// given mean and dispersion, as a gamma mixture of Poissons.
func (s *Simulator) negBinom(mean, alpha float64) float64 {

	p := 1 - mean/(mean+alpha*mean*mean)
	r := mean * (1 - p) / p

	g := distuv.Gamma{Alpha: r, Beta: (1 - p) / p, Src: s.src}
	lam := g.Rand()

	po := distuv.Poisson{Lambda: lam, Src: s.src}
	return po.Rand()
}
