package statcore

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func data1() ([]string, [][]float64) {
	x := [][]float64{
		{0, 1, 3, 2, 1, 1, 0},
		{1, 1, 1, 1, 1, 1, 1},
		{4, 1, -1, 3, 5, -5, 3},
	}
	return []string{"y", "x1", "x2"}, x
}

// A mock model for testing
type Mock struct {
	data [][]float64
	xpos []int
}

func (m *Mock) Dataset() [][]float64 {
	return m.data
}

func (m *Mock) LogLike(params Parameter, exact bool) float64 {
	return 0
}

func (m *Mock) Score(params Parameter, score []float64) {
}

func (m *Mock) Hessian(params Parameter, ht HessType, hess []float64) {
	// -identity, so the vcov is the identity
	p := m.NumParams()
	for i := range hess {
		hess[i] = 0
	}
	for i := 0; i < p; i++ {
		hess[i*p+i] = -1
	}
}

func (m *Mock) NumParams() int {
	return len(m.xpos)
}

func (m *Mock) NumObs() int {
	return len(m.data[0])
}

func (m *Mock) Xpos() []int {
	return m.xpos
}

func TestFittedValues(t *testing.T) {

	_, da := data1()
	model := &Mock{
		data: da,
		xpos: []int{1, 2},
	}

	params := []float64{1, 2}
	xnames := []string{"x1", "x2"}
	vcov := []float64{1, 0, 0, 1}

	r := NewBaseResults(model, 0, params, xnames, vcov)

	fv := []float64{9, 3, -1, 7, 11, -9, 7}
	if !floats.Equal(fv, r.FittedValues(nil)) {
		t.Fail()
	}
}

func TestInference(t *testing.T) {

	_, da := data1()
	model := &Mock{
		data: da,
		xpos: []int{1, 2},
	}

	params := []float64{1, 2}
	xnames := []string{"x1", "x2"}
	vcov := []float64{4, 0, 0, 9}

	r := NewBaseResults(model, 0, params, xnames, vcov)

	if !floats.EqualApprox(r.StdErr(), []float64{2, 3}, 1e-12) {
		t.Errorf("stderr: %v", r.StdErr())
	}
	if !floats.EqualApprox(r.ZScores(), []float64{0.5, 2.0 / 3}, 1e-12) {
		t.Errorf("zscores: %v", r.ZScores())
	}

	// p-value for z=0.5 against the standard normal
	p0 := 2 * 0.5 * math.Erfc(0.5/math.Sqrt(2))
	if math.Abs(r.PValues()[0]-p0) > 1e-12 {
		t.Errorf("pvalues: %v", r.PValues())
	}
}

func TestVcov(t *testing.T) {

	_, da := data1()
	model := &Mock{
		data: da,
		xpos: []int{1, 2},
	}

	vc, err := GetVcov(model, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(vc, []float64{1, 0, 0, 1}, 1e-12) {
		t.Errorf("vcov: %v", vc)
	}
}

func TestSummaryTable(t *testing.T) {

	s := &SummaryTable{
		Title:    "Test table",
		Top:      []string{"Num obs: 7", "Model: mock"},
		ColNames: []string{"Variable   ", "Estimate"},
		ColFmt:   []Fmter{StringFmt, NumberFmt},
		Cols: []interface{}{
			[]string{"x1", "x2"},
			[]float64{1, 2},
		},
	}

	txt := s.String()
	for _, frag := range []string{"Test table", "x1", "x2", "Estimate", "Num obs: 7"} {
		if !strings.Contains(txt, frag) {
			t.Errorf("summary missing %q:\n%s", frag, txt)
		}
	}
}
