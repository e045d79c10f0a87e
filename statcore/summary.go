package statcore

import (
	"fmt"
	"strings"
)

// Fmter formats a column of values for display, given the column
// header for width alignment.
type Fmter func(interface{}, string) []string

// SummaryTable is a text table summarizing a fitted model or test
// result.
type SummaryTable struct {

	// Title, centered above the table.
	Title string

	// Header lines describing the model or test, one per line.
	Top []string

	// Column names, aligned with Cols.
	ColNames []string

	// Formatters for the column values, aligned with Cols.
	ColFmt []Fmter

	// Cols[j] is the j^th column.  Its concrete type should be a
	// slice, e.g. of numbers or strings.
	Cols []interface{}
}

// String renders the table.
func (s *SummaryTable) String() string {

	cells := make([][]string, len(s.Cols))
	widths := make([]int, len(s.Cols))
	total := 0
	for j, c := range s.Cols {
		cells[j] = s.ColFmt[j](c, s.ColNames[j])
		w := len(s.ColNames[j])
		if len(cells[j]) > 0 && len(cells[j][0]) > w {
			w = len(cells[j][0])
		}
		widths[j] = w
		total += w
	}
	if total < len(s.Title) {
		total = len(s.Title)
	}
	for _, v := range s.Top {
		if total < len(v) {
			total = len(v)
		}
	}

	var b strings.Builder
	rule := func(ch string) {
		b.WriteString(strings.Repeat(ch, total))
		b.WriteString("\n")
	}

	if pad := (total - len(s.Title)) / 2; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(s.Title)
	b.WriteString("\n")
	rule("=")

	for _, v := range s.Top {
		b.WriteString(v)
		b.WriteString("\n")
	}
	rule("-")

	for j, name := range s.ColNames {
		fmt.Fprintf(&b, "%*s", widths[j], name)
	}
	b.WriteString("\n")
	rule("-")

	var nrow int
	if len(cells) > 0 {
		nrow = len(cells[0])
	}
	for i := 0; i < nrow; i++ {
		for j := range cells {
			fmt.Fprintf(&b, "%*s", widths[j], cells[j][i])
		}
		b.WriteString("\n")
	}
	rule("-")

	return b.String()
}

// StringFmt left-aligns string column values.  It can be used as a
// column formatter in a SummaryTable.
func StringFmt(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}
	c := fmt.Sprintf("%%-%ds", m)
	z := make([]string, len(y))
	for i := range y {
		z[i] = fmt.Sprintf(c, y[i])
	}
	return z
}

// NumberFmt formats float column values with four decimal places.  It
// can be used as a column formatter in a SummaryTable.
func NumberFmt(x interface{}, h string) []string {
	y := x.([]float64)
	s := make([]string, len(y))
	for i := range y {
		s[i] = fmt.Sprintf("%12.4f", y[i])
	}
	return s
}
