package features

import (
	"fmt"

	"SalesCast/internal/domain/models"
)

// Frame is an immutable table of named numeric features, one row per period,
// with the regression label kept apart from the feature columns.
type Frame struct {
	columns []string
	index   map[string]int
	periods []models.Period
	rows    [][]float64
	labels  []float64
}

// NewFrame copies its inputs into a new Frame. labels may be nil for
// inference frames.
func NewFrame(columns []string, periods []models.Period, rows [][]float64, labels []float64) (*Frame, error) {
	if len(rows) != len(periods) {
		return nil, fmt.Errorf("frame: %d rows for %d periods", len(rows), len(periods))
	}
	if labels != nil && len(labels) != len(rows) {
		return nil, fmt.Errorf("frame: %d labels for %d rows", len(labels), len(rows))
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", c)
		}
		index[c] = i
	}
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   index,
		periods: append([]models.Period(nil), periods...),
		rows:    make([][]float64, len(rows)),
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("frame: row %d has %d values for %d columns", i, len(r), len(columns))
		}
		f.rows[i] = append([]float64(nil), r...)
	}
	if labels != nil {
		f.labels = append([]float64(nil), labels...)
	}
	return f, nil
}

func mustFrame(columns []string, periods []models.Period, rows [][]float64, labels []float64) *Frame {
	f, err := NewFrame(columns, periods, rows, labels)
	if err != nil {
		panic(err)
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Columns returns the ordered feature column names.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

// Periods returns the period of each row.
func (f *Frame) Periods() []models.Period { return append([]models.Period(nil), f.periods...) }

// HasLabel reports whether the frame carries a label vector.
func (f *Frame) HasLabel() bool { return f.labels != nil }

// Features returns a copy of the feature matrix, row-major.
func (f *Frame) Features() [][]float64 {
	out := make([][]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Label returns a copy of the label vector, nil for inference frames.
func (f *Frame) Label() []float64 {
	if f.labels == nil {
		return nil
	}
	return append([]float64(nil), f.labels...)
}

// Subset returns a new frame holding the given rows in the given order.
func (f *Frame) Subset(rows []int) *Frame {
	periods := make([]models.Period, len(rows))
	data := make([][]float64, len(rows))
	var labels []float64
	if f.labels != nil {
		labels = make([]float64, len(rows))
	}
	for k, i := range rows {
		periods[k] = f.periods[i]
		data[k] = f.rows[i]
		if labels != nil {
			labels[k] = f.labels[i]
		}
	}
	return mustFrame(f.columns, periods, data, labels)
}

// Align returns a frame with exactly the schema's columns in schema order.
// Columns missing from f are filled with 0, columns not in the schema are
// dropped. f is never modified. schema must not repeat a name.
func Align(schema []string, f *Frame) *Frame {
	rows := make([][]float64, len(f.rows))
	for i, r := range f.rows {
		out := make([]float64, len(schema))
		for k, name := range schema {
			if j, ok := f.index[name]; ok {
				out[k] = r[j]
			}
		}
		rows[i] = out
	}
	return mustFrame(schema, f.periods, rows, f.labels)
}
