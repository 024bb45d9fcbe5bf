package features

import (
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"SalesCast/internal/domain/models"
)

const (
	ColYear  = "year"
	ColMonth = "month"
	// LabelName is the regression target carried beside the features.
	LabelName = "total_amount"
)

// LagColumn names the k-period lag feature.
func LagColumn(k int) string { return "lag_" + strconv.Itoa(k) }

// RollingMeanColumn names the trailing k-period mean feature.
func RollingMeanColumn(k int) string { return "rolling_mean_" + strconv.Itoa(k) }

// SpecialMonth declares a recurring dip or spike month, exposed as a 0/1 column.
type SpecialMonth struct {
	Name  string `yaml:"name" json:"name"`
	Month int    `yaml:"month" json:"month"`
}

// Config selects the engineered features.
type Config struct {
	SpecialMonths  []SpecialMonth
	LagWindows     []int
	RollingWindows []int
}

// DefaultConfig returns lag_1 and rolling means over 3 and 6 periods.
func DefaultConfig() Config {
	return Config{
		LagWindows:     []int{1},
		RollingWindows: []int{3, 6},
	}
}

// Engineer derives model features from a canonical monthly series.
type Engineer struct {
	special []SpecialMonth
	lags    []int
	rolling []int
	columns []string
}

// NewEngineer validates cfg and fixes the column order.
func NewEngineer(cfg Config) (*Engineer, error) {
	lags, err := normalizeWindows("lag", cfg.LagWindows)
	if err != nil {
		return nil, err
	}
	rolling, err := normalizeWindows("rolling", cfg.RollingWindows)
	if err != nil {
		return nil, err
	}

	e := &Engineer{lags: lags, rolling: rolling}
	seen := map[string]bool{ColYear: true, ColMonth: true}
	e.columns = []string{ColYear, ColMonth}
	for _, sm := range cfg.SpecialMonths {
		if sm.Name == "" {
			return nil, fmt.Errorf("special month %d has no name", sm.Month)
		}
		if sm.Month < 1 || sm.Month > 12 {
			return nil, fmt.Errorf("special month %q: month %d out of range", sm.Name, sm.Month)
		}
		if seen[sm.Name] {
			return nil, fmt.Errorf("duplicate feature column %q", sm.Name)
		}
		seen[sm.Name] = true
		e.special = append(e.special, sm)
		e.columns = append(e.columns, sm.Name)
	}
	for _, k := range lags {
		e.columns = append(e.columns, LagColumn(k))
	}
	for _, k := range rolling {
		e.columns = append(e.columns, RollingMeanColumn(k))
	}
	for _, c := range e.columns[len(e.special)+2:] {
		if seen[c] {
			return nil, fmt.Errorf("duplicate feature column %q", c)
		}
		seen[c] = true
	}
	return e, nil
}

func normalizeWindows(kind string, ws []int) ([]int, error) {
	out := make([]int, 0, len(ws))
	seen := make(map[int]bool, len(ws))
	for _, w := range ws {
		if w <= 0 {
			return nil, fmt.Errorf("%s window must be positive, got %d", kind, w)
		}
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Columns returns the training feature columns in order.
func (e *Engineer) Columns() []string { return append([]string(nil), e.columns...) }

// Build returns one feature row per series entry plus the label vector.
func (e *Engineer) Build(series models.Series) *Frame {
	values := make([]float64, len(series))
	periods := make([]models.Period, len(series))
	for i, m := range series {
		values[i] = m.Total.InexactFloat64()
		periods[i] = m.Period()
	}

	rows := make([][]float64, len(series))
	for i := range series {
		row := e.calendarRow(periods[i])
		for _, k := range e.lags {
			row = append(row, lagValue(values, i, k))
		}
		for _, k := range e.rolling {
			row = append(row, TrailingMean(values, i, k))
		}
		rows[i] = row
	}
	return mustFrame(e.columns, periods, rows, values)
}

// Future synthesizes inference rows for periods with no observed history.
// Only calendar columns are set; lag and rolling columns are left for Align
// to fill with its neutral default.
func (e *Engineer) Future(periods []models.Period) *Frame {
	cols := e.columns[:2+len(e.special)]
	rows := make([][]float64, len(periods))
	for i, p := range periods {
		rows[i] = e.calendarRow(p)
	}
	return mustFrame(cols, periods, rows, nil)
}

func (e *Engineer) calendarRow(p models.Period) []float64 {
	row := make([]float64, 0, len(e.columns))
	row = append(row, float64(p.Year), float64(p.Month))
	for _, sm := range e.special {
		v := 0.0
		if p.Month == sm.Month {
			v = 1
		}
		row = append(row, v)
	}
	return row
}

func lagValue(values []float64, i, k int) float64 {
	if i-k < 0 {
		return 0
	}
	return values[i-k]
}

// TrailingMean returns the mean of values[max(0,i-k+1)..i]. Windows that run
// past the start use only the values available.
func TrailingMean(values []float64, i, k int) float64 {
	lo := i - k + 1
	if lo < 0 {
		lo = 0
	}
	return stat.Mean(values[lo:i+1], nil)
}
