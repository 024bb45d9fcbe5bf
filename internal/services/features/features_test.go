package features

import (
	"math"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
)

func series(vals ...float64) models.Series {
	out := make(models.Series, len(vals))
	p := models.Period{Year: 2022, Month: 11}
	for i, v := range vals {
		out[i] = models.MonthlyTotal{Year: p.Year, Month: p.Month, Total: decimal.NewFromFloat(v)}
		p = p.Next()
	}
	return out
}

func mustEngineer(t *testing.T, cfg Config) *Engineer {
	t.Helper()
	e, err := NewEngineer(cfg)
	if err != nil {
		t.Fatalf("new engineer: %v", err)
	}
	return e
}

func TestColumnOrder(t *testing.T) {
	e := mustEngineer(t, Config{
		SpecialMonths:  []SpecialMonth{{Name: "decline_march", Month: 3}, {Name: "rise_september", Month: 9}},
		LagWindows:     []int{2, 1, 2},
		RollingWindows: []int{6, 3},
	})
	want := []string{"year", "month", "decline_march", "rise_september", "lag_1", "lag_2", "rolling_mean_3", "rolling_mean_6"}
	if got := e.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected columns %v", got)
	}
}

func TestNewEngineerRejectsBadConfig(t *testing.T) {
	bad := []Config{
		{LagWindows: []int{0}},
		{RollingWindows: []int{-3}},
		{SpecialMonths: []SpecialMonth{{Name: "x", Month: 13}}},
		{SpecialMonths: []SpecialMonth{{Name: "", Month: 3}}},
		{SpecialMonths: []SpecialMonth{{Name: "month", Month: 3}}},
		{SpecialMonths: []SpecialMonth{{Name: "lag_1", Month: 3}}, LagWindows: []int{1}},
	}
	for i, cfg := range bad {
		if _, err := NewEngineer(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestBuildLagAndLabel(t *testing.T) {
	e := mustEngineer(t, DefaultConfig())
	f := e.Build(series(10, 20, 30))
	lag, _ := column(f, LagColumn(1))
	if !reflect.DeepEqual(lag, []float64{0, 10, 20}) {
		t.Fatalf("unexpected lag_1 %v", lag)
	}
	if !reflect.DeepEqual(f.Label(), []float64{10, 20, 30}) {
		t.Fatalf("unexpected label %v", f.Label())
	}
	for _, c := range f.Columns() {
		if c == LabelName {
			t.Fatalf("label leaked into feature columns")
		}
	}
	years, _ := column(f, ColYear)
	months, _ := column(f, ColMonth)
	if years[0] != 2022 || months[0] != 11 || years[2] != 2023 || months[2] != 1 {
		t.Fatalf("unexpected calendar columns %v %v", years, months)
	}
}

func TestRollingMeanUsesAvailableWindow(t *testing.T) {
	vals := []float64{4, 8, 6, 10, 2, 7, 9, 1}
	e := mustEngineer(t, Config{RollingWindows: []int{1, 3, 6, 20}})
	f := e.Build(series(vals...))
	for _, k := range []int{1, 3, 6, 20} {
		col, ok := column(f, RollingMeanColumn(k))
		if !ok {
			t.Fatalf("missing rolling_mean_%d", k)
		}
		for i := range vals {
			lo := i - k + 1
			if lo < 0 {
				lo = 0
			}
			var sum float64
			for _, v := range vals[lo : i+1] {
				sum += v
			}
			want := sum / float64(i+1-lo)
			if math.Abs(col[i]-want) > 1e-12 {
				t.Fatalf("rolling_mean_%d[%d]=%v want %v", k, i, col[i], want)
			}
		}
	}
}

func TestBuildSingleRow(t *testing.T) {
	f := mustEngineer(t, DefaultConfig()).Build(series(42))
	if f.Len() != 1 {
		t.Fatalf("expected one row")
	}
	if v, _ := value(f, 0, LagColumn(1)); v != 0 {
		t.Fatalf("expected lag 0, got %v", v)
	}
	if v, _ := value(f, 0, RollingMeanColumn(6)); v != 42 {
		t.Fatalf("expected rolling 42, got %v", v)
	}
}

func TestSpecialMonthIndicator(t *testing.T) {
	e := mustEngineer(t, Config{SpecialMonths: []SpecialMonth{{Name: "decline_march", Month: 3}}})
	f := e.Future([]models.Period{{Year: 2024, Month: 2}, {Year: 2024, Month: 3}})
	col, _ := column(f, "decline_march")
	if !reflect.DeepEqual(col, []float64{0, 1}) {
		t.Fatalf("unexpected indicator %v", col)
	}
	if f.HasLabel() {
		t.Fatalf("future frame must not carry labels")
	}
	if _, ok := column(f, LagColumn(1)); ok {
		t.Fatalf("future frame must not synthesize lag columns")
	}
}

func TestAlignFillsDropsAndOrders(t *testing.T) {
	f, err := NewFrame([]string{"month", "extra", "year"}, []models.Period{{Year: 2024, Month: 5}}, [][]float64{{5, 99, 2024}}, nil)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	schema := []string{"year", "month", "lag_1"}
	got := Align(schema, f)
	if !reflect.DeepEqual(got.Columns(), schema) {
		t.Fatalf("unexpected columns %v", got.Columns())
	}
	if !reflect.DeepEqual(got.Features(), [][]float64{{2024, 5, 0}}) {
		t.Fatalf("unexpected rows %v", got.Features())
	}
	if !reflect.DeepEqual(f.Columns(), []string{"month", "extra", "year"}) || f.Features()[0][1] != 99 {
		t.Fatalf("input frame was mutated")
	}
}

func TestAlignIdempotent(t *testing.T) {
	e := mustEngineer(t, DefaultConfig())
	built := e.Build(series(1, 2, 3, 4))
	schema := []string{"rolling_mean_3", "year", "special", "lag_1"}
	once := Align(schema, built)
	twice := Align(schema, once)
	if !reflect.DeepEqual(once.Columns(), twice.Columns()) ||
		!reflect.DeepEqual(once.Features(), twice.Features()) ||
		!reflect.DeepEqual(once.Label(), twice.Label()) ||
		!reflect.DeepEqual(once.Periods(), twice.Periods()) {
		t.Fatalf("align is not idempotent")
	}
}

func TestFrameAccessorsReturnCopies(t *testing.T) {
	f := mustEngineer(t, DefaultConfig()).Build(series(1, 2))
	rows := f.Features()
	rows[0][0] = -1
	label := f.Label()
	label[0] = -1
	if f.Features()[0][0] == -1 || f.Label()[0] == -1 {
		t.Fatalf("frame exposed internal state")
	}
}

func TestNewFrameValidates(t *testing.T) {
	p := []models.Period{{Year: 2024, Month: 1}}
	if _, err := NewFrame([]string{"a", "a"}, p, [][]float64{{1, 2}}, nil); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if _, err := NewFrame([]string{"a"}, p, [][]float64{{1, 2}}, nil); err == nil {
		t.Fatalf("expected row width error")
	}
	if _, err := NewFrame([]string{"a"}, p, [][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Fatalf("expected label length error")
	}
}

func column(f *Frame, name string) ([]float64, bool) {
	j, ok := f.index[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[j]
	}
	return out, true
}

func value(f *Frame, row int, name string) (float64, bool) {
	j, ok := f.index[name]
	if !ok || row < 0 || row >= len(f.rows) {
		return 0, false
	}
	return f.rows[row][j], true
}
