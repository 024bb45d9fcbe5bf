package forecast

import (
	"sort"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	"SalesCast/pkg/util"
)

// Preprocess turns a raw batch into a canonical monthly series: one entry per
// (year, month), summed, sorted ascending. Rows with an unparseable date, a
// negative amount or an out-of-range period are dropped and counted, never
// reported as errors. An empty result is ErrEmptySeries.
func Preprocess(batch *models.SalesBatch) (models.Series, models.DroppedRows, error) {
	var dropped models.DroppedRows
	sums := make(map[models.Period]decimal.Decimal)

	if batch != nil {
		for _, r := range batch.Records {
			t, ok := util.ParseTime(r.Date)
			if !ok {
				dropped.Unparseable++
				continue
			}
			if r.GrossAmount.IsNegative() {
				dropped.Negative++
				continue
			}
			p := models.PeriodOf(t)
			sums[p] = sums[p].Add(r.GrossAmount)
		}
		for _, m := range batch.Monthly {
			p := m.Period()
			if !p.Valid() {
				dropped.InvalidPeriod++
				continue
			}
			if m.Total.IsNegative() {
				dropped.Negative++
				continue
			}
			sums[p] = sums[p].Add(m.Total)
		}
	}

	if len(sums) == 0 {
		return nil, dropped, &PipelineError{Kind: ErrEmptySeries, Rows: batch.Len()}
	}

	series := make(models.Series, 0, len(sums))
	for p, total := range sums {
		series = append(series, models.MonthlyTotal{Year: p.Year, Month: p.Month, Total: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Period().Before(series[j].Period()) })
	return series, dropped, nil
}
