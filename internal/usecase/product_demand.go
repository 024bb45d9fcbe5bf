package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/domain/repository"
	"SalesCast/internal/services/demand"
	"SalesCast/internal/services/forecast"
	applogger "SalesCast/pkg/logger"
)

// ErrNoSales marks a period without any sales rows.
var ErrNoSales = errors.New("no sales for period")

// ProductDemand ranks the products sold in year/month by quantity and keeps
// the first limit of them; limit <= 0 keeps all. Rankings need per-product
// rows, so the source is always asked for raw records.
func (u *ForecastUsecase) ProductDemand(ctx context.Context, year, month, limit int) (*models.ProductDemandReport, error) {
	start := time.Now()
	p := models.Period{Year: year, Month: month}
	if !p.Valid() {
		err := &forecast.PipelineError{Kind: forecast.ErrInvalidConfiguration, Err: fmt.Errorf("period %d-%02d", year, month)}
		u.recordError(err)
		return nil, err
	}

	batch, err := u.fetch(ctx, repository.SalesQuery{FromYear: year, ToYear: year})
	if err != nil {
		return nil, err
	}
	var records []models.SalesRecord
	if batch != nil {
		records = batch.Records
	}

	products, unparseable := demand.Rank(records, p)
	u.recordDropped(models.DroppedRows{Unparseable: unparseable})
	if len(products) == 0 {
		u.log.Info("no product sales for period",
			applogger.String("period", p.Label()),
			applogger.Int("rows", batch.Len()))
		return nil, fmt.Errorf("%w %s", ErrNoSales, p.Label())
	}

	report := &models.ProductDemandReport{
		Period:        p.Label(),
		TotalProducts: len(products),
		Unparseable:   unparseable,
	}
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	report.Products = products

	if u.metrics != nil {
		u.metrics.RecordLatency("product_demand", time.Since(start).Seconds())
	}
	return report, nil
}
