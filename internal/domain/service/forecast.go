package service

import (
	"context"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/domain/repository"
)

// SalesForecaster answers forecasting requests end to end: fetch history,
// run the pipeline, report the ordered predictions.
type SalesForecaster interface {
	Forecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastReport, error)
	MonthlyHistory(ctx context.Context, q repository.SalesQuery) (models.Series, error)
	ProductDemand(ctx context.Context, year, month, limit int) (*models.ProductDemandReport, error)
}
