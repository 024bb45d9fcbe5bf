package repository

import (
	"context"
	"time"

	"SalesCast/internal/domain/models"
)

// SalesQuery scopes what an ingestion adapter returns.
type SalesQuery struct {
	FromYear      int  // inclusive, 0 = no lower bound
	ToYear        int  // inclusive, 0 = no upper bound
	PreAggregated bool // ask the backend for (year, month, total) rows
}

// SalesSource is a pull-based supplier of raw sales rows.
type SalesSource interface {
	FetchSales(ctx context.Context, q SalesQuery) (*models.SalesBatch, error)
	Health(ctx context.Context) error
	Close() error
}

// ForecastEvent is published after a fresh forecast run.
type ForecastEvent struct {
	Snapshot    string             `json:"snapshot"`
	GeneratedAt time.Time          `json:"generated_at"`
	Granularity string             `json:"granularity"`
	Strategy    string             `json:"strategy"`
	Predictions models.Predictions `json:"predictions"`
}

type ForecastPublisher interface {
	PublishForecast(ctx context.Context, ev *ForecastEvent) error
	Close() error
}

type Metrics interface {
	RecordForecast(granularity, strategy string, seconds float64)
	RecordDroppedRows(reason string, n int)
	RecordSegment(status string)
	RecordCache(layer, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
