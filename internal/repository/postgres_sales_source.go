package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	domrepo "SalesCast/internal/domain/repository"
	applogger "SalesCast/pkg/logger"
	pkgpg "SalesCast/pkg/postgres"
)

// PGSalesSource reads sales_data from PostgreSQL.
type PGSalesSource struct {
	client *pkgpg.Client
	table  string
	l      *applogger.Logger
}

func NewPGSalesSource(client *pkgpg.Client, table string, l *applogger.Logger) (*PGSalesSource, error) {
	t, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &PGSalesSource{client: client, table: t, l: l}, nil
}

func (s *PGSalesSource) FetchSales(ctx context.Context, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	start := time.Now()
	var (
		batch *models.SalesBatch
		err   error
	)
	if q.PreAggregated {
		batch, err = s.fetchMonthly(ctx, q)
	} else {
		batch, err = s.fetchRecords(ctx, q)
	}
	if err != nil {
		s.l.Error("postgres fetch_sales error",
			applogger.String("table", s.table),
			applogger.Bool("aggregated", q.PreAggregated),
			applogger.Int("from_year", q.FromYear),
			applogger.Int("to_year", q.ToYear),
			applogger.Error(err),
		)
		return nil, err
	}
	s.l.Debug("postgres fetch_sales ok",
		applogger.String("table", s.table),
		applogger.Bool("aggregated", q.PreAggregated),
		applogger.Int("rows", batch.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return batch, nil
}

func (s *PGSalesSource) fetchRecords(ctx context.Context, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	where, args := yearFilter(q, "EXTRACT(YEAR FROM date::DATE)", dollar)
	rows, err := s.client.Pool().Query(ctx, pgRecordsSQL(s.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SalesRecord, error) {
		var (
			r      models.SalesRecord
			amount string
		)
		if err := row.Scan(&r.Date, &amount, &r.ProductName, &r.Quantity); err != nil {
			return r, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return r, fmt.Errorf("gross_sales %q: %w", amount, err)
		}
		r.GrossAmount = d
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan sales: %w", err)
	}
	return &models.SalesBatch{Records: records}, nil
}

func (s *PGSalesSource) fetchMonthly(ctx context.Context, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	where, args := yearFilter(q, "EXTRACT(YEAR FROM date::DATE)", dollar)
	sql := fmt.Sprintf(`
        SELECT EXTRACT(YEAR FROM date::DATE)::int AS year,
               EXTRACT(MONTH FROM date::DATE)::int AS month,
               SUM(gross_sales)::text AS total
        FROM %s
        WHERE gross_sales IS NOT NULL%s
        GROUP BY 1, 2
        ORDER BY 1, 2`, s.table, where)

	rows, err := s.client.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly sales: %w", err)
	}
	monthly, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MonthlyTotal, error) {
		var (
			m     models.MonthlyTotal
			total string
		)
		if err := row.Scan(&m.Year, &m.Month, &total); err != nil {
			return m, err
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			return m, fmt.Errorf("total %q: %w", total, err)
		}
		m.Total = d
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan monthly sales: %w", err)
	}
	return &models.SalesBatch{Monthly: monthly}, nil
}

func (s *PGSalesSource) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *PGSalesSource) Close() error { return s.client.Close() }
