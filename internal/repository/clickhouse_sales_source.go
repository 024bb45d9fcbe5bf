package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	domrepo "SalesCast/internal/domain/repository"
	pkgch "SalesCast/pkg/clickhouse"
	applogger "SalesCast/pkg/logger"
)

// SalesSchemaClickHouse creates the sales table read by CHSalesSource.
func SalesSchemaClickHouse(table string) []string {
	if table == "" {
		table = DefaultSalesTable
	}
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            date          Date,
            gross_sales   Decimal(18, 2),
            product_name  String,
            quantity_sold Int32
        ) ENGINE = MergeTree
        ORDER BY (date, product_name)`, table)}
}

// CHSalesSource reads sales_data from ClickHouse.
type CHSalesSource struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHSalesSource(client *pkgch.Client, table string, l *applogger.Logger) (*CHSalesSource, error) {
	t, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSalesSource{client: client, db: client.DB(), table: t, l: l}, nil
}

func (s *CHSalesSource) FetchSales(ctx context.Context, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	start := time.Now()
	batch := &models.SalesBatch{}
	where, args := yearFilter(q, "toYear(toDate(date))", question)

	var query string
	if q.PreAggregated {
		query = fmt.Sprintf(`
        SELECT toInt32(toYear(toDate(date))) AS year,
               toInt32(toMonth(toDate(date))) AS month,
               toString(sum(gross_sales)) AS total
        FROM %s
        WHERE 1 = 1%s
        GROUP BY year, month
        ORDER BY year, month`, s.table, where)
	} else {
		query = chRecordsSQL(s.table, where)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.l.Error("clickhouse fetch_sales query error",
			applogger.String("table", s.table),
			applogger.Bool("aggregated", q.PreAggregated),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var amount string
		if q.PreAggregated {
			var m models.MonthlyTotal
			if err := rows.Scan(&m.Year, &m.Month, &amount); err != nil {
				return nil, s.scanErr(err)
			}
			if m.Total, err = decimal.NewFromString(amount); err != nil {
				return nil, s.scanErr(fmt.Errorf("total %q: %w", amount, err))
			}
			batch.Monthly = append(batch.Monthly, m)
			continue
		}
		var r models.SalesRecord
		var qty int32
		if err := rows.Scan(&r.Date, &amount, &r.ProductName, &qty); err != nil {
			return nil, s.scanErr(err)
		}
		if r.GrossAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, s.scanErr(fmt.Errorf("gross_sales %q: %w", amount, err))
		}
		r.Quantity = int(qty)
		batch.Records = append(batch.Records, r)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse fetch_sales rows error",
			applogger.String("table", s.table),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse fetch_sales ok",
		applogger.String("table", s.table),
		applogger.Bool("aggregated", q.PreAggregated),
		applogger.Int("rows", batch.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return batch, nil
}

func (s *CHSalesSource) scanErr(err error) error {
	s.l.Error("clickhouse fetch_sales scan error",
		applogger.String("table", s.table),
		applogger.Error(err),
	)
	return fmt.Errorf("scan sales: %w", err)
}

func (s *CHSalesSource) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHSalesSource) Close() error { return s.client.Close() }
