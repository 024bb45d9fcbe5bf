package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	domrepo "SalesCast/internal/domain/repository"
	"SalesCast/pkg/util"
)

// ErrCSVHeader is returned when the header matches neither accepted shape.
var ErrCSVHeader = errors.New("csv header must contain date,gross_sales or year,month,total")

var totalAliases = []string{"total", "total_sales", "total_gross_sales", "gross_sales"}

// CSVSalesSource reads sales from a CSV file. Accepted headers are
// date,gross_sales[,product_name][,quantity|quantity_sold] for transaction rows
// and year,month,total for pre-aggregated rows.
type CSVSalesSource struct {
	path string
}

func NewCSVSalesSource(path string) *CSVSalesSource {
	return &CSVSalesSource{path: path}
}

func (s *CSVSalesSource) FetchSales(ctx context.Context, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadSalesCSV(ctx, f, q)
}

func (s *CSVSalesSource) Health(context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

func (s *CSVSalesSource) Close() error { return nil }

// ReadSalesCSV parses either CSV shape from r. Transaction rows keep the raw
// date text; rows whose date cannot be parsed are passed through so
// preprocessing can count them. Year bounds in q are applied to parseable rows.
func ReadSalesCSV(ctx context.Context, r io.Reader, q domrepo.SalesQuery) (*models.SalesBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrCSVHeader
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	_, hasDate := cols["date"]
	_, hasGross := cols["gross_sales"]
	_, hasYear := cols["year"]
	_, hasMonth := cols["month"]
	totalIdx := -1
	for _, name := range totalAliases {
		if i, ok := cols[name]; ok {
			totalIdx = i
			break
		}
	}

	batch := &models.SalesBatch{}
	switch {
	case hasDate && hasGross:
		err = readRecords(ctx, cr, cols, q, batch)
	case hasYear && hasMonth && totalIdx >= 0:
		err = readMonthly(ctx, cr, cols, totalIdx, q, batch)
	default:
		return nil, ErrCSVHeader
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func readRecords(ctx context.Context, cr *csv.Reader, cols map[string]int, q domrepo.SalesQuery, batch *models.SalesBatch) error {
	dateIdx, amountIdx := cols["date"], cols["gross_sales"]
	productIdx, hasProduct := cols["product_name"]
	qtyIdx, hasQty := cols["quantity"]
	if !hasQty {
		qtyIdx, hasQty = cols["quantity_sold"]
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		rec := models.SalesRecord{Date: field(row, dateIdx)}
		if t, ok := util.ParseTime(rec.Date); ok && !inYears(q, t.Year()) {
			continue
		}
		amount, err := decimal.NewFromString(field(row, amountIdx))
		if err != nil {
			return fmt.Errorf("csv line %d: gross_sales %q: %w", line, field(row, amountIdx), err)
		}
		rec.GrossAmount = amount
		if hasProduct {
			rec.ProductName = field(row, productIdx)
		}
		if hasQty {
			rec.Quantity = util.ParseIntDefault(field(row, qtyIdx), 0)
		}
		batch.Records = append(batch.Records, rec)
	}
}

func readMonthly(ctx context.Context, cr *csv.Reader, cols map[string]int, totalIdx int, q domrepo.SalesQuery, batch *models.SalesBatch) error {
	yearIdx, monthIdx := cols["year"], cols["month"]
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		year, err := parseWhole(field(row, yearIdx))
		if err != nil {
			return fmt.Errorf("csv line %d: year: %w", line, err)
		}
		month, err := parseWhole(field(row, monthIdx))
		if err != nil {
			return fmt.Errorf("csv line %d: month: %w", line, err)
		}
		if !inYears(q, year) {
			continue
		}
		total, err := decimal.NewFromString(field(row, totalIdx))
		if err != nil {
			return fmt.Errorf("csv line %d: total %q: %w", line, field(row, totalIdx), err)
		}
		batch.Monthly = append(batch.Monthly, models.MonthlyTotal{Year: year, Month: month, Total: total})
	}
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseWhole accepts "2023" and the "2023.0" that SQL EXTRACT exports produce.
func parseWhole(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func inYears(q domrepo.SalesQuery, year int) bool {
	if q.FromYear > 0 && year < q.FromYear {
		return false
	}
	if q.ToYear > 0 && year > q.ToYear {
		return false
	}
	return true
}
