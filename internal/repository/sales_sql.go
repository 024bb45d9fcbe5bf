package repository

import (
	"fmt"
	"regexp"
	"strings"

	domrepo "SalesCast/internal/domain/repository"
)

// DefaultSalesTable is the table both SQL sources read.
const DefaultSalesTable = "sales_data"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkTable(table string) (string, error) {
	if table == "" {
		return DefaultSalesTable, nil
	}
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// yearFilter renders the inclusive year bounds of q against yearExpr.
// placeholder returns the bind marker for the i-th argument (1-based).
func yearFilter(q domrepo.SalesQuery, yearExpr string, placeholder func(i int) string) (string, []any) {
	var conds []string
	var args []any
	if q.FromYear > 0 {
		args = append(args, q.FromYear)
		conds = append(conds, fmt.Sprintf("%s >= %s", yearExpr, placeholder(len(args))))
	}
	if q.ToYear > 0 {
		args = append(args, q.ToYear)
		conds = append(conds, fmt.Sprintf("%s <= %s", yearExpr, placeholder(len(args))))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// pgRecordsSQL selects transaction rows. The date is cast to date before
// text so timestamp and timestamptz columns still read as YYYY-MM-DD.
func pgRecordsSQL(table, where string) string {
	return fmt.Sprintf(`
        SELECT date::date::text, gross_sales::text, COALESCE(product_name, ''), COALESCE(quantity_sold, 0)::int
        FROM %s
        WHERE gross_sales IS NOT NULL%s
        ORDER BY date`, table, where)
}

// chRecordsSQL is pgRecordsSQL for ClickHouse.
func chRecordsSQL(table, where string) string {
	return fmt.Sprintf(`
        SELECT toString(toDate(date)), toString(gross_sales), product_name, toInt32(quantity_sold)
        FROM %s
        WHERE 1 = 1%s
        ORDER BY date`, table, where)
}

func dollar(i int) string { return fmt.Sprintf("$%d", i) }

func question(int) string { return "?" }
