package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "SalesCast/internal/domain/repository"
)

func TestRecordsSQLCastsDateBeforeText(t *testing.T) {
	pg := pgRecordsSQL("sales_data", "")
	assert.Contains(t, pg, "date::date::text")
	assert.NotContains(t, pg, "SELECT date::text")

	ch := chRecordsSQL("sales_data", "")
	assert.Contains(t, ch, "toString(toDate(date))")
}

func TestSQLYearFilter(t *testing.T) {
	where, args := yearFilter(domrepo.SalesQuery{FromYear: 2021, ToYear: 2023}, "EXTRACT(YEAR FROM date::DATE)", dollar)
	assert.Equal(t, " AND EXTRACT(YEAR FROM date::DATE) >= $1 AND EXTRACT(YEAR FROM date::DATE) <= $2", where)
	assert.Equal(t, []any{2021, 2023}, args)

	where, args = yearFilter(domrepo.SalesQuery{ToYear: 2023}, "toYear(toDate(date))", question)
	assert.Equal(t, " AND toYear(toDate(date)) <= ?", where)
	assert.Equal(t, []any{2023}, args)

	where, args = yearFilter(domrepo.SalesQuery{}, "year", dollar)
	assert.Empty(t, where)
	assert.Nil(t, args)

	sql := pgRecordsSQL("sales_data", " AND x >= $1")
	assert.Contains(t, sql, "WHERE gross_sales IS NOT NULL AND x >= $1")
}

func TestSQLCheckTable(t *testing.T) {
	got, err := checkTable("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSalesTable, got)

	got, err = checkTable("analytics.sales")
	require.NoError(t, err)
	assert.Equal(t, "analytics.sales", got)

	_, err = checkTable("sales; DROP TABLE x")
	assert.Error(t, err)
}
