// Package demand ranks products by how much of them sold in a month.
package demand

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	"SalesCast/pkg/util"
)

// Rank sums quantity and gross sales per product over the records dated in p.
// Products are ordered by quantity, then gross sales, both descending, then
// by name. Records whose date does not parse are skipped and counted.
func Rank(records []models.SalesRecord, p models.Period) ([]models.ProductDemand, int) {
	var unparseable int
	byName := make(map[string]*models.ProductDemand)

	for _, r := range records {
		t, ok := util.ParseTime(r.Date)
		if !ok {
			unparseable++
			continue
		}
		if models.PeriodOf(t) != p {
			continue
		}
		name := strings.TrimSpace(r.ProductName)
		d, ok := byName[name]
		if !ok {
			d = &models.ProductDemand{ProductName: name, GrossSales: decimal.Zero}
			byName[name] = d
		}
		d.QuantitySold += r.Quantity
		d.GrossSales = d.GrossSales.Add(r.GrossAmount)
		d.Orders++
	}

	out := make([]models.ProductDemand, 0, len(byName))
	for _, d := range byName {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.QuantitySold != b.QuantitySold {
			return a.QuantitySold > b.QuantitySold
		}
		if c := a.GrossSales.Cmp(b.GrossSales); c != 0 {
			return c > 0
		}
		return a.ProductName < b.ProductName
	})
	return out, unparseable
}
