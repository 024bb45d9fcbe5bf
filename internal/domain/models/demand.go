package models

import "github.com/shopspring/decimal"

// ProductDemand is one product's sales inside a period.
type ProductDemand struct {
	ProductName  string          `json:"product_name"`
	QuantitySold int             `json:"quantity_sold"`
	GrossSales   decimal.Decimal `json:"gross_sales"`
	Orders       int             `json:"orders"`
}

// ProductDemandReport ranks the products sold in one month by quantity.
// TotalProducts counts every product sold, before any limit.
type ProductDemandReport struct {
	Period        string          `json:"period"`
	Products      []ProductDemand `json:"products"`
	TotalProducts int             `json:"total_products"`
	Unparseable   int             `json:"unparseable,omitempty"`
}
