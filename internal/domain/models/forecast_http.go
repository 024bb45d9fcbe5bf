package models

// Requests for forecasting HTTP endpoints. Empty fields fall back to the
// server's configured pipeline options.

type ForecastRequest struct {
	Granularity string `query:"granularity" json:"granularity" validate:"omitempty,oneof=GLOBAL PER_CALENDAR_MONTH"`
	Strategy    string `query:"strategy" json:"strategy" validate:"omitempty,oneof=ols random_forest gradient_boosting"`
	Search      *bool  `query:"search" json:"search"`
	Horizon     int    `query:"horizon" json:"horizon" validate:"gte=0,lte=60"`
	Seed        *int64 `query:"seed" json:"seed"`
	Anchor      string `query:"anchor" json:"anchor" validate:"omitempty,oneof=calendar_year next_period"`
	FromYear    int    `query:"from_year" json:"from_year" default:"2019" validate:"gte=1900,lte=9999"`
}

type MonthlySalesRequest struct {
	FromYear int `query:"from_year" json:"from_year" default:"2019" validate:"gte=1900,lte=9999"`
}

type ProductDemandRequest struct {
	Year  int `query:"year" json:"year" validate:"required,gte=1900,lte=9999"`
	Month int `query:"month" json:"month" validate:"required,gte=1,lte=12"`
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=1000"`
}
