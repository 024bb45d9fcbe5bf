package models

import "time"

// Segment statuses reported per trained scope.
const (
	SegmentTrained          = "trained"
	SegmentInsufficientData = "insufficient_data"
)

// DroppedRows counts rows removed during preprocessing, by reason.
type DroppedRows struct {
	Unparseable   int `json:"unparseable"`
	Negative      int `json:"negative"`
	InvalidPeriod int `json:"invalid_period"`
}

// Total returns the number of dropped rows across reasons.
func (d DroppedRows) Total() int { return d.Unparseable + d.Negative + d.InvalidPeriod }

// SegmentReport describes how one segment was handled.
type SegmentReport struct {
	Segment  string             `json:"segment"`
	Status   string             `json:"status"`
	Rows     int                `json:"rows"`
	Strategy string             `json:"strategy,omitempty"`
	Params   map[string]float64 `json:"params,omitempty"`
	CVScore  *float64           `json:"cv_mae,omitempty"`
	Schema   []string           `json:"schema,omitempty"`
}

// ForecastReport is the transport-neutral outcome of one forecasting request.
type ForecastReport struct {
	Snapshot    string          `json:"snapshot"`
	GeneratedAt time.Time       `json:"generated_at"`
	Granularity string          `json:"granularity"`
	Strategy    string          `json:"strategy"`
	Predictions Predictions     `json:"predictions"`
	Segments    []SegmentReport `json:"segments"`
	History     Series          `json:"history"`
	Dropped     DroppedRows     `json:"dropped"`
	Cached      bool            `json:"cached"`
}
