package http

// APIResponse is the envelope every endpoint writes.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request parameter.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string                 `json:"field,omitempty" example:"granularity"`
	Message string                 `json:"message,omitempty" example:"granularity must be one of: GLOBAL, PER_CALENDAR_MONTH"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse wraps a row set with its size.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
