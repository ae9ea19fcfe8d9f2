package server

// Swagger response envelopes matching the API shape.
type DataResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
