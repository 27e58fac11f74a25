package models

// RateLimitExceededResponse is the API response when a client exceeds its window.
type RateLimitExceededResponse struct {
	Error string `json:"error"`
}
