package api

import "github.com/readlist/readlist-sync/internal/status"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// RunResponse is the reply of the trigger endpoint
type RunResponse struct {
	Results []status.UserResult `json:"results"`
}
