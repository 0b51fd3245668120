package models

// Version is the release version, overridable with -ldflags "-X".
var Version = "0.1.0"

// ErrorResponse is the body of a rejected status API request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Run     string `json:"run"`
	Version string `json:"version"`
}
