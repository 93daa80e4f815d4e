package api

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SaveTranscriptionsResponse acknowledges a transcription batch
type SaveTranscriptionsResponse struct {
	Success bool `json:"success"`
	Saved   int  `json:"saved"`
}
