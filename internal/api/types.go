package api

import "encoding/json"

// QueryResponse is the payload for GET /api/v1/giveaway.
type QueryResponse struct {
	Success              bool            `json:"success"`
	Cached               bool            `json:"cached"`
	CacheDurationSeconds int             `json:"cache_duration_seconds"`
	CacheAgeSeconds      int             `json:"cache_age_seconds"`
	Version              int64           `json:"version"`
	Data                 json.RawMessage `json:"data"`
	Timestamp            string          `json:"timestamp"` // RFC3339
}

// RefreshResponse is the payload for POST /api/v1/refresh.
type RefreshResponse struct {
	Success   bool   `json:"success"`
	Version   int64  `json:"version"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Subscribers int    `json:"subscribers"`
	Timestamp   string `json:"timestamp"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
