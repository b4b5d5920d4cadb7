package models

import "time"

// Outcome classifies a completed inference attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeCacheHit Outcome = "cache_hit"
)

// AttemptRecord is the durable history row for one completed inference attempt.
type AttemptRecord struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	Username       string    `json:"username"`
	PromptLength   int       `json:"prompt_length"`
	ResponseLength int       `json:"response_length"`
	LatencyMs      float64   `json:"latency_ms"`
	Outcome        Outcome   `json:"outcome"`
	CreatedAt      time.Time `json:"created_at"`
}

// AttemptSummary aggregates history rows per user.
type AttemptSummary struct {
	Username         string  `json:"username"`
	RequestCount     int     `json:"request_count"`
	Successful       int     `json:"successful"`
	Failed           int     `json:"failed"`
	CacheHits        int     `json:"cache_hits"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}
