package models

// MetricsSummary is the point-in-time view of the inference metrics.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	P95LatencyMs       float64 `json:"p95_latency_ms"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}
