// Package metrics aggregates request outcomes and latencies for reporting.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/llmgate/pkg/models"
)

// Aggregator counts attempts and keeps every latency sample since start.
// It is safe for concurrent use.
type Aggregator struct {
	start time.Time
	now   func() time.Time

	mu         sync.Mutex
	total      int64
	successful int64
	failed     int64
	samples    []float64 // milliseconds
}

// NewAggregator creates an Aggregator whose uptime starts now.
func NewAggregator() *Aggregator {
	return &Aggregator{start: time.Now(), now: time.Now}
}

// Record adds one completed attempt.
func (a *Aggregator) Record(latency time.Duration, success bool) {
	ms := float64(latency) / float64(time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if success {
		a.successful++
	} else {
		a.failed++
	}
	a.samples = append(a.samples, ms)
}

// Snapshot summarizes everything recorded so far. Before the first attempt
// every field, uptime included, is zero.
func (a *Aggregator) Snapshot() models.MetricsSummary {
	a.mu.Lock()
	total, successful, failed := a.total, a.successful, a.failed
	samples := make([]float64, len(a.samples))
	copy(samples, a.samples)
	a.mu.Unlock()

	if len(samples) == 0 {
		return models.MetricsSummary{}
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	sort.Float64s(samples)

	return models.MetricsSummary{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		AverageLatencyMs:   round2(sum / float64(len(samples))),
		P95LatencyMs:       round2(percentile95(samples)),
		UptimeSeconds:      round2(a.now().Sub(a.start).Seconds()),
	}
}

// percentile95 returns sorted[floor(0.95*n)], or 0 when that index is past
// the end.
func percentile95(sorted []float64) float64 {
	i := int(float64(len(sorted)) * 0.95)
	if i >= len(sorted) {
		return 0
	}
	return sorted[i]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
