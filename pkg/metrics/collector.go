package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	totalDesc = prometheus.NewDesc(
		"llmgate_total_requests",
		"Total number of inference attempts",
		nil, nil,
	)
	successDesc = prometheus.NewDesc(
		"llmgate_successful_requests",
		"Number of successful inference attempts",
		nil, nil,
	)
	failedDesc = prometheus.NewDesc(
		"llmgate_failed_requests",
		"Number of failed inference attempts",
		nil, nil,
	)
	avgDesc = prometheus.NewDesc(
		"llmgate_average_latency_ms",
		"Mean inference latency in milliseconds",
		nil, nil,
	)
	p95Desc = prometheus.NewDesc(
		"llmgate_p95_latency_ms",
		"95th percentile inference latency in milliseconds",
		nil, nil,
	)
)

// Collector exposes an Aggregator's snapshot as Prometheus gauges. All five
// values come from a single snapshot per scrape.
type Collector struct {
	agg *Aggregator
}

// NewCollector wraps agg for registration with a prometheus.Registerer.
func NewCollector(agg *Aggregator) *Collector {
	return &Collector{agg: agg}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalDesc
	ch <- successDesc
	ch <- failedDesc
	ch <- avgDesc
	ch <- p95Desc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.agg.Snapshot()
	ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.GaugeValue, float64(s.TotalRequests))
	ch <- prometheus.MustNewConstMetric(successDesc, prometheus.GaugeValue, float64(s.SuccessfulRequests))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.GaugeValue, float64(s.FailedRequests))
	ch <- prometheus.MustNewConstMetric(avgDesc, prometheus.GaugeValue, s.AverageLatencyMs)
	ch <- prometheus.MustNewConstMetric(p95Desc, prometheus.GaugeValue, s.P95LatencyMs)
}
