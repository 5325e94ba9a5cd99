package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "http", "requests_total"),
		"Total HTTP requests by method and path",
		[]string{"method", "path"}, nil,
	)
	httpErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "http", "errors_total"),
		"Total HTTP error responses by method and path",
		[]string{"method", "path"}, nil,
	)
	httpLatencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "http", "latency_ms_avg"),
		"Average request latency in milliseconds",
		[]string{"method", "path"}, nil,
	)
	llmCallsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "calls_total"),
		"Total LLM calls by provider",
		[]string{"provider"}, nil,
	)
	llmRetriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "retries_total"),
		"Total LLM retries by provider",
		[]string{"provider"}, nil,
	)
	llmFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "failures_total"),
		"Total LLM failures by provider",
		[]string{"provider"}, nil,
	)
)

var _ prometheus.Collector = (*Store)(nil)

// Describe implements prometheus.Collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- httpRequestsDesc
	ch <- httpErrorsDesc
	ch <- httpLatencyDesc
	ch <- llmCallsDesc
	ch <- llmRetriesDesc
	ch <- llmFailuresDesc
}

// Collect implements prometheus.Collector from a single snapshot, so a scrape
// never mixes values from before and after a concurrent update.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()

	for key, rm := range snap.Requests {
		method, path := splitRequestKey(key)
		ch <- constMetric(httpRequestsDesc, prometheus.CounterValue, float64(rm.Count), method, path)
		ch <- constMetric(httpErrorsDesc, prometheus.CounterValue, float64(rm.Errors), method, path)
		ch <- constMetric(httpLatencyDesc, prometheus.GaugeValue, rm.AvgLatencyMs, method, path)
	}
	collectProviderCounts(ch, llmCallsDesc, snap.LLMCallsTotal)
	collectProviderCounts(ch, llmRetriesDesc, snap.LLMRetriesTotal)
	collectProviderCounts(ch, llmFailuresDesc, snap.LLMFailuresTotal)
}

func collectProviderCounts(ch chan<- prometheus.Metric, desc *prometheus.Desc, counts map[string]int64) {
	for provider, n := range counts {
		ch <- constMetric(desc, prometheus.CounterValue, float64(n), provider)
	}
}

// constMetric reports a bad sample to the registry instead of panicking.
func constMetric(desc *prometheus.Desc, vt prometheus.ValueType, v float64, labels ...string) prometheus.Metric {
	m, err := prometheus.NewConstMetric(desc, vt, v, labels...)
	if err != nil {
		return prometheus.NewInvalidMetric(desc, err)
	}
	return m
}
