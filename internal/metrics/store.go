package metrics

import (
	"math"
	"strings"
	"sync"
)

// requestStats holds everything recorded for one "{method} {path}" key so a
// single critical section always sees a consistent triple.
type requestStats struct {
	count          int64
	errors         int64
	latencySumMsec float64
}

// Store aggregates HTTP request and LLM call counters for the process.
// All methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	requests    map[string]*requestStats
	llmCalls    map[string]int64
	llmRetries  map[string]int64
	llmFailures map[string]int64
}

// RequestMetrics is the per-key view exposed by Snapshot.
type RequestMetrics struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Snapshot is a copy of the store taken under its lock.
type Snapshot struct {
	Requests         map[string]RequestMetrics `json:"requests"`
	LLMCallsTotal    map[string]int64          `json:"llm_calls_total"`
	LLMRetriesTotal  map[string]int64          `json:"llm_retries_total"`
	LLMFailuresTotal map[string]int64          `json:"llm_failures_total"`
}

func NewStore() *Store {
	return &Store{
		requests:    make(map[string]*requestStats),
		llmCalls:    make(map[string]int64),
		llmRetries:  make(map[string]int64),
		llmFailures: make(map[string]int64),
	}
}

func requestKey(method, path string) string {
	return method + " " + path
}

// validLabel replaces invalid UTF-8 so every recorded key is a legal
// Prometheus label value.
func validLabel(v string) string {
	return strings.ToValidUTF8(v, "\uFFFD")
}

// splitRequestKey undoes requestKey. Methods never contain spaces, paths may.
func splitRequestKey(key string) (method, path string) {
	method, path, _ = strings.Cut(key, " ")
	return method, path
}

// RecordRequest counts one finished request. Statuses >= 400 count as errors.
func (s *Store) RecordRequest(method, path string, latencyMs float64, statusCode int) {
	key := requestKey(validLabel(method), validLabel(path))

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.requests[key]
	if !ok {
		stats = &requestStats{}
		s.requests[key] = stats
	}
	stats.count++
	stats.latencySumMsec += latencyMs
	if statusCode >= 400 {
		stats.errors++
	}
}

func (s *Store) IncrementLLMCall(provider string) {
	s.mu.Lock()
	s.llmCalls[validLabel(provider)]++
	s.mu.Unlock()
}

func (s *Store) IncrementLLMRetry(provider string) {
	s.mu.Lock()
	s.llmRetries[validLabel(provider)]++
	s.mu.Unlock()
}

func (s *Store) IncrementLLMFailure(provider string) {
	s.mu.Lock()
	s.llmFailures[validLabel(provider)]++
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current counters with average latency
// rounded to two decimals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make(map[string]RequestMetrics, len(s.requests))
	for key, stats := range s.requests {
		requests[key] = RequestMetrics{
			Count:        stats.count,
			Errors:       stats.errors,
			AvgLatencyMs: round2(averageLatency(stats)),
		}
	}

	return Snapshot{
		Requests:         requests,
		LLMCallsTotal:    copyCounts(s.llmCalls),
		LLMRetriesTotal:  copyCounts(s.llmRetries),
		LLMFailuresTotal: copyCounts(s.llmFailures),
	}
}

// Reset clears every counter. Meant for tests and operator resets.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.requests)
	clear(s.llmCalls)
	clear(s.llmRetries)
	clear(s.llmFailures)
}

func averageLatency(stats *requestStats) float64 {
	if stats.count == 0 {
		return 0
	}
	return stats.latencySumMsec / float64(stats.count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
