package metrics

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestConcurrent(t *testing.T) {
	store := NewStore()

	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// latencies alternate 10/30 so the mean is exactly 20
				latency := 10.0
				if i%2 == 1 {
					latency = 30.0
				}
				status := 200
				if i%4 == 0 {
					status = 500
				}
				store.RecordRequest("GET", "/anomalies", latency, status)
				store.IncrementLLMCall("azure")
			}
		}(w)
	}
	wg.Wait()

	snap := store.Snapshot()
	rm := snap.Requests["GET /anomalies"]
	assert.Equal(t, int64(workers*perWorker), rm.Count)
	assert.Equal(t, int64(workers*perWorker/4), rm.Errors)
	assert.InDelta(t, 20.0, rm.AvgLatencyMs, 0.01)
	assert.Equal(t, int64(workers*perWorker), snap.LLMCallsTotal["azure"])
}

func TestErrorsNeverExceedCount(t *testing.T) {
	store := NewStore()
	for _, status := range []int{200, 201, 400, 404, 500, 302} {
		store.RecordRequest("POST", "/explain", 1, status)
	}

	rm := store.Snapshot().Requests["POST /explain"]
	assert.Equal(t, int64(6), rm.Count)
	assert.Equal(t, int64(3), rm.Errors)
	assert.LessOrEqual(t, rm.Errors, rm.Count)
}

func TestSnapshotRoundsAverage(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/health", 1, 200)
	store.RecordRequest("GET", "/health", 1, 200)
	store.RecordRequest("GET", "/health", 2, 200)

	assert.Equal(t, 1.33, store.Snapshot().Requests["GET /health"].AvgLatencyMs)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	store.IncrementLLMRetry("ollama")

	snap := store.Snapshot()
	snap.LLMRetriesTotal["ollama"] = 99
	store.IncrementLLMRetry("ollama")

	assert.Equal(t, int64(2), store.Snapshot().LLMRetriesTotal["ollama"])
}

func TestReset(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/health", 5, 200)
	store.IncrementLLMCall("azure")
	store.IncrementLLMRetry("azure")
	store.IncrementLLMFailure("azure")

	store.Reset()

	snap := store.Snapshot()
	assert.Empty(t, snap.Requests)
	assert.Empty(t, snap.LLMCallsTotal)
	assert.Empty(t, snap.LLMRetriesTotal)
	assert.Empty(t, snap.LLMFailuresTotal)
}

func TestPrometheusSnapshotEmptyStore(t *testing.T) {
	out := NewStore().PrometheusSnapshot()

	require.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 12)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "# HELP ") || strings.HasPrefix(line, "# TYPE "), line)
	}
	assert.Contains(t, out, "# TYPE auditai_http_latency_ms_avg gauge\n")
	assert.Contains(t, out, "# TYPE auditai_llm_failures_total counter\n")
}

func TestPrometheusSnapshotSamples(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/health", 10, 200)
	store.RecordRequest("GET", "/health", 15, 503)
	store.IncrementLLMCall("ollama")
	store.IncrementLLMRetry("ollama")

	out := store.PrometheusSnapshot()

	assert.Contains(t, out, `auditai_http_requests_total{method="GET",path="/health"} 2`+"\n")
	assert.Contains(t, out, `auditai_http_errors_total{method="GET",path="/health"} 1`+"\n")
	assert.Contains(t, out, `auditai_http_latency_ms_avg{method="GET",path="/health"} 12.50`+"\n")
	assert.Contains(t, out, `auditai_llm_calls_total{provider="ollama"} 1`+"\n")
	assert.Contains(t, out, `auditai_llm_retries_total{provider="ollama"} 1`+"\n")
	assert.NotContains(t, out, "auditai_llm_failures_total{")
}

func TestPrometheusSnapshotEscapesLabels(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/a\"b\\c\nd", 1, 200)

	out := store.PrometheusSnapshot()
	assert.Contains(t, out, `path="/a\"b\\c\nd"`)
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		assert.NotEmpty(t, line)
	}
}

func TestPrometheusSnapshotIsSorted(t *testing.T) {
	store := NewStore()
	store.IncrementLLMCall("ollama")
	store.IncrementLLMCall("azure")

	out := store.PrometheusSnapshot()
	assert.Less(t, strings.Index(out, `provider="azure"`), strings.Index(out, `provider="ollama"`))
}

func TestCollectorMatchesStore(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/health", 10, 200)
	store.RecordRequest("GET", "/health", 20, 404)
	store.IncrementLLMCall("azure")
	store.IncrementLLMFailure("azure")

	expected := `
# HELP auditai_http_requests_total Total HTTP requests by method and path
# TYPE auditai_http_requests_total counter
auditai_http_requests_total{method="GET",path="/health"} 2
# HELP auditai_http_errors_total Total HTTP error responses by method and path
# TYPE auditai_http_errors_total counter
auditai_http_errors_total{method="GET",path="/health"} 1
# HELP auditai_http_latency_ms_avg Average request latency in milliseconds
# TYPE auditai_http_latency_ms_avg gauge
auditai_http_latency_ms_avg{method="GET",path="/health"} 15
# HELP auditai_llm_calls_total Total LLM calls by provider
# TYPE auditai_llm_calls_total counter
auditai_llm_calls_total{provider="azure"} 1
# HELP auditai_llm_failures_total Total LLM failures by provider
# TYPE auditai_llm_failures_total counter
auditai_llm_failures_total{provider="azure"} 1
`
	err := testutil.CollectAndCompare(store, strings.NewReader(expected),
		"auditai_http_requests_total",
		"auditai_http_errors_total",
		"auditai_http_latency_ms_avg",
		"auditai_llm_calls_total",
		"auditai_llm_failures_total",
	)
	assert.NoError(t, err)
	assert.Equal(t, 0, testutil.CollectAndCount(store, "auditai_llm_retries_total"))
}

func TestInvalidUTF8LabelsAreReplaced(t *testing.T) {
	store := NewStore()
	store.RecordRequest("GET", "/\xff", 5, 404)
	store.IncrementLLMCall("az\xffure")

	assert.Contains(t, store.Snapshot().Requests, "GET /\uFFFD")

	assert.NotPanics(t, func() {
		assert.Equal(t, 3, testutil.CollectAndCount(store,
			"auditai_http_requests_total",
			"auditai_http_errors_total",
			"auditai_http_latency_ms_avg",
		))
		assert.Equal(t, 1, testutil.CollectAndCount(store, "auditai_llm_calls_total"))
	})

	out := store.PrometheusSnapshot()
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "auditai_http_requests_total{method=\"GET\",path=\"/\uFFFD\"} 1")
	assert.Contains(t, out, "auditai_llm_calls_total{provider=\"az\uFFFDure\"} 1")
}

func TestConstMetricReportsBadLabels(t *testing.T) {
	m := constMetric(llmCallsDesc, prometheus.CounterValue, 1, "\xff")

	var out dto.Metric
	assert.Error(t, m.Write(&out))
}

func ExampleStore_PrometheusSnapshot() {
	store := NewStore()
	store.IncrementLLMCall("azure")
	out := store.PrometheusSnapshot()
	fmt.Print(out[strings.Index(out, "auditai_llm_calls_total{"):strings.Index(out, "# HELP auditai_llm_retries_total")])
	// Output: auditai_llm_calls_total{provider="azure"} 1
}
