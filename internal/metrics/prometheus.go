package metrics

import (
	"fmt"
	"sort"
	"strings"
)

const namespace = "auditai"

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}

// PrometheusSnapshot renders the store in the Prometheus text exposition
// format. Every family gets its HELP and TYPE header even with no samples, and
// the output always ends with a newline.
func (s *Store) PrometheusSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	keys := sortedKeys(s.requests)

	writeHeader(&b, "http_requests_total", "Total HTTP requests by method and path", "counter")
	for _, key := range keys {
		method, path := splitRequestKey(key)
		fmt.Fprintf(&b, "%s_http_requests_total{method=\"%s\",path=\"%s\"} %d\n",
			namespace, escapeLabel(method), escapeLabel(path), s.requests[key].count)
	}

	writeHeader(&b, "http_errors_total", "Total HTTP error responses by method and path", "counter")
	for _, key := range keys {
		method, path := splitRequestKey(key)
		fmt.Fprintf(&b, "%s_http_errors_total{method=\"%s\",path=\"%s\"} %d\n",
			namespace, escapeLabel(method), escapeLabel(path), s.requests[key].errors)
	}

	writeHeader(&b, "http_latency_ms_avg", "Average request latency in milliseconds", "gauge")
	for _, key := range keys {
		method, path := splitRequestKey(key)
		fmt.Fprintf(&b, "%s_http_latency_ms_avg{method=\"%s\",path=\"%s\"} %.2f\n",
			namespace, escapeLabel(method), escapeLabel(path), averageLatency(s.requests[key]))
	}

	writeProviderFamily(&b, "llm_calls_total", "Total LLM calls by provider", s.llmCalls)
	writeProviderFamily(&b, "llm_retries_total", "Total LLM retries by provider", s.llmRetries)
	writeProviderFamily(&b, "llm_failures_total", "Total LLM failures by provider", s.llmFailures)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s_%s %s\n", namespace, name, help)
	fmt.Fprintf(b, "# TYPE %s_%s %s\n", namespace, name, typ)
}

func writeProviderFamily(b *strings.Builder, name, help string, counts map[string]int64) {
	writeHeader(b, name, help, "counter")
	for _, provider := range sortedKeys(counts) {
		fmt.Fprintf(b, "%s_%s{provider=\"%s\"} %d\n", namespace, name, escapeLabel(provider), counts[provider])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
