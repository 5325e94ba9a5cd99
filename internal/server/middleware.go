package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Header names shared with clients.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"
)

// unmatchedRoute is the metrics path for requests no route matched.
const unmatchedRoute = "unmatched"

type requestIDKey struct{}

// RequestIDFromContext returns the correlation id assigned by the observer.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestRecorder is the metrics sink for the observer. *metrics.Store satisfies it.
type RequestRecorder interface {
	RecordRequest(method, path string, latencyMs float64, statusCode int)
}

// Observe assigns a correlation id to every request, echoes it on the
// response and records method, route, latency and status exactly once. A
// panicking handler is recorded as 500 and the panic continues upward.
func Observe(rec RequestRecorder) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("auditai.request_id", requestID),
				),
			)
			ctx = context.WithValue(ctx, requestIDKey{}, requestID)

			rw := &responseWriter{ResponseWriter: w}

			defer func() {
				recovered := recover()

				status := rw.statusCode()
				if recovered != nil {
					status = http.StatusInternalServerError
				}
				latency := float64(time.Since(start)) / float64(time.Millisecond)

				rec.RecordRequest(r.Method, routeLabel(r), latency, status)

				span.SetAttributes(attribute.Int("http.response.status_code", status))
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}
				span.End()

				slog.Info("http_request",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"status_code", status,
					"latency_ms", math.Round(latency*100)/100,
				)

				if recovered != nil {
					panic(recovered)
				}
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

// routeLabel is the matched route pattern, so path parameters and unknown
// paths cannot grow the metrics key set.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

// RequireAPIKey rejects requests whose X-API-Key header differs from key.
// An empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// statusCode reports 200 for handlers that never wrote anything.
func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}
