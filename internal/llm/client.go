package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sozercan/auditai-backend/internal/config"
	"github.com/sozercan/auditai-backend/internal/ledger"
)

const tracerName = "github.com/sozercan/auditai-backend/internal/llm"

// DefaultChatRows is the context window used when a chat call passes no limit.
const DefaultChatRows = 30

// Client dispatches explanation, report and chat calls to the configured
// backend and accounts for every call in the Recorder. Explanations go
// through the retry policy; reports and chats fail on the first error.
type Client struct {
	provider string
	backend  Backend
	initErr  error

	policy  RetryPolicy
	limiter *rate.Limiter
	rec     Recorder
	tracer  trace.Tracer

	requestOpts []option.RequestOption
}

type Option func(*Client)

// WithBackend replaces the backend that would be built from configuration.
func WithBackend(b Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.policy.Sleep = s
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithRequestOptions passes extra options to the cloud SDK client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) {
		c.requestOpts = append(c.requestOpts, opts...)
	}
}

// New builds a client for cfg.Provider. A missing or unsupported provider
// does not fail construction: every call then reports a configuration error.
func New(cfg config.LLMConfig, rec Recorder, opts ...Option) *Client {
	if rec == nil {
		rec = nopRecorder{}
	}

	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c := &Client{
		provider: strings.ToLower(strings.TrimSpace(cfg.Provider)),
		policy:   policy,
		limiter:  limiter,
		rec:      rec,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.backend == nil {
		c.backend, c.initErr = newBackend(c.provider, cfg, c.requestOpts)
	}
	return c
}

func newBackend(provider string, cfg config.LLMConfig, requestOpts []option.RequestOption) (Backend, error) {
	switch provider {
	case ProviderAzure, ProviderOpenAI:
		return NewOpenAI(provider, cfg, requestOpts...)
	case ProviderOllama:
		if cfg.Ollama.Timeout <= 0 {
			cfg.Ollama.Timeout = cfg.Timeout
		}
		return NewOllama(cfg.Ollama)
	default:
		return nil, newError(provider, ErrConfiguration,
			"Unsupported LLM provider %q. Use 'azure', 'openai' or 'ollama'.", provider)
	}
}

// Provider returns the normalized provider name used as the metrics label.
func (c *Client) Provider() string {
	return c.provider
}

// Explain asks the backend for a structured explanation of tx. Transient
// failures are retried on the 1s, 2s, 4s schedule up to the attempt budget.
func (c *Client) Explain(ctx context.Context, tx ledger.Transaction) (Explanation, error) {
	ctx, span := c.tracer.Start(ctx, "llm.explain", trace.WithAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("auditai.transaction_id", tx.TransactionID),
	))
	defer span.End()

	c.rec.IncrementLLMCall(c.provider)
	if c.initErr != nil {
		return Explanation{}, c.fail(span, c.initErr)
	}

	var out Explanation
	attempts, err := c.policy.run(ctx, c.provider, c.rec, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		explanation, err := c.backend.Explain(ctx, tx)
		if err != nil {
			return err
		}
		out = explanation
		return nil
	})
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		return Explanation{}, c.fail(span, err)
	}
	return out, nil
}

// Report summarizes up to MaxReportRows flagged transactions as plain text.
func (c *Client) Report(ctx context.Context, rows []ledger.Transaction) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.report", trace.WithAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.Int("auditai.rows", min(len(rows), MaxReportRows)),
	))
	defer span.End()

	return c.complete(ctx, span, reportSystemPrompt, BuildReportPrompt(rows))
}

// Chat answers question using only the first maxRows transactions as context.
// A non-positive maxRows means DefaultChatRows.
func (c *Client) Chat(ctx context.Context, question string, rows []ledger.Transaction, maxRows int) (string, error) {
	if maxRows <= 0 {
		maxRows = DefaultChatRows
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	ctx, span := c.tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.Int("auditai.rows", len(rows)),
	))
	defer span.End()

	return c.complete(ctx, span, chatSystemPrompt, BuildChatPrompt(question, rows))
}

func (c *Client) complete(ctx context.Context, span trace.Span, system, user string) (string, error) {
	c.rec.IncrementLLMCall(c.provider)
	if c.initErr != nil {
		return "", c.fail(span, c.initErr)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", c.fail(span, err)
	}

	text, err := c.backend.Complete(ctx, system, user)
	if err != nil {
		return "", c.fail(span, err)
	}
	return text, nil
}

// fail counts one failure for the call and returns err as an *Error.
func (c *Client) fail(span trace.Span, err error) error {
	c.rec.IncrementLLMFailure(c.provider)
	e := asError(c.provider, err)
	span.RecordError(e)
	span.SetStatus(codes.Error, e.Message)
	return e
}
