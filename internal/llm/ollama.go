package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sozercan/auditai-backend/internal/config"
	"github.com/sozercan/auditai-backend/internal/ledger"
)

const (
	defaultOllamaTimeout = 30 * time.Second

	// maxOllamaResponseBytes bounds how much of a generate response is read.
	maxOllamaResponseBytes = 8 << 20
)

// Ollama is the local inference backend. Every attempt is bounded by the
// configured timeout (30s by default).
type Ollama struct {
	httpClient *http.Client
	baseURL    string
	model      string
	timeout    time.Duration
	maxBody    int64
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllama(cfg config.OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		return nil, newError(ProviderOllama, ErrConfiguration, "Ollama base URL is not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", cfg.Model)
	return &Ollama{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      cfg.Model,
		timeout:    timeout,
		maxBody:    maxOllamaResponseBytes,
	}, nil
}

func (o *Ollama) Explain(ctx context.Context, tx ledger.Transaction) (Explanation, error) {
	prompt := ExplainSystemPrompt + "\n" + BuildExplainPrompt(tx)

	raw, err := o.generate(ctx, prompt, "json")
	if err != nil {
		return Explanation{}, err
	}
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	explanation, err := NormalizeJSON(raw)
	if err != nil {
		return Explanation{}, newError(ProviderOllama, ErrPermanent, "invalid JSON from LLM: %v", err)
	}
	return explanation, nil
}

func (o *Ollama) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := o.generate(ctx, system+"\n\n"+user, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (o *Ollama) generate(ctx context.Context, prompt, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Format: format,
		Stream: false,
	})
	if err != nil {
		return "", newError(ProviderOllama, ErrPermanent, "failed to marshal request to Ollama: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", newError(ProviderOllama, ErrConfiguration, "failed to create request to Ollama: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", newError(ProviderOllama, ErrTransient, "Ollama request timed out: %v", err)
		}
		return "", newError(ProviderOllama, ErrUpstreamTransport, "Ollama API call failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBody+1))
	if err != nil {
		if isTimeout(err) {
			return "", newError(ProviderOllama, ErrTransient, "Ollama response timed out: %v", err)
		}
		return "", newError(ProviderOllama, ErrUpstreamTransport, "failed to read response body from Ollama: %v", err)
	}
	if int64(len(respBody)) > o.maxBody {
		return "", newError(ProviderOllama, ErrUpstreamTransport, "Ollama response exceeds %d bytes", o.maxBody)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("Ollama failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusRequestTimeout:
			return "", newError(ProviderOllama, ErrTransient, "%s", msg)
		default:
			slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBody))
			return "", newError(ProviderOllama, ErrUpstreamTransport, "%s", msg)
		}
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", newError(ProviderOllama, ErrPermanent, "failed to parse Ollama response: %v", err)
	}
	return out.Response, nil
}
