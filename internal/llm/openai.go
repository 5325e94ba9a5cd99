package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/sozercan/auditai-backend/internal/config"
	"github.com/sozercan/auditai-backend/internal/ledger"
)

// Provider names accepted in configuration.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const explainTemperature = 0.2

// OpenAI is the cloud structured-output backend. It talks to Azure OpenAI or
// the public OpenAI API depending on the configured provider.
type OpenAI struct {
	client   *openai.Client
	provider string
	model    string
}

// NewOpenAI builds the backend. Extra request options are appended last, so
// they can point the client at a different base URL.
func NewOpenAI(provider string, cfg config.LLMConfig, extra ...option.RequestOption) (*OpenAI, error) {
	var opts []option.RequestOption
	var model string

	switch provider {
	case ProviderAzure:
		if cfg.Azure.Endpoint == "" || cfg.Azure.APIKey == "" || cfg.Azure.Deployment == "" {
			return nil, newError(provider, ErrConfiguration, "Azure OpenAI client is not configured")
		}
		opts = append(opts,
			azure.WithEndpoint(cfg.Azure.Endpoint, cfg.Azure.APIVersion),
			azure.WithAPIKey(cfg.Azure.APIKey),
		)
		model = cfg.Azure.Deployment
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, newError(provider, ErrConfiguration, "OpenAI API key is not configured")
		}
		opts = append(opts,
			option.WithAPIKey(cfg.OpenAI.APIKey),
			option.WithBaseURL(strings.TrimSuffix(cfg.OpenAI.APIEndpoint, "/")+"/"),
		)
		model = cfg.OpenAI.Model
	default:
		return nil, newError(provider, ErrConfiguration, "unsupported cloud provider %q", provider)
	}

	// retries belong to the caller's state machine, not the SDK
	opts = append(opts, option.WithMaxRetries(0))
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	return &OpenAI{
		client:   openai.NewClient(opts...),
		provider: provider,
		model:    model,
	}, nil
}

func (o *OpenAI) Explain(ctx context.Context, tx ledger.Transaction) (Explanation, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.F(o.model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ExplainSystemPrompt),
			openai.UserMessage(BuildExplainPrompt(tx)),
		}),
		Temperature: openai.F(explainTemperature),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		),
	})
	if err != nil {
		return Explanation{}, o.classify(err)
	}

	content := "{}"
	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		content = resp.Choices[0].Message.Content
	}

	explanation, err := NormalizeJSON(content)
	if err != nil {
		return Explanation{}, newError(o.provider, ErrPermanent, "invalid JSON from LLM: %v", err)
	}
	return explanation, nil
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.F(o.model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		}),
		Temperature: openai.F(explainTemperature),
	})
	if err != nil {
		return "", o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(o.provider, ErrPermanent, "no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps SDK failures onto the package error kinds. Only rate limits
// and timeouts are transient.
func (o *OpenAI) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return newError(o.provider, ErrTransient, "LLM API error: %s", apiErr.Error())
		default:
			return newError(o.provider, ErrPermanent, "LLM API error: %s", apiErr.Error())
		}
	}
	if isTimeout(err) {
		return newError(o.provider, ErrTransient, "LLM request timed out: %v", err)
	}
	return asError(o.provider, err)
}
