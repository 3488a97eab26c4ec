// Package narrative turns a composed prompt into free text through a
// generative-language backend.
package narrative

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/anthropic"
	"github.com/sells-group/research-dashboard/pkg/gemini"
)

const provider = string(credential.Generation)

// Generator returns the raw text generated for a prompt. Failures are typed
// resilience errors: NoCredential, ProviderError or EmptyResponse, plus the
// fetch-layer budget kinds.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Guarder runs a call under the fetch layer's credential, budget and
// throttle accounting. Implemented by *fetch.Client.
type Guarder interface {
	Guard(ctx context.Context, p credential.Provider, fn func(ctx context.Context, cred credential.Credential) error) error
}

func emptyResponse() error {
	return resilience.NewError(resilience.KindEmptyResponse, provider, "No response generated")
}

// Gemini generates with the generateContent API.
type Gemini struct {
	client gemini.Client
	cfg    gemini.GenerationConfig
	retry  resilience.RetryConfig
}

// NewGemini creates the gemini backend.
func NewGemini(client gemini.Client, cfg gemini.GenerationConfig, retry resilience.RetryConfig) *Gemini {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(provider, "generate_content")
	}
	return &Gemini{client: client, cfg: cfg, retry: retry}
}

// Generate returns the first candidate's text verbatim.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		resp, err := g.client.GenerateContent(ctx, gemini.NewTextRequest(prompt, g.cfg))
		if err != nil {
			return "", eris.Wrap(err, "narrative: Gemini API error")
		}
		text, ok := resp.Text()
		if !ok || strings.TrimSpace(text) == "" {
			return "", emptyResponse()
		}
		return text, nil
	})
}

// AnthropicConfig holds the Messages API parameters.
type AnthropicConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Anthropic generates with the Messages API. The SDK owns its transport, so
// accounting goes through Guard and a client is built per call from the
// freshly resolved key.
type Anthropic struct {
	guard     Guarder
	cfg       AnthropicConfig
	retry     resilience.RetryConfig
	newClient func(key string) anthropic.Client
}

// NewAnthropic creates the anthropic backend.
func NewAnthropic(guard Guarder, cfg AnthropicConfig, retry resilience.RetryConfig) *Anthropic {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(provider, "create_message")
	}
	return &Anthropic{
		guard: guard,
		cfg:   cfg,
		retry: retry,
		newClient: func(key string) anthropic.Client {
			return anthropic.NewClient(key, anthropic.WithBaseURL(cfg.BaseURL))
		},
	}
}

// Generate returns the concatenated text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (string, error) {
		var text string
		err := a.guard.Guard(ctx, credential.Generation, func(ctx context.Context, cred credential.Credential) error {
			temp := a.cfg.Temperature
			resp, err := a.newClient(cred.Value).CreateMessage(ctx, anthropic.MessageRequest{
				Model:       a.cfg.Model,
				MaxTokens:   a.cfg.MaxTokens,
				Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
				Temperature: &temp,
			})
			if err != nil {
				return classifyAnthropic(err)
			}
			resp.Usage.LogCost(a.cfg.Model, "narrative")
			text = resp.Text()
			return nil
		})
		if err != nil {
			return "", eris.Wrap(err, "narrative: anthropic")
		}
		if strings.TrimSpace(text) == "" {
			return "", emptyResponse()
		}
		return text, nil
	})
}

func classifyAnthropic(err error) error {
	status := anthropic.StatusCode(err)
	pe := &resilience.ProviderError{Provider: provider, StatusCode: status, Err: err}
	switch {
	case status == http.StatusTooManyRequests:
		pe.Kind = resilience.KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Kind = resilience.KindInvalidCredential
	default:
		pe.Kind = resilience.KindProviderError
	}
	return pe
}
