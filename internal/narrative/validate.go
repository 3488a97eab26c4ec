package narrative

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/pkg/anthropic"
	"github.com/sells-group/research-dashboard/pkg/gemini"
)

const probePrompt = "Reply with the single word OK."

// GeminiKeyValidator checks a candidate key with one tiny generation
// request. The probe bypasses the shared budget.
func GeminiKeyValidator(hc *http.Client, opts ...gemini.Option) credential.KeyValidator {
	return func(ctx context.Context, key string) error {
		caller := fetch.New(fetch.StaticKey(key), nil, fetch.WithHTTPClient(hc))
		client := gemini.NewClient(caller, opts...)
		cfg := gemini.DefaultGenerationConfig()
		cfg.MaxOutputTokens = 8
		if _, err := client.GenerateContent(ctx, gemini.NewTextRequest(probePrompt, cfg)); err != nil {
			return eris.Wrap(err, "narrative: validate gemini key")
		}
		return nil
	}
}

// AnthropicKeyValidator checks a candidate key with one tiny message.
func AnthropicKeyValidator(cfg AnthropicConfig) credential.KeyValidator {
	return func(ctx context.Context, key string) error {
		client := anthropic.NewClient(key, anthropic.WithBaseURL(cfg.BaseURL))
		_, err := client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     cfg.Model,
			MaxTokens: 8,
			Messages:  []anthropic.Message{{Role: "user", Content: probePrompt}},
		})
		if err != nil {
			return eris.Wrap(classifyAnthropic(err), "narrative: validate anthropic key")
		}
		return nil
	}
}
