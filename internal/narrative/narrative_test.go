package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/gemini"
)

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return cfg
}

func geminiServer(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	caller := fetch.New(fetch.StaticKey("g-key"), nil)
	return NewGemini(gemini.NewClient(caller, gemini.WithBaseURL(srv.URL)), gemini.DefaultGenerationConfig(), fastRetry())
}

func writeCandidate(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
}

func TestGeminiGenerate_ReturnsTextVerbatim(t *testing.T) {
	g := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCandidate(w, "  Overview\n\nTesla builds cars.  ")
	})

	text, err := g.Generate(context.Background(), "Describe Tesla")
	require.NoError(t, err)
	assert.Equal(t, "  Overview\n\nTesla builds cars.  ", text)
}

func TestGeminiGenerate_EmptyCandidates(t *testing.T) {
	g := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := g.Generate(context.Background(), "Describe Tesla")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindEmptyResponse))
	assert.Contains(t, err.Error(), "No response generated")
}

func TestGeminiGenerate_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	g := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCandidate(w, "second try")
	})

	text, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "second try", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiGenerate_DoesNotRetryInvalidKey(t *testing.T) {
	var calls atomic.Int32
	g := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	})

	_, err := g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindInvalidCredential))
	assert.Contains(t, err.Error(), "Gemini API error")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiGenerate_NoCredential(t *testing.T) {
	caller := fetch.New(fetch.StaticKey(""), nil)
	g := NewGemini(gemini.NewClient(caller), gemini.DefaultGenerationConfig(), fastRetry())

	_, err := g.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindNoCredential))
}

// staticGuard hands fn a fixed credential, like fetch.Client without budgets.
type staticGuard struct {
	key   string
	calls int
}

func (g *staticGuard) Guard(ctx context.Context, p credential.Provider, fn func(context.Context, credential.Credential) error) error {
	g.calls++
	return fn(ctx, credential.Credential{Provider: p, Value: g.key, Origin: credential.EnvironmentDefault})
}

func anthropicServer(t *testing.T, handler http.HandlerFunc) (*Anthropic, *staticGuard) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	guard := &staticGuard{key: "a-key"}
	return NewAnthropic(guard, AnthropicConfig{
		BaseURL:     srv.URL,
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   1024,
		Temperature: 0.7,
	}, fastRetry()), guard
}

func writeMessage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-haiku-4-5-20251001",
		"content":     []any{map[string]any{"type": "text", "text": text}},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

func TestAnthropicGenerate_UsesResolvedKey(t *testing.T) {
	a, guard := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a-key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
		writeMessage(w, "Summary text")
	})

	text, err := a.Generate(context.Background(), "Describe Tesla")
	require.NoError(t, err)
	assert.Equal(t, "Summary text", text)
	assert.Equal(t, 1, guard.calls)
}

func TestAnthropicGenerate_RateLimited(t *testing.T) {
	a, guard := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := a.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindRateLimited))
	assert.Equal(t, 1, guard.calls)
}

func TestAnthropicGenerate_Unauthorized(t *testing.T) {
	a, _ := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := a.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindInvalidCredential))
}

func TestAnthropicGenerate_EmptyText(t *testing.T) {
	a, _ := anthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, "   ")
	})

	_, err := a.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindEmptyResponse))
}

func TestGeminiKeyValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
			return
		}
		writeCandidate(w, "OK")
	}))
	defer srv.Close()

	validate := GeminiKeyValidator(srv.Client(), gemini.WithBaseURL(srv.URL))
	assert.NoError(t, validate(context.Background(), "good"))
	assert.Error(t, validate(context.Background(), "bad"))
}
