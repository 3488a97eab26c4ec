package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/resilience"
)

func TestGenerateContent_WireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		contents := body["contents"].([]any)
		first := contents[0].(map[string]any)
		assert.Equal(t, "user", first["role"])
		assert.Equal(t, "Describe Tesla", first["parts"].([]any)[0].(map[string]any)["text"])

		gc := body["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.7, gc["temperature"], 1e-9)
		assert.InDelta(t, 40, gc["topK"], 1e-9)
		assert.InDelta(t, 0.95, gc["topP"], 1e-9)
		assert.InDelta(t, 4096, gc["maxOutputTokens"], 1e-9)

		safety := body["safetySettings"].([]any)
		require.Len(t, safety, 4)
		for _, s := range safety {
			assert.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", s.(map[string]any)["threshold"])
		}

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Tesla designs electric vehicles."}]},"finishReason":"STOP"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(fetch.New(fetch.StaticKey("g-key"), nil), WithBaseURL(srv.URL))
	resp, err := c.GenerateContent(context.Background(), NewTextRequest("Describe Tesla", DefaultGenerationConfig()))
	require.NoError(t, err)

	text, ok := resp.Text()
	assert.True(t, ok)
	assert.Equal(t, "Tesla designs electric vehicles.", text)
}

func TestGenerateContent_CustomModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		w.Write([]byte(`{"candidates":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(fetch.New(fetch.StaticKey("k"), nil), WithBaseURL(srv.URL+"/"), WithModel("gemini-2.0-flash"))
	resp, err := c.GenerateContent(context.Background(), NewTextRequest("hi", DefaultGenerationConfig()))
	require.NoError(t, err)

	_, ok := resp.Text()
	assert.False(t, ok)
}

func TestGenerateContent_ErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(fetch.New(fetch.StaticKey("k"), nil), WithBaseURL(srv.URL))
	_, err := c.GenerateContent(context.Background(), NewTextRequest("hi", DefaultGenerationConfig()))
	require.Error(t, err)
	assert.Equal(t, resilience.KindProviderError, resilience.KindOf(err))
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGenerateContent_NoKey(t *testing.T) {
	c := NewClient(fetch.New(fetch.StaticKey(""), nil))
	_, err := c.GenerateContent(context.Background(), NewTextRequest("hi", DefaultGenerationConfig()))
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindNoCredential))
}

func TestText_NilAndEmptyParts(t *testing.T) {
	var r *GenerateResponse
	_, ok := r.Text()
	assert.False(t, ok)

	r = &GenerateResponse{Candidates: []Candidate{{Content: Content{}}}}
	_, ok = r.Text()
	assert.False(t, ok)
}
