package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

func f64(v float64) *float64 { return &v }

func testConfig(baseURL string) Config {
	return Config{
		OpenAIBaseURL:    baseURL,
		GeminiBaseURL:    baseURL,
		AnthropicBaseURL: baseURL,
		Timeout:          5 * time.Second,
		MaxRetries:       2,
		MaxOutputTokens:  256,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func fastRetries(p Provider) {
	switch v := p.(type) {
	case *openAIProvider:
		v.tr.baseBackoff = time.Millisecond
	case *geminiProvider:
		v.tr.baseBackoff = time.Millisecond
	case *anthropicProvider:
		v.tr.baseBackoff = time.Millisecond
	}
}

func TestOpenAIGenerateCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer per-config-key", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, 0.9, body["temperature"])
		assert.Equal(t, 0.95, body["top_p"])
		assert.EqualValues(t, 256, body["max_completion_tokens"])
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}],"usage":{"total_tokens":42}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OpenAIKey = "process-key"
	p := NewOpenAIProvider(cfg, logger.Nop())
	res := p.GenerateCompletion(context.Background(), Request{
		Prompt:     "say hi",
		Model:      "gpt-4o-mini",
		Credential: "per-config-key",
		Options:    &Options{Temperature: f64(0.9), TopP: f64(0.95)},
	})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "hello", res.Output)
	require.NotNil(t, res.TokensUsed)
	assert.Equal(t, 42, *res.TokensUsed)
}

func TestOpenAIOmitsSamplingWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer process-key", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		_, hasTemp := body["temperature"]
		_, hasTopP := body["top_p"]
		assert.False(t, hasTemp)
		assert.False(t, hasTopP)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OpenAIKey = "process-key"
	res := NewOpenAIProvider(cfg, logger.Nop()).GenerateCompletion(context.Background(), Request{Prompt: "x", Model: "m"})
	require.False(t, res.Failed(), res.Error)
	assert.Nil(t, res.TokensUsed)
}

func TestMissingCredentialFailsWithoutCalling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	for _, p := range []Provider{
		NewOpenAIProvider(testConfig(srv.URL), logger.Nop()),
		NewGeminiProvider(testConfig(srv.URL), logger.Nop()),
		NewAnthropicProvider(testConfig(srv.URL), logger.Nop()),
	} {
		res := p.GenerateCompletion(context.Background(), Request{Prompt: "x", Model: "m"})
		assert.True(t, res.Failed(), string(p.Name()))
		assert.Contains(t, res.Error, "API key")
		assert.Empty(t, res.Output)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestUpstreamErrorIsReportedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OpenAIKey = "k"
	res := NewOpenAIProvider(cfg, logger.Nop()).GenerateCompletion(context.Background(), Request{Prompt: "x", Model: "nope"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "model not found")
	assert.Contains(t, res.Error, "400")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"third time"}],"usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AnthropicKey = "k"
	p := NewAnthropicProvider(cfg, logger.Nop())
	fastRetries(p)
	res := p.GenerateCompletion(context.Background(), Request{Prompt: "x", Model: "claude-sonnet-4-5"})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "third time", res.Output)
	assert.Equal(t, 7, *res.TokensUsed)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestAnthropicWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body := decodeBody(t, r)
		assert.Equal(t, 1.0, body["temperature"], "temperature is clamped to 1")
		_, hasTopP := body["top_p"]
		assert.False(t, hasTopP, "top_p is dropped when temperature is set")
		assert.EqualValues(t, 256, body["max_tokens"])
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AnthropicKey = "k"
	res := NewAnthropicProvider(cfg, logger.Nop()).GenerateCompletion(context.Background(), Request{
		Prompt:  "x",
		Model:   "claude",
		Options: &Options{Temperature: f64(1.1), TopP: f64(1.0)},
	})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "ab", res.Output)
}

func TestGeminiWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		body := decodeBody(t, r)
		gc := body["generationConfig"].(map[string]any)
		assert.Equal(t, 0.8, gc["temperature"])
		assert.Equal(t, 0.9, gc["topP"])
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"g1"},{"text":"g2"}]}}],"usageMetadata":{"totalTokenCount":9}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.GeminiKey = "gk"
	res := NewGeminiProvider(cfg, logger.Nop()).GenerateCompletion(context.Background(), Request{
		Prompt:  "x",
		Model:   "gemini-2.0-flash",
		Options: &Options{Temperature: f64(0.8), TopP: f64(0.9)},
	})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "g1g2", res.Output)
	assert.Equal(t, 9, *res.TokensUsed)
}

func TestGeminiBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.GeminiKey = "gk"
	res := NewGeminiProvider(cfg, logger.Nop()).GenerateCompletion(context.Background(), Request{Prompt: "x", Model: "g"})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "SAFETY")
}

func TestRegistryFallsBackToFirstProvider(t *testing.T) {
	reg := NewRegistry(testConfig("http://unused"), logger.Nop())
	assert.Equal(t, types.ProviderGemini, reg.ForProvider(types.ProviderGemini).Name())
	assert.Equal(t, types.ProviderAnthropic, reg.ForProvider(types.ProviderAnthropic).Name())
	assert.Equal(t, types.ProviderOpenAI, reg.ForProvider("SOMETHING_ELSE").Name())
}
