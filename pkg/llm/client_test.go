package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewClient_ProviderSelection(t *testing.T) {
	tests := []struct {
		name     string
		creds    Credentials
		expected Provider
	}{
		{
			name:     "Geminiキーのみの場合はGeminiを選択",
			creds:    Credentials{GeminiKey: "g-key"},
			expected: ProviderGemini,
		},
		{
			name:     "全キーが揃っている場合はGeminiを優先",
			creds:    Credentials{OpenAIKey: "o-key", AnthropicKey: "a-key", GeminiKey: "g-key"},
			expected: ProviderGemini,
		},
		{
			name:     "Geminiキーが無い場合はOpenAIを選択",
			creds:    Credentials{OpenAIKey: "o-key", AnthropicKey: "a-key"},
			expected: ProviderOpenAI,
		},
		{
			name:     "Anthropicキーのみの場合はAnthropicを選択",
			creds:    Credentials{AnthropicKey: "a-key"},
			expected: ProviderAnthropic,
		},
		{
			name:     "明示指定は優先順より優先される",
			creds:    Credentials{Provider: "anthropic", OpenAIKey: "o-key", AnthropicKey: "a-key", GeminiKey: "g-key"},
			expected: ProviderAnthropic,
		},
		{
			name:     "明示指定のプロバイダーにキーが無ければ優先順にフォールバック",
			creds:    Credentials{Provider: "openai", GeminiKey: "g-key"},
			expected: ProviderGemini,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.creds)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, client.Provider())
		})
	}
}

func TestNewClient_NoCredentials(t *testing.T) {
	client, err := NewClient(Credentials{})
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestNewClient_DefaultModels(t *testing.T) {
	tests := []struct {
		creds Credentials
		model string
	}{
		{Credentials{GeminiKey: "k"}, "gemini-1.5-flash-latest"},
		{Credentials{OpenAIKey: "k"}, "gpt-4o-mini"},
		{Credentials{AnthropicKey: "k"}, "claude-3-5-sonnet-20241022"},
	}
	for _, tt := range tests {
		client, err := NewClient(tt.creds)
		assert.NoError(t, err)
		assert.Equal(t, tt.model, client.Model())
	}

	// モデルの明示上書き
	client, err := NewClient(Credentials{GeminiKey: "k", Model: "gemini-1.5-pro"})
	assert.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", client.Model())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}

func TestEstimateCost(t *testing.T) {
	gemini, _ := NewClient(Credentials{GeminiKey: "k"})
	openai, _ := NewClient(Credentials{OpenAIKey: "k"})
	anthropic, _ := NewClient(Credentials{AnthropicKey: "k"})

	// ゼロトークンは常にゼロコスト
	assert.Equal(t, 0.0, gemini.EstimateCost(0, 0))

	// 単調性: トークン数が増えればコストも増える
	low := gemini.EstimateCost(1000, 500)
	high := gemini.EstimateCost(2000, 1000)
	assert.Greater(t, high, low)

	// 既定モデル同士ではGeminiが最安、Anthropicが最高
	g := gemini.EstimateCost(1_000_000, 1_000_000)
	o := openai.EstimateCost(1_000_000, 1_000_000)
	a := anthropic.EstimateCost(1_000_000, 1_000_000)
	assert.Less(t, g, o)
	assert.Less(t, o, a)

	// 単価表の検証: gemini flash 0.075/0.30
	assert.InDelta(t, 0.375, g, 0.0001)
	// openai mini 0.150/0.600
	assert.InDelta(t, 0.750, o, 0.0001)
	// anthropic sonnet 3.00/15.00
	assert.InDelta(t, 18.0, a, 0.0001)
}

func TestChat_OpenAIRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "こんにちは"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer server.Close()

	v := newOpenAIVendor("test-key", &http.Client{Timeout: 5 * time.Second})
	v.baseURL = server.URL
	client := &Client{provider: ProviderOpenAI, model: "gpt-4o-mini", vendor: v}

	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "Hello"},
	}, Options{})
	assert.NoError(t, err)
	assert.Equal(t, "こんにちは", resp.Content)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestChat_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	v := newOpenAIVendor("test-key", &http.Client{Timeout: 5 * time.Second})
	v.baseURL = server.URL
	client := &Client{provider: ProviderOpenAI, model: "gpt-4o-mini", vendor: v}

	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, Options{})
	assert.Error(t, err)

	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr)
	assert.Equal(t, ProviderOpenAI, provErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, provErr.Status)
	assert.Contains(t, provErr.Body, "rate limited")
}

func TestEmbed_AnthropicUnsupported(t *testing.T) {
	client, err := NewClient(Credentials{AnthropicKey: "k"})
	assert.NoError(t, err)

	_, err = client.Embed(context.Background(), "some text")
	assert.ErrorIs(t, err, ErrEmbeddingUnsupported)
}
