package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: "あなたは在庫管理のアシスタントです。"},
		{Role: RoleUser, Content: "牛乳の在庫は？"},
		{Role: RoleAssistant, Content: "現在12本あります。"},
		{Role: RoleUser, Content: "期限切れリスクは？"},
	}
}

func TestBuildOpenAIRequest(t *testing.T) {
	req := buildOpenAIRequest(sampleMessages(), "gpt-4o-mini", 1500, 0.7)

	// systemを含む全メッセージが順序を保ってmessagesに入る
	assert.Len(t, req.Messages, 4)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, 1500, req.MaxTokens)
	assert.Equal(t, 0.7, req.Temperature)

	body, err := json.Marshal(req)
	assert.NoError(t, err)
	assert.Contains(t, string(body), `"max_tokens":1500`)
}

func TestBuildAnthropicRequest(t *testing.T) {
	req := buildAnthropicRequest(sampleMessages(), "claude-3-5-sonnet-20241022", 1000, 0.5)

	// systemメッセージはトップレベルに分離される
	assert.Equal(t, "あなたは在庫管理のアシスタントです。", req.System)
	assert.Len(t, req.Messages, 3)
	for _, msg := range req.Messages {
		assert.NotEqual(t, RoleSystem, msg.Role)
	}
}

func TestBuildAnthropicRequest_MultipleSystemMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "ペルソナ定義"},
		{Role: RoleSystem, Content: "# Current Business Data\n\n在庫: 42件"},
		{Role: RoleUser, Content: "こんにちは"},
	}
	req := buildAnthropicRequest(messages, "claude-3-5-sonnet-20241022", 1000, 0.7)

	assert.Equal(t, "ペルソナ定義\n\n# Current Business Data\n\n在庫: 42件", req.System)
	assert.Len(t, req.Messages, 1)
}

func TestParseAnthropicResponse(t *testing.T) {
	body := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "text", "text": "回答です"}],
		"usage": {"input_tokens": 100, "output_tokens": 40}
	}`)
	resp, err := parseAnthropicResponse(body)
	assert.NoError(t, err)
	assert.Equal(t, "回答です", resp.Content)
	assert.Equal(t, 100, resp.Usage.PromptTokens)
	assert.Equal(t, 40, resp.Usage.CompletionTokens)
	// total_tokensはワイヤーに無いため和として計算される
	assert.Equal(t, 140, resp.Usage.TotalTokens)
}

func TestBuildGeminiRequest(t *testing.T) {
	req := buildGeminiRequest(sampleMessages(), 1500, 0.7)

	// systemメッセージはsystemInstructionへ、assistantは"model"ロールになる
	assert.NotNil(t, req.SystemInstruction)
	assert.Equal(t, "あなたは在庫管理のアシスタントです。", req.SystemInstruction.Parts[0].Text)
	assert.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Equal(t, "user", req.Contents[2].Role)
	assert.Equal(t, 1500, req.GenerationConfig.MaxOutputTokens)
}

func TestBuildGeminiRequest_NoSystem(t *testing.T) {
	req := buildGeminiRequest([]Message{{Role: RoleUser, Content: "Hi"}}, 1000, 0.7)
	assert.Nil(t, req.SystemInstruction)

	body, err := json.Marshal(req)
	assert.NoError(t, err)
	assert.NotContains(t, string(body), "systemInstruction")
}

func TestParseGeminiResponse(t *testing.T) {
	body := []byte(`{
		"candidates": [{"content": {"parts": [{"text": "予測結果です"}]}}],
		"usageMetadata": {"promptTokenCount": 50, "candidatesTokenCount": 20, "totalTokenCount": 70},
		"modelVersion": "gemini-1.5-flash-002"
	}`)
	resp, err := parseGeminiResponse(body, "gemini-1.5-flash-latest")
	assert.NoError(t, err)
	assert.Equal(t, "予測結果です", resp.Content)
	assert.Equal(t, 70, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini-1.5-flash-002", resp.Model)
}

func TestParseGeminiResponse_MissingUsage(t *testing.T) {
	// usageMetadataとmodelVersionが欠けていても失敗せず0と要求モデルで埋める
	body := []byte(`{"candidates": [{"content": {"parts": [{"text": "OK"}]}}]}`)
	resp, err := parseGeminiResponse(body, "gemini-1.5-flash-latest")
	assert.NoError(t, err)
	assert.Equal(t, "OK", resp.Content)
	assert.Equal(t, 0, resp.Usage.PromptTokens)
	assert.Equal(t, 0, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini-1.5-flash-latest", resp.Model)
}

func TestParseGeminiResponse_EmptyCandidates(t *testing.T) {
	resp, err := parseGeminiResponse([]byte(`{}`), "gemini-1.5-flash-latest")
	assert.NoError(t, err)
	assert.Equal(t, "", resp.Content)
}

func TestGeminiChat_KeyInQueryString(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		// APIキーはヘッダーには載らない
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`))
	}))
	defer server.Close()

	v := newGeminiVendor("g-key", &http.Client{Timeout: 5 * time.Second})
	v.baseURL = server.URL

	resp, err := v.chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "gemini-1.5-flash-latest", 1000, 0.7)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "/models/gemini-1.5-flash-latest:generateContent", gotPath)
	assert.Equal(t, "g-key", gotKey)
}

func TestAnthropicChat_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		w.Write([]byte(`{
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "ok"}],
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer server.Close()

	v := newAnthropicVendor("a-key", &http.Client{Timeout: 5 * time.Second})
	v.baseURL = server.URL

	resp, err := v.chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "claude-3-5-sonnet-20241022", 1000, 0.7)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestGeminiEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:embedContent", r.URL.Path)
		w.Write([]byte(`{"embedding": {"values": [0.1, 0.2, 0.3]}}`))
	}))
	defer server.Close()

	v := newGeminiVendor("g-key", &http.Client{Timeout: 5 * time.Second})
	v.baseURL = server.URL

	vec, err := v.embed(context.Background(), "テスト文章")
	assert.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.InDelta(t, 0.2, vec[1], 0.0001)
}
