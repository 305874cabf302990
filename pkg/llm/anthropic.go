package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// anthropicVendor Anthropic Messages APIへの変換層
type anthropicVendor struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropicVendor(apiKey string, httpClient *http.Client) *anthropicVendor {
	return &anthropicVendor{
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: httpClient,
	}
}

func (v *anthropicVendor) defaultModel() string {
	return "claude-3-5-sonnet-20241022"
}

// anthropicChatRequest チャット補完リクエスト（Anthropic形式）。
// systemメッセージはトップレベルのsystemフィールドに分離され、
// messages配列にはuser/assistantのターンのみが入る。
type anthropicChatRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

// anthropicChatResponse チャット補完レスポンス（Anthropic形式）
type anthropicChatResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildAnthropicRequest Anthropic形式のリクエストボディを構築します。
func buildAnthropicRequest(messages []Message, model string, maxTokens int, temperature float64) anthropicChatRequest {
	request := anthropicChatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    make([]Message, 0, len(messages)),
	}

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			// 複数のsystemメッセージは連結して1つのsystemフィールドにまとめる
			if request.System != "" {
				request.System += "\n\n"
			}
			request.System += msg.Content
			continue
		}
		request.Messages = append(request.Messages, msg)
	}
	return request
}

// parseAnthropicResponse Anthropic形式のレスポンスを共通形式に変換します。
// total_tokensはワイヤー上に存在しないため、入出力の和として計算する。
func parseAnthropicResponse(body []byte) (*Response, error) {
	var data anthropicChatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("AnthropicレスポンスのJSON解析に失敗: %w", err)
	}
	if len(data.Content) == 0 {
		return nil, fmt.Errorf("Anthropicからの応答にcontentが含まれていません")
	}
	return &Response{
		Content: data.Content[0].Text,
		Usage: &Usage{
			PromptTokens:     data.Usage.InputTokens,
			CompletionTokens: data.Usage.OutputTokens,
			TotalTokens:      data.Usage.InputTokens + data.Usage.OutputTokens,
		},
		Model: data.Model,
	}, nil
}

func (v *anthropicVendor) chat(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (*Response, error) {
	request := buildAnthropicRequest(messages, model, maxTokens, temperature)

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", v.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", v.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: ProviderAnthropic, Status: resp.StatusCode, Body: string(body)}
	}
	return parseAnthropicResponse(body)
}

// embed AnthropicはEmbedding APIを提供していない
func (v *anthropicVendor) embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingUnsupported
}
