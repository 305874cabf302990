package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiVendor OpenAI Chat Completions APIへの変換層
type openaiVendor struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAIVendor(apiKey string, httpClient *http.Client) *openaiVendor {
	return &openaiVendor{
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		httpClient: httpClient,
	}
}

func (v *openaiVendor) defaultModel() string {
	return "gpt-4o-mini"
}

// openaiChatRequest チャット補完リクエスト（OpenAI形式）
type openaiChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// openaiChatResponse チャット補完レスポンス（OpenAI形式）
type openaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// buildOpenAIRequest OpenAI形式のリクエストボディを構築します。
// systemロールを含む全メッセージをそのままmessages配列に載せる。
func buildOpenAIRequest(messages []Message, model string, maxTokens int, temperature float64) openaiChatRequest {
	return openaiChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// parseOpenAIResponse OpenAI形式のレスポンスを共通形式に変換します。
func parseOpenAIResponse(body []byte) (*Response, error) {
	var data openaiChatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("OpenAIレスポンスのJSON解析に失敗: %w", err)
	}
	if len(data.Choices) == 0 {
		return nil, fmt.Errorf("OpenAIからの応答にchoicesが含まれていません")
	}
	return &Response{
		Content: data.Choices[0].Message.Content,
		Usage: &Usage{
			PromptTokens:     data.Usage.PromptTokens,
			CompletionTokens: data.Usage.CompletionTokens,
			TotalTokens:      data.Usage.TotalTokens,
		},
		Model: data.Model,
	}, nil
}

func (v *openaiVendor) chat(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (*Response, error) {
	request := buildOpenAIRequest(messages, model, maxTokens, temperature)

	body, err := v.post(ctx, v.baseURL+"/chat/completions", request)
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(body)
}

// openaiEmbeddingRequest Embedding APIリクエスト
type openaiEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// openaiEmbeddingResponse Embedding APIレスポンス
type openaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (v *openaiVendor) embed(ctx context.Context, text string) ([]float32, error) {
	request := openaiEmbeddingRequest{Model: "text-embedding-3-small", Input: text}

	body, err := v.post(ctx, v.baseURL+"/embeddings", request)
	if err != nil {
		return nil, err
	}

	var data openaiEmbeddingResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("Embeddingレスポンスの解析に失敗: %w", err)
	}
	if len(data.Data) == 0 || len(data.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("APIから有効なEmbeddingが返されませんでした")
	}
	return data.Data[0].Embedding, nil
}

// post リクエストの送信とエラーレスポンス処理の共通部分
func (v *openaiVendor) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

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
		return nil, &ProviderError{Provider: ProviderOpenAI, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
