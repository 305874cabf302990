package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiVendor Google Gemini generateContent APIへの変換層
type geminiVendor struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newGeminiVendor(apiKey string, httpClient *http.Client) *geminiVendor {
	return &geminiVendor{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: httpClient,
	}
}

func (v *geminiVendor) defaultModel() string {
	return "gemini-1.5-flash-latest"
}

// geminiPart メッセージ本文の1パート
type geminiPart struct {
	Text string `json:"text"`
}

// geminiContent ロール付きのメッセージ。Geminiではassistantロールは"model"になる。
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiGenerationConfig 生成パラメータ
type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

// geminiChatRequest チャット補完リクエスト（Gemini形式）。
// systemメッセージは専用のsystemInstructionフィールドに入る。
type geminiChatRequest struct {
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
}

// geminiChatResponse チャット補完レスポンス（Gemini形式）。
// usageMetadata配下の全フィールドは省略されうるため、欠損は0として扱い失敗させない。
type geminiChatResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// buildGeminiRequest Gemini形式のリクエストボディを構築します。
func buildGeminiRequest(messages []Message, maxTokens int, temperature float64) geminiChatRequest {
	request := geminiChatRequest{
		Contents: make([]geminiContent, 0, len(messages)),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     temperature,
		},
	}

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if request.SystemInstruction == nil {
				request.SystemInstruction = &geminiContent{}
			}
			request.SystemInstruction.Parts = append(request.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			continue
		}

		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		request.Contents = append(request.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return request
}

// parseGeminiResponse Gemini形式のレスポンスを共通形式に変換します。
// fallbackModelはレスポンスにmodelVersionが無い場合に使用する。
func parseGeminiResponse(body []byte, fallbackModel string) (*Response, error) {
	var data geminiChatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("GeminiレスポンスのJSON解析に失敗: %w", err)
	}

	// candidatesやpartsが欠けていても失敗させず空文字として扱う
	content := ""
	if len(data.Candidates) > 0 && len(data.Candidates[0].Content.Parts) > 0 {
		content = data.Candidates[0].Content.Parts[0].Text
	}

	model := data.ModelVersion
	if model == "" {
		model = fallbackModel
	}

	return &Response{
		Content: content,
		Usage: &Usage{
			PromptTokens:     data.UsageMetadata.PromptTokenCount,
			CompletionTokens: data.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      data.UsageMetadata.TotalTokenCount,
		},
		Model: model,
	}, nil
}

func (v *geminiVendor) chat(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (*Response, error) {
	request := buildGeminiRequest(messages, maxTokens, temperature)

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", v.baseURL, model, v.apiKey)
	body, err := v.post(ctx, url, request)
	if err != nil {
		return nil, err
	}
	return parseGeminiResponse(body, model)
}

// geminiEmbedRequest Embedding APIリクエスト
type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

// geminiEmbedResponse Embedding APIレスポンス
type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (v *geminiVendor) embed(ctx context.Context, text string) ([]float32, error) {
	request := geminiEmbedRequest{
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	url := fmt.Sprintf("%s/models/text-embedding-004:embedContent?key=%s", v.baseURL, v.apiKey)
	body, err := v.post(ctx, url, request)
	if err != nil {
		return nil, err
	}

	var data geminiEmbedResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("Embeddingレスポンスの解析に失敗: %w", err)
	}
	if len(data.Embedding.Values) == 0 {
		return nil, fmt.Errorf("APIから有効なEmbeddingが返されませんでした")
	}
	return data.Embedding.Values, nil
}

// post リクエストの送信とエラーレスポンス処理の共通部分
func (v *geminiVendor) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, &ProviderError{Provider: ProviderGemini, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
