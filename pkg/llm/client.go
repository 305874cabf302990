package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"
)

// Provider LLMプロバイダーの識別子
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// チャットメッセージのロール
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message チャットメッセージ
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options チャット補完のオプション
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage トークン使用量。プロバイダーによっては省略されるためポインタで保持する。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response チャット補完の結果
type Response struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
	Model   string `json:"model"`
}

// Credentials プロバイダー資格情報。ホスト側のエントリポイントが一度だけ
// 環境から読み込み、コンストラクタへ明示的に渡す。
type Credentials struct {
	// Provider 明示的に使用するプロバイダー（空の場合は優先順で自動選択）
	Provider     string
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
	// Model デフォルトモデルの上書き（空の場合はプロバイダーごとの既定値）
	Model string
	// BaseURL ベンダーAPIのベースURLの上書き（プロキシ経由やテスト用途）
	BaseURL string
}

// ErrNoCredentials APIキーが一つも設定されていない場合のエラー
var ErrNoCredentials = errors.New("LLM APIキーが設定されていません。GEMINI_API_KEY、OPENAI_API_KEY、またはANTHROPIC_API_KEYを設定してください")

// ErrEmbeddingUnsupported 選択中のプロバイダーがEmbedding APIを提供していない場合のエラー
var ErrEmbeddingUnsupported = errors.New("選択中のプロバイダーはEmbeddingをサポートしていません")

// ProviderError ベンダーAPIの呼び出し失敗。HTTPステータスと生のボディを保持する。
type ProviderError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.Status, e.Body)
}

// vendor はベンダーごとのワイヤープロトコル変換を担う内部インターフェース。
// 実装はリクエスト整形・レスポンス解析を自身で完結させ、他のコンポーネントに
// ベンダー固有のフィールド名を漏らさない。
type vendor interface {
	chat(ctx context.Context, messages []Message, model string, maxTokens int, temperature float64) (*Response, error)
	embed(ctx context.Context, text string) ([]float32, error)
	defaultModel() string
}

// Client 複数ベンダーを単一のチャット補完インターフェースで扱うクライアント。
// プロバイダー選択は生成時に一度だけ行い、呼び出しごとに再評価しない。
type Client struct {
	provider Provider
	model    string
	vendor   vendor
}

// NewClient 資格情報からクライアントを生成します。
// 優先順位: 明示指定されたプロバイダー（キーがある場合）> Gemini（最安）> OpenAI > Anthropic。
func NewClient(creds Credentials) (*Client, error) {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	pick := func(p Provider) *Client {
		var v vendor
		switch p {
		case ProviderOpenAI:
			ov := newOpenAIVendor(creds.OpenAIKey, httpClient)
			if creds.BaseURL != "" {
				ov.baseURL = creds.BaseURL
			}
			v = ov
		case ProviderAnthropic:
			av := newAnthropicVendor(creds.AnthropicKey, httpClient)
			if creds.BaseURL != "" {
				av.baseURL = creds.BaseURL
			}
			v = av
		case ProviderGemini:
			gv := newGeminiVendor(creds.GeminiKey, httpClient)
			if creds.BaseURL != "" {
				gv.baseURL = creds.BaseURL
			}
			v = gv
		}
		model := creds.Model
		if model == "" {
			model = v.defaultModel()
		}
		return &Client{provider: p, model: model, vendor: v}
	}

	var c *Client
	switch {
	case Provider(creds.Provider) == ProviderGemini && creds.GeminiKey != "":
		c = pick(ProviderGemini)
	case Provider(creds.Provider) == ProviderOpenAI && creds.OpenAIKey != "":
		c = pick(ProviderOpenAI)
	case Provider(creds.Provider) == ProviderAnthropic && creds.AnthropicKey != "":
		c = pick(ProviderAnthropic)
	case creds.GeminiKey != "":
		c = pick(ProviderGemini)
	case creds.OpenAIKey != "":
		c = pick(ProviderOpenAI)
	case creds.AnthropicKey != "":
		c = pick(ProviderAnthropic)
	default:
		return nil, ErrNoCredentials
	}

	log.Printf("[LLM] クライアントを初期化しました: provider=%s, model=%s", c.provider, c.model)
	return c, nil
}

// Chat チャット補完を実行します。
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	temperature := opts.Temperature

	return c.vendor.chat(ctx, messages, model, maxTokens, temperature)
}

// Embed テキストのベクトル表現を生成します。
// Embedding APIを持たないプロバイダーではErrEmbeddingUnsupportedを返します。
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.vendor.embed(ctx, text)
}

// Provider 選択中のプロバイダーを返します。
func (c *Client) Provider() Provider {
	return c.provider
}

// Model デフォルトモデル名を返します。
func (c *Client) Model() string {
	return c.model
}

// EstimateTokens テキストのトークン数を概算します（約4文字=1トークン）。
// テレメトリ用途のみで、コンテキスト切り詰め等の正確性が必要な処理には使用しない。
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}
