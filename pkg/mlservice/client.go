package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotConfigured MLサービスのエンドポイントが未設定の場合のエラー。
// 呼び出し側はこのエラーを受けてモック予測にフォールバックする。
var ErrNotConfigured = errors.New("MLサービスのURLが設定されていません")

// Client Prophetベースの需要予測マイクロサービスのHTTPクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 新しいMLサービスクライアントを作成します。
// baseURLが空の場合もクライアント自体は有効で、呼び出し時にErrNotConfiguredを返す。
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured エンドポイントが設定されているかを返します。
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// HistoryPoint 予測の入力となる日次実績
type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ForecastPoint 予測結果の1日分
type ForecastPoint struct {
	Date            string  `json:"date"`
	PredictedDemand float64 `json:"predicted_demand"`
	ConfidenceLower float64 `json:"confidence_lower"`
	ConfidenceUpper float64 `json:"confidence_upper"`
}

// demandRequest 需要予測リクエスト
type demandRequest struct {
	ProductID string         `json:"product_id"`
	History   []HistoryPoint `json:"history"`
	Days      int            `json:"days"`
}

// scenarioRequest シナリオ予測リクエスト。乗数ではなくシナリオ名と
// 外部リグレッサーをそのままMLサービスに渡し、モデル側で解釈させる。
type scenarioRequest struct {
	SalesHistory   []HistoryPoint     `json:"sales_history"`
	DaysToForecast int                `json:"days_to_forecast"`
	Scenario       string             `json:"scenario"`
	Regressors     map[string]float64 `json:"regressors,omitempty"`
}

// forecastResponse 予測レスポンス
type forecastResponse struct {
	Forecast []ForecastPoint `json:"forecast"`
}

// PredictDemand 商品単体の需要予測を実行します。
func (c *Client) PredictDemand(ctx context.Context, productID string, history []HistoryPoint, days int) ([]ForecastPoint, error) {
	request := demandRequest{
		ProductID: productID,
		History:   history,
		Days:      days,
	}
	return c.doRequest(ctx, "/predict/demand", request)
}

// PredictScenario シナリオ条件付きの需要予測を実行します。
func (c *Client) PredictScenario(ctx context.Context, history []HistoryPoint, days int, scenario string, regressors map[string]float64) ([]ForecastPoint, error) {
	request := scenarioRequest{
		SalesHistory:   history,
		DaysToForecast: days,
		Scenario:       scenario,
		Regressors:     regressors,
	}
	return c.doRequest(ctx, "/predict/scenario", request)
}

// doRequest MLサービスへのPOSTとレスポンス解析の共通部分
func (c *Client) doRequest(ctx context.Context, path string, payload interface{}) ([]ForecastPoint, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MLサービスへのリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MLサービスがエラーを返しました: %d - %s", resp.StatusCode, string(body))
	}

	var data forecastResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("予測レスポンスの解析に失敗: %w", err)
	}
	if len(data.Forecast) == 0 {
		return nil, fmt.Errorf("MLサービスから予測ポイントが返されませんでした")
	}
	return data.Forecast, nil
}
