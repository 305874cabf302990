package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

const defaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// WeatherService テナント×日単位でキャッシュされる気象データサービス。
// OpenWeatherMapが使えない場合は固定のフォールバック値を返す。
type WeatherService struct {
	store      *store.Store
	apiKey     string
	latitude   float64
	longitude  float64
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewWeatherService 新しい気象データサービスを作成
func NewWeatherService(st *store.Store, apiKey string, latitude, longitude float64) *WeatherService {
	return &WeatherService{
		store:     st,
		apiKey:    apiKey,
		latitude:  latitude,
		longitude: longitude,
		baseURL:   defaultOpenWeatherBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// openWeatherResponse OpenWeatherMap Current Weather APIレスポンス
type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// CurrentWeather テナントの当日の気象スナップショットを返します（リードスルーキャッシュ）。
// キャッシュミス時は外部APIを1回だけ呼び、結果を保存してから返す。
// API障害時もフォールバック値で必ずスナップショットを返し、エラーにはしない。
func (s *WeatherService) CurrentWeather(ctx context.Context, tenantID string) *models.WeatherSnapshot {
	today := s.now().Format("2006-01-02")

	cached, err := s.store.GetWeather(ctx, tenantID, today)
	if err != nil {
		log.Printf("⚠️ 気象キャッシュの読み取りに失敗: %v", err)
	}
	if cached != nil {
		return cached
	}

	snapshot := s.fetch(ctx, tenantID, today)

	// 並行ミスが同じキーへ保存を競合させてもINSERT OR IGNOREで最初の1件が残る
	if err := s.store.SaveWeather(ctx, snapshot); err != nil {
		log.Printf("⚠️ 気象キャッシュの保存に失敗: %v", err)
	}
	return snapshot
}

func (s *WeatherService) fetch(ctx context.Context, tenantID, date string) *models.WeatherSnapshot {
	if s.apiKey == "" {
		return s.fallbackSnapshot(tenantID, date)
	}

	url := fmt.Sprintf("%s/data/2.5/weather?lat=%f&lon=%f&appid=%s&units=metric",
		s.baseURL, s.latitude, s.longitude, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		log.Printf("⚠️ 気象APIリクエストの作成に失敗: %v", err)
		return s.fallbackSnapshot(tenantID, date)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("⚠️ 気象APIの呼び出しに失敗、フォールバック値を使用します: %v", err)
		return s.fallbackSnapshot(tenantID, date)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ 気象APIがエラーを返しました: status=%d", resp.StatusCode)
		return s.fallbackSnapshot(tenantID, date)
	}

	var data openWeatherResponse
	if err := json.Unmarshal(body, &data); err != nil {
		log.Printf("⚠️ 気象APIレスポンスの解析に失敗: %v", err)
		return s.fallbackSnapshot(tenantID, date)
	}

	condition := ""
	if len(data.Weather) > 0 {
		condition = strings.ToLower(data.Weather[0].Main)
	}
	return &models.WeatherSnapshot{
		TenantID:    tenantID,
		Date:        date,
		Temperature: data.Main.Temp,
		Humidity:    data.Main.Humidity,
		Condition:   condition,
	}
}

// fallbackSnapshot APIキー未設定や障害時の固定値
func (s *WeatherService) fallbackSnapshot(tenantID, date string) *models.WeatherSnapshot {
	return &models.WeatherSnapshot{
		TenantID:    tenantID,
		Date:        date,
		Temperature: 22.5,
		Humidity:    60,
		Condition:   "sunny (mock)",
	}
}
