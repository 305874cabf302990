package services

import (
	"context"
	"log"
	"math/rand"
	"time"

	"negentropy-api/pkg/mlservice"
	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

// モックパスの需要ベースライン（ユニット/日）
const (
	mockDemandMin = 5.0
	mockDemandMax = 25.0
)

// シナリオ乗数
const (
	optimisticMultiplier = 1.25
	crisisMultiplier     = 0.65
)

// 学習用に渡す販売履歴の日数
const historyWindowDays = 90

// モデルバージョンタグ
const (
	modelVersionProphet         = "prophet-v1"
	modelVersionProphetScenario = "prophet-v1-scenario"
	modelVersionMock            = "mock-v1"
)

// ForecastService 需要予測のオーケストレーター。
// MLマイクロサービスが使えない場合でも常にモック予測で応答する。
type ForecastService struct {
	store *store.Store
	ml    *mlservice.Client
	rng   *rand.Rand
	now   func() time.Time
}

// NewForecastService 新しい予測サービスを作成
func NewForecastService(st *store.Store, ml *mlservice.Client) *ForecastService {
	return &ForecastService{
		store: st,
		ml:    ml,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// Forecast 需要予測を実行して保存します。
// MLサービスの未設定やエラーはモック予測へのフォールバックとして扱い、
// 呼び出し側にエラーとして返すことはない。
func (s *ForecastService) Forecast(ctx context.Context, tenantID, productID string, horizonDays int, scenario string, regressors map[string]float64) *models.ForecastResult {
	if scenario == "" {
		scenario = models.ScenarioBase
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}

	points, source := s.predict(ctx, tenantID, productID, horizonDays, scenario, regressors)

	if err := s.store.UpsertForecasts(ctx, tenantID, points); err != nil {
		log.Printf("⚠️ 予測結果の保存に失敗: %v", err)
	}

	return &models.ForecastResult{
		ProductID: productID,
		Scenario:  scenario,
		Forecast:  points,
		Source:    source,
	}
}

func (s *ForecastService) predict(ctx context.Context, tenantID, productID string, horizonDays int, scenario string, regressors map[string]float64) ([]models.ForecastPoint, string) {
	history, err := s.store.DailySalesHistory(ctx, tenantID, productID, historyWindowDays)
	if err != nil {
		log.Printf("⚠️ 販売履歴の取得に失敗、モック予測を使用します: %v", err)
		return s.mockForecast(productID, horizonDays, scenario), models.ForecastSourceMock
	}

	mlHistory := make([]mlservice.HistoryPoint, 0, len(history))
	for _, h := range history {
		mlHistory = append(mlHistory, mlservice.HistoryPoint{Date: h.Date, Value: h.Quantity})
	}

	var (
		mlPoints []mlservice.ForecastPoint
		version  string
	)
	if scenario == models.ScenarioBase {
		mlPoints, err = s.ml.PredictDemand(ctx, productID, mlHistory, horizonDays)
		version = modelVersionProphet
	} else {
		mlPoints, err = s.ml.PredictScenario(ctx, mlHistory, horizonDays, scenario, regressors)
		version = modelVersionProphetScenario
	}
	if err != nil {
		if err != mlservice.ErrNotConfigured {
			log.Printf("⚠️ ML予測に失敗、モック予測にフォールバック: %v", err)
		}
		return s.mockForecast(productID, horizonDays, scenario), models.ForecastSourceMock
	}

	points := make([]models.ForecastPoint, 0, len(mlPoints))
	for _, p := range mlPoints {
		points = append(points, models.ForecastPoint{
			ProductID:       productID,
			ForecastDate:    p.Date,
			PredictedDemand: p.PredictedDemand,
			ConfidenceLower: p.ConfidenceLower,
			ConfidenceUpper: p.ConfidenceUpper,
			Scenario:        scenario,
			ModelVersion:    version,
		})
	}
	return points, models.ForecastSourceML
}

// mockForecast 乱数ベースラインにシナリオ乗数を掛けた決定的フォールバック予測。
// 外部依存ゼロでも呼び出し側が常に使える予測形状を保証する。
func (s *ForecastService) mockForecast(productID string, horizonDays int, scenario string) []models.ForecastPoint {
	multiplier := 1.0
	switch scenario {
	case models.ScenarioOptimistic:
		multiplier = optimisticMultiplier
	case models.ScenarioCrisis:
		multiplier = crisisMultiplier
	}

	start := s.now().AddDate(0, 0, 1)
	points := make([]models.ForecastPoint, 0, horizonDays)
	for i := 0; i < horizonDays; i++ {
		demand := (mockDemandMin + s.rng.Float64()*(mockDemandMax-mockDemandMin)) * multiplier
		points = append(points, models.ForecastPoint{
			ProductID:       productID,
			ForecastDate:    start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedDemand: demand,
			ConfidenceLower: demand * 0.7,
			ConfidenceUpper: demand * 1.3,
			Scenario:        scenario,
			ModelVersion:    modelVersionMock,
		})
	}
	return points
}
