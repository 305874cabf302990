package handlers

import (
	"net/http"
	"sort"
	"time"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/services"
	"negentropy-api/pkg/store"

	"github.com/gin-gonic/gin"
)

// ForecastHandler は需要予測と在庫リスク関連のハンドラです。
type ForecastHandler struct {
	forecastService *services.ForecastService
	weatherService  *services.WeatherService
	store           *store.Store
}

// NewForecastHandler は新しいForecastHandlerを生成します。
func NewForecastHandler(forecastService *services.ForecastService, weatherService *services.WeatherService, st *store.Store) *ForecastHandler {
	return &ForecastHandler{
		forecastService: forecastService,
		weatherService:  weatherService,
		store:           st,
	}
}

// ForecastRequest 需要予測リクエスト
type ForecastRequest struct {
	ProductID  string             `json:"product_id"`
	Days       int                `json:"days"`
	Scenario   string             `json:"scenario"`
	Regressors map[string]float64 `json:"regressors"`
}

// PredictDemand ベースシナリオの需要予測を実行します。
func (h *ForecastHandler) PredictDemand(c *gin.Context) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました: " + err.Error()})
		return
	}
	if req.ProductID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_idは必須です"})
		return
	}

	result := h.forecastService.Forecast(c.Request.Context(), tenantFromRequest(c), req.ProductID, req.Days, models.ScenarioBase, nil)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// PredictScenario 指定シナリオでの需要予測を実行します。
func (h *ForecastHandler) PredictScenario(c *gin.Context) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました: " + err.Error()})
		return
	}
	if req.ProductID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_idは必須です"})
		return
	}

	scenario := req.Scenario
	switch scenario {
	case models.ScenarioBase, models.ScenarioOptimistic, models.ScenarioCrisis:
	case "":
		scenario = models.ScenarioBase
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenarioはbase/optimistic/crisisのいずれかを指定してください"})
		return
	}

	result := h.forecastService.Forecast(c.Request.Context(), tenantFromRequest(c), req.ProductID, req.Days, scenario, req.Regressors)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetExpirationRisks 在庫全品のリスクスコアを降順で返します。
func (h *ForecastHandler) GetExpirationRisks(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := tenantFromRequest(c)

	items, err := h.store.ListInventory(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "在庫の取得に失敗しました: " + err.Error()})
		return
	}

	now := time.Now()
	risks := make([]models.ExpirationRisk, 0, len(items))
	for _, item := range items {
		if item.ExpirationDate == nil {
			continue
		}
		days := services.DaysToExpiry(*item.ExpirationDate, now)
		avgDaily, err := h.store.AvgDailySales(ctx, tenantID, item.ProductID, 30)
		if err != nil {
			avgDaily = 0
		}
		risks = append(risks, models.ExpirationRisk{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			RiskScore:    services.ExpirationRiskScore(item.CurrentStock, avgDaily, days),
			DaysToExpiry: days,
		})
	}

	sort.Slice(risks, func(i, j int) bool {
		if risks[i].RiskScore != risks[j].RiskScore {
			return risks[i].RiskScore > risks[j].RiskScore
		}
		return risks[i].DaysToExpiry < risks[j].DaysToExpiry
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    risks,
		"count":   len(risks),
	})
}

// GetCurrentWeather 当日の気象スナップショットを返します。
// 外部API障害時はモック値を返すため、このエンドポイントは常に200を返します。
func (h *ForecastHandler) GetCurrentWeather(c *gin.Context) {
	snapshot := h.weatherService.CurrentWeather(c.Request.Context(), tenantFromRequest(c))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshot,
	})
}
