package handlers

import (
	"net/http"
	"strconv"

	"negentropy-api/pkg/services"
	"negentropy-api/pkg/store"

	"github.com/gin-gonic/gin"
)

// AlertsHandler は期限アラート関連のハンドラです。
type AlertsHandler struct {
	alertsService *services.AlertsService
	store         *store.Store
}

// NewAlertsHandler は新しいAlertsHandlerを生成します。
func NewAlertsHandler(alertsService *services.AlertsService, st *store.Store) *AlertsHandler {
	return &AlertsHandler{
		alertsService: alertsService,
		store:         st,
	}
}

// RunDaily 期限間近の在庫を走査してアラートを生成します。
// スケジューラまたは手動実行から呼び出される想定です。
func (h *AlertsHandler) RunDaily(c *gin.Context) {
	result, err := h.alertsService.RunDailyAlerts(c.Request.Context(), tenantFromRequest(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "アラート生成に失敗しました: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ListRecent 直近のアラートを新しい順で返します。
func (h *AlertsHandler) ListRecent(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	alerts, err := h.store.ListRecentAlerts(c.Request.Context(), tenantFromRequest(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "アラートの取得に失敗しました: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    alerts,
		"count":   len(alerts),
	})
}
