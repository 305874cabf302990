package handlers

import (
	"net/http"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// POSHandler はPOS連携関連のハンドラです。
type POSHandler struct {
	posService *services.POSService
}

// NewPOSHandler は新しいPOSHandlerを生成します。
func NewPOSHandler(posService *services.POSService) *POSHandler {
	return &POSHandler{
		posService: posService,
	}
}

// POSSyncRequest POS取引の同期リクエスト
type POSSyncRequest struct {
	Transactions []models.POSTransaction `json:"transactions"`
}

// SyncSales POS取引バッチを取り込み、在庫を減算します。
// 一部の取引が不正でも残りは処理し、件数と理由を返します。
func (h *POSHandler) SyncSales(c *gin.Context) {
	var req POSSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました: " + err.Error()})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transactionsは必須です"})
		return
	}

	result := h.posService.SyncTransactions(c.Request.Context(), tenantFromRequest(c), req.Transactions)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ImportSales アップロードされた売上ファイル（xlsx/csv）を取り込みます。
func (h *POSHandler) ImportSales(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルのアップロードが必要です: " + err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ファイルのオープンに失敗しました: " + err.Error()})
		return
	}
	defer file.Close()

	result, err := h.posService.ImportSalesFile(c.Request.Context(), tenantFromRequest(c), fileHeader.Filename, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルの取り込みに失敗しました: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
