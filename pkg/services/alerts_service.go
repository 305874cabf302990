package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

// アラート対象となる期限までの日数（48時間窓）
const alertWindowDays = 2

// AlertsService 期限切れ間近の在庫を検出して通知アラートを生成するサービス。
// スケジューラーやPOS同期後のフックから定期実行される想定。
type AlertsService struct {
	store *store.Store
	now   func() time.Time
}

// NewAlertsService 新しいアラートサービスを作成
func NewAlertsService(st *store.Store) *AlertsService {
	return &AlertsService{store: st, now: time.Now}
}

// DailyAlertsResult 日次アラート実行の結果
type DailyAlertsResult struct {
	Processed int            `json:"processed"`
	Alerts    []models.Alert `json:"alerts"`
}

// RunDailyAlerts 48時間以内に期限を迎える在庫を検出してアラートを登録します。
// 期限まで24時間未満は50%、それ以外は20%の値引きを提案する。
func (s *AlertsService) RunDailyAlerts(ctx context.Context, tenantID string) (*DailyAlertsResult, error) {
	items, err := s.store.ListInventory(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("在庫の取得に失敗: %w", err)
	}

	now := s.now()
	result := &DailyAlertsResult{Alerts: []models.Alert{}}

	for _, item := range items {
		if item.ExpirationDate == nil || item.CurrentStock <= 0 {
			continue
		}
		days := DaysToExpiry(*item.ExpirationDate, now)
		if days < 0 || days >= alertWindowDays {
			continue
		}

		discount := 20
		if days < 1 {
			discount = 50
		}

		alert := models.Alert{
			TenantID: tenantID,
			Type:     "expiration_warning",
			Message: fmt.Sprintf("%s: %d unidades expiran en %d día(s). Sugerencia: aplicar -%d%% de descuento",
				item.ProductName, item.CurrentStock, days, discount),
			CreatedAt: now,
		}
		if err := s.store.InsertAlert(ctx, &alert); err != nil {
			log.Printf("⚠️ アラートの登録に失敗 product=%s: %v", item.ProductID, err)
			continue
		}
		result.Alerts = append(result.Alerts, alert)
		result.Processed++
	}

	log.Printf("[Daily Alerts] tenant=%s: %d件の期限間近在庫を検出", tenantID, result.Processed)
	return result, nil
}
