package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"negentropy-api/pkg/models"
)

// InsertProduct 商品マスタにレコードを追加します。IDが空の場合は採番する。
func (s *Store) InsertProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	var expiration interface{}
	if p.ExpirationDate != nil {
		expiration = p.ExpirationDate.Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, name, category, price, expiration_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.Category, p.Price, expiration)
	if err != nil {
		return fmt.Errorf("商品の登録に失敗: %w", err)
	}
	return nil
}

// UpsertInventory 在庫レコードを登録または更新します。
func (s *Store) UpsertInventory(ctx context.Context, item *models.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (id, tenant_id, product_id, current_stock, min_stock, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, product_id) DO UPDATE SET
			current_stock = excluded.current_stock,
			min_stock = excluded.min_stock,
			unit_price = excluded.unit_price`,
		item.ID, item.TenantID, item.ProductID, item.CurrentStock, item.MinStock, item.UnitPrice)
	if err != nil {
		return fmt.Errorf("在庫の登録に失敗: %w", err)
	}
	return nil
}

// InsertSale 販売実績を登録します。
func (s *Store) InsertSale(ctx context.Context, sale *models.SaleRecord) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, tenant_id, product_id, quantity, amount, pos_reference, sale_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.TenantID, sale.ProductID, sale.Quantity, sale.Amount,
		sale.POSReference, sale.SaleDate.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("販売実績の登録に失敗: %w", err)
	}
	return nil
}

// DecrementInventory 販売分だけ在庫を減らします。0未満にはならない。
func (s *Store) DecrementInventory(ctx context.Context, tenantID, productID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inventory SET current_stock = MAX(current_stock - ?, 0)
		WHERE tenant_id = ? AND product_id = ?`,
		quantity, tenantID, productID)
	if err != nil {
		return fmt.Errorf("在庫の減算に失敗: %w", err)
	}
	return nil
}

// InsertDonation 寄付レコードを登録します。
func (s *Store) InsertDonation(ctx context.Context, d *models.Donation) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donations (id, tenant_id, product_id, ngo, quantity, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.ProductID, d.NGO, d.Quantity, d.Status, d.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("寄付の登録に失敗: %w", err)
	}
	return nil
}

// InsertLegalDocument 法令ドキュメントのステータスを登録します。
func (s *Store) InsertLegalDocument(ctx context.Context, doc *models.LegalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO legal_documents (id, tenant_id, doc_type, status) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.DocType, doc.Status)
	if err != nil {
		return fmt.Errorf("法令ドキュメントの登録に失敗: %w", err)
	}
	return nil
}

// UpsertForecasts 予測ポイント一式をトランザクションで保存します。
// 同一キー (product_id, forecast_date, scenario) への再実行は上書きになる。
func (s *Store) UpsertForecasts(ctx context.Context, tenantID string, points []models.ForecastPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO demand_forecasts
			(tenant_id, product_id, forecast_date, scenario, predicted_demand, confidence_lower, confidence_upper, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, forecast_date, scenario) DO UPDATE SET
			predicted_demand = excluded.predicted_demand,
			confidence_lower = excluded.confidence_lower,
			confidence_upper = excluded.confidence_upper,
			model_version = excluded.model_version`)
	if err != nil {
		return fmt.Errorf("UPSERTの準備に失敗: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, tenantID, p.ProductID, p.ForecastDate, p.Scenario,
			p.PredictedDemand, p.ConfidenceLower, p.ConfidenceUpper, p.ModelVersion); err != nil {
			return fmt.Errorf("予測ポイントの保存に失敗: %w", err)
		}
	}
	return tx.Commit()
}

// SaveWeather 気象スナップショットをキャッシュに保存します。
// 同一テナント×日付の既存行がある場合は何もしない（並行フェッチの競合を許容する）。
func (s *Store) SaveWeather(ctx context.Context, snapshot *models.WeatherSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO weather_cache (tenant_id, date, temperature, humidity, condition)
		VALUES (?, ?, ?, ?, ?)`,
		snapshot.TenantID, snapshot.Date, snapshot.Temperature, snapshot.Humidity, snapshot.Condition)
	if err != nil {
		return fmt.Errorf("気象キャッシュの保存に失敗: %w", err)
	}
	return nil
}

// InsertAlert アラートを登録します。
func (s *Store) InsertAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, tenant_id, type, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Type, a.Message, a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("アラートの登録に失敗: %w", err)
	}
	return nil
}
