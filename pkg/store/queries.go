package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"negentropy-api/pkg/models"
)

const dateLayout = "2006-01-02"

// ListInventory テナントの全在庫を商品情報付きで取得します。
func (s *Store) ListInventory(ctx context.Context, tenantID string) ([]models.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.tenant_id, i.product_id, p.name, i.current_stock, i.min_stock, i.unit_price, p.expiration_date
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.tenant_id = ?
		ORDER BY p.name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("在庫の取得に失敗: %w", err)
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		var item models.InventoryItem
		var expiration sql.NullString
		if err := rows.Scan(&item.ID, &item.TenantID, &item.ProductID, &item.ProductName,
			&item.CurrentStock, &item.MinStock, &item.UnitPrice, &expiration); err != nil {
			return nil, fmt.Errorf("在庫レコードの読み取りに失敗: %w", err)
		}
		if expiration.Valid && expiration.String != "" {
			if t, err := time.Parse(dateLayout, expiration.String[:10]); err == nil {
				item.ExpirationDate = &t
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SumSales 期間内の売上金額の合計を返します（from以上to未満）。
func (s *Store) SumSales(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM sales
		WHERE tenant_id = ? AND date(sale_date) >= date(?) AND date(sale_date) < date(?)`,
		tenantID, from.Format(dateLayout), to.Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("売上合計の取得に失敗: %w", err)
	}
	return total.Float64, nil
}

// TopSellingProducts 期間内の販売数上位の商品を返します。
func (s *Store) TopSellingProducts(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.TopProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, SUM(s.quantity) AS qty
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE s.tenant_id = ? AND date(s.sale_date) >= date(?)
		GROUP BY s.product_id
		ORDER BY qty DESC
		LIMIT ?`, tenantID, since.Format(dateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("販売上位商品の取得に失敗: %w", err)
	}
	defer rows.Close()

	var products []models.TopProduct
	for rows.Next() {
		var p models.TopProduct
		if err := rows.Scan(&p.Name, &p.Quantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DailySale 1日分の販売実績
type DailySale struct {
	Date     string
	Quantity float64
}

// DailySalesHistory 直近days日分の日次販売数を返します。
// productIDが空の場合はテナント全体の合計になる。
func (s *Store) DailySalesHistory(ctx context.Context, tenantID, productID string, days int) ([]DailySale, error) {
	query := `
		SELECT date(sale_date) AS d, SUM(quantity)
		FROM sales
		WHERE tenant_id = ? AND date(sale_date) >= date('now', ?)`
	args := []interface{}{tenantID, fmt.Sprintf("-%d days", days)}
	if productID != "" {
		query += ` AND product_id = ?`
		args = append(args, productID)
	}
	query += ` GROUP BY d ORDER BY d`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("販売履歴の取得に失敗: %w", err)
	}
	defer rows.Close()

	var history []DailySale
	for rows.Next() {
		var h DailySale
		if err := rows.Scan(&h.Date, &h.Quantity); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// AvgDailySales 直近days日間の平均日次販売数を返します。販売実績が無い場合は0。
func (s *Store) AvgDailySales(ctx context.Context, tenantID, productID string, days int) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(quantity) FROM sales
		WHERE tenant_id = ? AND product_id = ? AND date(sale_date) >= date('now', ?)`,
		tenantID, productID, fmt.Sprintf("-%d days", days)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("平均販売数の取得に失敗: %w", err)
	}
	if days <= 0 {
		return 0, nil
	}
	return total.Float64 / float64(days), nil
}

// CountDonations since以降の寄付件数を返します。
func (s *Store) CountDonations(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM donations
		WHERE tenant_id = ? AND date(created_at) >= date(?)`,
		tenantID, since.Format(dateLayout)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("寄付件数の取得に失敗: %w", err)
	}
	return count, nil
}

// CountPendingPickups 引き取り待ちの寄付件数を返します。
func (s *Store) CountPendingPickups(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM donations WHERE tenant_id = ? AND status = 'pending'`,
		tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("引き取り待ち件数の取得に失敗: %w", err)
	}
	return count, nil
}

// TopNGOs 寄付件数の多いNGOの上位を返します。
func (s *Store) TopNGOs(ctx context.Context, tenantID string, limit int) ([]models.TopNGO, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ngo, COUNT(*) AS c FROM donations
		WHERE tenant_id = ?
		GROUP BY ngo
		ORDER BY c DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("NGOランキングの取得に失敗: %w", err)
	}
	defer rows.Close()

	var ngos []models.TopNGO
	for rows.Next() {
		var n models.TopNGO
		if err := rows.Scan(&n.NGO, &n.Count); err != nil {
			return nil, err
		}
		ngos = append(ngos, n)
	}
	return ngos, rows.Err()
}

// CountMissingLegalDocuments 未完了の法令ドキュメント数を返します。
func (s *Store) CountMissingLegalDocuments(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM legal_documents WHERE tenant_id = ? AND status != 'completed'`,
		tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("法令ドキュメント数の取得に失敗: %w", err)
	}
	return count, nil
}

// ForecastDemandByProduct 期間内の予測需要を商品ごとに合計して降順で返します。
func (s *Store) ForecastDemandByProduct(ctx context.Context, tenantID, scenario, from, to string) ([]models.PredictedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name, SUM(f.predicted_demand) AS demand
		FROM demand_forecasts f
		JOIN products p ON p.id = f.product_id
		WHERE f.tenant_id = ? AND f.scenario = ? AND f.forecast_date >= ? AND f.forecast_date < ?
		GROUP BY f.product_id
		ORDER BY demand DESC`, tenantID, scenario, from, to)
	if err != nil {
		return nil, fmt.Errorf("予測需要の取得に失敗: %w", err)
	}
	defer rows.Close()

	var products []models.PredictedProduct
	for rows.Next() {
		var p models.PredictedProduct
		if err := rows.Scan(&p.Name, &p.PredictedQty); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetForecasts 商品×シナリオの保存済み予測を日付順で返します。
func (s *Store) GetForecasts(ctx context.Context, tenantID, productID, scenario string) ([]models.ForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, forecast_date, scenario, predicted_demand, confidence_lower, confidence_upper, model_version
		FROM demand_forecasts
		WHERE tenant_id = ? AND product_id = ? AND scenario = ?
		ORDER BY forecast_date`, tenantID, productID, scenario)
	if err != nil {
		return nil, fmt.Errorf("保存済み予測の取得に失敗: %w", err)
	}
	defer rows.Close()

	var points []models.ForecastPoint
	for rows.Next() {
		var p models.ForecastPoint
		if err := rows.Scan(&p.ProductID, &p.ForecastDate, &p.Scenario,
			&p.PredictedDemand, &p.ConfidenceLower, &p.ConfidenceUpper, &p.ModelVersion); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetWeather テナント×日付の気象スナップショットを返します。未キャッシュの場合はnil。
func (s *Store) GetWeather(ctx context.Context, tenantID, date string) (*models.WeatherSnapshot, error) {
	var snapshot models.WeatherSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, date, temperature, humidity, condition
		FROM weather_cache WHERE tenant_id = ? AND date = ?`,
		tenantID, date).Scan(&snapshot.TenantID, &snapshot.Date,
		&snapshot.Temperature, &snapshot.Humidity, &snapshot.Condition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("気象キャッシュの取得に失敗: %w", err)
	}
	return &snapshot, nil
}

// ListRecentAlerts 直近のアラートを新しい順で返します。
func (s *Store) ListRecentAlerts(ctx context.Context, tenantID string, limit int) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, type, message, created_at FROM alerts
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("アラートの取得に失敗: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var createdAt string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Type, &a.Message, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			a.CreatedAt = t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
