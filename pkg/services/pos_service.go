package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

// POSService POSシステムからの販売データ同期とファイルインポート。
// 同期成功後はバックグラウンドで対象商品の需要予測を更新する。
type POSService struct {
	store    *store.Store
	forecast *ForecastService
}

// NewPOSService 新しいPOS同期サービスを作成
func NewPOSService(st *store.Store, forecast *ForecastService) *POSService {
	return &POSService{store: st, forecast: forecast}
}

// SyncTransactions POS取引のバッチを取り込みます。
// 1件の失敗は結果に記録するだけでバッチ全体は止めない。
func (s *POSService) SyncTransactions(ctx context.Context, tenantID string, transactions []models.POSTransaction) *models.POSSyncResult {
	result := &models.POSSyncResult{Errors: []string{}}
	touched := make(map[string]bool)

	log.Printf("🔵 POS同期を開始: tenant=%s, %d件", tenantID, len(transactions))

	for i, txn := range transactions {
		if txn.ProductID == "" || txn.Quantity <= 0 {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("取引%d: product_idと正の数量が必要です", i))
			continue
		}

		saleDate := time.Now()
		if txn.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339, txn.Timestamp); err == nil {
				saleDate = t
			}
		}

		sale := &models.SaleRecord{
			TenantID:     tenantID,
			ProductID:    txn.ProductID,
			Quantity:     txn.Quantity,
			Amount:       txn.Amount,
			POSReference: txn.POSReference,
			SaleDate:     saleDate,
		}
		if err := s.store.InsertSale(ctx, sale); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("取引%d: %v", i, err))
			continue
		}
		if err := s.store.DecrementInventory(ctx, tenantID, txn.ProductID, txn.Quantity); err != nil {
			log.Printf("⚠️ 在庫の減算に失敗 product=%s: %v", txn.ProductID, err)
		}

		result.Success++
		touched[txn.ProductID] = true
	}

	// 売れた商品の予測をバックグラウンドで更新
	if s.forecast != nil && len(touched) > 0 {
		go func(products map[string]bool) {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for productID := range products {
				s.forecast.Forecast(bgCtx, tenantID, productID, 7, models.ScenarioBase, nil)
			}
		}(touched)
	}

	log.Printf("✅ POS同期完了: 成功=%d, 失敗=%d", result.Success, result.Failed)
	return result
}

// ImportSalesFile Excel/CSVファイルから販売実績を取り込みます。
// 必須列: 日付(date/fecha)、商品ID(product_id)、数量(quantity/cantidad)。金額列は任意。
func (s *POSService) ImportSalesFile(ctx context.Context, tenantID, fileName string, file io.Reader) (*models.POSSyncResult, error) {
	var rows [][]string
	var err error

	switch {
	case strings.HasSuffix(strings.ToLower(fileName), ".xlsx"):
		f, openErr := excelize.OpenReader(file)
		if openErr != nil {
			return nil, fmt.Errorf("Excelファイルの読み込みに失敗: %w", openErr)
		}
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("Excelシートの行取得に失敗: %w", err)
		}
	case strings.HasSuffix(strings.ToLower(fileName), ".csv"):
		rows, err = csv.NewReader(file).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("CSVファイルの解析に失敗: %w", err)
		}
	default:
		return nil, fmt.Errorf("サポートされていないファイル形式です: %s", fileName)
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("ファイルにはヘッダー行と少なくとも1行のデータが必要です")
	}

	header := rows[0]
	dateCol := findColumn(header, "date", "fecha", "sale_date", "日付")
	productCol := findColumn(header, "product_id", "producto", "product", "商品ID")
	quantityCol := findColumn(header, "quantity", "cantidad", "qty", "数量")
	amountCol := findColumn(header, "amount", "importe", "total", "金額")

	if dateCol == -1 || productCol == -1 || quantityCol == -1 {
		return nil, fmt.Errorf("必須列が見つかりません (date, product_id, quantity)。ヘッダー: %v", header)
	}

	transactions := make([]models.POSTransaction, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if productCol >= len(row) || quantityCol >= len(row) || dateCol >= len(row) {
			continue
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(row[quantityCol]))
		if err != nil {
			continue
		}
		amount := 0.0
		if amountCol != -1 && amountCol < len(row) {
			amount, _ = strconv.ParseFloat(strings.TrimSpace(row[amountCol]), 64)
		}

		timestamp := ""
		if t, err := parseImportDate(strings.TrimSpace(row[dateCol])); err == nil {
			timestamp = t.Format(time.RFC3339)
		}

		transactions = append(transactions, models.POSTransaction{
			ProductID: strings.TrimSpace(row[productCol]),
			Quantity:  quantity,
			Amount:    amount,
			Timestamp: timestamp,
		})
	}

	return s.SyncTransactions(ctx, tenantID, transactions), nil
}

// findColumn ヘッダー行から候補名のいずれかに一致する列のインデックスを返します。
func findColumn(header []string, candidates ...string) int {
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		for _, candidate := range candidates {
			if name == strings.ToLower(candidate) {
				return i
			}
		}
	}
	return -1
}

// parseImportDate インポートファイルで使われがちな日付形式を順に試します。
func parseImportDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2006/01/02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("日付の解析に失敗: %s", value)
}
