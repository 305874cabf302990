package models

import "time"

// Product 商品マスタ
type Product struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Price          float64    `json:"price"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// InventoryItem テナントごとの在庫レコード
type InventoryItem struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	CurrentStock int     `json:"current_stock"`
	MinStock     int     `json:"min_stock"`
	UnitPrice    float64 `json:"unit_price"`
	// ExpirationDate 商品マスタ由来の賞味期限（未設定の場合はnil）
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// SaleRecord 販売実績レコード（POS同期またはインポート由来）
type SaleRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	ProductID    string    `json:"product_id"`
	Quantity     int       `json:"quantity"`
	Amount       float64   `json:"amount"`
	POSReference string    `json:"pos_reference,omitempty"`
	SaleDate     time.Time `json:"sale_date"`
}

// Donation NGOへの寄付レコード
type Donation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProductID string    `json:"product_id"`
	NGO       string    `json:"ngo"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"` // pending / completed
	CreatedAt time.Time `json:"created_at"`
}

// LegalDocument 法令対応ドキュメント（予防計画・監査レポート等）のステータス
type LegalDocument struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	DocType  string `json:"doc_type"`
	Status   string `json:"status"` // generating / completed / failed
}

// 予測シナリオ
const (
	ScenarioBase       = "base"
	ScenarioOptimistic = "optimistic"
	ScenarioCrisis     = "crisis"
)

// ForecastPoint 需要予測の1日分のポイント。
// (ProductID, ForecastDate, Scenario) が一意キーで、同一キーへの書き込みは上書きされる。
type ForecastPoint struct {
	ProductID       string  `json:"product_id"`
	ForecastDate    string  `json:"date"` // YYYY-MM-DD
	PredictedDemand float64 `json:"predicted_demand"`
	ConfidenceLower float64 `json:"confidence_lower"`
	ConfidenceUpper float64 `json:"confidence_upper"`
	Scenario        string  `json:"scenario"`
	ModelVersion    string  `json:"model_version,omitempty"`
}

// 予測結果の生成元
const (
	ForecastSourceML   = "ml"
	ForecastSourceMock = "mock"
)

// ForecastResult 需要予測の結果セット。Sourceで実予測かモックかを判別できる。
type ForecastResult struct {
	ProductID string          `json:"product_id"`
	Scenario  string          `json:"scenario"`
	Forecast  []ForecastPoint `json:"forecast"`
	Source    string          `json:"source"`
}

// ExpirationRisk 商品ごとの期限切れリスク評価
type ExpirationRisk struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"name"`
	RiskScore    float64 `json:"risk_score"`
	DaysToExpiry int     `json:"days_to_expiry"`
}

// WeatherSnapshot テナント×日付単位の気象スナップショット
type WeatherSnapshot struct {
	TenantID    string  `json:"tenant_id"`
	Date        string  `json:"date"` // YYYY-MM-DD
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Condition   string  `json:"weather_code"`
}

// Alert UI通知用のアラートレコード
type Alert struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// --- ビジネスコンテキスト集約 ---

// CriticalItem 期限間近の要注意在庫
type CriticalItem struct {
	Name         string  `json:"name"`
	Stock        int     `json:"stock"`
	DaysToExpiry int     `json:"days_to_expiry"`
	RiskScore    float64 `json:"risk_score"`
}

// InventoryContext 在庫サブセクション
type InventoryContext struct {
	TotalItems    int            `json:"total_items"`
	TotalValue    float64        `json:"total_value"`
	LowStockItems int            `json:"low_stock_items"`
	ExpiringSoon  int            `json:"expiring_soon_count"`
	CriticalItems []CriticalItem `json:"critical_items"`
}

// TopProduct 販売数上位の商品
type TopProduct struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// SalesContext 売上サブセクション
type SalesContext struct {
	Today       float64      `json:"today"`
	ThisWeek    float64      `json:"this_week"`
	ThisMonth   float64      `json:"this_month"`
	TopProducts []TopProduct `json:"top_products"`
}

// TopNGO 寄付件数上位のNGO
type TopNGO struct {
	NGO   string `json:"ngo"`
	Count int    `json:"count"`
}

// DonationsContext 寄付サブセクション
type DonationsContext struct {
	TotalThisMonth  int      `json:"total_this_month"`
	QuotaPercentage int      `json:"quota_percentage"`
	PendingPickups  int      `json:"pending_pickups"`
	TopNGOs         []TopNGO `json:"top_ngos"`
}

// LegalContext 法令対応サブセクション
type LegalContext struct {
	ComplianceScore  int    `json:"compliance_score"`
	MissingDocuments int    `json:"missing_documents"`
	NextDeadline     string `json:"next_deadline,omitempty"`
}

// トレンド方向
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// PredictedProduct 予測需要上位の商品
type PredictedProduct struct {
	Name         string  `json:"name"`
	PredictedQty float64 `json:"predicted_qty"`
}

// ForecastContext 需要予測サブセクション
type ForecastContext struct {
	NextWeekDemand       float64            `json:"next_week_demand"`
	Trend                string             `json:"trend"`
	TopPredictedProducts []PredictedProduct `json:"top_predicted_products"`
}

// BusinessContext あるテナントの業務状態のスナップショット。
// 各サブセクションはゼロ値が妥当なデフォルトになるよう定義しており、
// 一部のクエリが失敗しても集約全体は常にwell-formedとなる。
type BusinessContext struct {
	Inventory InventoryContext `json:"inventory"`
	Sales     SalesContext     `json:"sales"`
	Donations DonationsContext `json:"donations"`
	Legal     LegalContext     `json:"legal"`
	Forecasts ForecastContext  `json:"forecasts"`
	Alerts    []Alert          `json:"alerts"`
}

// --- POS同期 ---

// POSTransaction POSから受信する1件分の取引
type POSTransaction struct {
	ProductID    string  `json:"product_id"`
	Quantity     int     `json:"quantity"`
	Amount       float64 `json:"amount"`
	POSReference string  `json:"pos_reference"`
	Timestamp    string  `json:"timestamp"`
}

// POSSyncResult POS同期バッチの処理結果
type POSSyncResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// --- アシスタント ---

// ActionableIntent AI回答から検出した実行可能アクション
type ActionableIntent struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Endpoint string `json:"endpoint"`
}

// AssistantMetadata AI回答のメタデータ（テレメトリ用途）
type AssistantMetadata struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Tokens   int     `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
}

// ContextUsed 回答生成に使用したコンテキストの要約
type ContextUsed struct {
	InventoryItems     int     `json:"inventory_items"`
	CriticalItems      int     `json:"critical_items"`
	SalesThisMonth     float64 `json:"sales_this_month"`
	DonationsThisMonth int     `json:"donations_this_month"`
}

// AssistantAnswer アシスタントの回答。LLM障害時はFallbackがtrueになる。
type AssistantAnswer struct {
	Answer            string             `json:"answer"`
	ContextUsed       ContextUsed        `json:"context_used"`
	ActionableIntents []ActionableIntent `json:"actionable_intents"`
	Metadata          *AssistantMetadata `json:"metadata,omitempty"`
	Fallback          bool               `json:"fallback,omitempty"`
	IsConfigError     bool               `json:"is_config_error,omitempty"`
	Error             string             `json:"error,omitempty"`
}
