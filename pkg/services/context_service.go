package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

// 寄付クォータの算出パラメータ。余剰の20%の寄付が法令上の目安。
const donationQuotaRatio = 0.20

// criticalItemsLimit コンテキストに含める要注意在庫の上限
const criticalItemsLimit = 5

// defaultComplianceScore 算出根拠となるデータが無い場合の既定スコア
const defaultComplianceScore = 75

// ContextService テナントの業務状態を集約してLLM向けコンテキストを構築するサービス
type ContextService struct {
	store *store.Store
	now   func() time.Time
}

// NewContextService 新しいコンテキスト集約サービスを作成
func NewContextService(st *store.Store) *ContextService {
	return &ContextService{store: st, now: time.Now}
}

// BuildContext テナントの業務コンテキストを構築します。
// 各セクションは独立に取得し、失敗したセクションはログを残してゼロ値のままにする。
// 一部のクエリ障害で集約全体が失敗することはない。
func (s *ContextService) BuildContext(ctx context.Context, tenantID string) *models.BusinessContext {
	bc := &models.BusinessContext{}
	bc.Legal.ComplianceScore = defaultComplianceScore

	var wg sync.WaitGroup
	run := func(section string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Printf("⚠️ コンテキスト取得に失敗 (%s): %v", section, err)
			}
		}()
	}

	run("inventory", func() error { return s.buildInventory(ctx, tenantID, &bc.Inventory) })
	run("sales", func() error { return s.buildSales(ctx, tenantID, &bc.Sales) })
	run("donations", func() error { return s.buildDonations(ctx, tenantID, &bc.Donations) })
	run("legal", func() error { return s.buildLegal(ctx, tenantID, &bc.Legal) })
	run("forecasts", func() error { return s.buildForecasts(ctx, tenantID, &bc.Forecasts) })
	run("alerts", func() error {
		alerts, err := s.store.ListRecentAlerts(ctx, tenantID, 5)
		if err != nil {
			return err
		}
		bc.Alerts = alerts
		return nil
	})
	wg.Wait()

	// クォータは在庫と寄付の両セクションに依存するため集約後に計算する
	bc.Donations.QuotaPercentage = donationQuotaPercentage(bc.Donations.TotalThisMonth, bc.Inventory.ExpiringSoon)
	return bc
}

func (s *ContextService) buildInventory(ctx context.Context, tenantID string, ic *models.InventoryContext) error {
	items, err := s.store.ListInventory(ctx, tenantID)
	if err != nil {
		return err
	}

	now := s.now()
	var critical []models.CriticalItem
	for _, item := range items {
		ic.TotalItems++
		ic.TotalValue += float64(item.CurrentStock) * item.UnitPrice
		if item.CurrentStock < item.MinStock {
			ic.LowStockItems++
		}
		if item.ExpirationDate == nil {
			continue
		}
		days := DaysToExpiry(*item.ExpirationDate, now)
		if days > 0 && days <= expiringSoonWindowDays {
			ic.ExpiringSoon++
			avgDaily, err := s.store.AvgDailySales(ctx, tenantID, item.ProductID, 30)
			if err != nil {
				avgDaily = 0
			}
			critical = append(critical, models.CriticalItem{
				Name:         item.ProductName,
				Stock:        item.CurrentStock,
				DaysToExpiry: days,
				RiskScore:    ExpirationRiskScore(item.CurrentStock, avgDaily, days),
			})
		}
	}

	// 期限が近い順に上位のみ保持
	sort.SliceStable(critical, func(i, j int) bool {
		return critical[i].DaysToExpiry < critical[j].DaysToExpiry
	})
	if len(critical) > criticalItemsLimit {
		critical = critical[:criticalItemsLimit]
	}
	ic.CriticalItems = critical
	return nil
}

func (s *ContextService) buildSales(ctx context.Context, tenantID string, sc *models.SalesContext) error {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)
	weekStart := today.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var err error
	if sc.Today, err = s.store.SumSales(ctx, tenantID, today, tomorrow); err != nil {
		return err
	}
	if sc.ThisWeek, err = s.store.SumSales(ctx, tenantID, weekStart, tomorrow); err != nil {
		return err
	}
	if sc.ThisMonth, err = s.store.SumSales(ctx, tenantID, monthStart, tomorrow); err != nil {
		return err
	}

	sc.TopProducts, err = s.store.TopSellingProducts(ctx, tenantID, monthStart, 3)
	return err
}

func (s *ContextService) buildDonations(ctx context.Context, tenantID string, dc *models.DonationsContext) error {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var err error
	if dc.TotalThisMonth, err = s.store.CountDonations(ctx, tenantID, monthStart); err != nil {
		return err
	}
	if dc.PendingPickups, err = s.store.CountPendingPickups(ctx, tenantID); err != nil {
		return err
	}
	dc.TopNGOs, err = s.store.TopNGOs(ctx, tenantID, 3)
	return err
}

func (s *ContextService) buildLegal(ctx context.Context, tenantID string, lc *models.LegalContext) error {
	missing, err := s.store.CountMissingLegalDocuments(ctx, tenantID)
	if err != nil {
		return err
	}
	lc.MissingDocuments = missing
	return nil
}

func (s *ContextService) buildForecasts(ctx context.Context, tenantID string, fc *models.ForecastContext) error {
	now := s.now()
	from := now.Format("2006-01-02")
	to := now.AddDate(0, 0, 7).Format("2006-01-02")

	predicted, err := s.store.ForecastDemandByProduct(ctx, tenantID, models.ScenarioBase, from, to)
	if err != nil {
		return err
	}
	for _, p := range predicted {
		fc.NextWeekDemand += p.PredictedQty
	}
	if len(predicted) > 3 {
		predicted = predicted[:3]
	}
	fc.TopPredictedProducts = predicted

	// 直近7日間の実販売数と比較してトレンドを判定
	history, err := s.store.DailySalesHistory(ctx, tenantID, "", 7)
	if err != nil {
		return err
	}
	var actual float64
	for _, h := range history {
		actual += h.Quantity
	}
	fc.Trend = forecastTrend(fc.NextWeekDemand, actual)
	return nil
}

// donationQuotaPercentage 寄付クォータ達成率。余剰が無い場合は100（自明に達成）。
func donationQuotaPercentage(donationsThisMonth, expiringSoonCount int) int {
	denominator := float64(expiringSoonCount) * donationQuotaRatio
	if denominator == 0 {
		return 100
	}
	return int(math.Round(float64(donationsThisMonth) / denominator * 100))
}

// forecastTrend 次週予測と直近実績の比較。±10%以内はstable。
func forecastTrend(forecast, actual float64) string {
	switch {
	case forecast > actual*1.10:
		return models.TrendUp
	case forecast < actual*0.90:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// ContextToText 業務コンテキストをLLMプロンプト向けのテキストに整形します。
// セクションの順序は固定で、空のリストを持つ見出しは出力しない。
func ContextToText(bc *models.BusinessContext) string {
	var b strings.Builder

	b.WriteString("# Business Context\n\n")

	b.WriteString("## Inventory Overview\n")
	fmt.Fprintf(&b, "- Total items in stock: %d\n", bc.Inventory.TotalItems)
	fmt.Fprintf(&b, "- Total inventory value: €%.2f\n", bc.Inventory.TotalValue)
	fmt.Fprintf(&b, "- Low stock items: %d\n", bc.Inventory.LowStockItems)
	fmt.Fprintf(&b, "- Items expiring soon (within 3 days): %d\n", bc.Inventory.ExpiringSoon)

	if len(bc.Inventory.CriticalItems) > 0 {
		b.WriteString("\n### Critical Items (High Risk):\n")
		for _, item := range bc.Inventory.CriticalItems {
			fmt.Fprintf(&b, "- **%s**: %d units, expires in %d days (Risk: %.0f%%)\n",
				item.Name, item.Stock, item.DaysToExpiry, item.RiskScore*100)
		}
	}

	b.WriteString("\n## Sales Performance\n")
	fmt.Fprintf(&b, "- Sales today: €%.2f\n", bc.Sales.Today)
	fmt.Fprintf(&b, "- Sales this week: €%.2f\n", bc.Sales.ThisWeek)
	fmt.Fprintf(&b, "- Sales this month: €%.2f\n", bc.Sales.ThisMonth)

	if len(bc.Sales.TopProducts) > 0 {
		b.WriteString("\n### Top Selling Products:\n")
		for _, p := range bc.Sales.TopProducts {
			fmt.Fprintf(&b, "- %s: %d units\n", p.Name, p.Quantity)
		}
	}

	b.WriteString("\n## AI Demand Forecast (Prophet Model)\n")
	fmt.Fprintf(&b, "- Projected demand next 7 days: %.0f units\n", bc.Forecasts.NextWeekDemand)
	fmt.Fprintf(&b, "- Trend: %s (vs last week)\n", strings.ToUpper(bc.Forecasts.Trend))

	if len(bc.Forecasts.TopPredictedProducts) > 0 {
		b.WriteString("\n### Top Predicted Demand (Next 7 Days):\n")
		for _, p := range bc.Forecasts.TopPredictedProducts {
			fmt.Fprintf(&b, "- %s: %.0f units\n", p.Name, p.PredictedQty)
		}
	}

	b.WriteString("\n## Donations & Compliance\n")
	fmt.Fprintf(&b, "- Donations this month: %d items\n", bc.Donations.TotalThisMonth)
	fmt.Fprintf(&b, "- Donation quota met: %d%% (Law requires 20%% of surplus)\n", bc.Donations.QuotaPercentage)
	fmt.Fprintf(&b, "- Pending pickups: %d\n", bc.Donations.PendingPickups)

	if len(bc.Donations.TopNGOs) > 0 {
		b.WriteString("\n### Partner NGOs:\n")
		for _, ngo := range bc.Donations.TopNGOs {
			fmt.Fprintf(&b, "- %s: %d donations\n", ngo.NGO, ngo.Count)
		}
	}

	b.WriteString("\n## Legal Compliance\n")
	fmt.Fprintf(&b, "- Compliance score: %d/100\n", bc.Legal.ComplianceScore)
	fmt.Fprintf(&b, "- Missing/incomplete documents: %d\n", bc.Legal.MissingDocuments)

	if len(bc.Alerts) > 0 {
		b.WriteString("\n## Active Alerts\n")
		for _, a := range bc.Alerts {
			fmt.Fprintf(&b, "- [%s] %s\n", a.Type, a.Message)
		}
	}

	return b.String()
}
