package services

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

func newContextTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "context.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildContext(t *testing.T) {
	st := newContextTestStore(t)
	svc := NewContextService(st)
	ctx := context.Background()
	now := time.Now()

	expSoon := now.AddDate(0, 0, 2)
	expLater := now.AddDate(0, 0, 30)

	milk := &models.Product{TenantID: "tenant-1", Name: "牛乳", Price: 2.5, ExpirationDate: &expSoon}
	bread := &models.Product{TenantID: "tenant-1", Name: "パン", Price: 1.2, ExpirationDate: &expLater}
	require.NoError(t, st.InsertProduct(ctx, milk))
	require.NoError(t, st.InsertProduct(ctx, bread))

	require.NoError(t, st.UpsertInventory(ctx, &models.InventoryItem{
		TenantID: "tenant-1", ProductID: milk.ID, CurrentStock: 10, MinStock: 5, UnitPrice: 2.5,
	}))
	require.NoError(t, st.UpsertInventory(ctx, &models.InventoryItem{
		TenantID: "tenant-1", ProductID: bread.ID, CurrentStock: 2, MinStock: 5, UnitPrice: 1.2,
	}))

	require.NoError(t, st.InsertSale(ctx, &models.SaleRecord{
		TenantID: "tenant-1", ProductID: milk.ID, Quantity: 4, Amount: 10.0, SaleDate: now,
	}))
	require.NoError(t, st.InsertDonation(ctx, &models.Donation{
		TenantID: "tenant-1", ProductID: milk.ID, NGO: "Banco de Alimentos", Quantity: 3,
		Status: "pending", CreatedAt: now,
	}))

	bc := svc.BuildContext(ctx, "tenant-1")

	assert.Equal(t, 2, bc.Inventory.TotalItems)
	assert.InDelta(t, 10*2.5+2*1.2, bc.Inventory.TotalValue, 0.0001)
	assert.Equal(t, 1, bc.Inventory.LowStockItems)
	assert.Equal(t, 1, bc.Inventory.ExpiringSoon)
	require.Len(t, bc.Inventory.CriticalItems, 1)
	assert.Equal(t, "牛乳", bc.Inventory.CriticalItems[0].Name)
	// 在庫10、平均日販4/30、残2日 → 売り切れない見込みのバンド
	assert.Equal(t, 0.8, bc.Inventory.CriticalItems[0].RiskScore)

	assert.InDelta(t, 10.0, bc.Sales.Today, 0.0001)
	require.Len(t, bc.Sales.TopProducts, 1)
	assert.Equal(t, "牛乳", bc.Sales.TopProducts[0].Name)

	assert.Equal(t, 1, bc.Donations.TotalThisMonth)
	assert.Equal(t, 1, bc.Donations.PendingPickups)
	// 1件 / (1 × 0.20) × 100 = 500%
	assert.Equal(t, 500, bc.Donations.QuotaPercentage)

	assert.Equal(t, defaultComplianceScore, bc.Legal.ComplianceScore)
	assert.Equal(t, models.TrendDown, bc.Forecasts.Trend)
}

func TestBuildContext_EmptyTenant(t *testing.T) {
	st := newContextTestStore(t)
	svc := NewContextService(st)

	bc := svc.BuildContext(context.Background(), "empty-tenant")

	// データが無くてもwell-formedなゼロ値の集約が返る
	assert.Equal(t, 0, bc.Inventory.TotalItems)
	assert.Empty(t, bc.Inventory.CriticalItems)
	assert.Equal(t, 0.0, bc.Sales.Today)
	// 余剰が無い場合クォータは自明に100
	assert.Equal(t, 100, bc.Donations.QuotaPercentage)
	assert.Equal(t, models.TrendStable, bc.Forecasts.Trend)
}

func TestDonationQuotaPercentage(t *testing.T) {
	// 分母0では寄付件数に関わらず100
	assert.Equal(t, 100, donationQuotaPercentage(0, 0))
	assert.Equal(t, 100, donationQuotaPercentage(50, 0))

	// 5件の期限間近 × 20% = 1件が目標
	assert.Equal(t, 100, donationQuotaPercentage(1, 5))
	assert.Equal(t, 200, donationQuotaPercentage(2, 5))
	assert.Equal(t, 0, donationQuotaPercentage(0, 5))
}

func TestForecastTrend(t *testing.T) {
	assert.Equal(t, models.TrendUp, forecastTrend(120, 100))
	assert.Equal(t, models.TrendDown, forecastTrend(80, 100))
	assert.Equal(t, models.TrendStable, forecastTrend(105, 100))
	assert.Equal(t, models.TrendStable, forecastTrend(95, 100))
	assert.Equal(t, models.TrendStable, forecastTrend(0, 0))
}

func TestContextToText(t *testing.T) {
	bc := &models.BusinessContext{}
	bc.Inventory.TotalItems = 42
	bc.Inventory.TotalValue = 1234.5
	bc.Inventory.CriticalItems = []models.CriticalItem{
		{Name: "Leche Entera", Stock: 12, DaysToExpiry: 2, RiskScore: 0.8},
	}
	bc.Sales.Today = 150.75
	bc.Sales.TopProducts = []models.TopProduct{{Name: "Pan", Quantity: 30}}
	bc.Forecasts.NextWeekDemand = 210
	bc.Forecasts.Trend = models.TrendUp
	bc.Donations.QuotaPercentage = 100
	bc.Legal.ComplianceScore = 75

	text := ContextToText(bc)

	assert.Contains(t, text, "# Business Context")
	assert.Contains(t, text, "- Total items in stock: 42")
	assert.Contains(t, text, "- Total inventory value: €1234.50")
	assert.Contains(t, text, "### Critical Items (High Risk):")
	assert.Contains(t, text, "- **Leche Entera**: 12 units, expires in 2 days (Risk: 80%)")
	assert.Contains(t, text, "- Sales today: €150.75")
	assert.Contains(t, text, "### Top Selling Products:")
	assert.Contains(t, text, "- Trend: UP (vs last week)")
	assert.Contains(t, text, "- Donation quota met: 100% (Law requires 20% of surplus)")
	assert.Contains(t, text, "- Compliance score: 75/100")
}

func TestContextToText_OmitsEmptySections(t *testing.T) {
	bc := &models.BusinessContext{}
	bc.Forecasts.Trend = models.TrendStable

	text := ContextToText(bc)

	// 空のリストを持つ見出しは出力されない
	assert.NotContains(t, text, "Critical Items")
	assert.NotContains(t, text, "Top Selling Products")
	assert.NotContains(t, text, "Top Predicted Demand")
	assert.NotContains(t, text, "Partner NGOs")
	assert.NotContains(t, text, "Active Alerts")

	// 常設セクションは残る
	assert.Contains(t, text, "## Inventory Overview")
	assert.Contains(t, text, "## Sales Performance")
	assert.Contains(t, text, "## Legal Compliance")
	assert.False(t, strings.Contains(text, "N/A"))
}
