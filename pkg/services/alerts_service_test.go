package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negentropy-api/pkg/models"
	"negentropy-api/pkg/store"
)

func seedExpiringItem(t *testing.T, st *store.Store, tenantID, name string, stock, daysToExpiry int) {
	t.Helper()
	ctx := context.Background()
	exp := time.Now().AddDate(0, 0, daysToExpiry)
	p := &models.Product{TenantID: tenantID, Name: name, Price: 1.5, ExpirationDate: &exp}
	require.NoError(t, st.InsertProduct(ctx, p))
	require.NoError(t, st.UpsertInventory(ctx, &models.InventoryItem{
		TenantID: tenantID, ProductID: p.ID, CurrentStock: stock, MinStock: 1, UnitPrice: 1.5,
	}))
}

func TestRunDailyAlerts(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := NewAlertsService(st)
	ctx := context.Background()

	seedExpiringItem(t, st, "tenant-1", "Yogur", 8, 0)     // 今日期限 → -50%
	seedExpiringItem(t, st, "tenant-1", "Leche", 12, 1)    // 明日期限 → -20%
	seedExpiringItem(t, st, "tenant-1", "Arroz", 30, 60)   // 窓の外
	seedExpiringItem(t, st, "tenant-1", "Queso", 0, 1)     // 在庫ゼロは対象外

	result, err := svc.RunDailyAlerts(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	var messages []string
	for _, a := range result.Alerts {
		assert.Equal(t, "expiration_warning", a.Type)
		messages = append(messages, a.Message)
	}
	combined := ""
	for _, m := range messages {
		combined += m + "\n"
	}
	assert.Contains(t, combined, "Yogur")
	assert.Contains(t, combined, "-50%")
	assert.Contains(t, combined, "Leche")
	assert.Contains(t, combined, "-20%")
	assert.NotContains(t, combined, "Arroz")
	assert.NotContains(t, combined, "Queso")

	// アラートがUI通知用に保存されている
	saved, err := st.ListRecentAlerts(ctx, "tenant-1", 10)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestRunDailyAlerts_NoExpiringItems(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := NewAlertsService(st)

	result, err := svc.RunDailyAlerts(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, result.Alerts)
}
