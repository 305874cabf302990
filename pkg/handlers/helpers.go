package handlers

import (
	"github.com/gin-gonic/gin"
)

const defaultTenantID = "default"

// tenantFromRequest はX-Tenant-IDヘッダーからテナントIDを取得する。
// 未指定の場合はシングルテナント運用向けのデフォルト値を返す。
func tenantFromRequest(c *gin.Context) string {
	if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
		return tenantID
	}
	return defaultTenantID
}
