package services

import (
	"math"
	"time"
)

// リスクスコアのバンド定義。統計モデルではなく説明可能な固定ヒューリスティック。
const (
	riskExpired      = 1.0 // 期限切れ
	riskWontSellOut  = 0.8 // 期限までに売り切れない見込み
	riskExpiringSoon = 0.6 // 3日以内に期限
	riskLow          = 0.1
)

// expiringSoonWindowDays 「期限間近」と判定する日数
const expiringSoonWindowDays = 3

// ExpirationRiskScore 在庫・平均日販・残日数から期限切れリスクを算出します。
// バンドは順序付きで最初に一致したものが採用される。
func ExpirationRiskScore(currentStock int, avgDailyConsumption float64, daysToExpiry int) float64 {
	if daysToExpiry < 0 {
		return riskExpired
	}
	// 平均日販ゼロの在庫は売り切れ日数が無限大とみなす
	if currentStock > 0 && (avgDailyConsumption <= 0 || float64(currentStock)/avgDailyConsumption > float64(daysToExpiry)) {
		return riskWontSellOut
	}
	if daysToExpiry <= expiringSoonWindowDays {
		return riskExpiringSoon
	}
	return riskLow
}

// DaysToExpiry 賞味期限までの残日数を暦日単位で返します。期限切れは負になる。
func DaysToExpiry(expirationDate time.Time, now time.Time) int {
	exp := time.Date(expirationDate.Year(), expirationDate.Month(), expirationDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(exp.Sub(today).Hours() / 24.0))
}
