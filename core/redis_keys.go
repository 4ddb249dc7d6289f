package core

import "time"

// Redis キーのプレフィックスと TTL をまとめた定数。
const (
	RevokedTokenPrefix = "auth:revoked:"
	LoginMetricsPrefix = "metrics:login:"
	// LoginMetricsTTL は日別ログイン集計キーの保持期間。
	LoginMetricsTTL = 8 * 24 * time.Hour
)

// RevokedTokenKey returns the Redis key marking a token id as logged out.
func RevokedTokenKey(tokenID string) string {
	return RevokedTokenPrefix + tokenID
}

// LoginMetricsKey returns the daily counter key for a login result ("success" or "failure").
func LoginMetricsKey(result string, day time.Time) string {
	return LoginMetricsPrefix + result + ":" + day.UTC().Format("20060102")
}
