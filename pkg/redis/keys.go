package redis

import "fmt"

// LotLockKey 单个 lot 的分布式互斥锁，出价与结算共用。
func LotLockKey(lotID uint) string {
	return fmt.Sprintf("timed_auction:lot:lock:%d", lotID)
}

// LotStateKey 存储 lot 的公开快照（当前价、出价数、收拍时间）。
func LotStateKey(lotID uint) string {
	return fmt.Sprintf("timed_auction:lot:state:%d", lotID)
}

// BidRateLimitUserKey 按用户限流出价接口。
func BidRateLimitUserKey(userID int64) string {
	return fmt.Sprintf("rate_limit:timed_auction:bid:user:%d", userID)
}

// BidRateLimitIPKey 解析不到 user_id 时按 IP 限流。
func BidRateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:timed_auction:bid:ip:%s", ip)
}
