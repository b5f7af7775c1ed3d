package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	rediskey "timed_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit：Redis 滑动窗口限流（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前毫秒时间戳，ARGV[2]=窗口起点，ARGV[3]=窗口毫秒数，ARGV[4]=member，ARGV[5]=limit
// 返回窗口内请求数；超限返回 -1
var luaRateLimit = rd.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
end
return -1
`)

// BidRateLimit 出价接口限流：按 body 里的 user_id，解析不到时按 IP。
// Redis 不可用时放行，出价正确性由引擎保证，限流只是保护。
func BidRateLimit(rdb rd.Scripter, limit int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	windowMs := window.Milliseconds()
	return func(c *gin.Context) {
		var key string
		if userID, err := extractUserID(c); err == nil && userID > 0 {
			key = rediskey.BidRateLimitUserKey(userID)
		} else {
			key = rediskey.BidRateLimitIPKey(c.ClientIP())
		}

		now := time.Now().UnixMilli()
		member := fmt.Sprintf("%d-%s", now, uuid.NewString())
		res, err := luaRateLimit.Run(c.Request.Context(), rdb, []string{key},
			now, now-windowMs, windowMs, member, limit).Int()
		if err != nil {
			logger.Warn("rate limit check failed, allowing request",
				slog.String("key", key), slog.Any("error", err))
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "出价过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}

// extractUserID 从请求 body 中解析 user_id，读完后把 body 放回去。
func extractUserID(c *gin.Context) (int64, error) {
	if c.Request.Body == nil {
		return 0, io.EOF
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return 0, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return 0, err
	}
	return req.UserID, nil
}
