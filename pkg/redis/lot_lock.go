package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseLockIfMatch 仅当锁值匹配本次持有者 token 时才删除，避免误删别人续上的锁。
const luaReleaseLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// ErrLockTimeout 在 ctx 结束前仍未拿到锁。
var ErrLockTimeout = errors.New("lot lock: timed out waiting for lock")

// LotLocker 基于 SET NX PX 的 per-lot 分布式锁，多实例部署时替代进程内锁。
// TTL 必须大于一次出价事务的最长耗时，否则锁会在事务提交前过期。
type LotLocker struct {
	rdb   *rd.Client
	ttl   time.Duration
	retry time.Duration
}

// NewLotLocker 创建分布式锁；retry 是抢锁失败后的轮询间隔。
func NewLotLocker(rdb *rd.Client, ttl, retry time.Duration) *LotLocker {
	if retry <= 0 {
		retry = 5 * time.Millisecond
	}
	return &LotLocker{rdb: rdb, ttl: ttl, retry: retry}
}

// Lock 阻塞直到拿到 lot 锁或 ctx 结束。返回的 unlock 只释放自己持有的锁。
func (l *LotLocker) Lock(ctx context.Context, lotID uint) (func(), error) {
	key := LotLockKey(lotID)
	token := uuid.New().String()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(l.retry):
		}
	}

	return func() {
		// 释放不跟随调用方 ctx，避免请求取消后锁只能等 TTL 过期。
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.rdb.Eval(releaseCtx, luaReleaseLockIfMatch, []string{key}, token).Err()
	}, nil
}
