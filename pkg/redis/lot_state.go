package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaPutLotStateIfNewer 只接受 seq 不小于已存值的快照，防止乱序到达的旧事件覆盖新状态。
// KEYS[1]=快照key，ARGV[1]=seq，ARGV[2]=ttl秒，ARGV[3..]=field/value 对
const luaPutLotStateIfNewer = `
local key = KEYS[1]
local seq = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local cur = tonumber(redis.call('HGET', key, 'seq') or '-1')
if cur > seq then
  return 0
end
redis.call('HSET', key, 'seq', ARGV[1])
for i = 3, #ARGV, 2 do
  redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
if ttl > 0 then
  redis.call('EXPIRE', key, ttl)
end
return 1
`

// LotState 对应 Redis 内的 lot 公开快照。
type LotState struct {
	LotID         uint
	Status        string
	CurrentBid    *int64
	BidCount      int
	EndsAt        *time.Time
	ExtendedCount int
	// Seq 单调递增（取事件发生时间纳秒），用于丢弃旧快照。
	Seq int64
}

// GetLotState 查询 lot 快照。found=false 表示 key 不存在或已过期。
func GetLotState(ctx context.Context, rdb rd.Cmdable, lotID uint) (LotState, bool, error) {
	m, err := rdb.HGetAll(ctx, LotStateKey(lotID)).Result()
	if err != nil {
		return LotState{}, false, err
	}
	if len(m) == 0 {
		return LotState{}, false, nil
	}

	out := LotState{LotID: lotID, Status: m["status"]}
	if v := m["current_bid"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			out.CurrentBid = &n
		}
	}
	if v := m["ends_at"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			out.EndsAt = &ts
		}
	}
	out.BidCount, _ = strconv.Atoi(m["bid_count"])
	out.ExtendedCount, _ = strconv.Atoi(m["extended_count"])
	out.Seq, _ = strconv.ParseInt(m["seq"], 10, 64)
	return out, true, nil
}

// PutLotState 写入快照并刷新 TTL；rdb 可以是 pipeline，与 outbox 写入同批提交。
func PutLotState(ctx context.Context, rdb rd.Cmdable, s LotState, ttl time.Duration) error {
	currentBid := ""
	if s.CurrentBid != nil {
		currentBid = strconv.FormatInt(*s.CurrentBid, 10)
	}
	endsAt := ""
	if s.EndsAt != nil {
		endsAt = s.EndsAt.UTC().Format(time.RFC3339Nano)
	}
	return rdb.Eval(ctx, luaPutLotStateIfNewer, []string{LotStateKey(s.LotID)},
		s.Seq, int64(ttl/time.Second),
		"status", s.Status,
		"current_bid", currentBid,
		"bid_count", s.BidCount,
		"ends_at", endsAt,
		"extended_count", s.ExtendedCount,
	).Err()
}
