package queue

import (
	"context"
	"encoding/json"
	"time"

	rediskey "timed_auction/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

// StreamPublisher 把事件原子写入 Redis Stream（outbox），由 Relay 异步转发 Kafka。
// LotUpdated 同批刷新 lot 快照，读接口不必每次回源 DB。
type StreamPublisher struct {
	rdb      *rd.Client
	stream   string
	stateTTL time.Duration
}

func NewStreamPublisher(rdb *rd.Client, stream string, stateTTL time.Duration) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, stateTTL: stateTTL}
}

// Publish 校验后入流；失败由调用方记录日志，不影响已提交的引擎状态。
func (p *StreamPublisher) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := p.rdb.TxPipeline()
	pipe.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id": e.ID,
			"type":     string(e.Type),
			"payload":  string(payload),
		},
	})
	if e.Type == EventLotUpdated {
		_ = rediskey.PutLotState(ctx, pipe, rediskey.LotState{
			LotID:         e.LotID,
			Status:        e.LotStatus,
			CurrentBid:    e.CurrentBid,
			BidCount:      e.BidCount,
			EndsAt:        e.EndsAt,
			ExtendedCount: e.ExtendedCount,
			Seq:           e.OccurredAt.UnixNano(),
		}, p.stateTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}
