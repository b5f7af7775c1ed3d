package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Sink 是 relay 的下游，生产环境为 Kafka Producer。
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Relay 将 Redis Stream 事件异步转发到 Kafka。
// 语义：发布 Kafka 成功后才 ACK Stream，失败则保留消息等待重试（at-least-once，下游按 event id 去重）。
type Relay struct {
	rdb    *rd.Client
	sink   Sink
	logger *slog.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, sink Sink, logger *slog.Logger, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:      rdb,
		sink:     sink,
		logger:   logger.With(slog.String("component", "relay")),
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

// Run 阻塞运行直到 ctx 取消。
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ensureGroup(ctx); err != nil {
		return fmt.Errorf("relay ensure group: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := r.drain(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			r.logger.Warn("relay drain failed", slog.Any("error", err))
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// drain 先处理本消费者历史 pending，再读新消息；返回成功转发条数。
// block < 0 表示不阻塞。
func (r *Relay) drain(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := r.readGroup(ctx, "0", -1)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = r.readGroup(ctx, ">", block)
		if err != nil {
			return 0, fmt.Errorf("read new: %w", err)
		}
	}

	done := 0
	for _, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			// 发布失败不 ACK，消息会继续保留用于重试；保持顺序，直接跳出。
			return done, fmt.Errorf("process message id=%s: %w", xm.ID, err)
		}
		done++
	}
	return done, nil
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	e, err := parseEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.logger.Warn("relay dropped malformed event",
			slog.String("stream_id", xm.ID),
			slog.Any("error", err))
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.sink.Publish(pubCtx, e); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseEvent(values map[string]interface{}) (Event, error) {
	eventID, err := getStreamString(values, "event_id")
	if err != nil {
		return Event{}, err
	}
	typ, err := getStreamString(values, "type")
	if err != nil {
		return Event{}, err
	}
	payload, err := getStreamString(values, "payload")
	if err != nil {
		return Event{}, err
	}

	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("invalid payload: %w", err)
	}
	if e.ID != eventID {
		return Event{}, fmt.Errorf("event_id mismatch: %q vs %q", eventID, e.ID)
	}
	if string(e.Type) != typ {
		return Event{}, fmt.Errorf("type mismatch: %q vs %q", typ, e.Type)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
