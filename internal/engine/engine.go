// Package engine 是出价与结算引擎：代理出价、防狙击延时、错峰激活、收拍结算。
// lot 的 current_bid / ends_at / winning_bidder_id / extended_count 只在本包的
// per-lot 锁 + 数据库事务内修改。
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timed_auction/internal/increment"
	"timed_auction/internal/queue"

	"code.cloudfoundry.org/clock"
	"gorm.io/gorm"
)

// PaymentGate 外部支付服务：出价前确认用户已绑定可用支付方式。
type PaymentGate interface {
	HasPaymentMethod(ctx context.Context, userID int64) (bool, error)
}

// Publisher 事件出口（通知、支付扣款、实时推送）。失败只记日志，不回滚引擎状态。
type Publisher interface {
	Publish(ctx context.Context, e queue.Event) error
}

// ChargeQuote 生成账单时交给外部服务计算税费与运费的输入。
type ChargeQuote struct {
	AuctionID uint
	UserID    int64
	Subtotal  int64
	LotCount  int
}

// Charges 计算税费和运费。在汇总账单的事务内调用，实现不得使用引擎的 DB 连接。
type Charges interface {
	Quote(ctx context.Context, q ChargeQuote) (tax int64, shipping int64, err error)
}

// Locker 提供 per-lot 互斥；不同 lot 之间互不阻塞。
type Locker interface {
	Lock(ctx context.Context, lotID uint) (unlock func(), err error)
}

// FirstBidPolicy 决定没有领先者时首个出价的应付金额。
type FirstBidPolicy string

const (
	// FirstBidAtStartingBid 首个出价按起拍价成交，出价人填写的 amount 只作为上限参考。
	FirstBidAtStartingBid FirstBidPolicy = "starting_bid"
	// FirstBidAtStatedAmount 首个出价取起拍价与出价人填写 amount 的较大者。
	FirstBidAtStatedAmount FirstBidPolicy = "stated_amount"
)

// DefaultFirstBidPolicy 与 "起拍价即首口价" 的常见做法一致。
const DefaultFirstBidPolicy = FirstBidAtStartingBid

// ParseFirstBidPolicy 解析配置值。
func ParseFirstBidPolicy(s string) (FirstBidPolicy, error) {
	switch FirstBidPolicy(s) {
	case FirstBidAtStartingBid, FirstBidAtStatedAmount:
		return FirstBidPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown first bid policy %q", s)
	}
}

// Options 构造 Engine 的依赖；DB 与 Payments 必填，其余有默认值。
type Options struct {
	DB        *gorm.DB
	Payments  PaymentGate
	Clock     clock.Clock
	Locker    Locker
	Schedule  increment.Schedule
	Charges   Charges
	Publisher Publisher
	Logger    *slog.Logger

	FirstBidPolicy FirstBidPolicy
	// MaxExtensions 每个 lot 最多延时次数，0 表示不限。
	MaxExtensions int
	// SweepWorkers 一次 sweep 内并行结算的 lot 数。
	SweepWorkers int
	// PublishTimeout 提交后发布事件的超时。
	PublishTimeout time.Duration
}

type Engine struct {
	db        *gorm.DB
	payments  PaymentGate
	clock     clock.Clock
	locker    Locker
	schedule  increment.Schedule
	charges   Charges
	publisher Publisher
	logger    *slog.Logger

	firstBidPolicy FirstBidPolicy
	maxExtensions  int
	sweepWorkers   int
	publishTimeout time.Duration
}

func New(opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("engine: DB is required")
	}
	if opts.Payments == nil {
		return nil, fmt.Errorf("engine: Payments is required")
	}
	if opts.MaxExtensions < 0 {
		return nil, fmt.Errorf("engine: MaxExtensions must be >= 0")
	}

	e := &Engine{
		db:             opts.DB,
		payments:       opts.Payments,
		clock:          opts.Clock,
		locker:         opts.Locker,
		schedule:       opts.Schedule,
		charges:        opts.Charges,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		firstBidPolicy: opts.FirstBidPolicy,
		maxExtensions:  opts.MaxExtensions,
		sweepWorkers:   opts.SweepWorkers,
		publishTimeout: opts.PublishTimeout,
	}
	if e.clock == nil {
		e.clock = clock.NewClock()
	}
	if e.locker == nil {
		e.locker = NewMemoryLocker()
	}
	if len(e.schedule.Tiers()) == 0 {
		e.schedule = increment.Default()
	}
	if e.charges == nil {
		e.charges = NoCharges{}
	}
	if e.publisher == nil {
		e.publisher = discardPublisher{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.firstBidPolicy == "" {
		e.firstBidPolicy = DefaultFirstBidPolicy
	}
	if _, err := ParseFirstBidPolicy(string(e.firstBidPolicy)); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if e.sweepWorkers <= 0 {
		e.sweepWorkers = 4
	}
	if e.publishTimeout <= 0 {
		e.publishTimeout = 5 * time.Second
	}
	e.logger = e.logger.With(slog.String("component", "engine"))
	return e, nil
}

// Schedule 返回引擎使用的加价表。
func (e *Engine) Schedule() increment.Schedule { return e.schedule }

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

// publish 在事务提交、锁释放之后调用；调用方 ctx 取消也照常发出。
func (e *Engine) publish(ctx context.Context, events ...queue.Event) {
	if len(events) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.publishTimeout)
	defer cancel()
	for _, ev := range events {
		if err := e.publisher.Publish(pubCtx, ev); err != nil {
			e.logger.Warn("publish event failed",
				slog.String("event_type", string(ev.Type)),
				slog.String("event_id", ev.ID),
				slog.Any("error", err))
		}
	}
}

// NoCharges 不收税费与运费。
type NoCharges struct{}

func (NoCharges) Quote(context.Context, ChargeQuote) (int64, int64, error) { return 0, 0, nil }

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, queue.Event) error { return nil }
