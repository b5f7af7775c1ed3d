package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timed_auction/internal/model"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/workpool"
)

// SweepResult 一轮 sweep 的统计。
type SweepResult struct {
	Due       int // 已过收拍时间、仍在进行中的 lot 数
	Settled   int
	Failed    int
	Finalized int // 本轮完成汇总的拍卖会数
}

// Sweep 结算所有已过收拍时间的 lot，然后重试汇总所有 lot 都已定案的拍卖会。
// 可任意重复执行：已结算的 lot 会被守卫跳过，发票有唯一约束。
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	now := e.now()

	var open []model.Lot
	if err := e.db.WithContext(ctx).
		Where("status IN ? AND ends_at IS NOT NULL", []model.LotStatus{model.LotUpcoming, model.LotLive}).
		Order("ends_at ASC, id ASC").
		Find(&open).Error; err != nil {
		return SweepResult{}, fmt.Errorf("load open lots: %w", err)
	}

	// 时间比较放在内存里做，避免依赖数据库的时间类型。
	due := make([]uint, 0, len(open))
	for _, lot := range open {
		if lot.Closed(now) {
			due = append(due, lot.ID)
		}
	}

	res := SweepResult{Due: len(due)}
	if len(due) > 0 {
		var mu sync.Mutex
		works := make([]func(), 0, len(due))
		for _, lotID := range due {
			lotID := lotID
			works = append(works, func() {
				out, err := e.closeLot(ctx, lotID, closeOnTimer)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed++
					e.logger.Error("settle lot failed", slog.Uint64("lot_id", uint64(lotID)), slog.Any("error", err))
					return
				}
				if out.Changed {
					res.Settled++
				}
				if out.AuctionFinalized {
					res.Finalized++
				}
			})
		}
		throttler, err := workpool.NewThrottler(e.sweepWorkers, works)
		if err != nil {
			return res, fmt.Errorf("create sweep throttler: %w", err)
		}
		throttler.Work()
	}

	// 上一轮汇总失败或 lot 通过管理员操作定案的拍卖会，在这里补做。
	var live []model.Auction
	if err := e.db.WithContext(ctx).Where("status = ?", model.AuctionLive).Find(&live).Error; err != nil {
		return res, fmt.Errorf("load live auctions: %w", err)
	}
	for _, a := range live {
		finalized, _, err := e.finalizeAuction(ctx, a.ID)
		if err != nil {
			res.Failed++
			e.logger.Error("finalize auction failed", slog.Uint64("auction_id", uint64(a.ID)), slog.Any("error", err))
			continue
		}
		if finalized {
			res.Finalized++
		}
	}

	if res.Due > 0 || res.Finalized > 0 || res.Failed > 0 {
		e.logger.Info("sweep done",
			slog.Int("due", res.Due),
			slog.Int("settled", res.Settled),
			slog.Int("finalized", res.Finalized),
			slog.Int("failed", res.Failed))
	}
	return res, nil
}

// Sweeper 按固定间隔调用 Engine.Sweep，直到 ctx 取消。
type Sweeper struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(e *Engine, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.NewClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		engine:   e,
		clock:    clk,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C():
			if _, err := s.engine.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", slog.Any("error", err))
			}
		}
	}
}
