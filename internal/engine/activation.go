package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timed_auction/internal/model"
	"timed_auction/internal/queue"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivationResult struct {
	AuctionID       uint
	LotsInitialized int
	IntervalSeconds int
	FirstCloseAt    time.Time
	LastCloseAt     time.Time
}

// ActivateAuction 拍卖会上线：按 lot_number 升序错峰分配收拍时间，
// lot[0] = auction.ends_at，之后每个 lot 比前一个晚 lot_close_interval_seconds。
// 所有 lot 的写入和状态切换在同一事务内，失败则拍卖会不会变成 live。
func (e *Engine) ActivateAuction(ctx context.Context, auctionID uint) (ActivationResult, error) {
	var res ActivationResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var auction model.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&auction, auctionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("load auction: %w", err)
		}
		if auction.Status == model.AuctionLive || auction.Status == model.AuctionEnded {
			return ErrAuctionNotActivatable
		}

		now := e.now()
		if !auction.EndsAt.After(now) {
			return ErrAuctionEndInPast
		}

		var lots []model.Lot
		if err := tx.Where("auction_id = ? AND status <> ?", auction.ID, model.LotWithdrawn).
			Order("lot_number ASC").
			Find(&lots).Error; err != nil {
			return fmt.Errorf("load lots: %w", err)
		}
		if len(lots) == 0 {
			return ErrAuctionHasNoLots
		}

		closeAt := auction.EndsAt.UTC()
		for i := range lots {
			if i > 0 {
				closeAt = closeAt.Add(auction.CloseInterval())
			}
			if err := tx.Model(&model.Lot{}).Where("id = ?", lots[i].ID).Updates(map[string]any{
				"ends_at": closeAt,
				"status":  model.LotLive,
			}).Error; err != nil {
				return fmt.Errorf("schedule lot %d: %w", lots[i].ID, err)
			}
			if i == 0 {
				res.FirstCloseAt = closeAt
			}
			res.LastCloseAt = closeAt
		}

		if err := tx.Model(&model.Auction{}).Where("id = ?", auction.ID).Updates(map[string]any{
			"status":       model.AuctionLive,
			"activated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("mark auction live: %w", err)
		}

		res.AuctionID = auction.ID
		res.LotsInitialized = len(lots)
		res.IntervalSeconds = auction.LotCloseIntervalSeconds
		return nil
	})
	if err != nil {
		return ActivationResult{}, err
	}

	e.logger.Info("auction activated",
		slog.Uint64("auction_id", uint64(res.AuctionID)),
		slog.Int("lots", res.LotsInitialized),
		slog.Int("interval_seconds", res.IntervalSeconds),
		slog.Time("first_close_at", res.FirstCloseAt),
		slog.Time("last_close_at", res.LastCloseAt))
	e.publish(ctx, queue.AuctionActivated(e.now(), res.AuctionID, res.LotsInitialized))
	return res, nil
}

// PreviewAuction draft → preview，只允许单向推进。
func (e *Engine) PreviewAuction(ctx context.Context, auctionID uint) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var auction model.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&auction, auctionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("load auction: %w", err)
		}
		switch auction.Status {
		case model.AuctionPreview:
			return nil
		case model.AuctionDraft:
			return tx.Model(&model.Auction{}).Where("id = ?", auction.ID).Update("status", model.AuctionPreview).Error
		default:
			return ErrAuctionNotActivatable
		}
	})
}
