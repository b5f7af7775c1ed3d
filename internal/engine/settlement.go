package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timed_auction/internal/model"
	"timed_auction/internal/queue"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// closeAction 是进入收拍逻辑的几个入口，全部走 closeLot 同一条路径。
type closeAction int

const (
	closeOnTimer    closeAction = iota // 定时 sweep：只处理已过收拍时间的 lot
	closeNow                           // 管理员立即结束
	closeRelease                       // 保留价未达，管理员放行给当前出价人
	closeMarkUnsold                    // 保留价未达，管理员确认流拍
)

func (a closeAction) String() string {
	switch a {
	case closeOnTimer:
		return "timer"
	case closeNow:
		return "end_now"
	case closeRelease:
		return "release_to_bidder"
	case closeMarkUnsold:
		return "mark_unsold"
	default:
		return "unknown"
	}
}

// SettlementOutcome 单个 lot 的结算结果。Changed=false 表示本次是幂等空操作。
type SettlementOutcome struct {
	LotID       uint
	AuctionID   uint
	Status      model.LotStatus
	Changed     bool
	WinnerID    *int64
	HammerPrice *int64
	// AuctionFinalized 本次调用触发了整场拍卖会的账单汇总。
	AuctionFinalized bool
	InvoicesCreated  int
}

// SettleLot 定时结算入口：收拍时间已过且仍在进行中的 lot 才会被处理。
func (e *Engine) SettleLot(ctx context.Context, lotID uint) (SettlementOutcome, error) {
	return e.closeLot(ctx, lotID, closeOnTimer)
}

// EndLotNow 管理员立即结束 lot，不等收拍时间；ends_at 保持不变。
func (e *Engine) EndLotNow(ctx context.Context, lotID uint) (SettlementOutcome, error) {
	return e.closeLot(ctx, lotID, closeNow)
}

// ReleaseToBidder 保留价未达时接受当前出价，按成交处理。
func (e *Engine) ReleaseToBidder(ctx context.Context, lotID uint) (SettlementOutcome, error) {
	return e.closeLot(ctx, lotID, closeRelease)
}

// MarkUnsold 保留价未达时确认流拍。
func (e *Engine) MarkUnsold(ctx context.Context, lotID uint) (SettlementOutcome, error) {
	return e.closeLot(ctx, lotID, closeMarkUnsold)
}

func (e *Engine) closeLot(ctx context.Context, lotID uint, action closeAction) (SettlementOutcome, error) {
	out, ev, err := e.settleLocked(ctx, lotID, action)
	if err != nil {
		return SettlementOutcome{}, err
	}
	if !out.Changed {
		return out, nil
	}

	e.logger.Info("lot settled",
		slog.Uint64("lot_id", uint64(out.LotID)),
		slog.String("action", action.String()),
		slog.String("status", string(out.Status)))
	e.publish(ctx, ev)

	if out.Status.Terminal() {
		finalized, invoices, err := e.finalizeAuction(ctx, out.AuctionID)
		if err != nil {
			// lot 已结算；汇总失败留给下一轮 sweep 重试。
			e.logger.Error("finalize auction failed",
				slog.Uint64("auction_id", uint64(out.AuctionID)),
				slog.Any("error", err))
		}
		out.AuctionFinalized = finalized
		out.InvoicesCreated = invoices
	}
	return out, nil
}

// settleLocked 在 lot 锁和事务内完成状态切换与 InvoiceItem 写入，二者同生共死。
func (e *Engine) settleLocked(ctx context.Context, lotID uint, action closeAction) (SettlementOutcome, queue.Event, error) {
	unlock, err := e.locker.Lock(ctx, lotID)
	if err != nil {
		return SettlementOutcome{}, queue.Event{}, fmt.Errorf("lock lot %d: %w", lotID, err)
	}
	defer unlock()

	var (
		out SettlementOutcome
		ev  queue.Event
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, auction, err := lockLot(tx, lotID)
		if err != nil {
			return err
		}
		now := e.now()
		out = SettlementOutcome{
			LotID:       lot.ID,
			AuctionID:   lot.AuctionID,
			Status:      lot.Status,
			WinnerID:    lot.WinningBidderID,
			HammerPrice: lot.CurrentBid,
		}

		next, err := nextStatus(lot, auction, action, now)
		if err != nil || next == "" {
			return err
		}

		if err := tx.Model(&model.Lot{}).Where("id = ?", lot.ID).Update("status", next).Error; err != nil {
			return fmt.Errorf("update lot status: %w", err)
		}
		lot.Status = next

		if next == model.LotSold {
			winner, err := currentWinner(tx, lot.ID)
			if err != nil {
				return err
			}
			if winner == nil || lot.CurrentBid == nil {
				return fmt.Errorf("lot %d has bids but no winning bid", lot.ID)
			}
			if winner.Amount != *lot.CurrentBid {
				return fmt.Errorf("lot %d current_bid %d does not match winning bid %d", lot.ID, *lot.CurrentBid, winner.Amount)
			}
			if err := tx.Model(&model.Lot{}).Where("id = ?", lot.ID).Update("winning_bidder_id", winner.UserID).Error; err != nil {
				return fmt.Errorf("record winner: %w", err)
			}
			lot.WinningBidderID = &winner.UserID

			item := model.InvoiceItem{
				AuctionID:  lot.AuctionID,
				UserID:     winner.UserID,
				LotID:      lot.ID,
				WinningBid: winner.Amount,
				CreatedAt:  now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "lot_id"}},
				DoNothing: true,
			}).Create(&item).Error; err != nil {
				return fmt.Errorf("insert invoice item: %w", err)
			}
		}

		out.Status = lot.Status
		out.Changed = true
		out.WinnerID = lot.WinningBidderID
		ev = lotUpdatedEvent(now, lot)
		return nil
	})
	if err != nil {
		return SettlementOutcome{}, queue.Event{}, err
	}
	return out, ev, nil
}

// nextStatus 是收拍守卫：返回空状态表示幂等空操作。
func nextStatus(lot model.Lot, auction model.Auction, action closeAction, now time.Time) (model.LotStatus, error) {
	switch action {
	case closeOnTimer:
		if !lot.Status.Open() || !lot.Closed(now) {
			return "", nil
		}
		return hammerStatus(lot), nil
	case closeNow:
		if !lot.Status.Open() {
			return "", nil
		}
		if auction.Status != model.AuctionLive {
			return "", ErrInvalidLotState
		}
		return hammerStatus(lot), nil
	case closeRelease:
		if lot.Status == model.LotSold {
			return "", nil
		}
		if lot.Status != model.LotReserveNotMet {
			return "", ErrInvalidLotState
		}
		return model.LotSold, nil
	case closeMarkUnsold:
		if lot.Status == model.LotUnsold {
			return "", nil
		}
		if lot.Status != model.LotReserveNotMet {
			return "", ErrInvalidLotState
		}
		return model.LotUnsold, nil
	default:
		return "", fmt.Errorf("unknown close action %d", action)
	}
}

func hammerStatus(lot model.Lot) model.LotStatus {
	if lot.BidCount == 0 || lot.CurrentBid == nil {
		return model.LotUnsold
	}
	if lot.ReservePrice != nil && *lot.CurrentBid < *lot.ReservePrice {
		return model.LotReserveNotMet
	}
	return model.LotSold
}

// WithdrawLot 撤拍：只允许尚无出价、仍在进行中的 lot。
func (e *Engine) WithdrawLot(ctx context.Context, lotID uint) (SettlementOutcome, error) {
	unlock, err := e.locker.Lock(ctx, lotID)
	if err != nil {
		return SettlementOutcome{}, fmt.Errorf("lock lot %d: %w", lotID, err)
	}

	var (
		out SettlementOutcome
		ev  queue.Event
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, _, err := lockLot(tx, lotID)
		if err != nil {
			return err
		}
		out = SettlementOutcome{LotID: lot.ID, AuctionID: lot.AuctionID, Status: lot.Status}
		if lot.Status == model.LotWithdrawn {
			return nil
		}
		if !lot.Status.Open() || lot.BidCount > 0 {
			return ErrInvalidLotState
		}
		if err := tx.Model(&model.Lot{}).Where("id = ?", lot.ID).Update("status", model.LotWithdrawn).Error; err != nil {
			return fmt.Errorf("withdraw lot: %w", err)
		}
		lot.Status = model.LotWithdrawn
		out.Status = lot.Status
		out.Changed = true
		ev = lotUpdatedEvent(e.now(), lot)
		return nil
	})
	unlock()
	if err != nil {
		return SettlementOutcome{}, err
	}
	if !out.Changed {
		return out, nil
	}

	e.logger.Info("lot withdrawn", slog.Uint64("lot_id", uint64(out.LotID)))
	e.publish(ctx, ev)
	finalized, invoices, err := e.finalizeAuction(ctx, out.AuctionID)
	if err != nil {
		e.logger.Error("finalize auction failed",
			slog.Uint64("auction_id", uint64(out.AuctionID)),
			slog.Any("error", err))
	}
	out.AuctionFinalized = finalized
	out.InvoicesCreated = invoices
	return out, nil
}

// finalizeAuction 所有 lot 都到终态后，按用户汇总 InvoiceItem 生成 Invoice 并把拍卖会置为 ended。
// (auction_id, user_id) 唯一约束保证重复 sweep 不会重复开票。
func (e *Engine) finalizeAuction(ctx context.Context, auctionID uint) (bool, int, error) {
	var (
		created   []model.Invoice
		finalized bool
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var auction model.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&auction, auctionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("load auction: %w", err)
		}
		if auction.Status != model.AuctionLive {
			return nil
		}

		var pending int64
		if err := tx.Model(&model.Lot{}).
			Where("auction_id = ? AND status NOT IN ?", auction.ID,
				[]model.LotStatus{model.LotSold, model.LotUnsold, model.LotWithdrawn}).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("count open lots: %w", err)
		}
		if pending > 0 {
			return nil
		}

		var items []model.InvoiceItem
		if err := tx.Where("auction_id = ? AND invoice_id IS NULL", auction.ID).
			Order("user_id ASC, lot_id ASC").
			Find(&items).Error; err != nil {
			return fmt.Errorf("load invoice items: %w", err)
		}

		now := e.now()
		for _, group := range groupByUser(items) {
			inv, isNew, err := e.createInvoice(ctx, tx, auction, group, now)
			if err != nil {
				return err
			}
			if isNew {
				created = append(created, inv)
			}
		}

		if err := tx.Model(&model.Auction{}).Where("id = ?", auction.ID).Update("status", model.AuctionEnded).Error; err != nil {
			return fmt.Errorf("mark auction ended: %w", err)
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if !finalized {
		return false, 0, nil
	}

	e.logger.Info("auction finalized",
		slog.Uint64("auction_id", uint64(auctionID)),
		slog.Int("invoices", len(created)))

	now := e.now()
	events := make([]queue.Event, 0, 2*len(created))
	for _, inv := range created {
		events = append(events,
			queue.Won(now, inv.UserID, inv.ID),
			queue.ChargeRequested(now, inv.ID, inv.Total))
	}
	e.publish(ctx, events...)
	return true, len(created), nil
}

func (e *Engine) createInvoice(ctx context.Context, tx *gorm.DB, auction model.Auction, items []model.InvoiceItem, now time.Time) (model.Invoice, bool, error) {
	userID := items[0].UserID
	var subtotal int64
	for _, it := range items {
		subtotal += it.WinningBid
	}
	premium := BuyersPremium(subtotal, auction.BuyersPremiumPercent)

	tax, shipping, err := e.charges.Quote(ctx, ChargeQuote{
		AuctionID: auction.ID,
		UserID:    userID,
		Subtotal:  subtotal,
		LotCount:  len(items),
	})
	if err != nil {
		return model.Invoice{}, false, fmt.Errorf("quote charges for user %d: %w", userID, err)
	}

	inv := model.Invoice{
		InvoiceNo:     newInvoiceNo(now),
		AuctionID:     auction.ID,
		UserID:        userID,
		Subtotal:      subtotal,
		BuyersPremium: premium,
		Tax:           tax,
		Shipping:      shipping,
		Total:         subtotal + premium + tax + shipping,
		Status:        model.InvoicePendingPayment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "auction_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&inv)
	if res.Error != nil {
		return model.Invoice{}, false, fmt.Errorf("insert invoice: %w", res.Error)
	}
	isNew := res.RowsAffected > 0
	if !isNew {
		if err := tx.Where("auction_id = ? AND user_id = ?", auction.ID, userID).First(&inv).Error; err != nil {
			return model.Invoice{}, false, fmt.Errorf("load existing invoice: %w", err)
		}
	}

	if err := tx.Model(&model.InvoiceItem{}).
		Where("auction_id = ? AND user_id = ? AND invoice_id IS NULL", auction.ID, userID).
		Update("invoice_id", inv.ID).Error; err != nil {
		return model.Invoice{}, false, fmt.Errorf("attach invoice items: %w", err)
	}
	return inv, isNew, nil
}

// BuyersPremium = subtotal × percent / 100，四舍五入到整数货币单位。
func BuyersPremium(subtotal int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// groupByUser 假定 items 已按 user_id 排序。
func groupByUser(items []model.InvoiceItem) [][]model.InvoiceItem {
	var groups [][]model.InvoiceItem
	for i, it := range items {
		if i == 0 || it.UserID != items[i-1].UserID {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], it)
	}
	return groups
}

func newInvoiceNo(now time.Time) string {
	return "INV-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
