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

// BidRequest 一次代理出价：Amount 是出价人填写的出价，MaxBid 是授权上限。
type BidRequest struct {
	LotID  uint
	UserID int64
	Amount int64
	MaxBid int64
}

// BidStatus 出价受理后的结果。
type BidStatus string

const (
	// BidWinning 本次出价成为领先者。
	BidWinning BidStatus = "winning"
	// BidOutbid 出价已记录，但原领先者上限更高（或相同且更早），仍由其领先。
	BidOutbid BidStatus = "outbid"
	// BidCeilingRaised 领先者提高了自己的上限，价格不变。
	BidCeilingRaised BidStatus = "ceiling_raised"
)

type BidResult struct {
	Status          BidStatus
	BidID           uint
	CurrentPrice    int64
	WinningUserID   int64
	IsCallerWinning bool
	NewEndsAt       time.Time
	Extended        bool
	BidCount        int
	ExtendedCount   int
}

// PlaceBid 受理一次代理出价。读当前领先者、计算价格、切换 is_winning、
// 更新 lot 和防狙击延时全部在同一把 lot 锁和同一个事务里完成。
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (BidResult, error) {
	if req.LotID == 0 || req.UserID <= 0 {
		return BidResult{}, fmt.Errorf("%w: lot_id and user_id are required", ErrInvalidBid)
	}
	if req.Amount <= 0 {
		return BidResult{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidBid)
	}
	if req.MaxBid < req.Amount {
		return BidResult{}, fmt.Errorf("%w: max_bid must be >= amount", ErrInvalidBid)
	}

	ok, err := e.payments.HasPaymentMethod(ctx, req.UserID)
	if err != nil {
		return BidResult{}, fmt.Errorf("check payment method: %w", err)
	}
	if !ok {
		return BidResult{}, ErrNoPaymentMethod
	}

	unlock, err := e.locker.Lock(ctx, req.LotID)
	if err != nil {
		return BidResult{}, fmt.Errorf("lock lot %d: %w", req.LotID, err)
	}

	var (
		res    BidResult
		events []queue.Event
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		res, events, txErr = e.resolveBid(tx, req)
		return txErr
	})
	unlock()
	if err != nil {
		return BidResult{}, err
	}

	e.logger.Info("bid accepted",
		slog.Uint64("lot_id", uint64(req.LotID)),
		slog.Int64("user_id", req.UserID),
		slog.String("status", string(res.Status)),
		slog.Int64("current_price", res.CurrentPrice),
		slog.Bool("extended", res.Extended))
	e.publish(ctx, events...)
	return res, nil
}

func (e *Engine) resolveBid(tx *gorm.DB, req BidRequest) (BidResult, []queue.Event, error) {
	lot, auction, err := lockLot(tx, req.LotID)
	if err != nil {
		return BidResult{}, nil, err
	}

	now := e.now()
	if auction.Status != model.AuctionLive || lot.Status != model.LotLive || lot.EndsAt == nil || lot.Closed(now) {
		return BidResult{}, nil, ErrLotClosed
	}
	deadline := *lot.EndsAt

	winner, err := currentWinner(tx, lot.ID)
	if err != nil {
		return BidResult{}, nil, err
	}

	var (
		res    BidResult
		events []queue.Event
		price  int64
		leader int64
	)

	switch {
	case winner != nil && winner.UserID == req.UserID:
		// 领先者再次出价只能用来提高上限。
		if req.MaxBid <= winner.MaxBid {
			return BidResult{}, nil, ErrAlreadyWinning
		}
		if err := clearWinning(tx, winner); err != nil {
			return BidResult{}, nil, err
		}
		bid := &model.Bid{LotID: lot.ID, UserID: req.UserID, Amount: winner.Amount, MaxBid: req.MaxBid, IsWinning: true}
		if err := insertBid(tx, bid, now); err != nil {
			return BidResult{}, nil, err
		}
		res.Status, res.BidID = BidCeilingRaised, bid.ID
		price, leader = winner.Amount, req.UserID

	case winner == nil:
		minValid := e.schedule.MinNext(lot.StartingBid)
		if req.MaxBid < minValid {
			return BidResult{}, nil, &BidTooLowError{Minimum: minValid}
		}
		amount := lot.StartingBid
		if e.firstBidPolicy == FirstBidAtStatedAmount && req.Amount > amount {
			amount = req.Amount
		}
		bid := &model.Bid{LotID: lot.ID, UserID: req.UserID, Amount: amount, MaxBid: req.MaxBid, IsWinning: true}
		if err := insertBid(tx, bid, now); err != nil {
			return BidResult{}, nil, err
		}
		res.Status, res.BidID = BidWinning, bid.ID
		price, leader = amount, req.UserID

	default:
		minValid := e.schedule.MinNext(winner.Amount)
		if req.MaxBid < minValid {
			return BidResult{}, nil, &BidTooLowError{Minimum: minValid}
		}

		if req.MaxBid > winner.MaxBid {
			// 新上限更高：新出价领先，只付到刚好压过原上限的价格。
			amount := min(req.MaxBid, winner.MaxBid+e.schedule.For(winner.MaxBid))
			if err := clearWinning(tx, winner); err != nil {
				return BidResult{}, nil, err
			}
			bid := &model.Bid{LotID: lot.ID, UserID: req.UserID, Amount: amount, MaxBid: req.MaxBid, IsWinning: true}
			if err := insertBid(tx, bid, now); err != nil {
				return BidResult{}, nil, err
			}
			res.Status, res.BidID = BidWinning, bid.ID
			price, leader = amount, req.UserID
			events = append(events, queue.Outbid(now, winner.UserID, lot.ID))
			break
		}

		// 上限不高于领先者（相同上限先到先得）：记录为未领先，领先者自动加价。
		bid := &model.Bid{LotID: lot.ID, UserID: req.UserID, Amount: req.Amount, MaxBid: req.MaxBid}
		if err := insertBid(tx, bid, now); err != nil {
			return BidResult{}, nil, err
		}
		res.Status, res.BidID = BidOutbid, bid.ID
		price, leader = winner.Amount, winner.UserID

		raised := min(winner.MaxBid, req.MaxBid+e.schedule.For(req.MaxBid))
		if raised > winner.Amount {
			if err := clearWinning(tx, winner); err != nil {
				return BidResult{}, nil, err
			}
			proxy := &model.Bid{LotID: lot.ID, UserID: winner.UserID, Amount: raised, MaxBid: winner.MaxBid, IsWinning: true, IsProxy: true}
			if err := insertBid(tx, proxy, now); err != nil {
				return BidResult{}, nil, err
			}
			price = raised
		}
	}

	lot.CurrentBid = &price
	lot.WinningBidderID = &leader
	lot.BidCount++
	res.Extended = e.applySoftClose(&lot, auction, now)

	// 提交前再看一次时钟：收拍时刻之前没提交的出价一律拒绝。
	if !e.now().Before(deadline) {
		return BidResult{}, nil, ErrLotClosed
	}

	if err := tx.Model(&model.Lot{}).Where("id = ?", lot.ID).Updates(map[string]any{
		"current_bid":       price,
		"winning_bidder_id": leader,
		"bid_count":         lot.BidCount,
		"ends_at":           *lot.EndsAt,
		"extended_count":    lot.ExtendedCount,
	}).Error; err != nil {
		return BidResult{}, nil, fmt.Errorf("update lot: %w", err)
	}

	res.CurrentPrice = price
	res.WinningUserID = leader
	res.IsCallerWinning = leader == req.UserID
	res.NewEndsAt = *lot.EndsAt
	res.BidCount = lot.BidCount
	res.ExtendedCount = lot.ExtendedCount

	events = append([]queue.Event{lotUpdatedEvent(now, lot)}, events...)
	return res, events, nil
}

// applySoftClose 防狙击：剩余时间不超过延时窗口时，把收拍时间设为 now+窗口。
// 对每个被受理的出价都生效，包括没有改变领先者的出价。
func (e *Engine) applySoftClose(lot *model.Lot, auction model.Auction, now time.Time) bool {
	window := auction.AutoExtend()
	if window <= 0 || lot.EndsAt == nil {
		return false
	}
	if lot.EndsAt.Sub(now) > window {
		return false
	}
	if e.maxExtensions > 0 && lot.ExtendedCount >= e.maxExtensions {
		return false
	}
	next := now.Add(window)
	if next.Before(*lot.EndsAt) {
		next = *lot.EndsAt
	}
	lot.EndsAt = &next
	lot.ExtendedCount++
	return true
}

// lockLot 行锁读取 lot 及其拍卖会。SQLite 下 FOR UPDATE 被忽略，由事务写锁和 Locker 兜底。
func lockLot(tx *gorm.DB, lotID uint) (model.Lot, model.Auction, error) {
	var lot model.Lot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, lotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Lot{}, model.Auction{}, ErrLotNotFound
		}
		return model.Lot{}, model.Auction{}, fmt.Errorf("load lot: %w", err)
	}
	var auction model.Auction
	if err := tx.First(&auction, lot.AuctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Lot{}, model.Auction{}, ErrAuctionNotFound
		}
		return model.Lot{}, model.Auction{}, fmt.Errorf("load auction: %w", err)
	}
	return lot, auction, nil
}

func currentWinner(tx *gorm.DB, lotID uint) (*model.Bid, error) {
	var bid model.Bid
	err := tx.Where("lot_id = ? AND is_winning = ?", lotID, true).Take(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load winning bid: %w", err)
	}
	return &bid, nil
}

func clearWinning(tx *gorm.DB, bid *model.Bid) error {
	if err := tx.Model(&model.Bid{}).Where("id = ?", bid.ID).Update("is_winning", false).Error; err != nil {
		return fmt.Errorf("clear winning bid %d: %w", bid.ID, err)
	}
	return nil
}

func insertBid(tx *gorm.DB, bid *model.Bid, now time.Time) error {
	bid.CreatedAt = now
	if err := tx.Create(bid).Error; err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func lotUpdatedEvent(now time.Time, lot model.Lot) queue.Event {
	return queue.LotUpdated(now, queue.LotSnapshot{
		LotID:         lot.ID,
		AuctionID:     lot.AuctionID,
		Status:        string(lot.Status),
		CurrentBid:    lot.CurrentBid,
		BidCount:      lot.BidCount,
		EndsAt:        lot.EndsAt,
		ExtendedCount: lot.ExtendedCount,
	})
}
