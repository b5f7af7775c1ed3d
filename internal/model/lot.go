package model

import (
	"time"

	"gorm.io/gorm"
)

// LotStatus 描述单个拍品的生命周期。
type LotStatus string

const (
	LotUpcoming      LotStatus = "upcoming"
	LotLive          LotStatus = "live"
	LotSold          LotStatus = "sold"
	LotUnsold        LotStatus = "unsold"
	LotReserveNotMet LotStatus = "reserve_not_met"
	LotWithdrawn     LotStatus = "withdrawn"
)

// Open 表示 lot 仍可能接受出价或等待结算。
func (s LotStatus) Open() bool {
	return s == LotUpcoming || s == LotLive
}

// Terminal 表示 lot 已定案，可以参与发票汇总。
// reserve_not_met 不是终态，需要管理员放行或流拍。
func (s LotStatus) Terminal() bool {
	return s == LotSold || s == LotUnsold || s == LotWithdrawn
}

// Lot 拍品。CurrentBid/EndsAt/WinningBidderID/ExtendedCount 只能由出价与结算事务修改。
type Lot struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AuctionID uint   `gorm:"not null;uniqueIndex:idx_lots_auction_number,priority:1" json:"auction_id"`
	LotNumber int    `gorm:"not null;uniqueIndex:idx_lots_auction_number,priority:2" json:"lot_number"`
	Title     string `gorm:"size:128;not null" json:"title"`

	StartingBid  int64  `gorm:"not null" json:"starting_bid"`
	ReservePrice *int64 `json:"reserve_price,omitempty"`
	// CurrentBid 为空表示还没有出价；否则等于当前 is_winning 那条 Bid 的 amount。
	CurrentBid      *int64     `json:"current_bid"`
	BidCount        int        `gorm:"not null;default:0" json:"bid_count"`
	EndsAt          *time.Time `json:"ends_at"`
	ExtendedCount   int        `gorm:"not null;default:0" json:"extended_count"`
	Status          LotStatus  `gorm:"size:16;not null;default:upcoming;index" json:"status"`
	WinningBidderID *int64     `gorm:"index" json:"winning_bidder_id"`
}

func (Lot) TableName() string { return "lots" }

// Closed 判断 now 时刻 lot 是否已过收拍时间。未激活的 lot 视为未关闭。
func (l Lot) Closed(now time.Time) bool {
	return l.EndsAt != nil && !now.Before(*l.EndsAt)
}
