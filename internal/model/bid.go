package model

import "time"

// Bid 出价记录，只追加不修改；唯一会变的是 IsWinning 标记。
// 每个 lot 同一时刻最多一条 is_winning=true，由部分唯一索引兜底。
type Bid struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	LotID  uint  `gorm:"not null;index;uniqueIndex:idx_bids_lot_winning,where:is_winning = true" json:"lot_id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`
	// Amount 是该出价若领先时实际应付的价格；MaxBid 是出价人授权的上限，不对外暴露。
	Amount    int64 `gorm:"not null" json:"amount"`
	MaxBid    int64 `gorm:"not null" json:"-"`
	IsWinning bool  `gorm:"not null;default:false" json:"is_winning"`
	// IsProxy 标记系统代领先者自动加价生成的记录。
	IsProxy bool `gorm:"not null;default:false" json:"is_proxy"`
}

func (Bid) TableName() string { return "bids" }
