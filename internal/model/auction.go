package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuctionStatus 拍卖会状态，只能单向推进：draft → preview → live → ended。
type AuctionStatus string

const (
	AuctionDraft   AuctionStatus = "draft"
	AuctionPreview AuctionStatus = "preview"
	AuctionLive    AuctionStatus = "live"
	AuctionEnded   AuctionStatus = "ended"
)

// Auction 一场限时拍卖会，下挂多个 Lot。
type Auction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title    string        `gorm:"size:128;not null" json:"title"`
	Status   AuctionStatus `gorm:"size:16;not null;default:draft;index" json:"status"`
	StartsAt time.Time     `gorm:"not null" json:"starts_at"`
	// EndsAt 是第一个 lot 的收拍时间，后续 lot 依次错开。
	EndsAt time.Time `gorm:"not null" json:"ends_at"`

	BuyersPremiumPercent    decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"buyers_premium_percent"`
	AutoExtendMinutes       int             `gorm:"not null;default:0" json:"auto_extend_minutes"`
	LotCloseIntervalSeconds int             `gorm:"not null;default:0" json:"lot_close_interval_seconds"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

func (Auction) TableName() string { return "auctions" }

// AutoExtend 返回防狙击延时窗口，0 表示关闭。
func (a Auction) AutoExtend() time.Duration {
	return time.Duration(a.AutoExtendMinutes) * time.Minute
}

// CloseInterval 相邻两个 lot 的收拍间隔。
func (a Auction) CloseInterval() time.Duration {
	return time.Duration(a.LotCloseIntervalSeconds) * time.Second
}
