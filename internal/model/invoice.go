package model

import "time"

// InvoiceStatus 账单状态；扣款结果由外部支付服务异步回写，不在本服务内。
type InvoiceStatus string

const (
	InvoicePendingPayment InvoiceStatus = "pending_payment"
)

// InvoiceItem 每个成交 lot 一条，lot_id 唯一保证结算重入不会重复入账。
type InvoiceItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID  *uint `gorm:"index" json:"invoice_id"`
	AuctionID  uint  `gorm:"not null;index:idx_invoice_items_auction_user,priority:1" json:"auction_id"`
	UserID     int64 `gorm:"not null;index:idx_invoice_items_auction_user,priority:2" json:"user_id"`
	LotID      uint  `gorm:"not null;uniqueIndex" json:"lot_id"`
	WinningBid int64 `gorm:"not null" json:"winning_bid"` // 落槌价
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// Invoice 每个 (user, auction) 一张，汇总该用户在本场拍到的全部 lot。
type Invoice struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceNo string `gorm:"size:32;uniqueIndex;not null" json:"invoice_no"`
	AuctionID uint   `gorm:"not null;uniqueIndex:idx_invoices_auction_user,priority:1" json:"auction_id"`
	UserID    int64  `gorm:"not null;uniqueIndex:idx_invoices_auction_user,priority:2" json:"user_id"`

	Subtotal      int64         `gorm:"not null" json:"subtotal"`
	BuyersPremium int64         `gorm:"not null" json:"buyers_premium"`
	Tax           int64         `gorm:"not null;default:0" json:"tax"`
	Shipping      int64         `gorm:"not null;default:0" json:"shipping"`
	Total         int64         `gorm:"not null" json:"total"`
	Status        InvoiceStatus `gorm:"size:24;not null" json:"status"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }
