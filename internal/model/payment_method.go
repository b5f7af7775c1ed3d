package model

import "time"

// PaymentMethod 用户登记的支付方式，只保存外部支付服务返回的引用。
type PaymentMethod struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID    int64  `gorm:"not null;uniqueIndex" json:"user_id"`
	Reference string `gorm:"size:128;not null" json:"reference"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// All 返回需要 AutoMigrate 的全部模型。
func All() []any {
	return []any{
		&Auction{},
		&Lot{},
		&Bid{},
		&InvoiceItem{},
		&Invoice{},
		&PaymentMethod{},
	}
}
