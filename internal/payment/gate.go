// Package payment 是外部支付服务在本服务内的最小替身：
// 登记支付方式、出价前校验、生成账单时报价税费和运费。
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"timed_auction/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmptyReference = errors.New("payment reference is required")

// DBGate 以 payment_methods 表判断用户是否可以出价。
type DBGate struct {
	db *gorm.DB
}

func NewDBGate(db *gorm.DB) *DBGate {
	return &DBGate{db: db}
}

func (g *DBGate) HasPaymentMethod(ctx context.Context, userID int64) (bool, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&model.PaymentMethod{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count payment methods: %w", err)
	}
	return n > 0, nil
}

// Register 登记或替换用户的支付方式。
func (g *DBGate) Register(ctx context.Context, userID int64, reference string) (model.PaymentMethod, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return model.PaymentMethod{}, ErrEmptyReference
	}
	pm := model.PaymentMethod{UserID: userID, Reference: reference, CreatedAt: time.Now().UTC()}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reference"}),
	}).Create(&pm).Error
	if err != nil {
		return model.PaymentMethod{}, fmt.Errorf("upsert payment method: %w", err)
	}
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&pm).Error; err != nil {
		return model.PaymentMethod{}, fmt.Errorf("load payment method: %w", err)
	}
	return pm, nil
}
