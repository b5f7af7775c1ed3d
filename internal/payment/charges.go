package payment

import (
	"context"
	"fmt"

	"timed_auction/internal/engine"

	"github.com/shopspring/decimal"
)

// FlatCharges 按固定税率和每件固定运费报价，不访问数据库。
type FlatCharges struct {
	TaxPercent     decimal.Decimal
	ShippingPerLot int64
}

// Quote 税费按 (subtotal) × TaxPercent / 100 四舍五入。
func (c FlatCharges) Quote(_ context.Context, q engine.ChargeQuote) (int64, int64, error) {
	if q.LotCount <= 0 {
		return 0, 0, fmt.Errorf("lot count must be > 0")
	}
	tax := decimal.NewFromInt(q.Subtotal).
		Mul(c.TaxPercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	return tax, c.ShippingPerLot * int64(q.LotCount), nil
}

var (
	_ engine.Charges     = FlatCharges{}
	_ engine.PaymentGate = (*DBGate)(nil)
)
