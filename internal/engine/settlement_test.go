package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/engine/mock"
	"timed_auction/internal/model"
	"timed_auction/internal/queue"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

func (f *fixture) invoiceItems(t *testing.T, auctionID uint) []model.InvoiceItem {
	t.Helper()
	var items []model.InvoiceItem
	assert.NoError(t, f.db.Where("auction_id = ?", auctionID).Order("lot_id ASC").Find(&items).Error)
	return items
}

func (f *fixture) invoices(t *testing.T, auctionID uint) []model.Invoice {
	t.Helper()
	var invoices []model.Invoice
	assert.NoError(t, f.db.Preload("Items").Where("auction_id = ?", auctionID).Order("user_id ASC").Find(&invoices).Error)
	return invoices
}

func TestSettleLotHammer(t *testing.T) {
	cases := []struct {
		name     string
		reserve  *int64
		bid      bool
		want     model.LotStatus
		wantItem bool
	}{
		{"no bids", nil, false, model.LotUnsold, false},
		{"no reserve", nil, true, model.LotSold, true},
		{"reserve met", price(100), true, model.LotSold, true},
		{"reserve not met", price(101), true, model.LotReserveNotMet, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100, reserve: tc.reserve})
			if tc.bid {
				f.bid(t, lots[0].ID, 1, 100, 150)
			}
			f.clock.Increment(time.Hour)

			out, err := f.engine.SettleLot(context.Background(), lots[0].ID)
			assert.NoError(t, err)
			check.True(t, out.Changed)
			check.Equal(t, tc.want, out.Status)
			check.Equal(t, tc.want, f.lot(t, lots[0].ID).Status)

			items := f.invoiceItems(t, a.ID)
			if !tc.wantItem {
				check.Equal(t, 0, len(items))
				return
			}
			assert.Equal(t, 1, len(items))
			check.Equal(t, int64(100), items[0].WinningBid)
			check.Equal(t, int64(1), items[0].UserID)
		})
	}
}

func TestSettleLotBeforeCloseIsNoop(t *testing.T) {
	f := newFixture(t)
	_, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)

	f.clock.Increment(time.Hour - time.Second)
	out, err := f.engine.SettleLot(context.Background(), lots[0].ID)
	assert.NoError(t, err)
	check.False(t, out.Changed)
	check.Equal(t, model.LotLive, f.lot(t, lots[0].ID).Status)
}

func TestSettleLotIdempotent(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100}, lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)
	f.clock.Increment(time.Hour)

	for i := 0; i < 3; i++ {
		out, err := f.engine.SettleLot(context.Background(), lots[0].ID)
		assert.NoError(t, err)
		check.Equal(t, i == 0, out.Changed)
		check.Equal(t, model.LotSold, out.Status)
	}
	_, err := f.engine.EndLotNow(context.Background(), lots[0].ID)
	assert.NoError(t, err)
	_, err = f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	_, err = f.engine.Sweep(context.Background())
	assert.NoError(t, err)

	check.Equal(t, 1, len(f.invoiceItems(t, a.ID)))
	check.Equal(t, 1, len(f.invoices(t, a.ID)))
	check.Equal(t, 3, len(f.events.ofType(queue.EventLotUpdated)))
}

func TestEndLotNow(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100}, lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)

	out, err := f.engine.EndLotNow(context.Background(), lots[0].ID)
	assert.NoError(t, err)
	check.True(t, out.Changed)
	check.Equal(t, model.LotSold, out.Status)
	check.False(t, out.AuctionFinalized)

	got := f.lot(t, lots[0].ID)
	check.True(t, got.EndsAt.Equal(*lots[0].EndsAt))
	assert.NotNil(t, got.WinningBidderID)
	check.Equal(t, int64(1), *got.WinningBidderID)

	_, err = f.engine.PlaceBid(context.Background(), engine.BidRequest{LotID: lots[0].ID, UserID: 2, Amount: 200, MaxBid: 200})
	check.True(t, errors.Is(err, engine.ErrLotClosed))

	// 第二个 lot 还在进行中，拍卖会不结束。
	check.Equal(t, model.AuctionLive, f.auction(t, a.ID).Status)
}

func TestReleaseToBidder(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "15", lotSeed{startingBid: 400, reserve: price(500)})
	lotID := lots[0].ID
	f.bid(t, lotID, 1, 400, 450)
	f.clock.Increment(time.Hour)

	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Settled)
	check.Equal(t, 0, res.Finalized)
	check.Equal(t, model.LotReserveNotMet, f.lot(t, lotID).Status)
	check.Equal(t, 0, len(f.invoiceItems(t, a.ID)))
	check.Equal(t, model.AuctionLive, f.auction(t, a.ID).Status)

	out, err := f.engine.ReleaseToBidder(context.Background(), lotID)
	assert.NoError(t, err)
	check.True(t, out.Changed)
	check.Equal(t, model.LotSold, out.Status)
	check.True(t, out.AuctionFinalized)
	check.Equal(t, 1, out.InvoicesCreated)

	items := f.invoiceItems(t, a.ID)
	assert.Equal(t, 1, len(items))
	check.Equal(t, int64(400), items[0].WinningBid)

	invoices := f.invoices(t, a.ID)
	assert.Equal(t, 1, len(invoices))
	inv := invoices[0]
	check.Equal(t, int64(400), inv.Subtotal)
	check.Equal(t, int64(60), inv.BuyersPremium)
	check.Equal(t, int64(460), inv.Total)
	check.Equal(t, model.InvoicePendingPayment, inv.Status)
	check.Equal(t, 1, len(inv.Items))
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)

	// 再次放行是幂等的。
	out, err = f.engine.ReleaseToBidder(context.Background(), lotID)
	assert.NoError(t, err)
	check.False(t, out.Changed)
	check.Equal(t, 1, len(f.invoiceItems(t, a.ID)))

	charges := f.events.ofType(queue.EventChargeRequested)
	assert.Equal(t, 1, len(charges))
	check.Equal(t, int64(460), charges[0].Amount)
	check.Equal(t, inv.ID, charges[0].InvoiceID)
}

func TestMarkUnsold(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 400, reserve: price(500)})
	lotID := lots[0].ID

	_, err := f.engine.MarkUnsold(context.Background(), lotID)
	check.True(t, errors.Is(err, engine.ErrInvalidLotState))
	_, err = f.engine.ReleaseToBidder(context.Background(), lotID)
	check.True(t, errors.Is(err, engine.ErrInvalidLotState))

	f.bid(t, lotID, 1, 400, 450)
	f.clock.Increment(time.Hour)
	_, err = f.engine.SettleLot(context.Background(), lotID)
	assert.NoError(t, err)

	out, err := f.engine.MarkUnsold(context.Background(), lotID)
	assert.NoError(t, err)
	check.Equal(t, model.LotUnsold, out.Status)
	check.True(t, out.AuctionFinalized)
	check.Equal(t, 0, out.InvoicesCreated)

	_, err = f.engine.ReleaseToBidder(context.Background(), lotID)
	check.True(t, errors.Is(err, engine.ErrInvalidLotState))
	check.Equal(t, 0, len(f.invoiceItems(t, a.ID)))
	check.Equal(t, 0, len(f.invoices(t, a.ID)))
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)
}

func TestWithdrawLot(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100}, lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)

	_, err := f.engine.WithdrawLot(context.Background(), lots[0].ID)
	check.True(t, errors.Is(err, engine.ErrInvalidLotState))

	out, err := f.engine.WithdrawLot(context.Background(), lots[1].ID)
	assert.NoError(t, err)
	check.True(t, out.Changed)
	check.Equal(t, model.LotWithdrawn, out.Status)

	out, err = f.engine.WithdrawLot(context.Background(), lots[1].ID)
	assert.NoError(t, err)
	check.False(t, out.Changed)

	_, err = f.engine.PlaceBid(context.Background(), engine.BidRequest{LotID: lots[1].ID, UserID: 2, Amount: 100, MaxBid: 100})
	check.True(t, errors.Is(err, engine.ErrLotClosed))

	// 撤拍的 lot 算作终态，剩下的 lot 结算后拍卖会结束。
	f.clock.Increment(time.Hour)
	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Settled)
	check.Equal(t, 1, res.Finalized)
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)
	check.Equal(t, model.LotWithdrawn, f.lot(t, lots[1].ID).Status)
}

func TestFinalizeAuctionAggregatesPerUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	charges := mock.NewMockCharges(ctrl)

	f := newFixture(t, func(o *engine.Options) { o.Charges = charges })
	a, lots := f.liveLots(t, 0, 30, "10",
		lotSeed{startingBid: 100}, lotSeed{startingBid: 250}, lotSeed{startingBid: 75}, lotSeed{startingBid: 10})

	charges.EXPECT().
		Quote(gomock.Any(), engine.ChargeQuote{AuctionID: a.ID, UserID: 1, Subtotal: 350, LotCount: 2}).
		Return(int64(28), int64(10), nil)
	charges.EXPECT().
		Quote(gomock.Any(), engine.ChargeQuote{AuctionID: a.ID, UserID: 2, Subtotal: 75, LotCount: 1}).
		Return(int64(6), int64(5), nil)

	f.bid(t, lots[0].ID, 1, 100, 200)
	f.bid(t, lots[1].ID, 1, 250, 300)
	f.bid(t, lots[2].ID, 2, 75, 90)

	f.clock.Increment(time.Hour + 90*time.Second)
	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 4, res.Due)
	check.Equal(t, 4, res.Settled)
	check.Equal(t, 0, res.Failed)
	check.Equal(t, 1, res.Finalized)
	check.Equal(t, model.LotUnsold, f.lot(t, lots[3].ID).Status)

	invoices := f.invoices(t, a.ID)
	assert.Equal(t, 2, len(invoices))

	first := invoices[0]
	check.Equal(t, int64(1), first.UserID)
	check.Equal(t, int64(350), first.Subtotal)
	check.Equal(t, int64(35), first.BuyersPremium)
	check.Equal(t, int64(28), first.Tax)
	check.Equal(t, int64(10), first.Shipping)
	check.Equal(t, int64(423), first.Total)
	check.Equal(t, 2, len(first.Items))

	second := invoices[1]
	check.Equal(t, int64(2), second.UserID)
	check.Equal(t, int64(8), second.BuyersPremium)
	check.Equal(t, int64(94), second.Total)
	check.True(t, first.InvoiceNo != second.InvoiceNo)

	for _, item := range f.invoiceItems(t, a.ID) {
		assert.NotNil(t, item.InvoiceID)
	}
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)
	check.Equal(t, 2, len(f.events.ofType(queue.EventWon)))

	// 重复 sweep 不会重复开票或重复报价。
	res, err = f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 0, res.Settled)
	check.Equal(t, 2, len(f.invoices(t, a.ID)))
}

func TestFinalizeAuctionRetriedAfterChargeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	charges := mock.NewMockCharges(ctrl)
	gomock.InOrder(
		charges.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(int64(0), int64(0), errors.New("tax service down")),
		charges.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(int64(3), int64(0), nil),
	)

	f := newFixture(t, func(o *engine.Options) { o.Charges = charges })
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)
	f.clock.Increment(time.Hour)

	out, err := f.engine.SettleLot(context.Background(), lots[0].ID)
	assert.NoError(t, err)
	check.Equal(t, model.LotSold, out.Status)
	check.False(t, out.AuctionFinalized)
	check.Equal(t, model.AuctionLive, f.auction(t, a.ID).Status)
	check.Equal(t, 0, len(f.invoices(t, a.ID)))

	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Finalized)

	invoices := f.invoices(t, a.ID)
	assert.Equal(t, 1, len(invoices))
	check.Equal(t, int64(103), invoices[0].Total)
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)
}

func TestBuyersPremium(t *testing.T) {
	cases := []struct {
		subtotal int64
		percent  string
		want     int64
	}{
		{350, "10", 35},
		{75, "10", 8},
		{0, "15", 0},
		{999, "12.5", 125},
		{400, "0", 0},
	}
	for _, tc := range cases {
		got := engine.BuyersPremium(tc.subtotal, decimal.RequireFromString(tc.percent))
		check.Equal(t, tc.want, got)
	}
}
