package engine_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/engine/mock"
	"timed_auction/internal/model"
	"timed_auction/internal/queue"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t queue.EventType) []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	clock  *fakeclock.FakeClock
	events *recordingPublisher
	engine *engine.Engine
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "auction.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	assert.NoError(t, err)
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// newFixture 默认所有用户都已绑定支付方式；opts 可覆盖任意依赖。
func newFixture(t *testing.T, opts ...func(*engine.Options)) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	payments := mock.NewMockPaymentGate(ctrl)
	payments.EXPECT().HasPaymentMethod(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	f := &fixture{
		db:     newTestDB(t),
		clock:  fakeclock.NewFakeClock(t0),
		events: &recordingPublisher{},
	}
	o := engine.Options{
		DB:        f.db,
		Payments:  payments,
		Clock:     f.clock,
		Publisher: f.events,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := engine.New(o)
	assert.NoError(t, err)
	f.engine = e
	return f
}

type lotSeed struct {
	startingBid int64
	reserve     *int64
}

func price(v int64) *int64 { return &v }

// createAuction 建一场 draft 拍卖会，第一个 lot 在 t0+1h 收拍。
func (f *fixture) createAuction(t *testing.T, extendMinutes, intervalSeconds int, premium string, lots ...lotSeed) (model.Auction, []model.Lot) {
	t.Helper()
	a := model.Auction{
		Title:                   "spring sale",
		Status:                  model.AuctionDraft,
		StartsAt:                t0,
		EndsAt:                  t0.Add(time.Hour),
		BuyersPremiumPercent:    decimal.RequireFromString(premium),
		AutoExtendMinutes:       extendMinutes,
		LotCloseIntervalSeconds: intervalSeconds,
	}
	assert.NoError(t, f.db.Create(&a).Error)
	out := make([]model.Lot, 0, len(lots))
	for i, ls := range lots {
		l := model.Lot{
			AuctionID:    a.ID,
			LotNumber:    i + 1,
			Title:        "lot",
			StartingBid:  ls.startingBid,
			ReservePrice: ls.reserve,
			Status:       model.LotUpcoming,
		}
		assert.NoError(t, f.db.Create(&l).Error)
		out = append(out, l)
	}
	return a, out
}

// liveLots 建拍卖会并激活，返回激活后的 lot。
func (f *fixture) liveLots(t *testing.T, extendMinutes, intervalSeconds int, premium string, lots ...lotSeed) (model.Auction, []model.Lot) {
	t.Helper()
	a, created := f.createAuction(t, extendMinutes, intervalSeconds, premium, lots...)
	_, err := f.engine.ActivateAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	out := make([]model.Lot, len(created))
	for i := range created {
		out[i] = f.lot(t, created[i].ID)
	}
	return f.auction(t, a.ID), out
}

func (f *fixture) lot(t *testing.T, id uint) model.Lot {
	t.Helper()
	var l model.Lot
	assert.NoError(t, f.db.First(&l, id).Error)
	return l
}

func (f *fixture) auction(t *testing.T, id uint) model.Auction {
	t.Helper()
	var a model.Auction
	assert.NoError(t, f.db.First(&a, id).Error)
	return a
}

func (f *fixture) winningBids(t *testing.T, lotID uint) []model.Bid {
	t.Helper()
	var bids []model.Bid
	assert.NoError(t, f.db.Where("lot_id = ? AND is_winning = ?", lotID, true).Find(&bids).Error)
	return bids
}

func (f *fixture) bid(t *testing.T, lotID uint, userID, amount, maxBid int64) engine.BidResult {
	t.Helper()
	res, err := f.engine.PlaceBid(context.Background(), engine.BidRequest{
		LotID: lotID, UserID: userID, Amount: amount, MaxBid: maxBid,
	})
	assert.NoError(t, err)
	return res
}
