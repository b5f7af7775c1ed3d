package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/model"
	"timed_auction/internal/queue"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestActivateAuctionStaggersLots(t *testing.T) {
	f := newFixture(t)
	a, lots := f.createAuction(t, 2, 20, "0",
		lotSeed{startingBid: 100}, lotSeed{startingBid: 100}, lotSeed{startingBid: 100})

	res, err := f.engine.ActivateAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, 3, res.LotsInitialized)
	check.Equal(t, 20, res.IntervalSeconds)

	end := a.EndsAt
	for i, l := range lots {
		got := f.lot(t, l.ID)
		assert.NotNil(t, got.EndsAt)
		check.True(t, got.EndsAt.Equal(end.Add(time.Duration(i)*20*time.Second)))
		check.Equal(t, model.LotLive, got.Status)
	}
	check.True(t, res.FirstCloseAt.Equal(end))
	check.True(t, res.LastCloseAt.Equal(end.Add(40*time.Second)))

	live := f.auction(t, a.ID)
	check.Equal(t, model.AuctionLive, live.Status)
	assert.NotNil(t, live.ActivatedAt)

	activated := f.events.ofType(queue.EventAuctionActivated)
	assert.Equal(t, 1, len(activated))
	check.Equal(t, 3, activated[0].LotCount)
}

func TestActivateAuctionOrdersByLotNumber(t *testing.T) {
	f := newFixture(t)
	a, _ := f.createAuction(t, 0, 30, "0")
	// 插入顺序与 lot_number 相反。
	second := model.Lot{AuctionID: a.ID, LotNumber: 2, Title: "b", StartingBid: 10, Status: model.LotUpcoming}
	first := model.Lot{AuctionID: a.ID, LotNumber: 1, Title: "a", StartingBid: 10, Status: model.LotUpcoming}
	assert.NoError(t, f.db.Create(&second).Error)
	assert.NoError(t, f.db.Create(&first).Error)

	_, err := f.engine.ActivateAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.True(t, f.lot(t, first.ID).EndsAt.Equal(a.EndsAt))
	check.True(t, f.lot(t, second.ID).EndsAt.Equal(a.EndsAt.Add(30*time.Second)))
}

func TestActivateAuctionSkipsWithdrawnLots(t *testing.T) {
	f := newFixture(t)
	a, lots := f.createAuction(t, 0, 10, "0",
		lotSeed{startingBid: 100}, lotSeed{startingBid: 100}, lotSeed{startingBid: 100})

	_, err := f.engine.WithdrawLot(context.Background(), lots[1].ID)
	assert.NoError(t, err)

	res, err := f.engine.ActivateAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, res.LotsInitialized)

	withdrawn := f.lot(t, lots[1].ID)
	check.Equal(t, model.LotWithdrawn, withdrawn.Status)
	check.True(t, withdrawn.EndsAt == nil)
	check.True(t, f.lot(t, lots[2].ID).EndsAt.Equal(a.EndsAt.Add(10*time.Second)))
}

func TestActivateAuctionErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.ActivateAuction(context.Background(), 404)
		check.True(t, errors.Is(err, engine.ErrAuctionNotFound))
	})

	t.Run("no lots", func(t *testing.T) {
		f := newFixture(t)
		a, _ := f.createAuction(t, 0, 0, "0")
		_, err := f.engine.ActivateAuction(context.Background(), a.ID)
		check.True(t, errors.Is(err, engine.ErrAuctionHasNoLots))
		check.Equal(t, model.AuctionDraft, f.auction(t, a.ID).Status)
	})

	t.Run("end in past", func(t *testing.T) {
		f := newFixture(t)
		a, lots := f.createAuction(t, 0, 0, "0", lotSeed{startingBid: 100})
		f.clock.Increment(2 * time.Hour)
		_, err := f.engine.ActivateAuction(context.Background(), a.ID)
		check.True(t, errors.Is(err, engine.ErrAuctionEndInPast))
		check.Equal(t, model.AuctionDraft, f.auction(t, a.ID).Status)
		check.True(t, f.lot(t, lots[0].ID).EndsAt == nil)
	})

	t.Run("already live", func(t *testing.T) {
		f := newFixture(t)
		a, _ := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100})
		_, err := f.engine.ActivateAuction(context.Background(), a.ID)
		check.True(t, errors.Is(err, engine.ErrAuctionNotActivatable))
	})
}

func TestPreviewAuction(t *testing.T) {
	f := newFixture(t)
	a, _ := f.createAuction(t, 0, 0, "0", lotSeed{startingBid: 100})

	assert.NoError(t, f.engine.PreviewAuction(context.Background(), a.ID))
	check.Equal(t, model.AuctionPreview, f.auction(t, a.ID).Status)
	assert.NoError(t, f.engine.PreviewAuction(context.Background(), a.ID))

	_, err := f.engine.ActivateAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	err = f.engine.PreviewAuction(context.Background(), a.ID)
	check.True(t, errors.Is(err, engine.ErrAuctionNotActivatable))
}
