package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"timed_auction/internal/engine"
	"timed_auction/internal/model"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestSweepSettlesOnlyDueLots(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) { o.SweepWorkers = 2 })
	_, lots := f.liveLots(t, 0, 60, "0",
		lotSeed{startingBid: 100}, lotSeed{startingBid: 100}, lotSeed{startingBid: 100})
	for _, l := range lots {
		f.bid(t, l.ID, 1, 100, 150)
	}

	f.clock.Increment(time.Hour + 30*time.Second)
	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Due)
	check.Equal(t, 1, res.Settled)
	check.Equal(t, model.LotSold, f.lot(t, lots[0].ID).Status)
	check.Equal(t, model.LotLive, f.lot(t, lots[1].ID).Status)

	f.clock.Increment(time.Minute)
	res, err = f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Settled)
	check.Equal(t, model.LotSold, f.lot(t, lots[1].ID).Status)
	check.Equal(t, model.LotLive, f.lot(t, lots[2].ID).Status)
}

func TestSweepRespectsExtendedEndsAt(t *testing.T) {
	f := newFixture(t)
	_, lots := f.liveLots(t, 2, 0, "0", lotSeed{startingBid: 100})

	f.clock.Increment(time.Hour - 30*time.Second)
	f.bid(t, lots[0].ID, 1, 100, 150)

	f.clock.Increment(time.Minute)
	res, err := f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 0, res.Due)
	check.Equal(t, model.LotLive, f.lot(t, lots[0].ID).Status)

	f.clock.Increment(time.Minute)
	res, err = f.engine.Sweep(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, res.Settled)
	check.Equal(t, model.LotSold, f.lot(t, lots[0].ID).Status)
}

func TestSweeperRunTicks(t *testing.T) {
	f := newFixture(t)
	a, lots := f.liveLots(t, 0, 0, "0", lotSeed{startingBid: 100})
	f.bid(t, lots[0].ID, 1, 100, 150)

	sweeper := engine.NewSweeper(f.engine, f.clock, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	f.clock.WaitForWatcherAndIncrement(time.Hour)

	deadline := time.Now().Add(5 * time.Second)
	for f.auction(t, a.ID).Status != model.AuctionEnded && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	check.Equal(t, model.AuctionEnded, f.auction(t, a.ID).Status)
	check.Equal(t, model.LotSold, f.lot(t, lots[0].ID).Status)

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
