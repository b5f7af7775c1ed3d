package redis

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLotStateRoundTrip(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx := context.Background()

	bid := int64(145)
	ends := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := PutLotState(ctx, rdb, LotState{
		LotID:         9,
		Status:        "live",
		CurrentBid:    &bid,
		BidCount:      2,
		EndsAt:        &ends,
		ExtendedCount: 1,
		Seq:           10,
	}, time.Hour)
	assert.NoError(t, err)

	got, found, err := GetLotState(ctx, rdb, 9)
	assert.NoError(t, err)
	assert.True(t, found)
	check.Equal(t, "live", got.Status)
	assert.NotNil(t, got.CurrentBid)
	check.Equal(t, int64(145), *got.CurrentBid)
	check.Equal(t, 2, got.BidCount)
	assert.NotNil(t, got.EndsAt)
	check.True(t, ends.Equal(*got.EndsAt))
	check.Equal(t, 1, got.ExtendedCount)
}

func TestLotStateIgnoresOlderSnapshot(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx := context.Background()

	newer := int64(200)
	older := int64(150)
	assert.NoError(t, PutLotState(ctx, rdb, LotState{LotID: 1, Status: "live", CurrentBid: &newer, BidCount: 3, Seq: 20}, 0))
	assert.NoError(t, PutLotState(ctx, rdb, LotState{LotID: 1, Status: "live", CurrentBid: &older, BidCount: 2, Seq: 10}, 0))

	got, found, err := GetLotState(ctx, rdb, 1)
	assert.NoError(t, err)
	assert.True(t, found)
	check.Equal(t, int64(200), *got.CurrentBid)
	check.Equal(t, 3, got.BidCount)
}

func TestLotStateMissing(t *testing.T) {
	_, rdb := newTestClient(t)
	_, found, err := GetLotState(context.Background(), rdb, 404)
	assert.NoError(t, err)
	check.False(t, found)
}

func TestLotStateNoBidsYet(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx := context.Background()
	assert.NoError(t, PutLotState(ctx, rdb, LotState{LotID: 5, Status: "unsold", Seq: 1}, time.Minute))

	got, found, err := GetLotState(ctx, rdb, 5)
	assert.NoError(t, err)
	assert.True(t, found)
	check.Nil(t, got.CurrentBid)
	check.Nil(t, got.EndsAt)
	check.Equal(t, "unsold", got.Status)
}
