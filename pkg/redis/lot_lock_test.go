package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	rd "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLotLockerExcludesConcurrentHolders(t *testing.T) {
	_, rdb := newTestClient(t)
	locker := NewLotLocker(rdb, 5*time.Second, time.Millisecond)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, 7)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	check.Equal(t, 1, maxSeen)
}

func TestLotLockerDifferentLotsDoNotBlock(t *testing.T) {
	_, rdb := newTestClient(t)
	locker := NewLotLocker(rdb, 5*time.Second, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlock1, err := locker.Lock(ctx, 1)
	assert.NoError(t, err)
	defer unlock1()

	unlock2, err := locker.Lock(ctx, 2)
	assert.NoError(t, err)
	unlock2()
}

func TestLotLockerTimesOut(t *testing.T) {
	_, rdb := newTestClient(t)
	locker := NewLotLocker(rdb, 5*time.Second, time.Millisecond)

	unlock, err := locker.Lock(context.Background(), 3)
	assert.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 3)
	check.True(t, errors.Is(err, ErrLockTimeout))
}

func TestLotLockerUnlockKeepsForeignLock(t *testing.T) {
	mr, rdb := newTestClient(t)
	locker := NewLotLocker(rdb, 5*time.Second, time.Millisecond)

	unlock, err := locker.Lock(context.Background(), 4)
	assert.NoError(t, err)

	// 模拟锁过期后被别的实例抢到。
	mr.Set(LotLockKey(4), "someone-else")
	unlock()

	got, err := mr.Get(LotLockKey(4))
	assert.NoError(t, err)
	check.Equal(t, "someone-else", got)
}
