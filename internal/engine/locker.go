package engine

import (
	"context"
	"sync"
)

// MemoryLocker 进程内 per-lot 锁，单实例部署使用；多实例换 pkg/redis.LotLocker。
// 每个 lot 一个容量为 1 的 channel，等待可被 ctx 取消；无人持有时回收。
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uint]*lotSlot
}

type lotSlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[uint]*lotSlot)}
}

func (l *MemoryLocker) Lock(ctx context.Context, lotID uint) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[lotID]
	if !ok {
		slot = &lotSlot{ch: make(chan struct{}, 1)}
		l.locks[lotID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(lotID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(lotID, slot)
		})
	}, nil
}

func (l *MemoryLocker) release(lotID uint, slot *lotSlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.locks, lotID)
	}
	l.mu.Unlock()
}
