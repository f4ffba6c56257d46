package bidding

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// auctionLocks hands out one serialization token per auction. Slots are
// dropped once nobody holds or waits for them.
type auctionLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func newAuctionLocks() *auctionLocks {
	return &auctionLocks{slots: make(map[string]*lockSlot)}
}

// acquire blocks until the caller owns auctionID or ctx is done
func (l *auctionLocks) acquire(ctx context.Context, auctionID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[auctionID]
	if !ok {
		slot = &lockSlot{sem: semaphore.NewWeighted(1)}
		l.slots[auctionID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		l.unref(auctionID, slot)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			l.unref(auctionID, slot)
		})
	}, nil
}

func (l *auctionLocks) unref(auctionID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, auctionID)
	}
}

func (l *auctionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
