package tabsync

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

// Bus fans announce records out to subscribed tabs in this process.
// Delivery is best-effort: a subscriber with a full channel misses the
// record rather than blocking the publisher.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Record]struct{}
	log   pslog.Logger
	depth int
}

// NewBus constructs a Bus.
func NewBus(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Record]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel.
func (b *Bus) Subscribe() (<-chan Record, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Record, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("tabsync subscribe", "subs", count)
	}
	return ch, func() {
		// Closing under the lock keeps Publish from sending on a
		// closed channel; the second cancel is a no-op.
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
		if b.log != nil {
			b.log.Debug("tabsync unsubscribe")
		}
	}
}

// Publish delivers a record to every subscriber, including the origin
// tab; origin filtering happens at the subscriber.
func (b *Bus) Publish(rec Record) {
	if b == nil {
		return
	}
	// Sends stay under the lock; they are non-blocking, and the lock is
	// what keeps a concurrent unsubscribe from closing a channel
	// mid-send.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- rec:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.Warn("tabsync record dropped", "event", rec.EventID, "dropped", dropped)
	}
}
