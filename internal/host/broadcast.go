package host

import (
	"sync"

	"github.com/simonvc/custody/internal/ledger"
)

// Broadcaster fans committed events out to subscribers. A subscriber that
// falls behind by more than its buffer misses events rather than stalling
// the ledger; the events table stays the source of truth.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan ledger.EventRecord]struct{}
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster{
		subs:   make(map[chan ledger.EventRecord]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events and a func that closes it.
func (b *Broadcaster) Subscribe() (<-chan ledger.EventRecord, func()) {
	ch := make(chan ledger.EventRecord, b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(rec ledger.EventRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
