// Package broadcast provides a multicast channel where every subscriber
// receives every published value.
package broadcast

import "sync"

// Broadcaster fans values out to independent subscribers. Each subscriber
// has a one-slot buffer; when a subscriber falls behind, the stale value is
// replaced by the newest one so publishers never block and a reader always
// ends up observing the latest state.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool

	replay bool // remember last and hand it to new subscribers
	last   T
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// NewWithValue returns a broadcaster that remembers the latest value, starting
// with initial, and hands it to every new subscriber on Subscribe.
func NewWithValue[T any](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T), replay: true, last: initial}
}

// Subscribe returns a receive channel and a cancel function. Cancelling
// closes the channel. Subscribing to a closed broadcaster yields a closed
// channel.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.replay {
		ch <- b.last
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers v to every current subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replay {
		b.last = v
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Full: drop the stale value and keep the latest.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Latest returns the remembered value. ok is false for broadcasters created
// with New.
func (b *Broadcaster[T]) Latest() (v T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.replay
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Further publishes are dropped.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
