// Package event provides the multicast, replay-aware channels through which
// the connection core publishes state and clipboard updates.
package event

import (
	"sync"
	"sync/atomic"
)

// Channel is a multicast stream that remembers its latest value. A new
// subscriber immediately receives that value (replay depth 1), then every
// later value in publication order. Duplicate values are delivered as-is.
//
// Handlers run on the publishing goroutine. A handler must not publish on
// the channel it is subscribed to.
type Channel[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	seq    uint64
	nextID int
	subs   map[int]*subscriber[T]
}

type subscriber[T any] struct {
	mu   sync.Mutex
	fn   func(T)
	seen uint64 // sequence of the last value handed to fn
	done atomic.Bool
}

// NewChannel returns an empty channel: subscribers receive nothing until
// the first Publish.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{subs: make(map[int]*subscriber[T])}
}

// NewChannelWith returns a channel pre-populated with initial.
func NewChannelWith[T any](initial T) *Channel[T] {
	c := NewChannel[T]()
	c.latest = initial
	c.has = true
	c.seq = 1
	return c
}

// Publish records v as the latest value and delivers it to every current
// subscriber.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	c.latest = v
	c.has = true
	c.seq++
	seq := c.seq
	subs := make([]*subscriber[T], 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.deliver(seq, v)
	}
}

// Subscribe registers fn and replays the latest value to it, if any. The
// returned function removes the subscription; it is safe to call more than
// once and from inside fn.
func (c *Channel[T]) Subscribe(fn func(T)) (cancel func()) {
	s := &subscriber[T]{fn: fn}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = s
	latest, has, seq := c.latest, c.has, c.seq
	c.mu.Unlock()

	if has {
		s.deliver(seq, latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			s.done.Store(true)
		})
	}
}

// Latest returns the most recent value and whether one exists.
func (c *Channel[T]) Latest() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.has
}

// Len returns the number of active subscribers.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// deliver hands v to fn unless a newer value already reached it. This keeps
// a replay racing a concurrent Publish from going backwards.
func (s *subscriber[T]) deliver(seq uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Load() || seq <= s.seen {
		return
	}
	s.seen = seq
	s.fn(v)
}
