// Package observe provides the publish/subscribe plumbing used to expose
// read-only state (coordinator snapshots, microphone and speaker flags) to
// transports and other readers.
//
// Publishing never blocks: a subscriber that falls behind only ever sees the
// most recent value, older ones are dropped.
package observe

import "sync"

// Broadcaster fans out values of type T to any number of subscribers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	latest T
	has    bool
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Publish records v as the latest value and delivers it to every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = v
	b.has = true
	for _, ch := range b.subs {
		deliver(ch, v)
	}
}

// deliver sends v without blocking, evicting the oldest queued value when the
// subscriber's buffer is full.
func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Subscribe registers a new subscriber with the given buffer size (minimum 1).
// The latest value, if any, is queued immediately. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	if b.has {
		ch <- b.latest
	}
	b.mu.Unlock()

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

// Latest returns the most recently published value.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.has
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Value is an observable variable. Only the owner holds the *Value; readers
// are handed the Observable view.
type Value[T comparable] struct {
	mu    sync.RWMutex
	v     T
	bcast *Broadcaster[T]
}

// Observable is the read-only side of a Value.
type Observable[T any] interface {
	Get() T
	Watch(buffer int) (<-chan T, func())
}

// NewValue creates a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	b := NewBroadcaster[T]()
	b.Publish(initial)
	return &Value[T]{v: initial, bcast: b}
}

// Get returns the current value.
func (o *Value[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v
}

// Set stores v and notifies watchers when it differs from the current value.
// It reports whether the value changed.
func (o *Value[T]) Set(v T) bool {
	o.mu.Lock()
	if o.v == v {
		o.mu.Unlock()
		return false
	}
	o.v = v
	o.mu.Unlock()
	o.bcast.Publish(v)
	return true
}

// Watch subscribes to changes. The current value is delivered first.
func (o *Value[T]) Watch(buffer int) (<-chan T, func()) {
	return o.bcast.Subscribe(buffer)
}
