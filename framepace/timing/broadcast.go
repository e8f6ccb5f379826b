package timing

import (
	"sync"
	"time"
)

// TickHandler receives the time elapsed since the timer started.
type TickHandler func(elapsed time.Duration)

// SubscriptionID identifies a registered TickHandler.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	handler TickHandler
}

// Broadcast is a multi-subscriber tick registry. Subscribe and Unsubscribe may
// be called from any goroutine, including from inside a handler while Fire
// is running. Each Fire delivers to the subscribers registered when it began.
type Broadcast struct {
	mu     sync.RWMutex
	subs   []subscriber // copy-on-write
	nextID SubscriptionID

	// ready is signalled whenever a subscriber is added.
	ready chan struct{}

	onFault func(*SubscriberFault)
}

// NewBroadcast creates an empty registry. onFault, if not nil, is called for
// every handler panic.
func NewBroadcast(onFault func(*SubscriberFault)) *Broadcast {
	return &Broadcast{
		ready:   make(chan struct{}, 1),
		onFault: onFault,
	}
}

// Subscribe registers h and returns its id.
func (b *Broadcast) Subscribe(h TickHandler) SubscriptionID {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs := make([]subscriber, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, subscriber{id: id, handler: h})
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return id
}

// Unsubscribe removes the handler registered under id. A Fire already in
// progress may still deliver its current tick to it.
func (b *Broadcast) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id != id {
			continue
		}
		subs := make([]subscriber, 0, len(b.subs)-1)
		subs = append(subs, b.subs[:i]...)
		b.subs = append(subs, b.subs[i+1:]...)
		return true
	}
	return false
}

// Len returns the number of registered subscribers.
func (b *Broadcast) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Ready is signalled after Subscribe. Receivers must re-check Len.
func (b *Broadcast) Ready() <-chan struct{} {
	return b.ready
}

// Fire delivers elapsed to every current subscriber and returns how many
// handlers returned without panicking.
func (b *Broadcast) Fire(elapsed time.Duration) int {
	return b.fire(b.snapshot(), elapsed)
}

func (b *Broadcast) snapshot() []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs
}

func (b *Broadcast) fire(subs []subscriber, elapsed time.Duration) int {
	delivered := 0
	for _, s := range subs {
		if b.deliver(s, elapsed) {
			delivered++
		}
	}
	return delivered
}

func (b *Broadcast) deliver(s subscriber, elapsed time.Duration) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if b.onFault != nil {
				b.onFault(&SubscriberFault{ID: s.id, Value: r})
			}
		}
	}()
	s.handler(elapsed)
	return true
}
