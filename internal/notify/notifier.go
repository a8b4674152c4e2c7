// Package notify provides the process-wide change signal emitted after
// committed local mutations, and a WebSocket hub that relays it to clients.
package notify

import (
	"context"
	"sync"
)

// Notifier fans a payload-free "something changed" signal out to subscribers.
// Signals are coalesced: a subscriber that has not consumed the previous
// signal sees one pending signal, not a backlog. Notify never blocks.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// New creates a Notifier with no subscribers.
func New() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; calling it more than once is safe.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Notify signals every subscriber.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// already pending
		}
	}
}

// Subscribers returns the number of active subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Listen calls fn for every signal until ctx is done.
func (n *Notifier) Listen(ctx context.Context, fn func()) {
	ch, cancel := n.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			fn()
		}
	}
}
