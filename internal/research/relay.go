package research

import (
	"context"
	"sync"
)

// relay is an unbounded, ordered hand-off from the background search call to
// the request goroutine. push never blocks, so a slow client never stalls the
// remote call; next blocks until an item or the closing sentinel is available.
type relay struct {
	mu     sync.Mutex
	items  []Progress
	closed bool
	ready  chan struct{}
}

func newRelay() *relay {
	return &relay{ready: make(chan struct{}, 1)}
}

func (r *relay) push(p Progress) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.items = append(r.items, p)
	r.mu.Unlock()
	r.signal()
}

// close pushes the terminal sentinel. Items already queued are still drained.
func (r *relay) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
}

func (r *relay) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// next returns the oldest queued item. ok is false once the queue is closed
// and drained, or when ctx is done.
func (r *relay) next(ctx context.Context) (p Progress, ok bool) {
	for {
		r.mu.Lock()
		if len(r.items) > 0 {
			p = r.items[0]
			r.items[0] = Progress{}
			r.items = r.items[1:]
			r.mu.Unlock()
			return p, true
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return Progress{}, false
		}
		select {
		case <-r.ready:
		case <-ctx.Done():
			return Progress{}, false
		}
	}
}
