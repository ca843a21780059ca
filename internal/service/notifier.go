package service

import "sync"

// notifier fans out the latest value to subscribers. A slow subscriber
// skips intermediate values but always ends up with the newest one.
type notifier[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

func (n *notifier[T]) Subscribe() (<-chan T, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan T)
	}
	id := n.next
	n.next++
	ch := make(chan T, 1)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

func (n *notifier[T]) publish(v T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
