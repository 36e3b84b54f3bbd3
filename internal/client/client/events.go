package client

import (
	"context"
	"sync"
)

// notifier fans a 401 out to every subscriber. It is the only path from
// the transport to session invalidation and the forced /login redirect.
type notifier struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	h  UnauthorizedHandler
}

func (n *notifier) subscribe(h UnauthorizedHandler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.handlers = append(n.handlers, subscription{id: id, h: h})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.handlers {
			if s.id == id {
				n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) emit(ctx context.Context) {
	n.mu.RLock()
	hs := make([]UnauthorizedHandler, len(n.handlers))
	for i, s := range n.handlers {
		hs[i] = s.h
	}
	n.mu.RUnlock()

	for _, h := range hs {
		h(ctx)
	}
}
