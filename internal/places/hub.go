package places

import (
	"sync"

	"github.com/jpvelasco/placedrop/internal/model"
)

// Subscription is a live snapshot stream. Updates carries full place sets in
// the order the backing store emits them; a slow reader only ever misses
// intermediate snapshots, never the latest one.
type Subscription struct {
	ch    chan []model.Place
	once  sync.Once
	unsub func(*Subscription)
}

// Updates yields full snapshots. The channel closes when the subscription
// is closed.
func (s *Subscription) Updates() <-chan []model.Place {
	return s.ch
}

// Close releases the subscription. Required on teardown; an unclosed
// subscription keeps its delivery slot alive for the lifetime of the store.
func (s *Subscription) Close() {
	s.once.Do(func() { s.unsub(s) })
}

// hub fans snapshots out to every open subscription.
type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) add() *Subscription {
	sub := &Subscription{
		ch:    make(chan []model.Place, 1),
		unsub: h.remove,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// broadcast delivers the snapshot to every subscriber, replacing an unread
// older snapshot rather than blocking.
func (h *hub) broadcast(snapshot []model.Place) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.deliver(sub, snapshot)
	}
}

// send delivers the snapshot to a single subscriber. Used for the initial
// snapshot on subscribe.
func (h *hub) send(sub *Subscription, snapshot []model.Place) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		h.deliver(sub, snapshot)
	}
}

func (h *hub) deliver(sub *Subscription, snapshot []model.Place) {
	select {
	case sub.ch <- snapshot:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}
