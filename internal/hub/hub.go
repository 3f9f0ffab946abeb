// Package hub fans full resource snapshots out to live subscribers.
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

var ErrClosed = errors.New("hub is closed")

type (
	// Loader reads the complete current collection of one user.
	Loader interface {
		Load(ctx context.Context, userID uint64) ([]models.Resource, error)
	}

	Subscription struct {
		ID     string
		UserID uint64
		// C receives the current snapshot first and a fresh one after every
		// change. It is closed after a terminal error or once the
		// subscription ends.
		C <-chan models.Snapshot

		send chan models.Snapshot
		done chan struct{}
		once sync.Once
		hub  *Hub
	}

	Hub struct {
		loader  Loader
		logger  *zap.SugaredLogger
		metrics metrics.Recorder

		subs map[uint64]map[string]*Subscription
		mu   sync.RWMutex

		register   chan *Subscription
		unregister chan *Subscription
		changed    chan uint64
		closeUser  chan uint64
		quit       chan struct{}
		quitOnce   sync.Once
		stopped    chan struct{}
	}
)

func New(loader Loader, logger *zap.SugaredLogger, rec metrics.Recorder) *Hub {
	return &Hub{
		loader:     loader,
		logger:     logger,
		metrics:    rec,
		subs:       make(map[uint64]map[string]*Subscription),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		changed:    make(chan uint64, 256),
		closeUser:  make(chan uint64),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run owns all subscriber state until ctx is cancelled or Shutdown is
// called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case sub := <-h.register:
			h.add(sub)
			h.load(ctx, sub.UserID, []*Subscription{sub})

		case sub := <-h.unregister:
			h.remove(sub)

		case userID := <-h.changed:
			if targets := h.subscribers(userID); len(targets) != 0 {
				h.load(ctx, userID, targets)
			}

		case userID := <-h.closeUser:
			for _, sub := range h.subscribers(userID) {
				h.remove(sub)
			}

		case <-ctx.Done():
			h.closeAll()
			return

		case <-h.quit:
			h.closeAll()
			return
		}
	}
}

// Shutdown ends every subscription and stops the hub, so that streams
// reading from it return before their servers drain. It is safe to call
// more than once.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.quitOnce.Do(func() { close(h.quit) })
	select {
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a listener on userID's collection. The subscription
// ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, userID uint64) (*Subscription, error) {
	send := make(chan models.Snapshot, 1)
	sub := &Subscription{
		ID:     uuid.New().String(),
		UserID: userID,
		C:      send,
		send:   send,
		done:   make(chan struct{}),
		hub:    h,
	}

	select {
	case h.register <- sub:
	case <-h.stopped:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish schedules a fresh snapshot for every subscriber of userID.
func (h *Hub) Publish(userID uint64) {
	select {
	case h.changed <- userID:
	case <-h.stopped:
	}
}

// CloseUser ends every subscription of userID, e.g. on sign-out.
func (h *Hub) CloseUser(userID uint64) {
	select {
	case h.closeUser <- userID:
	case <-h.stopped:
	}
}

// Subscribers reports how many live subscriptions userID has.
func (h *Hub) Subscribers(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		select {
		case s.hub.unregister <- s:
		case <-s.hub.stopped:
		}
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.subs {
		for _, sub := range set {
			close(sub.send)
			h.metrics.SubscriptionClosed()
		}
		delete(h.subs, userID)
	}
}

func (h *Hub) add(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[sub.UserID]
	if !ok {
		set = make(map[string]*Subscription)
		h.subs[sub.UserID] = set
	}
	set[sub.ID] = sub
	h.mu.Unlock()

	h.metrics.SubscriptionOpened()
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub.ID]; !ok {
		return
	}
	delete(set, sub.ID)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
	close(sub.send)
	h.metrics.SubscriptionClosed()
}

func (h *Hub) subscribers(userID uint64) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Subscription, 0, len(h.subs[userID]))
	for _, sub := range h.subs[userID] {
		out = append(out, sub)
	}
	return out
}

// load reads the collection once and hands it to targets. A load error is
// terminal for every target.
func (h *Hub) load(ctx context.Context, userID uint64, targets []*Subscription) {
	resources, err := h.loader.Load(ctx, userID)
	if err != nil {
		h.logger.Errorw("load snapshot", "user_id", userID, "error", err)
		for _, sub := range targets {
			deliver(sub, models.Snapshot{Err: err})
			h.remove(sub)
		}
		return
	}

	for _, sub := range targets {
		deliver(sub, models.Snapshot{Resources: resources})
		h.metrics.SnapshotDelivered()
	}
}

// deliver keeps only the newest snapshot in the subscriber's mailbox. Only
// the Run goroutine sends, so the second send cannot block.
func deliver(sub *Subscription, snap models.Snapshot) {
	select {
	case sub.send <- snap:
		return
	default:
	}
	select {
	case <-sub.send:
	default:
	}
	sub.send <- snap
}
