package feed

import (
	"context"
	"sync"

	"tally/internal/core"
	"tally/internal/log"
)

// Loader reads the owner's complete current record set.
type Loader func(ctx context.Context, ownerID string) ([]core.Record, error)

// Hub fans change notifications out to subscribers. Every subscriber has
// its own goroutine, so a slow consumer never blocks a writer, and its
// snapshots are delivered in the order they were loaded. Several
// notifications that arrive while a load is pending collapse into a single
// reload, which still reflects the latest state.
type Hub struct {
	load   Loader
	logger *log.Logger

	mu     sync.Mutex
	subs   map[uint64]*mailbox
	nextID uint64
	closed bool
}

type mailbox struct {
	id         uint64
	owner      string
	onSnapshot SnapshotFunc
	onError    ErrorFunc

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu      sync.Mutex
	failure error
}

// NewHub creates a hub that reads snapshots through load. logger may be nil.
func NewHub(load Loader, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		load:   load,
		logger: logger.WithComponent(log.ComponentFeed),
		subs:   make(map[uint64]*mailbox),
	}
}

// Subscribe registers a subscriber and schedules its first snapshot.
func (h *Hub) Subscribe(ownerID string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	m := &mailbox{
		owner:      ownerID,
		onSnapshot: onSnapshot,
		onError:    onError,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return func() {}
	}
	h.nextID++
	m.id = h.nextID
	h.subs[m.id] = m
	h.mu.Unlock()

	m.signal()
	go h.run(m)

	h.logger.Debug("Feed subscription opened", log.FieldOwner, ownerID, log.FieldSubscription, m.id)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(m) })
	}
}

// Notify schedules a fresh snapshot for every subscriber of ownerID.
func (h *Hub) Notify(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.subs {
		if m.owner == ownerID {
			m.signal()
		}
	}
}

// NotifyAll schedules a fresh snapshot for every subscriber.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.subs {
		m.signal()
	}
}

// Fail ends every subscription of ownerID with err.
func (h *Hub) Fail(ownerID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.subs {
		if m.owner == ownerID {
			m.mu.Lock()
			m.failure = err
			m.mu.Unlock()
			m.signal()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber without delivering anything further.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*mailbox)
	h.closed = true
	h.mu.Unlock()
	for _, m := range subs {
		m.cancel()
	}
}

func (h *Hub) remove(m *mailbox) {
	h.mu.Lock()
	delete(h.subs, m.id)
	h.mu.Unlock()
	m.cancel()
	h.logger.Debug("Feed subscription closed", log.FieldOwner, m.owner, log.FieldSubscription, m.id)
}

func (h *Hub) run(m *mailbox) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		m.mu.Lock()
		failure := m.failure
		m.mu.Unlock()
		if failure != nil {
			h.remove(m)
			m.onError(failure)
			return
		}

		records, err := h.load(m.ctx, m.owner)
		if m.ctx.Err() != nil {
			return
		}
		if err != nil {
			h.logger.Error("Feed snapshot load failed", log.FieldOwner, m.owner, log.FieldError, err.Error())
			h.remove(m)
			m.onError(err)
			return
		}
		m.onSnapshot(records)
	}
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
