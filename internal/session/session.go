// Package session keeps one live subscription to the record feed for the
// current identity and exposes the latest record set with its status.
//
// Every subscription is tagged with a token. Snapshots and errors carrying
// a token other than the current one come from a subscription that has
// already been replaced or closed and are dropped, so a late delivery can
// never overwrite the state of a newer identity.
package session

import (
	"fmt"
	"sort"
	"sync"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/identity"
	"tally/internal/log"
)

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

type (
	// Status is the lifecycle phase of the session.
	Status string

	// State is an immutable view of the session. Records is never nil and
	// is sorted by date, newest first; records sharing a date keep the
	// order the feed delivered them in.
	State struct {
		Owner   string
		Status  Status
		Records []core.Record
		Err     error
		// Version increases with every applied change.
		Version uint64
	}

	// Listener is called after every state change, in order. Listeners must
	// not call back into the session.
	Listener func(State)
)

// SyncError reports a subscription that failed or was dropped.
type SyncError struct {
	Owner string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Owner, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

type Session struct {
	feed   feed.Subscriber
	logger *log.Logger

	// notify serializes transitions together with their listener calls so
	// listeners observe states in the order they were applied.
	notify sync.Mutex

	mu          sync.Mutex
	token       uint64
	open        bool
	unsubscribe feed.Unsubscribe
	state       State
	listeners   map[uint64]Listener
	nextID      uint64
}

// New creates an idle session reading from sub.
func New(sub feed.Subscriber, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Session{
		feed:      sub,
		logger:    logger.WithComponent(log.ComponentSession),
		state:     State{Status: StatusIdle, Records: []core.Record{}},
		listeners: make(map[uint64]Listener),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Listen registers l and returns a function that removes it.
func (s *Session) Listen(l Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Open subscribes to ownerID's records. It is a no-op when that
// subscription is already live; any subscription for another identity is
// closed first. An empty ownerID closes the session.
//
// Until the first snapshot or error arrives the state is loading with an
// empty record set.
func (s *Session) Open(ownerID string) {
	if ownerID == "" {
		s.Close()
		return
	}

	var (
		token    uint64
		previous feed.Unsubscribe
	)
	changed := s.transition(func() bool {
		if s.open && s.state.Owner == ownerID {
			return false
		}
		previous = s.unsubscribe
		s.unsubscribe = nil
		s.token++
		token = s.token
		s.open = true
		s.state = State{
			Owner:   ownerID,
			Status:  StatusLoading,
			Records: []core.Record{},
			Version: s.state.Version + 1,
		}
		return true
	})
	if !changed {
		return
	}
	if previous != nil {
		previous()
	}

	s.logger.Info("Opening subscription", log.FieldOwner, ownerID, log.FieldToken, token)

	unsub := s.feed.Subscribe(ownerID,
		func(records []core.Record) { s.applySnapshot(token, records) },
		func(err error) { s.applyError(token, err) },
	)

	s.mu.Lock()
	current := s.token == token && s.open
	if current {
		s.unsubscribe = unsub
	}
	s.mu.Unlock()
	if !current {
		// replaced or closed while subscribing
		unsub()
	}
}

// Close releases the active subscription and resets to an idle, empty
// state. It is safe to call when nothing is open.
func (s *Session) Close() {
	var previous feed.Unsubscribe
	s.transition(func() bool {
		if !s.open && s.state.Status == StatusIdle {
			return false
		}
		previous = s.unsubscribe
		s.unsubscribe = nil
		s.token++
		s.open = false
		s.state = State{
			Status:  StatusIdle,
			Records: []core.Record{},
			Version: s.state.Version + 1,
		}
		return true
	})
	if previous != nil {
		previous()
		s.logger.Info("Closed subscription")
	}
}

// Retry reopens the subscription of the current owner after an error.
func (s *Session) Retry() {
	s.mu.Lock()
	owner, failed := s.state.Owner, s.state.Status == StatusError
	s.mu.Unlock()
	if failed {
		s.Open(owner)
	}
}

// Follow binds the session to p: it opens for the current identity and
// reopens or closes on every identity change. The returned function stops
// following without closing the session.
func (s *Session) Follow(p identity.Provider) func() {
	stop := p.OnChange(func(id string) {
		s.Open(id)
	})
	s.Open(p.Current())
	return stop
}

func (s *Session) applySnapshot(token uint64, records []core.Record) {
	s.transition(func() bool {
		if token != s.token {
			s.logger.Debug("Discarding stale snapshot", log.FieldToken, token, log.FieldCount, len(records))
			return false
		}
		owned := normalize(s.state.Owner, records)
		if dropped := len(records) - len(owned); dropped > 0 {
			s.logger.Warn("Dropped records of another owner", log.FieldOwner, s.state.Owner, log.FieldCount, dropped)
		}
		s.state = State{
			Owner:   s.state.Owner,
			Status:  StatusReady,
			Records: owned,
			Version: s.state.Version + 1,
		}
		return true
	})
}

func (s *Session) applyError(token uint64, err error) {
	var previous feed.Unsubscribe
	s.transition(func() bool {
		if token != s.token {
			return false
		}
		previous = s.unsubscribe
		s.unsubscribe = nil
		s.open = false
		s.state = State{
			Owner:   s.state.Owner,
			Status:  StatusError,
			Records: []core.Record{},
			Err:     &SyncError{Owner: s.state.Owner, Err: err},
			Version: s.state.Version + 1,
		}
		s.logger.Error("Subscription failed", log.FieldOwner, s.state.Owner, log.FieldError, err)
		return true
	})
	if previous != nil {
		previous()
	}
}

// transition runs fn under the state lock and, when fn reports a change,
// delivers the new state to every listener.
func (s *Session) transition(fn func() bool) bool {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	changed := fn()
	st := s.state
	listeners := make([]Listener, 0, len(s.listeners))
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(st)
		}
	}
	return changed
}

// normalize copies the records that belong to owner and orders them by
// date, newest first. The sort is stable so equal dates keep feed order.
func normalize(owner string, records []core.Record) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Date > out[b].Date
	})
	return out
}
