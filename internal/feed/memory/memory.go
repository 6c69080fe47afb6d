// Package memory is an in-process implementation of the remote record
// store. It assigns ids and timestamps the way the hosted store does and
// pushes the owner's full record set to subscribers after every write.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/log"
)

type Store struct {
	mu      sync.Mutex
	records map[string]core.Record
	order   []string
	now     func() time.Time
	hub     *feed.Hub
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger used for subscription events.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		records: make(map[string]core.Record),
		now:     time.Now,
	}
	s.hub = feed.NewHub(s.load, o.logger)
	return s
}

// NewFromFile seeds the store from a JSON array of record documents. An
// empty path or a missing file yields an empty store.
func NewFromFile(path string, opts ...Option) (*Store, error) {
	s := New(opts...)
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	records, err := feed.DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.put(r)
	}
	return s, nil
}

// Subscribe implements feed.Subscriber.
func (s *Store) Subscribe(ownerID string, onSnapshot feed.SnapshotFunc, onError feed.ErrorFunc) feed.Unsubscribe {
	return s.hub.Subscribe(ownerID, onSnapshot, onError)
}

// Create implements feed.Mutator.
func (s *Store) Create(_ context.Context, ownerID string, f core.Fields) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.put(f.Record(id, ownerID, s.now()))
	s.mu.Unlock()
	s.hub.Notify(ownerID)
	return id, nil
}

// Update implements feed.Mutator.
func (s *Store) Update(_ context.Context, id string, p core.Patch) error {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", id, feed.ErrNotFound)
	}
	if err := p.ValidateMerged(r); err != nil {
		s.mu.Unlock()
		return err
	}
	r = p.Apply(r)
	r.UpdatedAt = s.now()
	s.records[id] = r
	s.mu.Unlock()
	s.hub.Notify(r.OwnerID)
	return nil
}

// Delete implements feed.Mutator.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, feed.ErrNotFound)
	}
	s.remove(id)
	s.mu.Unlock()
	s.hub.Notify(r.OwnerID)
	return nil
}

// BulkDelete implements feed.Mutator. Missing ids are skipped; the
// remaining deletes are applied together.
func (s *Store) BulkDelete(_ context.Context, ids []string) error {
	owners := make(map[string]struct{})
	s.mu.Lock()
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			owners[r.OwnerID] = struct{}{}
			s.remove(id)
		}
	}
	s.mu.Unlock()
	for owner := range owners {
		s.hub.Notify(owner)
	}
	return nil
}

// ListIDs implements feed.Lister.
func (s *Store) ListIDs(_ context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		if s.records[id].OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Fail drops every subscription of ownerID with err, the way the hosted
// store does when a listener is revoked.
func (s *Store) Fail(ownerID string, err error) {
	s.hub.Fail(ownerID, err)
}

// Subscribers reports the number of open subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.Subscribers()
}

// Close detaches all subscribers.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) load(_ context.Context, ownerID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Record, 0)
	for _, id := range s.order {
		if r := s.records[id]; r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) put(r core.Record) {
	if _, exists := s.records[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = r
}

func (s *Store) remove(id string) {
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
