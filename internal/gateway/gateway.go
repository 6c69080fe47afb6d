// Package gateway turns create, update, delete and clear-all intents into
// collaborator calls and reports a typed outcome for each. It never
// touches local state: the session's feed delivers the result of every
// write.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/log"
)

const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpClearAll = "clear_all"
)

var (
	// ErrNoOwner rejects writes issued without a signed-in identity.
	ErrNoOwner   = errors.New("no signed-in owner")
	ErrMissingID = errors.New("id is required")
)

// MutationError reports a write the collaborator did not accept.
type MutationError struct {
	Op  string
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// PartialClearError reports a clear-all where some records survived.
type PartialClearError struct {
	Failed []string
	Total  int
	Err    error
}

func (e *PartialClearError) Error() string {
	return fmt.Sprintf("%d of %d records not deleted: %v", len(e.Failed), e.Total, e.Err)
}

func (e *PartialClearError) Unwrap() error { return e.Err }

// ClearResult lists what a clear-all removed and what it could not.
type ClearResult struct {
	Deleted []string
	Failed  []string
}

// Remote is the collaborator surface the gateway writes through.
type Remote interface {
	feed.Mutator
	feed.Lister
}

// Config tunes bulk deletes and per-call deadlines.
type Config struct {
	// BatchSize is the max number of ids per bulk delete call (default: 50)
	BatchSize int
	// Concurrency is the max number of bulk delete calls in flight (default: 4)
	Concurrency int
	// Timeout bounds each collaborator call (default: 10s)
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

type Gateway struct {
	remote Remote
	config Config
	logger *log.Logger
	now    func() time.Time
}

// New creates a gateway. Zero config members take their defaults.
func New(remote Remote, config Config, logger *log.Logger) *Gateway {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Gateway{
		remote: remote,
		config: config,
		logger: logger.WithComponent(log.ComponentGateway),
		now:    time.Now,
	}
}

// Create validates f and asks the collaborator to store it for ownerID.
// Invalid input returns *core.ValidationError without any remote call.
func (g *Gateway) Create(ctx context.Context, ownerID string, f core.Fields) error {
	if ownerID == "" {
		return &MutationError{Op: OpCreate, Err: ErrNoOwner}
	}
	f = f.Normalize()
	if err := f.Validate(g.now()); err != nil {
		g.logRejected(ctx, OpCreate, ownerID, "", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	id, err := g.remote.Create(ctx, ownerID, f)
	if err != nil {
		return g.fail(ctx, OpCreate, ownerID, "", err)
	}

	fields := log.NewFields().
		WithOperation(OpCreate).
		WithOwner(ownerID).
		WithRecord(id).
		WithEntry(string(f.Kind), f.Category, f.Amount.String())
	g.logger.InfoContext(ctx, "Transaction created", fields.ToSlice()...)
	return nil
}

// Update applies p to record id. Id and owner can not be changed. Without
// the current record only the patch itself is validated; the collaborator
// rejects a merged kind and category that disagree.
func (g *Gateway) Update(ctx context.Context, id string, p core.Patch) error {
	if id == "" {
		return &core.ValidationError{Fields: map[string]error{"id": ErrMissingID}}
	}
	p = p.Normalize()
	if err := p.Validate(g.now()); err != nil {
		g.logRejected(ctx, OpUpdate, "", id, err)
		return err
	}

	return g.update(ctx, id, p)
}

// UpdateRecord patches current, validating the merged record before any
// remote call. A category that belongs to the other kind is rejected here
// rather than by the collaborator.
func (g *Gateway) UpdateRecord(ctx context.Context, current core.Record, p core.Patch) error {
	if current.ID == "" {
		return &core.ValidationError{Fields: map[string]error{"id": ErrMissingID}}
	}
	p = p.Normalize()
	if err := p.ValidateFor(current, g.now()); err != nil {
		g.logRejected(ctx, OpUpdate, current.OwnerID, current.ID, err)
		return err
	}
	return g.update(ctx, current.ID, p)
}

func (g *Gateway) update(ctx context.Context, id string, p core.Patch) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if err := g.remote.Update(ctx, id, p); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			g.logRejected(ctx, OpUpdate, "", id, verr)
			return verr
		}
		return g.fail(ctx, OpUpdate, "", id, err)
	}
	g.logger.InfoContext(ctx, "Transaction updated", log.FieldRecordID, id)
	return nil
}

// Delete removes record id. A record that is already gone counts as deleted.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	err := g.remote.Delete(ctx, id)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		g.logger.DebugContext(ctx, "Delete of missing transaction ignored", log.FieldRecordID, id)
		return nil
	case err != nil:
		return g.fail(ctx, OpDelete, "", id, err)
	}
	g.logger.InfoContext(ctx, "Transaction deleted", log.FieldRecordID, id)
	return nil
}

// ClearAll deletes every record of ownerID. The ids are enumerated first
// and deleted in batches; batches run concurrently and a failed batch does
// not stop the others. Any failure is returned as a *MutationError
// wrapping *PartialClearError, so callers either see everything gone or an
// explicit list of survivors.
func (g *Gateway) ClearAll(ctx context.Context, ownerID string) (ClearResult, error) {
	if ownerID == "" {
		return ClearResult{}, &MutationError{Op: OpClearAll, Err: ErrNoOwner}
	}

	listCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	ids, err := g.remote.ListIDs(listCtx, ownerID)
	cancel()
	if err != nil {
		return ClearResult{}, g.fail(ctx, OpClearAll, ownerID, "", fmt.Errorf("list records: %w", err))
	}

	var (
		mu     sync.Mutex
		result = ClearResult{Deleted: []string{}, Failed: []string{}}
		errs   []error
		group  errgroup.Group
	)
	group.SetLimit(g.config.Concurrency)

	for _, batch := range chunk(ids, g.config.BatchSize) {
		group.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()
			err := g.remote.BulkDelete(bctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, batch...)
				errs = append(errs, err)
				return nil
			}
			result.Deleted = append(result.Deleted, batch...)
			return nil
		})
	}
	_ = group.Wait()

	if len(result.Failed) > 0 {
		partial := &PartialClearError{Failed: result.Failed, Total: len(ids), Err: errors.Join(errs...)}
		return result, g.fail(ctx, OpClearAll, ownerID, "", partial)
	}

	g.logger.InfoContext(ctx, "Transactions cleared", log.FieldOwner, ownerID, log.FieldCount, len(result.Deleted))
	return result, nil
}

func (g *Gateway) fail(ctx context.Context, op, owner, id string, err error) error {
	fields := log.NewFields().
		WithOperation(op).
		WithErrorType(log.ErrorTypeMutation).
		WithRecord(id).
		WithError(err)
	if owner != "" {
		fields.WithOwner(owner)
	}
	g.logger.ErrorContext(ctx, "Mutation failed", fields.ToSlice()...)
	return &MutationError{Op: op, ID: id, Err: err}
}

func (g *Gateway) logRejected(ctx context.Context, op, owner, id string, err error) {
	fields := log.NewFields().
		WithOperation(op).
		WithErrorType(log.ErrorTypeValidation).
		WithRecord(id).
		WithError(err)
	if owner != "" {
		fields.WithOwner(owner)
	}
	g.logger.WarnContext(ctx, "Mutation rejected", fields.ToSlice()...)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n:n])
		ids = ids[n:]
	}
	return out
}
