// Package storage is the SQLite implementation of the remote record store.
// Every committed write reloads the owner's records for live subscribers
// and, when a publisher is attached, announces the change to other
// processes sharing the database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/log"

	_ "modernc.org/sqlite"
)

// ChangePublisher announces that an owner's records changed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ownerID string) error
}

type SQLiteRepository struct {
	db        *sql.DB
	queries   *Queries
	hub       *feed.Hub
	publisher ChangePublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent batches
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite ready", "path", dbPath, "schema_version", version)

	r := &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}
	r.hub = feed.NewHub(r.load, logger)
	return r, nil
}

// SetPublisher attaches p; subsequent writes are announced through it.
func (r *SQLiteRepository) SetPublisher(p ChangePublisher) {
	r.publisher = p
}

// Close detaches every subscriber and closes the database.
func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Subscribe implements feed.Subscriber.
func (r *SQLiteRepository) Subscribe(ownerID string, onSnapshot feed.SnapshotFunc, onError feed.ErrorFunc) feed.Unsubscribe {
	return r.hub.Subscribe(ownerID, onSnapshot, onError)
}

// Refresh reloads ownerID's records for local subscribers. It is used
// when another process reports a change.
func (r *SQLiteRepository) Refresh(ownerID string) {
	r.hub.Notify(ownerID)
}

// RefreshAll reloads every subscribed owner.
func (r *SQLiteRepository) RefreshAll() {
	r.hub.NotifyAll()
}

// Create implements feed.Mutator.
func (r *SQLiteRepository) Create(ctx context.Context, ownerID string, f core.Fields) (string, error) {
	id := uuid.NewString()
	err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:        id,
		OwnerID:   ownerID,
		Title:     f.Title,
		Amount:    f.Amount.String(),
		Kind:      string(f.Kind),
		Category:  f.Category,
		Date:      string(f.Date),
		Note:      f.Note,
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transaction saved to SQLite",
		log.FieldRecordID, id,
		log.FieldOwner, ownerID,
		log.FieldAmount, f.Amount.String())

	r.changed(ctx, ownerID)
	return id, nil
}

// Update implements feed.Mutator. The read and the write share one
// transaction so concurrent patches do not interleave.
func (r *SQLiteRepository) Update(ctx context.Context, id string, p core.Patch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	row, err := q.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}

	current := toRecord(row)
	if err := p.ValidateMerged(current); err != nil {
		return err
	}
	rec := p.Apply(current)
	err = q.UpdateTransaction(ctx, UpdateTransactionParams{
		Title:     rec.Title,
		Amount:    rec.Amount.String(),
		Kind:      string(rec.Kind),
		Category:  rec.Category,
		Date:      string(rec.Date),
		Note:      rec.Note,
		UpdatedAt: r.now().UTC(),
		ID:        id,
	})
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.changed(ctx, row.OwnerID)
	return nil
}

// Delete implements feed.Mutator.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feed.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}

	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return feed.ErrNotFound
	}

	r.changed(ctx, row.OwnerID)
	return nil
}

// BulkDelete implements feed.Mutator. The batch is all-or-nothing; ids
// that do not exist are skipped.
func (r *SQLiteRepository) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	owners, err := q.OwnersOf(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve owners: %w", err)
	}
	n, err := q.DeleteTransactions(ctx, ids)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.DebugContext(ctx, "Batch deleted", log.FieldCount, n)
	for _, owner := range owners {
		r.changed(ctx, owner)
	}
	return nil
}

// ListIDs implements feed.Lister.
func (r *SQLiteRepository) ListIDs(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := r.queries.ListTransactionIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transaction ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Subscribers returns the number of live subscriptions.
func (r *SQLiteRepository) Subscribers() int {
	return r.hub.Subscribers()
}

func (r *SQLiteRepository) load(ctx context.Context, ownerID string) ([]core.Record, error) {
	rows, err := r.queries.ListTransactionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	records := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}
	return records, nil
}

func (r *SQLiteRepository) changed(ctx context.Context, ownerID string) {
	r.hub.Notify(ownerID)
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishChange(ctx, ownerID); err != nil {
		// local subscribers are already notified; remote ones catch up on their next change
		r.logger.WarnContext(ctx, "Failed to publish change",
			log.FieldOwner, ownerID,
			log.FieldError, err)
	}
}

func toRecord(t Transaction) core.Record {
	rec := core.Record{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Amount:    core.LenientAmount(t.Amount),
		Kind:      core.Kind(t.Kind),
		Category:  t.Category,
		Date:      core.Date(t.Date),
		Note:      t.Note,
		CreatedAt: t.CreatedAt,
	}
	if t.UpdatedAt.Valid {
		rec.UpdatedAt = t.UpdatedAt.Time
	}
	return rec
}
