package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Transaction is one row of the transactions table.
type Transaction struct {
	ID        string
	OwnerID   string
	Title     string
	Amount    string
	Kind      string
	Category  string
	Date      string
	Note      string
	CreatedAt time.Time
	UpdatedAt sql.NullTime
}

const transactionColumns = `id, owner_id, title, amount, kind, category, date, note, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Amount,
		&t.Kind,
		&t.Category,
		&t.Date,
		&t.Note,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

const createTransaction = `-- name: CreateTransaction :exec
INSERT INTO transactions (id, owner_id, title, amount, kind, category, date, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateTransactionParams struct {
	ID        string
	OwnerID   string
	Title     string
	Amount    string
	Kind      string
	Category  string
	Date      string
	Note      string
	CreatedAt time.Time
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		arg.ID,
		arg.OwnerID,
		arg.Title,
		arg.Amount,
		arg.Kind,
		arg.Category,
		arg.Date,
		arg.Note,
		arg.CreatedAt,
	)
	return err
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsByOwner = `-- name: ListTransactionsByOwner :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE owner_id = ?
ORDER BY date DESC, created_at ASC, id ASC`

func (q *Queries) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTransactionIDs = `-- name: ListTransactionIDs :many
SELECT id FROM transactions WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListTransactionIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionIDs, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const updateTransaction = `-- name: UpdateTransaction :exec
UPDATE transactions
SET title = ?, amount = ?, kind = ?, category = ?, date = ?, note = ?, updated_at = ?
WHERE id = ?`

type UpdateTransactionParams struct {
	Title     string
	Amount    string
	Kind      string
	Category  string
	Date      string
	Note      string
	UpdatedAt time.Time
	ID        string
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) error {
	_, err := q.db.ExecContext(ctx, updateTransaction,
		arg.Title,
		arg.Amount,
		arg.Kind,
		arg.Category,
		arg.Date,
		arg.Note,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const deleteTransaction = `-- name: DeleteTransaction :execrows
DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const ownersOf = `-- name: OwnersOf :many
SELECT DISTINCT owner_id FROM transactions WHERE id IN (/*SLICE:ids*/?)`

// OwnersOf returns the distinct owners of the given record ids.
func (q *Queries) OwnersOf(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := strings.Replace(ownersOf, "/*SLICE:ids*/?", placeholders(len(ids)), 1)
	rows, err := q.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return owners, nil
}

const deleteTransactions = `-- name: DeleteTransactions :execrows
DELETE FROM transactions WHERE id IN (/*SLICE:ids*/?)`

func (q *Queries) DeleteTransactions(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := strings.Replace(deleteTransactions, "/*SLICE:ids*/?", placeholders(len(ids)), 1)
	res, err := q.db.ExecContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
