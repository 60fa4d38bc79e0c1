package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Queries runs document operations against a pool or a transaction.
type Queries struct {
	db DBTX
}

// NewQueries wraps a DBTX.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// PG is the Postgres-backed Store. Documents live in a single JSONB table
// keyed by (collection, id).
type PG struct {
	*Queries
	pool TxBeginner
}

// NewPG creates a PG store over an open pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{Queries: NewQueries(pool), pool: pool}
}

// Transact runs fn inside a single Postgres transaction.
func (s *PG) Transact(ctx context.Context, fn func(c Collections) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const insertDocument = `
INSERT INTO documents (collection, id, data)
VALUES ($1, $2, $3::jsonb)`

func (q *Queries) Create(ctx context.Context, collection string, doc any) (string, error) {
	id, body, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}
	if _, err := q.db.Exec(ctx, insertDocument, collection, id, string(body)); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
		}
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

const selectDocument = `
SELECT id, data, version FROM documents
WHERE collection = $1 AND id = $2`

func (q *Queries) Get(ctx context.Context, collection, id string, dst any) error {
	return q.getInto(ctx, selectDocument, collection, id, dst)
}

// Lock reads a document and holds a row lock on it until the enclosing
// transaction ends. Outside a transaction it behaves like Get.
func (q *Queries) Lock(ctx context.Context, collection, id string, dst any) error {
	return q.getInto(ctx, selectDocument+" FOR UPDATE", collection, id, dst)
}

func (q *Queries) getInto(ctx context.Context, sql, collection, id string, dst any) error {
	var doc Document
	var data []byte
	err := q.db.QueryRow(ctx, sql, collection, id).Scan(&doc.ID, &data, &doc.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc.Data = data
	return decodeInto(doc, dst)
}

const selectCollection = `
SELECT id, data, version FROM documents
WHERE collection = $1
ORDER BY seq`

func (q *Queries) GetAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := q.db.Query(ctx, selectCollection, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return collectDocuments(rows, collection)
}

func (q *Queries) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	clause, value, err := filterClause(f)
	if err != nil {
		return nil, err
	}
	sql := `
SELECT id, data, version FROM documents
WHERE collection = $1 AND ` + clause + `
ORDER BY seq`
	rows, err := q.db.Query(ctx, sql, collection, f.Field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return collectDocuments(rows, collection)
}

const patchDocument = `
UPDATE documents
SET data = data || $3::jsonb, version = version + 1, updated_at = now()
WHERE collection = $1 AND id = $2`

func (q *Queries) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	body, err := encodePatch(patch)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, patchDocument, collection, id, string(body))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

const deleteDocument = `DELETE FROM documents WHERE collection = $1 AND id = $2`

func (q *Queries) Delete(ctx context.Context, collection, id string) error {
	tag, err := q.db.Exec(ctx, deleteDocument, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// --- Helpers ---

func collectDocuments(rows pgx.Rows, collection string) ([]Document, error) {
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		var doc Document
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.Version); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	return docs, nil
}

// filterClause renders a Filter against the data column. The field name
// is always bound as $2 and the value as text in $3.
func filterClause(f Filter) (string, string, error) {
	if f.Field == "" || !validOp(f.Op) {
		return "", "", fmt.Errorf("%w: %q %q", ErrBadFilter, f.Field, f.Op)
	}
	op := string(f.Op)
	if f.Op == OpEq {
		op = "="
	}

	switch v := f.Value.(type) {
	case time.Time:
		return "(data ->> $2)::timestamptz " + op + " $3::text::timestamptz", v.UTC().Format(time.RFC3339Nano), nil
	case int:
		return "(data ->> $2)::numeric " + op + " $3::text::numeric", fmt.Sprint(v), nil
	case int64:
		return "(data ->> $2)::numeric " + op + " $3::text::numeric", fmt.Sprint(v), nil
	case float64:
		return "(data ->> $2)::numeric " + op + " $3::text::numeric", decimal.NewFromFloat(v).String(), nil
	case decimal.Decimal:
		return "(data ->> $2)::numeric " + op + " $3::text::numeric", v.String(), nil
	case string:
		return "data ->> $2 " + op + " $3", v, nil
	case bool:
		if f.Op != OpEq {
			return "", "", fmt.Errorf("%w: bool fields support == only", ErrBadFilter)
		}
		return "(data ->> $2)::boolean = $3::text::boolean", fmt.Sprint(v), nil
	}
	return "", "", fmt.Errorf("%w: value type %T", ErrBadFilter, f.Value)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
