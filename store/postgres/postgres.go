package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/milestonedb/store"
)

func init() {
	store.Register("postgres", open)
	store.Register("postgresql", open)
}

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresBackend implements store.Backend with one table per physical
// collection. Each row keeps the snapshot document in a JSONB column next to
// its id and v; _id is a serial surrogate key.
type PostgresBackend struct {
	pool DBPool

	mu     sync.Mutex
	tables map[string]struct{}
}

var _ store.Backend = (*PostgresBackend)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	MaxConns   int32 // 0 keeps the pgxpool default
}

// NewPostgresBackend connects a pool and verifies it with a ping.
func NewPostgresBackend(ctx context.Context, opts PostgresOptions) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return NewPostgresBackendWithPool(pool), nil
}

// NewPostgresBackendWithPool creates a backend on an existing pool.
// Useful for testing with mocks
func NewPostgresBackendWithPool(pool DBPool) *PostgresBackend {
	return &PostgresBackend{
		pool:   pool,
		tables: make(map[string]struct{}),
	}
}

func open(ctx context.Context, uri *url.URL, options map[string]any) (store.Backend, error) {
	opts := PostgresOptions{ConnString: uri.String()}
	n, ok, err := store.IntOption(options, "maxConns", 1, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	if ok {
		opts.MaxConns = int32(n)
	}
	return NewPostgresBackend(ctx, opts)
}

// ensureTable creates the table of a physical collection once per backend.
func (b *PostgresBackend) ensureTable(ctx context.Context, collection string) error {
	b.mu.Lock()
	_, ok := b.tables[collection]
	b.mu.Unlock()
	if ok {
		return nil
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			_id BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			v BIGINT NOT NULL,
			doc JSONB NOT NULL
		)
	`, pgx.Identifier{collection}.Sanitize())

	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", collection, err)
	}

	b.mu.Lock()
	b.tables[collection] = struct{}{}
	b.mu.Unlock()
	return nil
}

// CreateIndex creates index on the collection table. Background indexes are
// built CONCURRENTLY so writers are not blocked.
func (b *PostgresBackend) CreateIndex(ctx context.Context, collection string, index store.Index) error {
	if err := b.ensureTable(ctx, collection); err != nil {
		return err
	}

	columns := make([]string, 0, len(index.Keys))
	for _, key := range index.Keys {
		if key.Field != store.FieldID && key.Field != store.FieldVersion {
			return fmt.Errorf("unsupported index field %q", key.Field)
		}
		dir := "ASC"
		if key.Order == store.Descending {
			dir = "DESC"
		}
		columns = append(columns, key.Field+" "+dir)
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if index.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	if index.Background {
		sb.WriteString("CONCURRENTLY ")
	}
	fmt.Fprintf(&sb, "IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{collection + "_" + index.Name}.Sanitize(),
		pgx.Identifier{collection}.Sanitize(),
		strings.Join(columns, ", "))

	if _, err := b.pool.Exec(ctx, sb.String()); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err)
	}
	return nil
}

// Upsert updates the row matching key and inserts it when none matched.
func (b *PostgresBackend) Upsert(ctx context.Context, collection string, key store.Key, doc store.Document) error {
	if err := b.ensureTable(ctx, collection); err != nil {
		return err
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal milestone: %w", err)
	}

	table := pgx.Identifier{collection}.Sanitize()
	update := fmt.Sprintf("UPDATE %s SET doc = $3 WHERE id = $1 AND v = $2", table)
	insert := fmt.Sprintf("INSERT INTO %s (id, v, doc) VALUES ($1, $2, $3)", table)

	tag, err := b.pool.Exec(ctx, update, key.ID, key.V, docJSON)
	if err != nil {
		return fmt.Errorf("failed to save milestone: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = b.pool.Exec(ctx, insert, key.ID, key.V, docJSON)
	if err == nil {
		return nil
	}

	// A concurrent insert of the same key won the race; replace its row.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if _, err := b.pool.Exec(ctx, update, key.ID, key.V, docJSON); err != nil {
			return fmt.Errorf("failed to save milestone: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to save milestone: %w", err)
}

// FindLatest returns the row of q.ID with the greatest v within the bound.
func (b *PostgresBackend) FindLatest(ctx context.Context, collection string, q store.Query) (store.Document, error) {
	if err := b.ensureTable(ctx, collection); err != nil {
		return nil, err
	}

	args := []any{q.ID}
	where := "id = $1"
	if q.MaxVersion != nil {
		where += " AND v <= $2"
		args = append(args, *q.MaxVersion)
	}
	query := fmt.Sprintf("SELECT v, doc FROM %s WHERE %s ORDER BY v DESC LIMIT 1",
		pgx.Identifier{collection}.Sanitize(), where)

	var v int64
	var docJSON []byte
	err := b.pool.QueryRow(ctx, query, args...).Scan(&v, &docJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	doc, err := store.DecodeDocument(docJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestone: %w", err)
	}
	// The column keeps full int64 precision; the JSON copy may not.
	doc[store.FieldVersion] = v
	delete(doc, store.FieldInternalID)
	return doc, nil
}

// Close closes the connection pool
func (b *PostgresBackend) Close(ctx context.Context) error {
	b.pool.Close()
	return nil
}
