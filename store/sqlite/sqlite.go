package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/smallnest/milestonedb/store"
)

func init() {
	store.Register("sqlite", open)
}

// SqliteBackend implements store.Backend with one table per physical
// collection.
type SqliteBackend struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]struct{}
}

var _ store.Backend = (*SqliteBackend)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path string
}

// NewSqliteBackend opens the database file at opts.Path.
func NewSqliteBackend(ctx context.Context, opts SqliteOptions) (*SqliteBackend, error) {
	if opts.Path == "" {
		return nil, &store.ConfigurationError{Field: "Path", Reason: "sqlite path is required"}
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	if strings.Contains(opts.Path, ":memory:") {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	return &SqliteBackend{
		db:     db,
		tables: make(map[string]struct{}),
	}, nil
}

// open accepts sqlite:///abs/path.db, sqlite://rel/path.db and
// sqlite::memory:. The query string is passed to the driver.
func open(ctx context.Context, uri *url.URL, _ map[string]any) (store.Backend, error) {
	path := uri.Host + uri.Path
	if path == "" {
		path = uri.Opaque
	}
	if uri.RawQuery != "" {
		path = "file:" + path + "?" + uri.RawQuery
	}
	return NewSqliteBackend(ctx, SqliteOptions{Path: path})
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b *SqliteBackend) ensureTable(ctx context.Context, collection string) error {
	b.mu.Lock()
	_, ok := b.tables[collection]
	b.mu.Unlock()
	if ok {
		return nil
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			_id INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			v INTEGER NOT NULL,
			doc TEXT NOT NULL
		)
	`, quoteIdent(collection))

	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", collection, err)
	}

	b.mu.Lock()
	b.tables[collection] = struct{}{}
	b.mu.Unlock()
	return nil
}

// CreateIndex creates index on the collection table. SQLite has no
// background builds, so Background is ignored.
func (b *SqliteBackend) CreateIndex(ctx context.Context, collection string, index store.Index) error {
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

	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	query := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique,
		quoteIdent(collection+"_"+index.Name),
		quoteIdent(collection),
		strings.Join(columns, ", "))

	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err)
	}
	return nil
}

// Upsert updates the row matching key and inserts it when none matched.
func (b *SqliteBackend) Upsert(ctx context.Context, collection string, key store.Key, doc store.Document) error {
	if err := b.ensureTable(ctx, collection); err != nil {
		return err
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal milestone: %w", err)
	}

	table := quoteIdent(collection)
	update := fmt.Sprintf("UPDATE %s SET doc = ? WHERE id = ? AND v = ?", table)
	insert := fmt.Sprintf("INSERT INTO %s (id, v, doc) VALUES (?, ?, ?)", table)

	res, err := b.db.ExecContext(ctx, update, string(docJSON), key.ID, key.V)
	if err != nil {
		return fmt.Errorf("failed to save milestone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = b.db.ExecContext(ctx, insert, key.ID, key.V, string(docJSON))
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if _, err := b.db.ExecContext(ctx, update, string(docJSON), key.ID, key.V); err != nil {
			return fmt.Errorf("failed to save milestone: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to save milestone: %w", err)
}

// FindLatest returns the row of q.ID with the greatest v within the bound.
func (b *SqliteBackend) FindLatest(ctx context.Context, collection string, q store.Query) (store.Document, error) {
	if err := b.ensureTable(ctx, collection); err != nil {
		return nil, err
	}

	args := []any{q.ID}
	where := "id = ?"
	if q.MaxVersion != nil {
		where += " AND v <= ?"
		args = append(args, *q.MaxVersion)
	}
	query := fmt.Sprintf("SELECT v, doc FROM %s WHERE %s ORDER BY v DESC LIMIT 1", quoteIdent(collection), where)

	var v int64
	var docJSON string
	err := b.db.QueryRowContext(ctx, query, args...).Scan(&v, &docJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	doc, err := store.DecodeDocument([]byte(docJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestone: %w", err)
	}
	doc[store.FieldVersion] = v
	delete(doc, store.FieldInternalID)
	return doc, nil
}

// Close closes the database connection
func (b *SqliteBackend) Close(ctx context.Context) error {
	return b.db.Close()
}
