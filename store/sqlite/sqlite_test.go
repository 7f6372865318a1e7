package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/smallnest/milestonedb/log"
	"github.com/smallnest/milestonedb/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *SqliteBackend {
	t.Helper()
	b, err := NewSqliteBackend(context.Background(), SqliteOptions{
		Path: filepath.Join(t.TempDir(), "milestones.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

func TestNewSqliteBackend_RequiresPath(t *testing.T) {
	_, err := NewSqliteBackend(context.Background(), SqliteOptions{})
	var cfgErr *store.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSqliteBackend_UpsertAndFind(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, v := range []int64{1, 4, 8} {
		doc := (&store.Snapshot{ID: "a", V: v, Type: "json0", Data: map[string]any{"v": v}}).Document()
		require.NoError(t, b.Upsert(ctx, "m_docs", store.Key{ID: "a", V: v}, doc))
	}

	doc, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), doc["v"])
	assert.NotContains(t, doc, store.FieldInternalID)

	bound := int64(5)
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "a", MaxVersion: &bound})
	require.NoError(t, err)
	assert.Equal(t, int64(4), doc["v"])

	bound = 0
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "a", MaxVersion: &bound})
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSqliteBackend_UpsertReplaces(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	key := store.Key{ID: "a", V: 2}

	require.NoError(t, b.Upsert(ctx, "m_docs", key, (&store.Snapshot{ID: "a", V: 2, Data: "first"}).Document()))
	require.NoError(t, b.Upsert(ctx, "m_docs", key, (&store.Snapshot{ID: "a", V: 2, Data: "second"}).Document()))

	var count int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "m_docs"`).Scan(&count))
	assert.Equal(t, 1, count)

	doc, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "second", doc["data"])
}

func TestSqliteBackend_CreateIndex(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.CreateIndex(ctx, "m_docs", store.MilestoneIndex))
	require.NoError(t, b.CreateIndex(ctx, "m_docs", store.MilestoneIndex))

	var unique int
	err := b.db.QueryRowContext(ctx,
		`SELECT "unique" FROM pragma_index_list('m_docs') WHERE name = 'm_docs_id_1_v_1'`).Scan(&unique)
	require.NoError(t, err)
	assert.Equal(t, 1, unique)

	// The unique index rejects a raw duplicate; Upsert still replaces.
	_, err = b.db.ExecContext(ctx, `INSERT INTO "m_docs" (id, v, doc) VALUES ('a', 1, '{}')`)
	require.NoError(t, err)
	_, err = b.db.ExecContext(ctx, `INSERT INTO "m_docs" (id, v, doc) VALUES ('a', 1, '{}')`)
	assert.Error(t, err)

	require.NoError(t, b.Upsert(ctx, "m_docs", store.Key{ID: "a", V: 1}, (&store.Snapshot{ID: "a", V: 1, Data: "x"}).Document()))

	err = b.CreateIndex(ctx, "m_docs", store.Index{Name: "bad", Keys: []store.IndexKey{{Field: "data"}}})
	assert.Error(t, err)
}

func TestSqliteBackend_CollectionNamesAreQuoted(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	name := store.CollectionName(`odd "name"; drop`)
	require.NoError(t, b.Upsert(ctx, name, store.Key{ID: "a", V: 1}, (&store.Snapshot{ID: "a", V: 1}).Document()))

	doc, err := b.FindLatest(ctx, name, store.Query{ID: "a"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "a", doc["id"])
}

func TestSqliteBackend_ThroughStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := store.New(ctx, store.Options{URI: "sqlite://" + path, Logger: log.NoOpLogger{}})
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx))

	for v := int64(1); v <= 10; v++ {
		_, err := s.Save(ctx, "docs", &store.Snapshot{ID: "doc-1", V: v, Data: v})
		require.NoError(t, err)
	}

	got, err := s.GetLatest(ctx, "docs", "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.V)
	assert.Nil(t, got.M)

	got, err = s.GetAt(ctx, "docs", "doc-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.V)
	assert.Equal(t, json.Number("3"), got.Data)

	assert.True(t, s.Indexed("docs"))
	require.NoError(t, s.Close(ctx))

	_, err = s.GetLatest(ctx, "docs", "doc-1")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestOpen_InMemory(t *testing.T) {
	ctx := context.Background()

	s, err := store.New(ctx, store.Options{URI: "sqlite::memory:", Logger: log.NoOpLogger{}})
	require.NoError(t, err)

	_, err = s.Save(ctx, "docs", &store.Snapshot{ID: "a", V: 1, Data: "x"})
	require.NoError(t, err)

	got, err := s.GetLatest(ctx, "docs", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Data)
	require.NoError(t, s.Close(ctx))
}

func TestSqliteBackend_LargeIntegersRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	doc := (&store.Snapshot{
		ID:   "big",
		V:    1,
		Data: map[string]any{"n": int64(9007199254740993)},
		M:    map[string]any{"seq": int64(1) << 62},
	}).Document()
	require.NoError(t, b.Upsert(ctx, "m_docs", store.Key{ID: "big", V: 1}, doc))

	got, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "big"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": json.Number("9007199254740993")}, got["data"])
	assert.Equal(t, map[string]any{"seq": json.Number("4611686018427387904")}, got["m"])

	snap, err := store.SnapshotFromDocument(got)
	require.NoError(t, err)
	n, err := snap.Data.(map[string]any)["n"].(json.Number).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), n)
}
