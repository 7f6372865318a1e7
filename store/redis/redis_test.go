package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/milestonedb/log"
	"github.com/smallnest/milestonedb/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b := NewRedisBackend(RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { b.Close(context.Background()) })
	return mr, b
}

func TestRedisBackend(t *testing.T) {
	mr, b := newTestBackend(t)
	ctx := context.Background()

	for _, v := range []int64{2, 10, 7} {
		doc := (&store.Snapshot{ID: "doc:1", V: v, Type: "json0", Data: map[string]any{"v": v}}).Document()
		require.NoError(t, b.Upsert(ctx, "m_docs", store.Key{ID: "doc:1", V: v}, doc))
	}

	// Test latest
	doc, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "doc:1"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), doc["v"])
	assert.Equal(t, "json0", doc["type"])

	// Test bounded lookups
	bound := int64(7)
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "doc:1", MaxVersion: &bound})
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc["v"])

	bound = 5
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "doc:1", MaxVersion: &bound})
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc["v"])

	bound = 1
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "doc:1", MaxVersion: &bound})
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Test unknown document
	doc, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "other"})
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Ids are escaped so they cannot collide across collections
	assert.True(t, mr.Exists("milestonedb:m_docs:doc%3A1:docs"))
	assert.True(t, mr.Exists("milestonedb:m_docs:doc%3A1:versions"))
}

func TestRedisBackend_UpsertReplaces(t *testing.T) {
	mr, b := newTestBackend(t)
	ctx := context.Background()
	key := store.Key{ID: "a", V: 1}

	require.NoError(t, b.Upsert(ctx, "m_docs", key, (&store.Snapshot{ID: "a", V: 1, Data: "first"}).Document()))
	require.NoError(t, b.Upsert(ctx, "m_docs", key, (&store.Snapshot{ID: "a", V: 1, Data: "second"}).Document()))

	members, err := mr.ZMembers("milestonedb:m_docs:a:versions")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, members)

	doc, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "second", doc["data"])
}

func TestRedisBackend_CreateIndex(t *testing.T) {
	mr, b := newTestBackend(t)

	require.NoError(t, b.CreateIndex(context.Background(), "m_docs", store.MilestoneIndex))

	raw := mr.HGet("milestonedb:indexes", "m_docs.id_1_v_1")
	require.NotEmpty(t, raw)

	var def store.Index
	require.NoError(t, json.Unmarshal([]byte(raw), &def))
	assert.Equal(t, store.MilestoneIndex, def)
}

func TestRedisBackend_Errors(t *testing.T) {
	mr, b := newTestBackend(t)
	ctx := context.Background()

	mr.SetError("LOADING")
	err := b.Upsert(ctx, "m_docs", store.Key{ID: "a", V: 1}, (&store.Snapshot{ID: "a", V: 1}).Document())
	assert.Error(t, err)

	_, err = b.FindLatest(ctx, "m_docs", store.Query{ID: "a"})
	assert.Error(t, err)
	mr.SetError("")

	err = b.Upsert(ctx, "m_docs", store.Key{ID: "a", V: 1}, (&store.Snapshot{ID: "a", V: 1, Data: make(chan int)}).Document())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal milestone")
}

func TestRedisBackend_ThroughStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	s, err := store.New(ctx, store.Options{
		URI:            "redis://" + mr.Addr() + "/0",
		ConnectOptions: map[string]any{"prefix": "app:"},
		Logger:         log.NoOpLogger{},
	})
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx))

	saved, err := s.Save(ctx, "docs", &store.Snapshot{ID: "d", V: 3, Data: "x", M: map[string]any{"ctime": float64(1)}})
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := s.GetAt(ctx, "docs", "d", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Data)
	assert.Equal(t, map[string]any{"ctime": json.Number("1")}, got.M)

	assert.True(t, mr.Exists("app:m_docs:d:docs"))
	assert.NotEmpty(t, mr.HGet("app:indexes", "m_docs.id_1_v_1"))

	require.NoError(t, s.Close(ctx))
	_, err = s.GetLatest(ctx, "docs", "d")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestOpen_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	s, err := store.New(context.Background(), store.Options{URI: "redis://" + addr, Logger: log.NoOpLogger{}})
	require.NoError(t, err)

	err = s.Ready(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.Contains(t, err.Error(), "unable to reach redis")
}

func TestRedisBackend_LargeIntegersRoundTrip(t *testing.T) {
	_, b := newTestBackend(t)
	ctx := context.Background()

	doc := (&store.Snapshot{ID: "big", V: 1, Data: int64(9007199254740993)}).Document()
	require.NoError(t, b.Upsert(ctx, "m_docs", store.Key{ID: "big", V: 1}, doc))

	got, err := b.FindLatest(ctx, "m_docs", store.Query{ID: "big"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), got["data"])

	snap, err := store.SnapshotFromDocument(got)
	require.NoError(t, err)
	n, err := store.DecodeData[int64](snap)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), n)
}
