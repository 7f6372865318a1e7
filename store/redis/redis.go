package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/milestonedb/store"
)

func init() {
	store.Register("redis", open)
	store.Register("rediss", open)
}

// RedisBackend implements store.Backend with two keys per document: a hash
// of version -> snapshot JSON and a sorted set of versions scored by v,
// which serves as the (id, v) index. Hash fields make (id, v) unique.
//
// Scores are float64, so versions above 2^53 lose ordering precision.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

var _ store.Backend = (*RedisBackend)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "milestonedb:"
}

const defaultPrefix = "milestonedb:"

// NewRedisBackend creates a backend with its own client.
func NewRedisBackend(opts RedisOptions) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisBackendWithClient(client, opts.Prefix)
}

// NewRedisBackendWithClient creates a backend on an existing client.
func NewRedisBackendWithClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
	}
}

func open(ctx context.Context, uri *url.URL, options map[string]any) (store.Backend, error) {
	opts, err := redis.ParseURL(uri.String())
	if err != nil {
		return nil, &store.ConfigurationError{Field: "URI", Reason: err.Error()}
	}

	prefix, _ := options["prefix"].(string)
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return NewRedisBackendWithClient(client, prefix), nil
}

func (b *RedisBackend) docKey(collection, id string) string {
	return fmt.Sprintf("%s%s:%s:docs", b.prefix, url.QueryEscape(collection), url.QueryEscape(id))
}

func (b *RedisBackend) versionsKey(collection, id string) string {
	return fmt.Sprintf("%s%s:%s:versions", b.prefix, url.QueryEscape(collection), url.QueryEscape(id))
}

func (b *RedisBackend) indexesKey() string {
	return b.prefix + "indexes"
}

// CreateIndex records the index definition. The per-document sorted sets
// already provide ordered version lookup.
func (b *RedisBackend) CreateIndex(ctx context.Context, collection string, index store.Index) error {
	def, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := b.client.HSet(ctx, b.indexesKey(), collection+"."+index.Name, def).Err(); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err)
	}
	return nil
}

// Upsert writes the snapshot and its version atomically.
func (b *RedisBackend) Upsert(ctx context.Context, collection string, key store.Key, doc store.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal milestone: %w", err)
	}

	field := strconv.FormatInt(key.V, 10)
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.docKey(collection, key.ID), field, data)
		pipe.ZAdd(ctx, b.versionsKey(collection, key.ID), redis.Z{Score: float64(key.V), Member: field})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save milestone to redis: %w", err)
	}
	return nil
}

// FindLatest picks the highest version within the bound from the sorted set
// and loads its snapshot.
func (b *RedisBackend) FindLatest(ctx context.Context, collection string, q store.Query) (store.Document, error) {
	max := "+inf"
	if q.MaxVersion != nil {
		max = strconv.FormatInt(*q.MaxVersion, 10)
	}

	versions, err := b.client.ZRevRangeByScore(ctx, b.versionsKey(collection, q.ID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   max,
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load milestone from redis: %w", err)
	}
	if len(versions) == 0 {
		return nil, nil
	}

	data, err := b.client.HGet(ctx, b.docKey(collection, q.ID), versions[0]).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load milestone from redis: %w", err)
	}

	doc, err := store.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal milestone: %w", err)
	}
	v, err := strconv.ParseInt(versions[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed version %q in redis: %w", versions[0], err)
	}
	doc[store.FieldVersion] = v
	return doc, nil
}

// Close closes the client.
func (b *RedisBackend) Close(ctx context.Context) error {
	return b.client.Close()
}
