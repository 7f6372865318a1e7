package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/smallnest/milestonedb/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func init() {
	store.Register("mongodb", open)
	store.Register("mongodb+srv", open)
}

// DefaultDatabase is used when the connection descriptor names no database.
const DefaultDatabase = "milestones"

// MongoBackend implements store.Backend on a MongoDB database.
type MongoBackend struct {
	db *mongo.Database
	// owned is set when the backend created the client and must disconnect it.
	owned bool
}

var _ store.Backend = (*MongoBackend)(nil)

// MongoOptions configuration for MongoDB connection
type MongoOptions struct {
	URI         string
	Database    string // Defaults to the database in URI, then "milestones"
	AppName     string
	MaxPoolSize uint64
}

// NewMongoBackend connects to MongoDB and verifies the primary is reachable.
func NewMongoBackend(ctx context.Context, opts MongoOptions) (*MongoBackend, error) {
	if opts.URI == "" {
		return nil, &store.ConfigurationError{Field: "URI", Reason: "mongodb connection string is required"}
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.AppName != "" {
		clientOpts.SetAppName(opts.AppName)
	}
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to reach mongodb: %w", err)
	}

	name := opts.Database
	if name == "" {
		name = DefaultDatabase
	}
	return &MongoBackend{db: client.Database(name), owned: true}, nil
}

// NewMongoBackendWithDatabase wraps an existing database handle. Close does
// not disconnect its client.
func NewMongoBackendWithDatabase(db *mongo.Database) *MongoBackend {
	return &MongoBackend{db: db}
}

func open(ctx context.Context, uri *url.URL, opts map[string]any) (store.Backend, error) {
	mo := MongoOptions{
		URI:      uri.String(),
		Database: strings.TrimPrefix(uri.Path, "/"),
	}
	if name, ok := opts["database"].(string); ok && name != "" {
		mo.Database = name
	}
	if app, ok := opts["appName"].(string); ok {
		mo.AppName = app
	}
	n, ok, err := store.IntOption(opts, "maxPoolSize", 0, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	if ok {
		mo.MaxPoolSize = uint64(n)
	}
	return NewMongoBackend(ctx, mo)
}

// CreateIndex creates index on collection. MongoDB treats re-creating an
// identical index as a no-op.
func (b *MongoBackend) CreateIndex(ctx context.Context, collection string, index store.Index) error {
	keys := bson.D{}
	for _, k := range index.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: int(k.Order)})
	}

	opts := options.Index().SetName(index.Name)
	if index.Unique {
		opts.SetUnique(true)
	}
	if index.Background {
		opts.SetBackground(true)
	}

	_, err := b.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err)
	}
	return nil
}

// Upsert replaces the document matching key or inserts it. A concurrent
// upsert of the same key can lose the insert race against the unique index,
// in which case the replace is retried once.
func (b *MongoBackend) Upsert(ctx context.Context, collection string, key store.Key, doc store.Document) error {
	filter := bson.D{{Key: store.FieldID, Value: key.ID}, {Key: store.FieldVersion, Value: key.V}}
	replacement := bson.M(doc.Clone())
	delete(replacement, store.FieldInternalID)

	coll := b.db.Collection(collection)
	opts := options.Replace().SetUpsert(true)

	_, err := coll.ReplaceOne(ctx, filter, replacement, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = coll.ReplaceOne(ctx, filter, replacement, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to save milestone to mongodb: %w", err)
	}
	return nil
}

// FindLatest returns the highest version matching q without _id.
func (b *MongoBackend) FindLatest(ctx context.Context, collection string, q store.Query) (store.Document, error) {
	filter := bson.D{{Key: store.FieldID, Value: q.ID}}
	if q.MaxVersion != nil {
		filter = append(filter, bson.E{Key: store.FieldVersion, Value: bson.D{{Key: "$lte", Value: *q.MaxVersion}}})
	}

	opts := options.FindOne().
		SetSort(bson.D{{Key: store.FieldVersion, Value: -1}}).
		SetProjection(bson.D{{Key: store.FieldInternalID, Value: 0}})

	var raw bson.M
	err := b.db.Collection(collection).FindOne(ctx, filter, opts).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load milestone from mongodb: %w", err)
	}

	doc := store.Document(normalize(raw).(map[string]any))
	delete(doc, store.FieldInternalID)
	return doc, nil
}

// normalize turns driver container types into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}

// Close disconnects the client when the backend owns it.
func (b *MongoBackend) Close(ctx context.Context) error {
	if !b.owned {
		return nil
	}
	return b.db.Client().Disconnect(ctx)
}
