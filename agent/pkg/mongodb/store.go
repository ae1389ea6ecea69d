// Package mongodb implements the workflow's database collaborators on a
// MongoDB deployment: collection listing, sample-based schema description,
// and aggregation query execution.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"github.com/luminalabs/askdb/api/metrics"
)

const (
	// DefaultQueryTimeout bounds every aggregation run.
	DefaultQueryTimeout = 30 * time.Second
	// DefaultConnectTimeout is the connection establishment timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize is the maximum connection pool size.
	DefaultMaxPoolSize = 100
	// DefaultMaxResults caps the rows returned by any query.
	DefaultMaxResults = 100
	// schemaSampleSize is the number of documents inspected per collection.
	schemaSampleSize = 5
)

// systemCollectionPrefixes mark collections that are never exposed to the
// workflow.
var systemCollectionPrefixes = []string{"checkpoint", "system"}

// hiddenFields are stripped from sample documents before schema inference.
var hiddenFields = []string{"_id", "vector_embedding"}

// Config holds the configuration for the store.
type Config struct {
	Logger       *slog.Logger
	URI          string
	Database     string
	QueryTimeout time.Duration // defaults to DefaultQueryTimeout
	MaxResults   int           // defaults to DefaultMaxResults
}

// Store provides collection listing, schema description, and query
// execution against a single MongoDB database.
type Store struct {
	cfg    Config
	client *mongo.Client
	db     *mongo.Database
}

// NewStore connects to MongoDB and verifies the connection with a ping.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(DefaultMaxPoolSize).
		SetConnectTimeout(DefaultConnectTimeout).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{
		cfg:    cfg,
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListCollections returns the non-system collection names in the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	metrics.RecordMongoQuery(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if !isSystemCollection(name) {
			out = append(out, name)
		}
	}
	return out, nil
}

func isSystemCollection(name string) bool {
	for _, prefix := range systemCollectionPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// FetchSchema describes the requested collections concurrently. Collections
// that fail to describe are omitted rather than failing the whole fetch, but
// an error is returned when nothing could be described.
func (s *Store) FetchSchema(ctx context.Context, collections []string) (map[string]string, error) {
	out := make(map[string]string, len(collections))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	var firstErr error
	for _, name := range collections {
		g.Go(func() error {
			desc, err := s.describeCollection(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logWarn("failed to describe collection", "collection", name, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			out[name] = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(out) == 0 && firstErr != nil {
		return nil, fmt.Errorf("failed to describe collections: %w", firstErr)
	}
	return out, nil
}

// describeCollection builds a schema description from the document count and
// the field types observed in a small sample.
func (s *Store) describeCollection(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	coll := s.db.Collection(name)

	start := time.Now()
	count, err := coll.EstimatedDocumentCount(ctx)
	metrics.RecordMongoQuery(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to count documents: %w", err)
	}

	start = time.Now()
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(schemaSampleSize))
	metrics.RecordMongoQuery(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to sample documents: %w", err)
	}
	defer cursor.Close(ctx)

	fields := make(map[string]string)
	var order []string
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return "", fmt.Errorf("failed to decode sample document: %w", err)
		}
		for key, value := range doc {
			if isHiddenField(key) {
				continue
			}
			if _, seen := fields[key]; !seen {
				fields[key] = bsonTypeName(value)
				order = append(order, key)
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate sample documents: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document count: %d\nFields:\n", count)
	for _, key := range order {
		fmt.Fprintf(&b, "  %s: %s\n", key, fields[key])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func isHiddenField(name string) bool {
	for _, hidden := range hiddenFields {
		if name == hidden {
			return true
		}
	}
	return false
}

// bsonTypeName maps a decoded BSON value to the type name used in schema
// descriptions and generation prompts.
func bsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "String"
	case int32, int64, float64:
		return "Number"
	case bool:
		return "Boolean"
	case primitive.DateTime:
		return "Date"
	case primitive.ObjectID:
		return "ObjectId"
	case primitive.A:
		return "Array"
	case bson.M, bson.D:
		return "Object"
	case nil:
		return "Null"
	default:
		return "Unknown"
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, args...)
	}
}
