package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/luminalabs/askdb/api/metrics"
)

// aggregatePattern matches a db.<collection>.aggregate(<pipeline>) command.
var aggregatePattern = regexp.MustCompile(`(?s)^db\.([A-Za-z0-9_]+)\.aggregate\((.*)\)$`)

// ParseAggregate splits an aggregation command into its collection name and
// pipeline stages.
func ParseAggregate(query string) (string, mongo.Pipeline, error) {
	m := aggregatePattern.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return "", nil, fmt.Errorf("query must have the form db.<collection>.aggregate([...])")
	}
	collection := m[1]

	pipelineText := strings.TrimSpace(m[2])
	if pipelineText == "" {
		pipelineText = "[]"
	}

	// UnmarshalExtJSON rejects top-level arrays, so wrap the pipeline in a
	// document first.
	var wrapper struct {
		Pipeline mongo.Pipeline `bson:"pipeline"`
	}
	doc := fmt.Sprintf(`{"pipeline": %s}`, pipelineText)
	if err := bson.UnmarshalExtJSON([]byte(doc), false, &wrapper); err != nil {
		return "", nil, fmt.Errorf("invalid aggregation pipeline: %w", err)
	}
	return collection, wrapper.Pipeline, nil
}

// ExecuteQuery parses and runs an aggregation command, returning the result
// rows. A $limit stage is appended when the pipeline has none, so a runaway
// query can't flood the caller.
func (s *Store) ExecuteQuery(ctx context.Context, query string) (any, error) {
	collection, pipeline, err := ParseAggregate(query)
	if err != nil {
		return nil, err
	}

	if isSystemCollection(collection) {
		return nil, fmt.Errorf("collection %q is not queryable", collection)
	}
	if !hasLimitStage(pipeline) {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: s.cfg.MaxResults}})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	metrics.RecordMongoQuery(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []map[string]any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode result document: %w", err)
		}
		rows = append(rows, normalizeDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// hasLimitStage reports whether any stage of the pipeline is a $limit.
func hasLimitStage(pipeline mongo.Pipeline) bool {
	for _, stage := range pipeline {
		for _, elem := range stage {
			if elem.Key == "$limit" {
				return true
			}
		}
	}
	return false
}

// normalizeDocument converts BSON-specific values into plain Go values so
// results serialize cleanly as JSON.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case primitive.A:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = normalizeValue(item)
		}
		return items
	case bson.M:
		return normalizeDocument(v)
	case bson.D:
		return normalizeDocument(v.Map())
	default:
		return value
	}
}
