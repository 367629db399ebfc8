package vectorindex

import (
	"context"
	"fmt"

	"docllama/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoIndex stores entries in a MongoDB Atlas collection queried through
// $vectorSearch. The search index (cosine, path "vector") is provisioned in Atlas.
type MongoIndex struct {
	client    *mongo.Client
	coll      *mongo.Collection
	indexName string
}

func NewMongoIndex(client *mongo.Client, dbName, collection, indexName string) *MongoIndex {
	return &MongoIndex{
		client:    client,
		coll:      client.Database(dbName).Collection(collection),
		indexName: indexName,
	}
}

func (m *MongoIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if _, err := validateBatch(entries, 0); err != nil {
		return err
	}

	writes := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": e.ID}).
			SetReplacement(models.ChunkIndexDocument{ID: e.ID, Text: e.Text, Vector: e.Vector, Metadata: e.Metadata}).
			SetUpsert(true))
	}
	if _, err := m.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("%w: mongo bulk upsert: %w", models.ErrIndex, err)
	}
	return nil
}

func (m *MongoIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}

	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         m.indexName,
			"path":          "vector",
			"queryVector":   vector,
			"numCandidates": numCandidates,
			"limit":         k,
		}}},
		{{Key: "$project", Value: bson.M{
			"text":     1,
			"metadata": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo vector search: %w", models.ErrIndex, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID       string               `bson:"_id"`
		Text     string               `bson:"text"`
		Metadata models.ChunkMetadata `bson:"metadata"`
		Score    *float64             `bson:"score"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: mongo vector search: %w", models.ErrIndex, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		match := Match{ID: r.ID, Text: r.Text, Metadata: r.Metadata}
		if r.Score != nil {
			// Atlas reports cosine as (1 + cos) / 2.
			d := 2 - 2*(*r.Score)
			match.Distance = &d
		}
		matches = append(matches, match)
	}
	return rank(matches, k), nil
}

func (m *MongoIndex) Prune(ctx context.Context, file string, keep []string) (int, error) {
	if keep == nil {
		keep = []string{}
	}
	res, err := m.coll.DeleteMany(ctx, bson.M{
		"metadata.file": file,
		"_id":           bson.M{"$nin": keep},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: mongo prune: %w", models.ErrIndex, err)
	}
	return int(res.DeletedCount), nil
}

func (m *MongoIndex) Count(ctx context.Context) (int, error) {
	n, err := m.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("%w: mongo count: %w", models.ErrIndex, err)
	}
	return int(n), nil
}

func (m *MongoIndex) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
