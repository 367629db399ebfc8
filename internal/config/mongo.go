package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChunksCollection holds the indexed chunk documents of the mongo vector index.
const ChunksCollection = "chunks"

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	err = createIndexes(ctx, client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// The Atlas vector search index itself is managed outside the driver; only
// the regular indexes used by prune and count are created here.
func createIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	chunks := client.Database(dbName).Collection(ChunksCollection)
	_, err := chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "metadata.file", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.file", Value: 1}, {Key: "metadata.page", Value: 1}, {Key: "metadata.chunk", Value: 1}},
		},
	})
	return err
}
