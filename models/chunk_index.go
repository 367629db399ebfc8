package models

// ChunkIndexDocument is a denormalized chunk stored for Atlas $vectorSearch.
// The search index covers the "vector" path.
type ChunkIndexDocument struct {
	ID       string        `bson:"_id"`
	Text     string        `bson:"text"`
	Vector   []float32     `bson:"vector"`
	Metadata ChunkMetadata `bson:"metadata"`
}
