package storage

import (
	"context"
	"errors"
	"fmt"

	"docllama/internal/config"
)

// Kind selects the area an object lives in.
type Kind string

const (
	PDFs   Kind = "pdfs"
	Text   Kind = "text"
	Chunks Kind = "chunks"
)

var ErrNotFound = errors.New("object not found")

// Store keeps raw uploads and their derived text and chunk files. Put
// overwrites an existing object of the same name and returns its location.
type Store interface {
	Put(ctx context.Context, kind Kind, name string, data []byte) (string, error)
	Get(ctx context.Context, kind Kind, name string) ([]byte, error)
}

// Open builds the store selected by BLOB_STORE.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobStore {
	case "fs", "":
		return NewFileStore(map[Kind]string{
			PDFs:   cfg.PDFDir(),
			Text:   cfg.TextDir(),
			Chunks: cfg.ChunkDir(),
		})
	case "s3":
		return NewS3Store(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob store %q", cfg.BlobStore)
	}
}
