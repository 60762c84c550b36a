// Package vectorstore stores the question/answer corpus as embedded vectors
// and serves similarity search over it.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates one embedding per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
}

// Store is the vector storage used by the QA search tool and the indexer.
//
// Every store has a default collection (vector.collection) used by
// AddDocuments and Search. Collection management takes explicit names so the
// indexer can report on what it creates and drops.
type Store interface {
	// AddDocuments embeds and upserts docs into the default collection and
	// returns their IDs.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k documents most similar to query, best first.
	// An empty or missing collection yields no results.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// CreateCollection creates a collection for vectors of vectorSize
	// dimensions using cosine similarity.
	CreateCollection(ctx context.Context, name string, vectorSize int) error

	// DeleteCollection drops a collection and all of its documents.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// GetCollectionInfo returns ErrCollectionNotFound for unknown collections.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// DefaultCollection returns the collection used by AddDocuments and Search.
	DefaultCollection() string

	// Close releases the underlying connection or database.
	Close() error
}
