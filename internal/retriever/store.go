package retriever

import (
	"context"
	"time"
)

// Vector is the canonical embedding type used throughout the retriever.
type Vector []float32

// Document is an embedded text row with its owner and collection scoping.
type Document struct {
	ID         string         `json:"id"`
	OwnerKey   string         `json:"owner_key,omitempty"`
	Collection string         `json:"collection"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id,omitempty"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Embedding  Vector         `json:"-"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DocumentInput is a caller-supplied payload for Store.Index.
type DocumentInput struct {
	Text       string         `json:"text"`
	Title      string         `json:"title,omitempty"`
	OwnerKey   string         `json:"owner_key,omitempty"`
	SourceID   string         `json:"source_id,omitempty"`
	SourceType string         `json:"source_type,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Filters are optional exact-match constraints on a query.
// Empty fields do not constrain.
type Filters struct {
	OwnerKey   string
	CompanyID  string
	Collection string
}

// Result is a scored query match.
type Result struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// ListOptions select documents for ListRecent.
type ListOptions struct {
	OwnerKey  string
	CompanyID string
	Limit     int
}

// Embedder turns texts into vectors, one per input in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Repository is the relational store behind the retriever
type Repository interface {
	// FindBySource returns the document with the given (source_id, owner_key)
	// pair, or ErrNotFound.
	FindBySource(ctx context.Context, sourceID, ownerKey string) (*Document, error)

	// SaveAll inserts or updates docs by ID in a single atomic commit.
	SaveAll(ctx context.Context, docs []*Document) error

	// Candidates returns the rows a query may score. A non-empty ownerKey
	// narrows to rows owned by that key or with no owner at all.
	Candidates(ctx context.Context, ownerKey string) ([]*Document, error)

	// Get returns a document by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// ListRecent returns documents newest first.
	ListRecent(ctx context.Context, opts ListOptions) ([]*Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying connection.
	Close() error
}
