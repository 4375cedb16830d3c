package retriever

import "errors"

var (
	// ErrEmbeddingUnavailable means the embedding provider could not produce vectors.
	// Callers may retry later; nothing was written.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrNotFound is returned by direct lookups that match no row.
	ErrNotFound = errors.New("document not found")

	// ErrEmptyQuery is returned when a query has no text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidVector is returned by ParseVector for values that are not numeric vectors.
	ErrInvalidVector = errors.New("invalid vector")
)
