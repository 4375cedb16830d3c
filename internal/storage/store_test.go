package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorizo/yorizo/internal/retriever"
)

type staticEmbedder struct {
	vec retriever.Vector
	err error
}

func (e *staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([]retriever.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]retriever.Vector, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func TestStoreOnSQLite_ReindexOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepository(t)
	store := retriever.NewStore(repo, &staticEmbedder{vec: retriever.Vector{1, 2, 3}})

	_, err := store.Index(ctx, []retriever.DocumentInput{{Text: "first", SourceID: "s1", OwnerKey: "u1"}}, "")
	require.NoError(t, err)
	_, err = store.Index(ctx, []retriever.DocumentInput{{Text: "second", SourceID: "s1", OwnerKey: "u1"}}, "")
	require.NoError(t, err)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := store.Query(ctx, "anything", 5, retriever.Filters{OwnerKey: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "global", results[0].Metadata["collection"])
}

func TestStoreOnSQLite_OverflowingEmbeddingExcluded(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepository(t)
	now := time.Now().UTC().Format(timeLayout)

	_, err := repo.db.Exec(`INSERT INTO rag_documents
		(id, collection, source_type, title, content, embedding, metadata, created_at, updated_at)
		VALUES
		('low',  'global', 'document', 'low',  'c', '[0.1, 1]',  '{}', ?, ?),
		('bad',  'global', 'document', 'bad',  'c', '[1e39, 1]', '{}', ?, ?),
		('high', 'global', 'document', 'high', 'c', '[1, 0]',    '{}', ?, ?)`,
		now, now, now, now, now, now)
	require.NoError(t, err)

	store := retriever.NewStore(repo, &staticEmbedder{vec: retriever.Vector{1, 0}})
	results, err := store.Query(ctx, "q", 3, retriever.Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, "low", results[1].ID)

	// still reachable directly, without a vector
	bad, err := repo.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, bad.Embedding)
}

func TestStoreOnSQLite_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepository(t)
	emb := &staticEmbedder{vec: retriever.Vector{1}}
	store := retriever.NewStore(repo, emb)

	_, err := store.Index(ctx, []retriever.DocumentInput{{Text: "a"}}, "")
	require.NoError(t, err)

	emb.err = errors.New("no credential")
	_, err = store.Index(ctx, []retriever.DocumentInput{{Text: "b"}, {Text: "c"}}, "")
	assert.ErrorIs(t, err, retriever.ErrEmbeddingUnavailable)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreOnSQLite_CompanyScopedListing(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepository(t)
	store := retriever.NewStore(repo, &staticEmbedder{vec: retriever.Vector{1}})

	_, err := store.Index(ctx, []retriever.DocumentInput{
		{Text: "acme plan", Metadata: map[string]any{"company_id": "acme"}},
		{Text: "global note"},
	}, "u1")
	require.NoError(t, err)

	docs, err := store.ListRecent(ctx, retriever.ListOptions{CompanyID: "acme"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "company-acme", docs[0].Collection)

	results, err := store.Query(ctx, "plan", 5, retriever.Filters{CompanyID: "acme", OwnerKey: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme plan", results[0].Text)
}
