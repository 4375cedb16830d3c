package retriever

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "rag.json")

	repo, err := NewMemoryRepository(path)
	require.NoError(t, err)

	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveAll(ctx, []*Document{{
		ID:         "d1",
		OwnerKey:   "u1",
		Collection: "global",
		SourceType: "document",
		SourceID:   "s1",
		Title:      "Title",
		Content:    "Body",
		Embedding:  Vector{0.5, 0.25},
		Metadata:   map[string]any{"collection": "global"},
		CreatedAt:  created,
		UpdatedAt:  created,
	}}))
	require.NoError(t, repo.Close())

	reopened, err := NewMemoryRepository(path)
	require.NoError(t, err)

	doc, err := reopened.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, Vector{0.5, 0.25}, doc.Embedding)
	assert.Equal(t, "u1", doc.OwnerKey)
	assert.True(t, doc.CreatedAt.Equal(created))

	found, err := reopened.FindBySource(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "d1", found.ID)
}

func TestMemoryRepository_LoadsLegacyEmbeddings(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rag.json")
	data := `[
		{"id": "wrapped", "collection": "global", "embedding": {"embedding": [1, 0]}, "metadata": {"collection": "global"}},
		{"id": "broken", "collection": "global", "embedding": "not-a-vector", "metadata": {"collection": "global"}},
		{"id": "bare", "collection": "global", "embedding": [0, 1], "metadata": {"collection": "global"}}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	repo, err := NewMemoryRepository(path)
	require.NoError(t, err)

	wrapped, err := repo.Get(ctx, "wrapped")
	require.NoError(t, err)
	assert.Equal(t, Vector{1, 0}, wrapped.Embedding)

	broken, err := repo.Get(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, broken.Embedding)

	store := NewStore(repo, &fakeEmbedder{fallback: Vector{1, 0}})
	results, err := store.Query(ctx, "q", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "wrapped", results[0].ID)
}

func TestMemoryRepository_SaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rag.json")

	repo, err := NewMemoryRepository(path)
	require.NoError(t, err)

	// A non-empty directory where the data file should go makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0755))

	err = repo.SaveAll(ctx, []*Document{{ID: "d1"}, {ID: "d2"}})
	assert.Error(t, err)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository("")
	require.NoError(t, err)

	require.NoError(t, repo.SaveAll(ctx, []*Document{{ID: "d1", Content: "original", SourceID: "s", OwnerKey: "o"}}))

	doc, err := repo.FindBySource(ctx, "s", "o")
	require.NoError(t, err)
	doc.Content = "changed"

	again, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Content)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository("")
	require.NoError(t, err)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindBySource(ctx, "s", "o")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_Candidates(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository("")
	require.NoError(t, err)

	require.NoError(t, repo.SaveAll(ctx, []*Document{
		{ID: "u1", OwnerKey: "u1"},
		{ID: "u2", OwnerKey: "u2"},
		{ID: "none"},
	}))

	all, err := repo.Candidates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := repo.Candidates(ctx, "u1")
	require.NoError(t, err)
	var ids []string
	for _, d := range scoped {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"u1", "none"}, ids)
}
