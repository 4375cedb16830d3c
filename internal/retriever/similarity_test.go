package retriever

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-6

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"identical", Vector{1, 2, 3}, Vector{1, 2, 3}, 1},
		{"scaled", Vector{1, 2, 3}, Vector{2, 4, 6}, 1},
		{"orthogonal", Vector{1, 0}, Vector{0, 1}, 0},
		{"opposite", Vector{1, 0}, Vector{-1, 0}, -1},
		{"truncated to shorter", Vector{1, 0, 5}, Vector{1, 0}, 1},
		{"truncated other side", Vector{0, 1}, Vector{0, 1, 9, 9}, 1},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 2, 3}, 0},
		{"zero prefix after truncation", Vector{0, 0, 7}, Vector{1, 1}, 0},
		{"empty", Vector{}, Vector{1}, 0},
		{"nil", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, epsilon)
		})
	}
}

func TestCosineSimilarity_ZeroIsExact(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(Vector{0, 0}, Vector{3, 4}))
	assert.Equal(t, 0.0, CosineSimilarity(Vector{3, 4}, Vector{0, 0}))
}

func TestRank(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []*Document{
		{ID: "far", Embedding: Vector{0, 1}, CreatedAt: base},
		{ID: "near", Embedding: Vector{1, 0.1}, CreatedAt: base},
		{ID: "exact", Embedding: Vector{1, 0}, CreatedAt: base},
		{ID: "none", CreatedAt: base},
	}

	ranked := Rank(Vector{1, 0}, docs, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, "exact", ranked[0].Document.ID)
	assert.Equal(t, "near", ranked[1].Document.ID)
	assert.Equal(t, "far", ranked[2].Document.ID)
	assert.InDelta(t, 1.0, ranked[0].Score, epsilon)

	top := Rank(Vector{1, 0}, docs, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "exact", top[0].Document.ID)
}

func TestRank_Ties(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []*Document{
		{ID: "b", Embedding: Vector{1}, CreatedAt: base},
		{ID: "old", Embedding: Vector{1}, CreatedAt: base.Add(-time.Hour)},
		{ID: "a", Embedding: Vector{1}, CreatedAt: base},
		{ID: "new", Embedding: Vector{1}, CreatedAt: base.Add(time.Hour)},
	}

	ranked := Rank(Vector{1}, docs, 4)
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Document.ID
	}
	assert.Equal(t, []string{"new", "a", "b", "old"}, ids)
}

func TestRank_SkipsNonFiniteScores(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	docs := []*Document{
		{ID: "low", Embedding: Vector{0.1, 1}, CreatedAt: base},
		{ID: "inf", Embedding: Vector{inf, 1}, CreatedAt: base},
		{ID: "high", Embedding: Vector{1, 0}, CreatedAt: base},
		{ID: "nan", Embedding: Vector{nan, 0}, CreatedAt: base},
	}

	ranked := Rank(Vector{1, 0}, docs, 4)
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Document.ID
		assert.False(t, math.IsNaN(r.Score), r.Document.ID)
	}
	assert.Equal(t, []string{"high", "low"}, ids)
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Vector
		wantErr bool
	}{
		{"bare list", `[0.1, 2, -3]`, Vector{0.1, 2, -3}, false},
		{"wrapped", `{"embedding": [1, 2]}`, Vector{1, 2}, false},
		{"wrapped with extras", `{"model": "x", "embedding": [3]}`, Vector{3}, false},
		{"empty list", `[]`, Vector{}, false},
		{"null", `null`, nil, false},
		{"blank", `  `, nil, false},
		{"string", `"abc"`, nil, true},
		{"number", `42`, nil, true},
		{"strings in list", `["a", "b"]`, nil, true},
		{"object without embedding", `{"vector": [1]}`, nil, true},
		{"nested wrapper", `{"embedding": {"embedding": [1]}}`, nil, true},
		{"truncated", `[1, 2`, nil, true},
		{"beyond float32 range", `[1e39, 1]`, nil, true},
		{"wrapped beyond float32 range", `{"embedding": [0, -1e39]}`, nil, true},
		{"largest float32", `[3.4e38]`, Vector{3.4e38}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVector([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVector)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalVector(t *testing.T) {
	raw, err := MarshalVector(Vector{1, 0.5})
	require.NoError(t, err)

	back, err := ParseVector(raw)
	require.NoError(t, err)
	assert.Equal(t, Vector{1, 0.5}, back)

	raw, err = MarshalVector(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "company-42", CollectionName("42"))
	assert.Equal(t, "global", CollectionName(""))
}
