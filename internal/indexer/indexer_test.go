package indexer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/retriever"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testConfig() config.IndexerConfig {
	cfg := config.DefaultConfig().Indexer
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 40
	return cfg
}

func TestScanner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# A")
	writeFile(t, root, "notes/b.TXT", "b")
	writeFile(t, root, "code.go", "package x")
	writeFile(t, root, "node_modules/c.md", "ignored")

	files, err := NewScanner(testConfig()).Scan(root)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	assert.ElementsMatch(t, []string{"a.md", "notes/b.TXT"}, rels)
}

func TestGetFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, GetFormat(".MD"))
	assert.Equal(t, FormatText, GetFormat(".txt"))
	assert.Equal(t, FormatUnknown, GetFormat(".pdf"))
}

func TestChunker_SmallFileSingleChunk(t *testing.T) {
	c := NewChunker(200, 40)
	chunks := c.Chunk("line one\nline two", "a.txt", FormatText)

	require.Len(t, chunks, 1)
	assert.Equal(t, "line one\nline two", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.NotEmpty(t, chunks[0].ID)
}

func TestChunker_SlidingWindowOverlaps(t *testing.T) {
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, strings.Repeat("x", 19)) // 20 runes per line with newline
	}
	c := NewChunker(200, 40)
	chunks := c.Chunk(strings.Join(lines, "\n"), "big.txt", FormatText)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		if i > 0 {
			assert.Less(t, chunk.StartLine, chunks[i-1].EndLine+1, "chunks overlap")
		}
	}
	assert.Equal(t, 60, chunks[len(chunks)-1].EndLine)
}

func TestChunker_LongSingleLine(t *testing.T) {
	text := strings.Repeat("あ", 500)
	chunks := NewChunker(200, 50).Chunk(text, "jp.txt", FormatText)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 200)
	}
}

func TestChunker_MarkdownSections(t *testing.T) {
	text := "intro\n# Sales\nsales are down\n## Costs\ncosts are up\n"
	chunks := NewChunker(200, 40).Chunk(text, "plan.md", FormatMarkdown)

	require.Len(t, chunks, 3)
	assert.Equal(t, "", chunks[0].Heading)
	assert.Equal(t, "Sales", chunks[1].Heading)
	assert.Equal(t, 2, chunks[1].StartLine)
	assert.Equal(t, "Costs", chunks[2].Heading)
	assert.Contains(t, chunks[2].Content, "costs are up")
}

func TestChunkIDsAreStable(t *testing.T) {
	assert.Equal(t, generateChunkID("a.md", 0), generateChunkID("a.md", 0))
	assert.NotEqual(t, generateChunkID("a.md", 0), generateChunkID("a.md", 1))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.md", "# B\nbody")
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "bad.txt", string([]byte{0xff, 0xfe}))

	chunks, result, err := NewIndexer(testConfig(), nil).Collect(root)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "a.txt", chunks[0].FilePath)
	assert.Equal(t, "b.md", chunks[1].FilePath)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Len(t, result.Errors, 1)
}

func TestCollect_Errors(t *testing.T) {
	idx := NewIndexer(testConfig(), nil)

	_, _, err := idx.Collect(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, _, err = idx.Collect(t.TempDir())
	assert.ErrorContains(t, err, "no knowledge files")
}

type recordingIndexer struct {
	mu    sync.Mutex
	calls [][]retriever.DocumentInput
	err   error
}

func (r *recordingIndexer) Index(_ context.Context, inputs []retriever.DocumentInput, _ string) ([]*retriever.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, inputs)
	docs := make([]*retriever.Document, len(inputs))
	for i := range inputs {
		docs[i] = &retriever.Document{}
	}
	return docs, nil
}

func (r *recordingIndexer) sourceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, call := range r.calls {
		for _, in := range call {
			ids = append(ids, in.SourceID)
		}
	}
	return ids
}

func TestIngest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# Plan\nGrow sales")
	writeFile(t, root, "b.txt", "Cut costs")

	rec := &recordingIndexer{}
	result, err := NewIndexer(testConfig(), nil).Ingest(context.Background(), rec, root,
		IngestOptions{OwnerKey: "u1", CompanyID: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.DocumentCount)
	require.Len(t, rec.calls, 2)

	in := rec.calls[0][0]
	assert.Equal(t, "file:a.md#0", in.SourceID)
	assert.Equal(t, "u1", in.OwnerKey)
	assert.Equal(t, SourceType, in.SourceType)
	assert.Equal(t, "a.md - Plan", in.Title)
	assert.Equal(t, "acme", in.Metadata["company_id"])

	var out bytes.Buffer
	PrintStats(&out, result)
	assert.Contains(t, out.String(), "Documents Indexed: 2")
}

func TestIngest_StopsOnIndexError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	rec := &recordingIndexer{err: retriever.ErrEmbeddingUnavailable}
	_, err := NewIndexer(testConfig(), nil).Ingest(context.Background(), rec, root, IngestOptions{})
	assert.True(t, errors.Is(err, retriever.ErrEmbeddingUnavailable))
}
