package indexer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/retriever"
)

// DocumentIndexer persists document inputs; *retriever.Store satisfies it.
type DocumentIndexer interface {
	Index(ctx context.Context, inputs []retriever.DocumentInput, defaultOwnerKey string) ([]*retriever.Document, error)
}

// Indexer turns a directory of knowledge files into documents
type Indexer struct {
	config  config.IndexerConfig
	scanner *Scanner
	chunker *Chunker
	logger  *zap.Logger
}

// NewIndexer creates a new indexer
func NewIndexer(cfg config.IndexerConfig, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		config:  cfg,
		scanner: NewScanner(cfg),
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:  logger,
	}
}

// Collect scans root and chunks every matching file. Chunks are returned
// grouped by file in path order.
func (idx *Indexer) Collect(root string) ([]*Chunk, *IngestResult, error) {
	startTime := time.Now()

	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	files, err := idx.scanner.Scan(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no knowledge files found in %s", absPath)
	}

	// Process files concurrently
	perFile := make([][]*Chunk, len(files))
	var errors []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Use a semaphore to limit concurrency
	sem := make(chan struct{}, 10)

	for i, file := range files {
		wg.Add(1)
		go func(i int, f *FileInfo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			chunks, err := idx.chunker.ChunkFile(f)
			if err != nil {
				mu.Lock()
				errors = append(errors, fmt.Sprintf("%s: %v", f.RelPath, err))
				mu.Unlock()
				return
			}
			perFile[i] = chunks
		}(i, file)
	}

	wg.Wait()

	var allChunks []*Chunk
	for _, chunks := range perFile {
		allChunks = append(allChunks, chunks...)
	}
	sort.SliceStable(allChunks, func(i, j int) bool {
		if allChunks[i].FilePath != allChunks[j].FilePath {
			return allChunks[i].FilePath < allChunks[j].FilePath
		}
		return allChunks[i].Index < allChunks[j].Index
	})
	sort.Strings(errors)

	result := &IngestResult{
		Root:        absPath,
		TotalFiles:  len(files),
		TotalChunks: len(allChunks),
		Errors:      errors,
		ElapsedTime: time.Since(startTime).String(),
	}

	return allChunks, result, nil
}

// Ingest collects root and indexes it one file at a time, so a failure
// leaves earlier files indexed and later ones untouched. Re-ingesting a file
// updates its chunks in place.
func (idx *Indexer) Ingest(ctx context.Context, store DocumentIndexer, root string, opts IngestOptions) (*IngestResult, error) {
	chunks, result, err := idx.Collect(root)
	if err != nil {
		return nil, err
	}

	for _, group := range groupByFile(chunks) {
		n, err := idx.indexFile(ctx, store, group, opts)
		if err != nil {
			return result, err
		}
		result.DocumentCount += n
	}

	return result, nil
}

// indexFile indexes the chunks of one file in a single call
func (idx *Indexer) indexFile(ctx context.Context, store DocumentIndexer, group []*Chunk, opts IngestOptions) (int, error) {
	if len(group) == 0 {
		return 0, nil
	}

	inputs := make([]retriever.DocumentInput, len(group))
	for i, chunk := range group {
		inputs[i] = ToDocumentInput(chunk, len(group), opts)
	}

	docs, err := store.Index(ctx, inputs, opts.OwnerKey)
	if err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", group[0].FilePath, err)
	}

	idx.logger.Info("knowledge file indexed",
		zap.String("file", group[0].FilePath),
		zap.Int("chunks", len(group)),
	)
	return len(docs), nil
}

// ToDocumentInput maps a chunk to a retriever payload. total is the number
// of chunks in the chunk's file.
func ToDocumentInput(chunk *Chunk, total int, opts IngestOptions) retriever.DocumentInput {
	title := path.Base(chunk.FilePath)
	if chunk.Heading != "" {
		title += " - " + chunk.Heading
	}
	if total > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, chunk.Index+1, total)
	}

	metadata := map[string]any{
		"file":       chunk.FilePath,
		"chunk_id":   chunk.ID,
		"chunk":      chunk.Index,
		"format":     string(chunk.Format),
		"start_line": chunk.StartLine,
		"end_line":   chunk.EndLine,
	}
	if opts.CompanyID != "" {
		metadata["company_id"] = opts.CompanyID
	}

	return retriever.DocumentInput{
		Text:       chunk.Content,
		Title:      title,
		OwnerKey:   opts.OwnerKey,
		SourceID:   fmt.Sprintf("file:%s#%d", chunk.FilePath, chunk.Index),
		SourceType: SourceType,
		Metadata:   metadata,
	}
}

func groupByFile(chunks []*Chunk) [][]*Chunk {
	var groups [][]*Chunk
	for _, chunk := range chunks {
		n := len(groups)
		if n > 0 && groups[n-1][0].FilePath == chunk.FilePath {
			groups[n-1] = append(groups[n-1], chunk)
			continue
		}
		groups = append(groups, []*Chunk{chunk})
	}
	return groups
}

// PrintStats prints ingestion statistics
func PrintStats(w io.Writer, result *IngestResult) {
	fmt.Fprintf(w, "\nIngestion Statistics\n")
	fmt.Fprintf(w, "   Root: %s\n", result.Root)
	fmt.Fprintf(w, "   Total Files: %d\n", result.TotalFiles)
	fmt.Fprintf(w, "   Total Chunks: %d\n", result.TotalChunks)
	fmt.Fprintf(w, "   Documents Indexed: %d\n", result.DocumentCount)
	fmt.Fprintf(w, "   Time Elapsed: %s\n", result.ElapsedTime)

	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			fmt.Fprintf(w, "   - %s\n", err)
		}
	}
}
