package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yorizo/yorizo/internal/llm"
	"github.com/yorizo/yorizo/internal/retriever"
)

// Embedder batches texts through a Provider with retries. It satisfies
// retriever.Embedder.
type Embedder struct {
	provider   Provider
	batchSize  int
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewEmbedder creates a new embedder
func NewEmbedder(provider Provider, batchSize, maxRetries int, logger *zap.Logger) *Embedder {
	if batchSize < 1 {
		batchSize = 1
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		provider:   provider,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     logger,
	}
}

// SetRateLimit caps provider requests per second. Zero or less removes the cap.
func (e *Embedder) SetRateLimit(rps float64) {
	if rps <= 0 {
		e.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// EmbedBatch returns one vector per text, in order. It succeeds only if
// every batch does; any failure is reported as retriever.ErrEmbeddingUnavailable.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]retriever.Vector, error) {
	vectors := make([]retriever.Vector, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		embeddings, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", retriever.ErrEmbeddingUnavailable, start, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
				retriever.ErrEmbeddingUnavailable, e.provider.Name(), len(embeddings), len(batch))
		}

		dim := e.provider.GetDimension()
		for i, emb := range embeddings {
			if dim > 0 && len(emb) != dim {
				return nil, fmt.Errorf("%w: %s returned a %d-dimensional vector for input %d, expected %d",
					retriever.ErrEmbeddingUnavailable, e.provider.Name(), len(emb), start+i, dim)
			}
			vectors = append(vectors, retriever.Vector(emb))
		}
	}

	return vectors, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var embeddings [][]float32
	var err error

	for retry := 0; retry < e.maxRetries; retry++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		embeddings, err = e.provider.EmbedBatch(ctx, batch)
		if err == nil {
			return embeddings, nil
		}
		// Retrying cannot fix a missing credential.
		if errors.Is(err, llm.ErrMissingAPIKey) {
			return nil, err
		}

		e.logger.Warn("embedding batch failed",
			zap.String("provider", e.provider.Name()),
			zap.Int("attempt", retry+1),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)

		// Wait before retry
		if retry < e.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retry+1) * e.backoff):
			}
		}
	}

	return nil, err
}

// CheckHealth reports whether the provider is reachable
func (e *Embedder) CheckHealth(ctx context.Context) error {
	return e.provider.CheckHealth(ctx)
}

// Describe returns the provider name and its configured dimension
func (e *Embedder) Describe() (string, int) {
	return e.provider.Name(), e.provider.GetDimension()
}
