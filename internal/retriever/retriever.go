package retriever

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSourceType = "document"
	titleRunes        = 80

	defaultListLimit = 50
	maxListLimit     = 200
)

// Store embeds, persists and searches documents. It borrows the repository
// and embedder; the caller owns their lifetimes.
type Store struct {
	repo        Repository
	embedder    Embedder
	logger      *zap.Logger
	defaultTopK int
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultTopK sets the k used when a query passes 0.
func WithDefaultTopK(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new retrieval store
func NewStore(repo Repository, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		repo:        repo,
		embedder:    embedder,
		logger:      zap.NewNop(),
		defaultTopK: 5,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sourceKey struct {
	sourceID string
	ownerKey string
}

// Index embeds and persists inputs. Inputs sharing a (source_id, owner_key)
// pair with an existing row update that row in place. The returned slice
// matches inputs position for position; inputs repeating a pair within the
// batch share one document carrying the last payload.
//
// All texts are embedded before anything is written, so an embedding
// failure leaves the repository untouched.
func (s *Store) Index(ctx context.Context, inputs []DocumentInput, defaultOwnerKey string) ([]*Document, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Text
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		IndexTotal.WithLabelValues("embedding_unavailable").Inc()
		s.logger.Error("failed to embed documents", zap.Int("count", len(inputs)), zap.Error(err))
		return nil, err
	}

	now := s.now()
	docs := make([]*Document, len(inputs))
	pending := make(map[sourceKey]*Document)
	queued := make(map[*Document]bool)
	var toSave []*Document
	var inserts, updates int

	for i, in := range inputs {
		owner := in.OwnerKey
		if owner == "" {
			owner = defaultOwnerKey
		}

		var doc *Document
		if in.SourceID != "" && owner != "" {
			key := sourceKey{sourceID: in.SourceID, ownerKey: owner}
			doc = pending[key]
			if doc == nil {
				existing, err := s.repo.FindBySource(ctx, in.SourceID, owner)
				switch {
				case err == nil:
					doc = existing
					updates++
				case errors.Is(err, ErrNotFound):
				default:
					IndexTotal.WithLabelValues("error").Inc()
					return nil, fmt.Errorf("failed to look up source %q: %w", in.SourceID, err)
				}
			}
			if doc != nil {
				pending[key] = doc
			}
		}

		if doc == nil {
			doc = &Document{ID: uuid.NewString(), CreatedAt: now}
			inserts++
			if in.SourceID != "" && owner != "" {
				pending[sourceKey{sourceID: in.SourceID, ownerKey: owner}] = doc
			}
		}

		s.apply(doc, in, owner, vectors[i], now)
		docs[i] = doc

		if !queued[doc] {
			queued[doc] = true
			toSave = append(toSave, doc)
		}
	}

	if err := s.repo.SaveAll(ctx, toSave); err != nil {
		IndexTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to save documents", zap.Int("count", len(toSave)), zap.Error(err))
		return nil, fmt.Errorf("failed to save documents: %w", err)
	}

	IndexTotal.WithLabelValues("success").Inc()
	DocumentsIndexed.WithLabelValues("insert").Add(float64(inserts))
	DocumentsIndexed.WithLabelValues("update").Add(float64(updates))
	s.logger.Info("documents indexed",
		zap.Int("inputs", len(inputs)),
		zap.Int("inserted", inserts),
		zap.Int("updated", updates),
	)

	return docs, nil
}

// apply copies the payload onto doc, filling defaults.
func (s *Store) apply(doc *Document, in DocumentInput, owner string, vec Vector, now time.Time) {
	meta := make(map[string]any, len(in.Metadata)+1)
	maps.Copy(meta, in.Metadata)

	collection := in.Collection
	if collection == "" {
		collection = CollectionName(metaString(meta, "company_id"))
	}
	meta["collection"] = collection

	title := in.Title
	if title == "" {
		title = metaString(meta, "title")
	}
	if title == "" {
		title = truncateRunes(in.Text, titleRunes)
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = metaString(meta, "source_type")
	}
	if sourceType == "" {
		sourceType = defaultSourceType
	}

	doc.OwnerKey = owner
	doc.Collection = collection
	doc.SourceType = sourceType
	doc.SourceID = in.SourceID
	doc.Title = title
	doc.Content = in.Text
	doc.Embedding = vec
	doc.Metadata = meta
	doc.UpdatedAt = now
}

// Query returns the k documents most similar to text that pass filters,
// highest score first. k of 0 uses the store default and smaller values are
// raised to 1. No match is not an error.
func (s *Store) Query(ctx context.Context, text string, k int, filters Filters) ([]Result, error) {
	start := time.Now()
	defer func() { QueryDuration.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(text) == "" {
		QueryTotal.WithLabelValues("error").Inc()
		return nil, ErrEmptyQuery
	}
	if k == 0 {
		k = s.defaultTopK
	}
	k = max(k, 1)

	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		QueryTotal.WithLabelValues("embedding_unavailable").Inc()
		s.logger.Error("failed to embed query", zap.Error(err))
		return nil, err
	}
	query := vectors[0]

	candidates, err := s.repo.Candidates(ctx, filters.OwnerKey)
	if err != nil {
		QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	target := filters.Collection
	if target == "" {
		target = CollectionName(filters.CompanyID)
	}

	eligible := make([]*Document, 0, len(candidates))
	for _, doc := range candidates {
		if reason := exclude(doc, target, filters); reason != "" {
			CandidatesSkipped.WithLabelValues(reason).Inc()
			continue
		}
		eligible = append(eligible, doc)
	}

	ranked := Rank(query, eligible, k)

	s.logger.Debug("similarity search",
		zap.String("collection", target),
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(eligible)),
		zap.Int("returned", len(ranked)),
	)

	if len(ranked) == 0 {
		QueryTotal.WithLabelValues("empty").Inc()
		return []Result{}, nil
	}

	results := make([]Result, len(ranked))
	for i, r := range ranked {
		results[i] = toResult(r.Document, r.Score)
	}

	QueryTotal.WithLabelValues("success").Inc()
	return results, nil
}

// exclude reports why doc cannot be scored for the query, or "" if it can.
// Owner and company constraints only exclude rows that carry a conflicting
// value; rows with no value at all pass.
func exclude(doc *Document, collection string, filters Filters) string {
	rowCollection := metaString(doc.Metadata, "collection")
	if rowCollection == "" {
		rowCollection = doc.Collection
	}
	if rowCollection != collection {
		return "collection"
	}

	if filters.OwnerKey != "" {
		owner := doc.OwnerKey
		if owner == "" {
			owner = metaString(doc.Metadata, "user_id")
		}
		if owner != "" && owner != filters.OwnerKey {
			return "owner"
		}
	}

	if filters.CompanyID != "" {
		company := metaString(doc.Metadata, "company_id")
		if company != "" && company != filters.CompanyID {
			return "company"
		}
	}

	if len(doc.Embedding) == 0 {
		return "no_embedding"
	}

	return ""
}

// Get returns a document by ID, including documents that have no embedding.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// ListRecent returns documents newest first. The limit defaults to 50 and is
// kept within [1, 200].
func (s *Store) ListRecent(ctx context.Context, opts ListOptions) ([]*Document, error) {
	switch {
	case opts.Limit == 0:
		opts.Limit = defaultListLimit
	case opts.Limit < 1:
		opts.Limit = 1
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	return s.repo.ListRecent(ctx, opts)
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// embed calls the embedder and checks the shape of its answer. Every failure
// is reported as ErrEmbeddingUnavailable.
func (s *Store) embed(ctx context.Context, texts []string) ([]Vector, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingUnavailable, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for input %d", ErrEmbeddingUnavailable, i)
		}
	}
	return vectors, nil
}

func toResult(doc *Document, score float64) Result {
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Result{
		ID:       doc.ID,
		Title:    doc.Title,
		Text:     doc.Content,
		Metadata: meta,
		Score:    score,
	}
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
