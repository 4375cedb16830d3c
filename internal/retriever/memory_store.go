package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository with optional JSON persistence
type MemoryRepository struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	dataPath string
}

// memoryRecord is the on-disk shape of a document. The embedding stays raw
// so files written by older versions load through ParseVector.
type memoryRecord struct {
	ID         string          `json:"id"`
	OwnerKey   string          `json:"owner_key,omitempty"`
	Collection string          `json:"collection"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id,omitempty"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Embedding  json.RawMessage `json:"embedding,omitempty"`
	Metadata   map[string]any  `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewMemoryRepository creates a repository. A non-empty dataPath is loaded
// on creation and rewritten after every save.
func NewMemoryRepository(dataPath string) (*MemoryRepository, error) {
	repo := &MemoryRepository{
		docs:     make(map[string]*Document),
		dataPath: dataPath,
	}

	if dataPath != "" {
		if err := repo.load(); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dataPath, err)
		}
	}

	return repo, nil
}

// FindBySource returns a copy of the document with the given pair
func (m *MemoryRepository) FindBySource(_ context.Context, sourceID, ownerKey string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.docs {
		if doc.SourceID == sourceID && doc.OwnerKey == ownerKey {
			return cloneDocument(doc), nil
		}
	}
	return nil, ErrNotFound
}

// SaveAll stores copies of docs. Either every document is stored or, if
// persisting fails, none are.
func (m *MemoryRepository) SaveAll(_ context.Context, docs []*Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := make(map[string]*Document, len(docs))
	for _, doc := range docs {
		if old, ok := m.docs[doc.ID]; ok {
			previous[doc.ID] = old
		}
		m.docs[doc.ID] = cloneDocument(doc)
	}

	if m.dataPath == "" {
		return nil
	}

	if err := m.save(); err != nil {
		for _, doc := range docs {
			if old, ok := previous[doc.ID]; ok {
				m.docs[doc.ID] = old
			} else {
				delete(m.docs, doc.ID)
			}
		}
		return err
	}

	return nil
}

// Candidates returns every document, narrowed to ownerKey or ownerless rows
// when ownerKey is set.
func (m *MemoryRepository) Candidates(_ context.Context, ownerKey string) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []*Document
	for _, doc := range m.docs {
		if ownerKey != "" && doc.OwnerKey != "" && doc.OwnerKey != ownerKey {
			continue
		}
		docs = append(docs, cloneDocument(doc))
	}
	return docs, nil
}

// Get returns a document by ID
func (m *MemoryRepository) Get(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// ListRecent returns documents newest first
func (m *MemoryRepository) ListRecent(_ context.Context, opts ListOptions) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []*Document
	for _, doc := range m.docs {
		if opts.OwnerKey != "" && doc.OwnerKey != opts.OwnerKey {
			continue
		}
		if opts.CompanyID != "" && metaString(doc.Metadata, "company_id") != opts.CompanyID {
			continue
		}
		docs = append(docs, doc)
	}

	sortNewestFirst(docs)

	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	out := make([]*Document, len(docs))
	for i, doc := range docs {
		out[i] = cloneDocument(doc)
	}
	return out, nil
}

// Count returns the number of stored documents
func (m *MemoryRepository) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

// Close persists the repository if it has a data path
func (m *MemoryRepository) Close() error {
	if m.dataPath == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.save()
}

// save persists the repository to disk
func (m *MemoryRepository) save() error {
	dir := filepath.Dir(m.dataPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	docs := make([]*Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	sortNewestFirst(docs)

	records := make([]memoryRecord, len(docs))
	for i, doc := range docs {
		emb, err := MarshalVector(doc.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for %s: %w", doc.ID, err)
		}
		records[i] = memoryRecord{
			ID:         doc.ID,
			OwnerKey:   doc.OwnerKey,
			Collection: doc.Collection,
			SourceType: doc.SourceType,
			SourceID:   doc.SourceID,
			Title:      doc.Title,
			Content:    doc.Content,
			Embedding:  emb,
			Metadata:   doc.Metadata,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tmp := m.dataPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, m.dataPath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

// load loads the repository from disk. Records whose embedding cannot be
// decoded are kept without one.
func (m *MemoryRepository) load() error {
	data, err := os.ReadFile(m.dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var records []memoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	for _, r := range records {
		vec, err := ParseVector(r.Embedding)
		if err != nil {
			vec = nil
		}
		m.docs[r.ID] = &Document{
			ID:         r.ID,
			OwnerKey:   r.OwnerKey,
			Collection: r.Collection,
			SourceType: r.SourceType,
			SourceID:   r.SourceID,
			Title:      r.Title,
			Content:    r.Content,
			Embedding:  vec,
			Metadata:   r.Metadata,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
		}
	}

	return nil
}

func sortNewestFirst(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func cloneDocument(doc *Document) *Document {
	c := *doc
	if doc.Embedding != nil {
		c.Embedding = append(Vector(nil), doc.Embedding...)
	}
	if doc.Metadata != nil {
		c.Metadata = maps.Clone(doc.Metadata)
	}
	return &c
}
