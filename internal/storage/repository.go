package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yorizo/yorizo/internal/retriever"
)

// timeLayout is fixed width so SQLite text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const documentColumns = `id, owner_key, collection, source_type, source_id, title, content,
	embedding, metadata, created_at, updated_at`

// dialect captures the differences between the supported databases.
type dialect struct {
	name string

	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool

	// companyExpr extracts metadata.company_id as text
	companyExpr string

	// textTimes stores timestamps as fixed-width UTC text
	textTimes bool
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		companyExpr: "json_extract(metadata, '$.company_id')",
		textTimes:   true,
	}
	postgresDialect = dialect{
		name:        "postgres",
		numbered:    true,
		companyExpr: "metadata->>'company_id'",
	}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d dialect) timeArg(t time.Time) any {
	if d.textTimes {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

// SQLRepository implements retriever.Repository on database/sql
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

var _ retriever.Repository = (*SQLRepository)(nil)

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// FindBySource returns the oldest document with the given pair
func (r *SQLRepository) FindBySource(ctx context.Context, sourceID, ownerKey string) (*retriever.Document, error) {
	query := r.dialect.rebind(`SELECT ` + documentColumns + ` FROM rag_documents
		WHERE source_id = ? AND owner_key = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`)

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, sourceID, ownerKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, retriever.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return doc, nil
}

// SaveAll upserts docs by ID in one transaction
func (r *SQLRepository) SaveAll(ctx context.Context, docs []*retriever.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, r.dialect.rebind(`
		INSERT INTO rag_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_key = excluded.owner_key,
			collection = excluded.collection,
			source_type = excluded.source_type,
			source_id = excluded.source_id,
			title = excluded.title,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		embedding, err := retriever.MarshalVector(doc.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding for %s: %w", doc.ID, err)
		}
		var embeddingArg any
		if doc.Embedding != nil {
			embeddingArg = string(embedding)
		}

		metadata := doc.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			doc.ID,
			nullString(doc.OwnerKey),
			doc.Collection,
			doc.SourceType,
			nullString(doc.SourceID),
			doc.Title,
			doc.Content,
			embeddingArg,
			string(metaJSON),
			r.dialect.timeArg(doc.CreatedAt),
			r.dialect.timeArg(doc.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Candidates returns rows owned by ownerKey or by nobody. An empty
// ownerKey returns every row.
func (r *SQLRepository) Candidates(ctx context.Context, ownerKey string) ([]*retriever.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM rag_documents`
	var args []any
	if ownerKey != "" {
		query += ` WHERE owner_key = ? OR owner_key IS NULL OR owner_key = ''`
		args = append(args, ownerKey)
	}

	return r.queryDocuments(ctx, "candidates", r.dialect.rebind(query), args...)
}

// Get returns a document by ID
func (r *SQLRepository) Get(ctx context.Context, id string) (*retriever.Document, error) {
	query := r.dialect.rebind(`SELECT ` + documentColumns + ` FROM rag_documents WHERE id = ?`)

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, retriever.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListRecent returns documents newest first. The company filter matches
// metadata.company_id.
func (r *SQLRepository) ListRecent(ctx context.Context, opts retriever.ListOptions) ([]*retriever.Document, error) {
	var where []string
	var args []any

	if opts.OwnerKey != "" {
		where = append(where, "owner_key = ?")
		args = append(args, opts.OwnerKey)
	}
	if opts.CompanyID != "" {
		where = append(where, r.dialect.companyExpr+" = ?")
		args = append(args, opts.CompanyID)
	}

	query := `SELECT ` + documentColumns + ` FROM rag_documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	return r.queryDocuments(ctx, "list recent", r.dialect.rebind(query), args...)
}

// Count returns the number of stored documents
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) queryDocuments(ctx context.Context, op, query string, args ...any) ([]*retriever.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var docs []*retriever.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDocument reads one row. A malformed embedding leaves the document
// without one and malformed metadata leaves it empty; neither is an error.
func scanDocument(row scanner) (*retriever.Document, error) {
	var (
		doc                 retriever.Document
		ownerKey, sourceID  sql.NullString
		embedding, metadata []byte
		createdAt           timestamp
		updatedAt           timestamp
	)

	err := row.Scan(
		&doc.ID,
		&ownerKey,
		&doc.Collection,
		&doc.SourceType,
		&sourceID,
		&doc.Title,
		&doc.Content,
		&embedding,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.OwnerKey = ownerKey.String
	doc.SourceID = sourceID.String
	doc.CreatedAt = createdAt.Time
	doc.UpdatedAt = updatedAt.Time

	if vec, err := retriever.ParseVector(embedding); err == nil {
		doc.Embedding = vec
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			doc.Metadata = nil
		}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	return &doc, nil
}

// timestamp scans either a native time or the text form written by timeArg.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (t *timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
