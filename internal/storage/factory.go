// Package storage provides the relational Repository behind the retriever.
package storage

import (
	"fmt"
	"strings"

	"github.com/yorizo/yorizo/internal/retriever"
)

// DefaultSQLitePath is used when no DSN is configured.
const DefaultSQLitePath = "data/yorizo.db"

// NewRepository creates a document repository based on the DSN.
//   - Empty DSN: SQLite at data/yorizo.db
//   - postgres:// or postgresql://: PostgreSQL
//   - "memory": in-process, nothing persisted
//   - Anything else: SQLite at the specified path
func NewRepository(dsn string) (retriever.Repository, error) {
	switch {
	case dsn == "":
		return NewSQLiteRepository(DefaultSQLitePath)
	case dsn == "memory":
		return retriever.NewMemoryRepository("")
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		repo, err := NewPostgresRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return repo, nil
	default:
		return NewSQLiteRepository(strings.TrimPrefix(dsn, "sqlite://"))
	}
}
