package protocol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
)

// RawDocument is one guideline document as read from a source.
// Err is set when the document could not be read; the index skips it.
type RawDocument struct {
	Name string
	Body []byte
	Err  error
}

// Source yields the raw guideline documents an index is built from.
type Source interface {
	Documents(ctx context.Context) ([]RawDocument, error)
}

// DirectorySource reads guideline JSON files from a local directory.
type DirectorySource struct {
	Dir     string
	Pattern string
}

// NewDirectorySource creates a source over dir matching *.json files.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{Dir: dir, Pattern: "*.json"}
}

// Documents implements Source. Files are returned sorted by name.
// A missing directory is reported as an error wrapping os.ErrNotExist.
func (s *DirectorySource) Documents(ctx context.Context) ([]RawDocument, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("guidelines directory %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("guidelines path %s is not a directory", s.Dir)
	}

	pattern := s.Pattern
	if pattern == "" {
		pattern = "*.json"
	}
	paths, err := filepath.Glob(filepath.Join(s.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("listing guideline files: %w", err)
	}
	sort.Strings(paths)

	docs := make([]RawDocument, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := os.ReadFile(p)
		docs = append(docs, RawDocument{Name: filepath.Base(p), Body: body, Err: err})
	}
	return docs, nil
}

// Querier is the subset of pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads guideline documents stored in the guideline_documents table.
type PostgresSource struct {
	db Querier
}

// NewPostgresSource creates a source over a pgx pool or connection.
func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

const selectGuidelineDocuments = `SELECT file_name, body FROM guideline_documents ORDER BY file_name`

// Documents implements Source.
func (s *PostgresSource) Documents(ctx context.Context) ([]RawDocument, error) {
	rows, err := s.db.Query(ctx, selectGuidelineDocuments)
	if err != nil {
		return nil, fmt.Errorf("querying guideline documents: %w", err)
	}
	defer rows.Close()

	var docs []RawDocument
	for rows.Next() {
		var doc RawDocument
		if err := rows.Scan(&doc.Name, &doc.Body); err != nil {
			docs = append(docs, RawDocument{Name: doc.Name, Err: fmt.Errorf("scanning guideline document: %w", err)})
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating guideline documents: %w", err)
	}
	return docs, nil
}

// StaticSource serves documents held in memory.
type StaticSource []RawDocument

// Documents implements Source.
func (s StaticSource) Documents(ctx context.Context) ([]RawDocument, error) {
	return append([]RawDocument(nil), s...), nil
}
