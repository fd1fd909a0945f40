package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/treatment-compliance-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAssessment(s scanner) (*Assessment, error) {
	a := &Assessment{}
	var provenance string
	var findings []byte

	err := s.Scan(
		&a.ID, &a.CancerType, &a.Score, &provenance, &a.Message,
		&findings, &a.AnalyzedLines, &a.ProtocolsAvailable, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Provenance = domain.Provenance(provenance)
	if err := decodeFindings(findings, a); err != nil {
		return nil, err
	}
	return a, nil
}

func scanReview(s scanner) (*Review, error) {
	r := &Review{}
	var score sql.NullInt64

	err := s.Scan(
		&r.ID, &r.AssessmentID, &r.Reviewer, &r.Agreed,
		&score, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		r.ReviewerScore = &v
	}
	return r, nil
}

func nullableScore(score *int) sql.NullInt64 {
	if score == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*score), Valid: true}
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		cancer_type TEXT NOT NULL,
		score INTEGER NOT NULL,
		provenance TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		findings TEXT NOT NULL DEFAULT '[]',
		analyzed_lines INTEGER NOT NULL DEFAULT 0,
		protocols_available INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id TEXT NOT NULL UNIQUE REFERENCES assessments(id) ON DELETE CASCADE,
		reviewer TEXT NOT NULL DEFAULT '',
		agreed INTEGER NOT NULL DEFAULT 0,
		reviewer_score INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_cancer_type ON assessments(cancer_type);
	CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveAssessment inserts a new assessment.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *Assessment) error {
	findings, err := prepareAssessment(a)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (
			id, cancer_type, score, provenance, message,
			findings, analyzed_lines, protocols_available, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.CancerType,
		a.Score,
		string(a.Provenance),
		a.Message,
		string(findings),
		a.AnalyzedLines,
		a.ProtocolsAvailable,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetAssessment returns the assessment and its review.
func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cancer_type, score, provenance, message,
			findings, analyzed_lines, protocols_available, created_at
		FROM assessments
		WHERE id = ?
	`, id)

	a, err := scanAssessment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	review, err := scanReview(s.db.QueryRowContext(ctx, `
		SELECT id, assessment_id, reviewer, agreed, reviewer_score, notes, created_at, updated_at
		FROM reviews
		WHERE assessment_id = ?
	`, id))
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to scan review: %w", err)
	default:
		a.Review = review
	}
	return a, nil
}

// ListAssessments returns assessments with pagination.
func (s *SQLiteStore) ListAssessments(ctx context.Context, limit, offset int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cancer_type, score, provenance, message,
			findings, analyzed_lines, protocols_available, created_at
		FROM assessments
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Count returns the total number of assessments.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments").Scan(&count)
	return count, err
}

// SaveReview stores or replaces the review of an assessment.
func (s *SQLiteStore) SaveReview(ctx context.Context, review *Review) error {
	if err := review.Validate(); err != nil {
		return err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM assessments WHERE id = ?", review.AssessmentID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("assessment %s: %w", review.AssessmentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check assessment: %w", err)
	}

	now := time.Now().UTC()

	var existingID int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM reviews WHERE assessment_id = ?", review.AssessmentID,
	).Scan(&existingID, &createdAt)

	if err == nil {
		review.ID = existingID
		review.CreatedAt = createdAt
		review.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE reviews SET
				reviewer = ?,
				agreed = ?,
				reviewer_score = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			review.Reviewer,
			review.Agreed,
			nullableScore(review.ReviewerScore),
			review.Notes,
			now,
			existingID,
		)
		return err
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing review: %w", err)
	}

	review.CreatedAt = now
	review.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (
			assessment_id, reviewer, agreed, reviewer_score, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		review.AssessmentID,
		review.Reviewer,
		review.Agreed,
		nullableScore(review.ReviewerScore),
		review.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	review.ID = id
	return nil
}

// ExportJSON exports all assessments, with their reviews, to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.ListAssessments(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list assessments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, assessment_id, reviewer, agreed, reviewer_score, notes, created_at, updated_at
		FROM reviews
	`)
	if err != nil {
		return fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make(map[string]*Review)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return fmt.Errorf("failed to scan review: %w", err)
		}
		reviews[r.AssessmentID] = r
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range all {
		a.Review = reviews[a.ID]
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
