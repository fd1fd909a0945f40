package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/treatment-compliance-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, cfg domain.DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := 25, 5, 5*time.Minute
	if cfg.MaxOpenConns > 0 {
		maxOpen = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		maxIdle = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		lifetime = cfg.ConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

const pgAssessmentColumns = `id, cancer_type, score, provenance, message,
			findings, analyzed_lines, protocols_available, created_at`

const pgReviewColumns = `id, assessment_id, reviewer, agreed, reviewer_score, notes, created_at, updated_at`

// SaveAssessment inserts a new assessment.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *Assessment) error {
	findings, err := prepareAssessment(a)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (`+pgAssessmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

// GetAssessment returns the assessment and its review.
func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*Assessment, error) {
	a, err := scanAssessment(s.db.QueryRowContext(ctx,
		`SELECT `+pgAssessmentColumns+` FROM assessments WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	review, err := scanReview(s.db.QueryRowContext(ctx,
		`SELECT `+pgReviewColumns+` FROM reviews WHERE assessment_id = $1`, id))
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to get review: %w", err)
	default:
		a.Review = review
	}
	return a, nil
}

// ListAssessments returns assessments with pagination.
func (s *PostgresStore) ListAssessments(ctx context.Context, limit, offset int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgAssessmentColumns+`
		FROM assessments
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}

// SaveReview upserts the review of an assessment.
func (s *PostgresStore) SaveReview(ctx context.Context, review *Review) error {
	if err := review.Validate(); err != nil {
		return err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM assessments WHERE id = $1)", review.AssessmentID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check assessment: %w", err)
	}
	if !exists {
		return fmt.Errorf("assessment %s: %w", review.AssessmentID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO reviews (
			assessment_id, reviewer, agreed, reviewer_score, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (assessment_id) DO UPDATE SET
			reviewer = EXCLUDED.reviewer,
			agreed = EXCLUDED.agreed,
			reviewer_score = EXCLUDED.reviewer_score,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`,
		review.AssessmentID,
		review.Reviewer,
		review.Agreed,
		nullableScore(review.ReviewerScore),
		review.Notes,
		now,
		now,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}

	review.UpdatedAt = now
	return nil
}

// ExportJSON exports all assessments, with their reviews, to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.ListAssessments(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list assessments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+pgReviewColumns+` FROM reviews`)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
