// Package audit records scored assessments and clinician reviews of them.
// The trail lets reviewers compare engine verdicts with their own judgement.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/treatment-compliance-server/internal/domain"
)

// Assessment is one persisted scoring outcome.
type Assessment struct {
	ID                 string            `json:"id"`
	CancerType         string            `json:"cancer_type"`
	Score              int               `json:"score"`
	Provenance         domain.Provenance `json:"source"`
	Message            string            `json:"message"`
	Findings           []domain.Finding  `json:"findings"`
	AnalyzedLines      int               `json:"analyzed_lines"`
	ProtocolsAvailable int               `json:"protocols_available"`
	CreatedAt          time.Time         `json:"created_at"`
	Review             *Review           `json:"review,omitempty"`
}

// Review is a clinician's verdict on an assessment. One review per assessment;
// saving again replaces it.
type Review struct {
	ID            int64     `json:"id,omitempty"`
	AssessmentID  string    `json:"assessment_id"`
	Reviewer      string    `json:"reviewer,omitempty"`
	Agreed        bool      `json:"agreed"`
	ReviewerScore *int      `json:"reviewer_score,omitempty"` // Clinician's own 0..100 score
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks review fields before storage.
func (r *Review) Validate() error {
	if r.AssessmentID == "" {
		return domain.NewValidationError("assessment_id", "assessment id is required", r.AssessmentID)
	}
	if r.ReviewerScore != nil && (*r.ReviewerScore < 0 || *r.ReviewerScore > 100) {
		return domain.NewValidationError("reviewer_score", "reviewer score must be between 0 and 100", *r.ReviewerScore)
	}
	return nil
}

// Store defines the interface for audit storage operations.
type Store interface {
	// SaveAssessment inserts a new assessment. ID and CreatedAt are assigned when empty.
	SaveAssessment(ctx context.Context, a *Assessment) error

	// GetAssessment returns the assessment with its review, or nil when it does not exist.
	GetAssessment(ctx context.Context, id string) (*Assessment, error)

	// ListAssessments returns assessments newest first, without reviews.
	ListAssessments(ctx context.Context, limit, offset int) ([]*Assessment, error)

	// Count returns the total number of assessments.
	Count(ctx context.Context) (int64, error)

	// SaveReview stores or replaces the review of an existing assessment.
	// It returns domain.ErrNotFound when the assessment does not exist.
	SaveReview(ctx context.Context, review *Review) error

	// ExportJSON writes every assessment, with reviews, to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version     string        `json:"version"`
	ExportedAt  time.Time     `json:"exported_at"`
	Count       int           `json:"count"`
	Assessments []*Assessment `json:"assessments"`
}

// NewAssessment builds an assessment record from a scoring result.
func NewAssessment(cancerType string, result *domain.ScoreResult) *Assessment {
	findings := result.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	return &Assessment{
		ID:                 uuid.NewString(),
		CancerType:         cancerType,
		Score:              result.Score,
		Provenance:         result.Provenance,
		Message:            result.Message,
		Findings:           findings,
		AnalyzedLines:      result.AnalyzedLineCount,
		ProtocolsAvailable: result.AvailableProtocolCount,
		CreatedAt:          time.Now().UTC(),
	}
}

func prepareAssessment(a *Assessment) ([]byte, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, err := uuid.Parse(a.ID); err != nil {
		return nil, domain.NewValidationError("id", "assessment id must be a UUID", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Findings == nil {
		a.Findings = []domain.Finding{}
	}
	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	return findings, nil
}

func decodeFindings(raw []byte, a *Assessment) error {
	if len(raw) == 0 {
		a.Findings = []domain.Finding{}
		return nil
	}
	if err := json.Unmarshal(raw, &a.Findings); err != nil {
		return fmt.Errorf("failed to decode findings of %s: %w", a.ID, err)
	}
	return nil
}

func writeExport(writer io.Writer, all []*Assessment) error {
	if all == nil {
		all = []*Assessment{}
	}
	export := &Export{
		Version:     "1.0",
		ExportedAt:  time.Now(),
		Count:       len(all),
		Assessments: all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000
