package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/audit"
	"github.com/treatment-compliance-server/internal/domain"
)

// Tool names
const (
	ToolScoreTreatment    = "score_treatment_compliance"
	ToolListProtocols     = "list_protocols"
	ToolMatchDrugs        = "match_drugs"
	ToolReviewAssessment  = "review_assessment"
	ToolExportAssessments = "export_assessments"
)

// ScoreTreatmentParams defines parameters for score_treatment_compliance
type ScoreTreatmentParams struct {
	CancerType     string                     `json:"cancer_type" jsonschema:"cancer type key such as breast, lung, stomach"`
	TreatmentLines domain.TreatmentLinesInput `json:"treatment_lines" jsonschema:"dated therapy lines and the optional planned line"`
	Biomarkers     map[string]bool            `json:"biomarkers,omitempty" jsonschema:"biomarker flags such as her2_negative"`
}

// ScoreTreatmentResult defines the result of score_treatment_compliance
type ScoreTreatmentResult struct {
	Score              int              `json:"score"`
	Provenance         string           `json:"source"`
	Message            string           `json:"message"`
	Note               string           `json:"kb_note,omitempty"`
	Findings           []domain.Finding `json:"findings"`
	AnalyzedLines      int              `json:"analyzed_lines"`
	ProtocolsAvailable int              `json:"protocols_available"`
	AssessmentID       string           `json:"assessment_id,omitempty"`
}

// ListProtocolsParams defines parameters for list_protocols
type ListProtocolsParams struct {
	CancerType string `json:"cancer_type,omitempty" jsonschema:"cancer type key; omit to list known cancer types"`
}

// ListProtocolsResult defines the result of list_protocols
type ListProtocolsResult struct {
	CancerType  string                  `json:"cancer_type,omitempty"`
	CancerTypes []string                `json:"cancer_types,omitempty"`
	Protocols   []domain.ProtocolRecord `json:"protocols,omitempty"`
	Count       int                     `json:"count"`
}

// MatchDrugsParams defines parameters for match_drugs
type MatchDrugsParams struct {
	Mention      string `json:"mention" jsonschema:"prescribed drug as written in the record"`
	ProtocolDrug string `json:"protocol_drug" jsonschema:"medication name from a protocol"`
}

// MatchDrugsResult defines the result of match_drugs
type MatchDrugsResult struct {
	Matched  bool     `json:"matched"`
	Kind     string   `json:"kind"`
	Families []string `json:"families"`
}

// ReviewAssessmentParams defines parameters for review_assessment
type ReviewAssessmentParams struct {
	AssessmentID  string `json:"assessment_id" jsonschema:"id returned by score_treatment_compliance"`
	Reviewer      string `json:"reviewer,omitempty"`
	Agreed        bool   `json:"agreed" jsonschema:"whether the reviewer agrees with the computed score"`
	ReviewerScore *int   `json:"reviewer_score,omitempty" jsonschema:"the reviewer's own score, 0-100"`
	Notes         string `json:"notes,omitempty"`
}

// ExportAssessmentsParams defines parameters for export_assessments
type ExportAssessmentsParams struct{}

// ExportAssessmentsResult defines the result of export_assessments
type ExportAssessmentsResult struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
}

// handleScoreTreatment handles the score_treatment_compliance tool invocation
func (s *Server) handleScoreTreatment(ctx context.Context, req *mcp.CallToolRequest, params ScoreTreatmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":        ToolScoreTreatment,
		"cancer_type": params.CancerType,
	}).Info("Tool invoked")

	input := domain.ScoreInput{
		CancerType:     params.CancerType,
		TreatmentLines: params.TreatmentLines,
		Biomarkers:     domain.Biomarkers(params.Biomarkers),
	}
	scoreReq, err := input.ToRequest()
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}

	result := s.deps.Scorer.ScoreFor(ctx, scoreReq)
	out := ScoreTreatmentResult{
		Score:              result.Score,
		Provenance:         string(result.Provenance),
		Message:            result.Message,
		Note:               result.Note,
		Findings:           result.Findings,
		AnalyzedLines:      result.AnalyzedLineCount,
		ProtocolsAvailable: result.AvailableProtocolCount,
	}

	if s.deps.Audit != nil {
		assessment := audit.NewAssessment(scoreReq.CancerType, result)
		if err := s.deps.Audit.SaveAssessment(ctx, assessment); err != nil {
			s.logger.WithError(err).Warn("Failed to record assessment")
		} else {
			out.AssessmentID = assessment.ID
		}
	}

	return s.jsonResult(fmt.Sprintf("Compliance score for %s: %d/100 (%s). %s",
		scoreReq.CancerType, out.Score, out.Provenance, out.Message), out), out, nil
}

// handleListProtocols handles the list_protocols tool invocation
func (s *Server) handleListProtocols(ctx context.Context, req *mcp.CallToolRequest, params ListProtocolsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListProtocols).Info("Tool invoked")

	cancerType := strings.TrimSpace(params.CancerType)
	if cancerType == "" {
		types := s.deps.Catalog.CancerTypes()
		out := ListProtocolsResult{CancerTypes: types, Count: len(types)}
		return s.jsonResult(fmt.Sprintf("%d cancer types have protocols", len(types)), out), out, nil
	}

	protocols := s.deps.Catalog.ProtocolsFor(cancerType)
	out := ListProtocolsResult{CancerType: cancerType, Protocols: protocols, Count: len(protocols)}
	return s.jsonResult(fmt.Sprintf("%d protocols indexed for %s", len(protocols), cancerType), out), out, nil
}

// handleMatchDrugs handles the match_drugs tool invocation
func (s *Server) handleMatchDrugs(ctx context.Context, req *mcp.CallToolRequest, params MatchDrugsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolMatchDrugs).Info("Tool invoked")

	if strings.TrimSpace(params.Mention) == "" || strings.TrimSpace(params.ProtocolDrug) == "" {
		return s.createErrorResult("Missing required parameter", errors.New("mention and protocol_drug are required")), nil, nil
	}

	matched, kind := s.deps.Drugs.Match(params.Mention, params.ProtocolDrug)
	families := s.deps.Drugs.FamiliesOf(params.Mention)
	if families == nil {
		families = []string{}
	}
	out := MatchDrugsResult{Matched: matched, Kind: string(kind), Families: families}

	verdict := "does not match"
	if matched {
		verdict = fmt.Sprintf("matches (%s)", kind)
	}
	return s.jsonResult(fmt.Sprintf("%q %s %q", params.Mention, verdict, params.ProtocolDrug), out), out, nil
}

// handleReviewAssessment handles the review_assessment tool invocation
func (s *Server) handleReviewAssessment(ctx context.Context, req *mcp.CallToolRequest, params ReviewAssessmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolReviewAssessment).Info("Tool invoked")

	review := &audit.Review{
		AssessmentID:  strings.TrimSpace(params.AssessmentID),
		Reviewer:      params.Reviewer,
		Agreed:        params.Agreed,
		ReviewerScore: params.ReviewerScore,
		Notes:         params.Notes,
	}

	if err := s.deps.Audit.SaveReview(ctx, review); err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return s.createErrorResult("Invalid parameters", err), nil, nil
		case errors.Is(err, domain.ErrNotFound):
			return s.createErrorResult("Assessment not found", err), nil, nil
		}
		s.logger.WithError(err).Error("Failed to save review")
		return s.createErrorResult("Failed to save review", err), nil, nil
	}

	msg := "Review saved: reviewer agreed with the computed score"
	if !params.Agreed {
		msg = "Review saved: reviewer disagreed with the computed score"
	}
	return s.jsonResult(msg, review), review, nil
}

// handleExportAssessments handles the export_assessments tool invocation
func (s *Server) handleExportAssessments(ctx context.Context, req *mcp.CallToolRequest, params ExportAssessmentsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolExportAssessments).Info("Tool invoked")

	if err := os.MkdirAll(s.deps.ExportDir, 0755); err != nil {
		return s.createErrorResult("Failed to create export directory", err), nil, nil
	}

	filename := fmt.Sprintf("assessments_export_%s.json", time.Now().Format("20060102_150405"))
	filePath := filepath.Join(s.deps.ExportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return s.createErrorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.deps.Audit.ExportJSON(ctx, file); err != nil {
		s.logger.WithError(err).Error("Failed to export assessments")
		return s.createErrorResult("Failed to export assessments", err), nil, nil
	}

	count, _ := s.deps.Audit.Count(ctx)
	out := ExportAssessmentsResult{FilePath: filePath, Count: count}
	return s.jsonResult(fmt.Sprintf("Exported %d assessments to %s", count, filePath), out), out, nil
}

// jsonResult renders a summary line followed by the JSON payload.
func (s *Server) jsonResult(summary string, payload any) *mcp.CallToolResult {
	content := []mcp.Content{&mcp.TextContent{Text: summary}}
	if raw, err := json.MarshalIndent(payload, "", "  "); err == nil {
		content = append(content, &mcp.TextContent{Text: string(raw)})
	} else {
		s.logger.WithError(err).Warn("Failed to encode tool result")
	}
	return &mcp.CallToolResult{Content: content}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
