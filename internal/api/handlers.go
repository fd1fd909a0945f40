package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/audit"
	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type scoreResponse struct {
	*domain.ScoreResult
	AssessmentID string `json:"assessment_id,omitempty"`
}

type matchRequest struct {
	Mention      string `json:"mention"`
	ProtocolDrug string `json:"protocol_drug"`
}

type matchResponse struct {
	Matched  bool             `json:"matched"`
	Kind     domain.MatchKind `json:"kind"`
	Families []string         `json:"families"`
}

type reviewRequest struct {
	Reviewer      string `json:"reviewer"`
	Agreed        bool   `json:"agreed"`
	ReviewerScore *int   `json:"reviewer_score"`
	Notes         string `json:"notes"`
}

type assessmentPage struct {
	Assessments []*audit.Assessment `json:"assessments"`
	Total       int64               `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

// handleHealth reports index statistics, advisory breaker state and dependency probes.
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range s.deps.HealthChecks {
		if err := check(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	advisory := gin.H{"enabled": s.deps.Advisor != nil}
	if s.deps.Advisor != nil {
		advisory["breaker_state"] = s.deps.Advisor.BreakerState().String()
	}

	label := "healthy"
	if status != http.StatusOK {
		label = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    label,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"index":     s.deps.Catalog.Stats(),
		"advisory":  advisory,
		"audit":     s.deps.Audit != nil,
		"checks":    checks,
	})
}

// handleScore scores a treatment history and records the assessment when auditing is on.
func (s *Server) handleScore(c *gin.Context) {
	var input domain.ScoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed request body", err)
		return
	}

	req, err := input.ToRequest()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid scoring request", err)
		return
	}

	ctx := c.Request.Context()
	result := s.deps.Scorer.ScoreFor(ctx, req)
	resp := scoreResponse{ScoreResult: result}

	if s.deps.Audit != nil {
		assessment := audit.NewAssessment(req.CancerType, result)
		if err := s.deps.Audit.SaveAssessment(ctx, assessment); err != nil {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": c.GetString(middleware.CorrelationIDKey),
				"error":          err,
			}).Warn("Failed to record assessment")
		} else {
			resp.AssessmentID = assessment.ID
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListCancerTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cancer_types": s.deps.Catalog.CancerTypes(),
	})
}

// handleGetProtocols lists the protocols indexed for one cancer type.
func (s *Server) handleGetProtocols(c *gin.Context) {
	cancerType := c.Param("cancer_type")
	protocols := s.deps.Catalog.ProtocolsFor(cancerType)
	c.JSON(http.StatusOK, gin.H{
		"cancer_type": cancerType,
		"count":       len(protocols),
		"protocols":   protocols,
	})
}

// handleMatchDrugs reports whether a prescribed mention is equivalent to a protocol drug.
func (s *Server) handleMatchDrugs(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed request body", err)
		return
	}
	if strings.TrimSpace(req.Mention) == "" || strings.TrimSpace(req.ProtocolDrug) == "" {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "mention and protocol_drug are required", nil)
		return
	}

	matched, kind := s.deps.Drugs.Match(req.Mention, req.ProtocolDrug)
	families := s.deps.Drugs.FamiliesOf(req.Mention)
	if families == nil {
		families = []string{}
	}
	c.JSON(http.StatusOK, matchResponse{Matched: matched, Kind: kind, Families: families})
}

func (s *Server) handleListAssessments(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "limit must be a positive integer", err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "offset must be a non-negative integer", err)
		return
	}

	ctx := c.Request.Context()
	list, err := s.deps.Audit.ListAssessments(ctx, limit, offset)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrAudit, "Failed to list assessments", err)
		return
	}
	total, err := s.deps.Audit.Count(ctx)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrAudit, "Failed to count assessments", err)
		return
	}
	if list == nil {
		list = []*audit.Assessment{}
	}

	c.JSON(http.StatusOK, assessmentPage{Assessments: list, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	id, ok := s.assessmentID(c)
	if !ok {
		return
	}

	a, err := s.deps.Audit.GetAssessment(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrAudit, "Failed to load assessment", err)
		return
	}
	if a == nil {
		s.respondError(c, http.StatusNotFound, domain.ErrResourceNotFound, "Assessment not found", nil)
		return
	}
	c.JSON(http.StatusOK, a)
}

// handleSaveReview records a clinician's review of an assessment.
func (s *Server) handleSaveReview(c *gin.Context) {
	id, ok := s.assessmentID(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Malformed request body", err)
		return
	}

	review := &audit.Review{
		AssessmentID:  id,
		Reviewer:      req.Reviewer,
		Agreed:        req.Agreed,
		ReviewerScore: req.ReviewerScore,
		Notes:         req.Notes,
	}

	err := s.deps.Audit.SaveReview(c.Request.Context(), review)
	var verr *domain.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, review)
	case errors.As(err, &verr):
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Invalid review", err)
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.ErrResourceNotFound, "Assessment not found", nil)
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrAudit, "Failed to save review", err)
	}
}

// handleExport streams every assessment with its review as JSON.
func (s *Server) handleExport(c *gin.Context) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="assessments.json"`)
	c.Status(http.StatusOK)
	if err := s.deps.Audit.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Assessment export failed")
		_ = c.Error(err)
	}
}

func (s *Server) requireAudit(c *gin.Context) {
	if s.deps.Audit == nil {
		s.respondError(c, http.StatusNotFound, domain.ErrResourceNotFound, "Audit trail is disabled", nil)
		return
	}
	c.Next()
}

func (s *Server) assessmentID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, "Assessment id must be a UUID", err)
		return "", false
	}
	return id, true
}

// handlePanic turns a recovered handler panic into a 500 ServiceError.
func (s *Server) handlePanic(c *gin.Context, recovered any) {
	s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Internal server error", fmt.Errorf("panic: %v", recovered))
}

// respondError aborts the request with a ServiceError body.
// Server-side failures are logged; their details are not returned to the client.
func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	correlationID := c.GetString(middleware.CorrelationIDKey)
	details := ""
	if err != nil {
		if status >= http.StatusInternalServerError {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": correlationID,
				"code":           code,
				"error":          err,
			}).Error(message)
		} else {
			details = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, details, correlationID))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
