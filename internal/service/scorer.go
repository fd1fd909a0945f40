package service

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/domain"
)

// ComplianceScorer aggregates per-line evaluations into a 0..100 compliance score.
type ComplianceScorer struct {
	logger    *logrus.Logger
	index     domain.ProtocolIndex
	matcher   *ProtocolMatcher
	evaluator *LineEvaluator
	weights   StageWeights
}

// NewComplianceScorer creates the scoring engine over an immutable protocol index.
func NewComplianceScorer(
	logger *logrus.Logger,
	index domain.ProtocolIndex,
	matcher *ProtocolMatcher,
	evaluator *LineEvaluator,
	weights StageWeights,
) *ComplianceScorer {
	return &ComplianceScorer{
		logger:    logger,
		index:     index,
		matcher:   matcher,
		evaluator: evaluator,
		weights:   weights,
	}
}

// ScoreFor scores a treatment history. It never fails: missing protocols, empty
// lines and advisory outages degrade the provenance, not the call.
func (s *ComplianceScorer) ScoreFor(ctx context.Context, req *domain.ScoreRequest) *domain.ScoreResult {
	start := time.Now()
	if req == nil {
		req = &domain.ScoreRequest{}
	}

	history := domain.TreatmentHistory{Lines: append([]domain.TherapyLine(nil), req.History.Lines...)}
	if req.History.Planned != nil {
		planned := *req.History.Planned
		history.Planned = &planned
	}
	history.Normalize()

	protocols := s.index.ProtocolsFor(req.CancerType)
	advisoryOnly := len(protocols) == 0

	var (
		findings      = make([]domain.Finding, 0)
		weightedScore float64
		weightedMax   float64
		analyzed      int
		matchedLines  int
		fallbackLines int
	)

	evaluate := func(line domain.TherapyLine, lineCtx LineContext) {
		var protocol *domain.ProtocolRecord
		if !advisoryOnly {
			protocol = s.matcher.BestMatch(protocols, lineCtx, line.Drugs, req.Biomarkers)
		}
		if protocol != nil {
			matchedLines++
		} else {
			fallbackLines++
		}

		result := s.evaluator.Evaluate(ctx, line, protocol, req.CancerType, req.Biomarkers)
		weight := s.weights.For(line)
		weightedScore += float64(result.Score) * weight
		weightedMax += float64(result.MaxScore) * weight
		findings = append(findings, result.Findings...)

		s.logger.WithFields(logrus.Fields{
			"cancer_type": req.CancerType,
			"line":        line.Label(),
			"protocol":    result.Protocol,
			"source":      result.Source,
			"score":       result.Score,
			"max_score":   result.MaxScore,
			"weight":      weight,
		}).Debug("Evaluated therapy line")
	}

	// Step 1: dated lines in input order
	for _, line := range history.Lines {
		if !line.HasDrugs() {
			continue
		}
		analyzed++
		evaluate(line, LineContext{Number: line.Number, Stage: line.Stage})
	}

	// Step 2: the planned line, matched as a late line regardless of history length
	if history.Planned != nil && history.Planned.HasDrugs() {
		evaluate(*history.Planned, LineContext{Number: domain.PlannedLineSentinel, Stage: history.Planned.Stage})
	}

	// Step 3: provenance and final percentage
	provenance := provenanceFor(advisoryOnly, matchedLines, fallbackLines)
	score := finalScore(weightedScore, weightedMax)

	result := &domain.ScoreResult{
		Score:                  score,
		Findings:               findings,
		Provenance:             provenance,
		Message:                ScoreMessage(score),
		Note:                   ProvenanceNote(provenance),
		AnalyzedLineCount:      analyzed,
		AvailableProtocolCount: len(protocols),
	}

	fields := logrus.Fields(result.LogFields())
	fields["cancer_type"] = req.CancerType
	fields["duration"] = time.Since(start)
	s.logger.WithFields(fields).Info("Compliance score computed")

	return result
}

// ScoreDrugList scores a flat drug list as a single first-line therapy.
func (s *ComplianceScorer) ScoreDrugList(ctx context.Context, cancerType string, drugs []string, biomarkers domain.Biomarkers) *domain.ScoreResult {
	return s.ScoreFor(ctx, &domain.ScoreRequest{
		CancerType: cancerType,
		History: domain.TreatmentHistory{
			Lines: []domain.TherapyLine{domain.NewDatedLine(1, drugs, "")},
		},
		Biomarkers: biomarkers,
	})
}

func provenanceFor(advisoryOnly bool, matched, fallback int) domain.Provenance {
	switch {
	case advisoryOnly:
		return domain.ProvenanceAIOnly
	case fallback == 0:
		return domain.ProvenanceKnowledgeBase
	case matched == 0:
		return domain.ProvenanceAIFallback
	default:
		return domain.ProvenanceMixed
	}
}

func finalScore(weighted, weightedMax float64) int {
	if weightedMax <= 0 {
		return 0
	}
	score := int(math.Round(100 * weighted / weightedMax))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
