package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/treatment-compliance-server/internal/domain"
)

// EvaluatorConfig holds the per-drug scoring constants.
type EvaluatorConfig struct {
	// FamilyMatchFactor scales the per-drug maximum for a family (non-exact) match.
	FamilyMatchFactor float64
	// OutsideProtocolPoints is the participation score for a drug the protocol does not list.
	OutsideProtocolPoints int
	// Concurrency bounds parallel advisory calls within one line; values below 2 run sequentially.
	Concurrency int
}

// DefaultEvaluatorConfig returns factor 0.9, participation 5 and sequential advisory calls.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		FamilyMatchFactor:     0.9,
		OutsideProtocolPoints: 5,
		Concurrency:           1,
	}
}

// Advisory award tiers when the service gives no explicit score.
const (
	advisoryHighConfidence   = 0.9
	advisoryMediumConfidence = 0.7
	advisoryHighPoints       = domain.PerDrugMaxPoints
	advisoryMediumPoints     = 22
	advisoryLowPoints        = 20
	advisoryUncertainPoints  = 7
)

// LineEvaluator scores each drug of one therapy line, either against a matched
// protocol or through the advisory fallback.
type LineEvaluator struct {
	logger   *logrus.Logger
	matcher  *ProtocolMatcher
	advisory domain.AdvisoryFallback
	cfg      EvaluatorConfig
}

// NewLineEvaluator creates an evaluator. The matcher supplies the drug resolver and
// contraindication rules; advisory may be nil, in which case every fallback uses
// the default opinion.
func NewLineEvaluator(logger *logrus.Logger, matcher *ProtocolMatcher, advisory domain.AdvisoryFallback, cfg EvaluatorConfig) *LineEvaluator {
	if cfg.FamilyMatchFactor <= 0 || cfg.FamilyMatchFactor > 1 {
		cfg.FamilyMatchFactor = DefaultEvaluatorConfig().FamilyMatchFactor
	}
	if cfg.OutsideProtocolPoints < 0 || cfg.OutsideProtocolPoints > domain.PerDrugMaxPoints {
		cfg.OutsideProtocolPoints = DefaultEvaluatorConfig().OutsideProtocolPoints
	}
	return &LineEvaluator{
		logger:   logger,
		matcher:  matcher,
		advisory: advisory,
		cfg:      cfg,
	}
}

// Evaluate scores the line's drugs. A nil protocol routes every drug through the
// advisory fallback. Evaluate never fails: advisory errors degrade to the default opinion.
func (e *LineEvaluator) Evaluate(ctx context.Context, line domain.TherapyLine, protocol *domain.ProtocolRecord, cancerType string, biomarkers domain.Biomarkers) domain.LineResult {
	mentions := make([]string, 0, len(line.Drugs))
	for _, d := range line.Drugs {
		if d = strings.TrimSpace(d); d != "" {
			mentions = append(mentions, d)
		}
	}

	result := domain.LineResult{
		MaxScore: len(mentions) * domain.PerDrugMaxPoints,
		Findings: make([]domain.Finding, len(mentions)),
	}

	if protocol != nil {
		result.Source = domain.SourceProtocol
		result.Protocol = protocol.DisplayName()
		for i, d := range mentions {
			result.Findings[i] = e.protocolFinding(d, protocol, biomarkers)
		}
	} else {
		result.Source = domain.SourceAdvisory
		e.advisoryFindings(ctx, mentions, cancerType, biomarkers, result.Findings)
	}

	for i := range result.Findings {
		f := &result.Findings[i]
		f.Points = clampPoints(f.Points)
		f.Line = line.Number
		f.LineLabel = line.Label()
		f.IsPlanned = line.IsPlanned()
		f.LineResponse = line.Response
		result.Score += f.Points
	}
	return result
}

func (e *LineEvaluator) protocolFinding(drug string, protocol *domain.ProtocolRecord, biomarkers domain.Biomarkers) domain.Finding {
	name := protocol.DisplayName()
	f := domain.Finding{
		DrugMention: drug,
		Protocol:    name,
		Source:      domain.SourceProtocol,
		MatchKind:   domain.MatchNone,
	}

	_, kind, matched := e.matcher.Resolver().MatchAny(drug, protocol.Medications)
	if matched {
		f.MatchKind = kind
	}

	if rule, bad := e.matcher.Contraindication(drug, biomarkers); bad {
		f.Status = domain.StatusCritical
		f.Points = 0
		f.Comment = fmt.Sprintf("❌ Противопоказан: %s", rule.Reason)
		return f
	}

	switch {
	case matched && kind == domain.MatchExact:
		f.Status = domain.StatusCorrect
		f.Points = domain.PerDrugMaxPoints
		f.Comment = fmt.Sprintf("✅ Полное соответствие протоколу: %s", name)
	case matched:
		f.Status = domain.StatusCorrect
		f.Points = int(float64(domain.PerDrugMaxPoints) * e.cfg.FamilyMatchFactor)
		f.Comment = fmt.Sprintf("✅ Родственный препарат, соответствует протоколу: %s", name)
	default:
		f.Status = domain.StatusWarning
		f.Points = e.cfg.OutsideProtocolPoints
		f.Comment = fmt.Sprintf("⚠️ Не входит в протокол %s", name)
	}
	return f
}

// advisoryFindings fills out[i] for each drug, fanning out when configured.
// Findings keep drug order regardless of completion order.
func (e *LineEvaluator) advisoryFindings(ctx context.Context, drugs []string, cancerType string, biomarkers domain.Biomarkers, out []domain.Finding) {
	if e.cfg.Concurrency < 2 || len(drugs) < 2 {
		for i, d := range drugs {
			out[i] = e.advisoryFinding(ctx, d, cancerType, biomarkers)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, d := range drugs {
		g.Go(func() error {
			out[i] = e.advisoryFinding(ctx, d, cancerType, biomarkers)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *LineEvaluator) advisoryFinding(ctx context.Context, drug, cancerType string, biomarkers domain.Biomarkers) domain.Finding {
	f := domain.Finding{
		DrugMention: drug,
		Source:      domain.SourceAdvisory,
		MatchKind:   domain.MatchNone,
	}

	// Known contraindications are decided locally; the advisory service is not consulted.
	if rule, bad := e.matcher.Contraindication(drug, biomarkers); bad {
		f.Status = domain.StatusCritical
		f.Points = 0
		f.Comment = fmt.Sprintf("❌ ПРОТИВОПОКАЗАН: %s", rule.Reason)
		return f
	}

	opinion := e.consult(ctx, drug, cancerType, biomarkers)
	confidence := opinion.Confidence
	f.Confidence = &confidence

	switch {
	case opinion.IsContraindicated:
		f.Status = domain.StatusCritical
		f.Points = 0
		f.Comment = fmt.Sprintf("❌ ПРОТИВОПОКАЗАН: %s", opinion.Explanation)
	case opinion.IsAppropriate:
		f.Status = domain.StatusCorrect
		switch {
		case opinion.ScoreRecommendation != nil:
			f.Points = *opinion.ScoreRecommendation
		case confidence >= advisoryHighConfidence:
			f.Points = advisoryHighPoints
		case confidence >= advisoryMediumConfidence:
			f.Points = advisoryMediumPoints
		default:
			f.Points = advisoryLowPoints
		}
		f.Comment = "✅ " + orDefault(opinion.Explanation, "Подходит")
	default:
		f.Status = domain.StatusWarning
		if opinion.ScoreRecommendation != nil {
			f.Points = *opinion.ScoreRecommendation
		} else {
			f.Points = advisoryUncertainPoints
		}
		f.Comment = "⚠️ " + orDefault(opinion.Explanation, "Нестандартное назначение")
	}
	return f
}

// consult calls the advisory service and fails open on any error.
func (e *LineEvaluator) consult(ctx context.Context, drug, cancerType string, biomarkers domain.Biomarkers) *domain.AdvisoryOpinion {
	if e.advisory == nil {
		return domain.DefaultAdvisoryOpinion()
	}

	opinion, err := e.advisory.AssessTreatment(ctx, &domain.AdvisoryRequest{
		CancerType: cancerType,
		Treatment:  drug,
		Biomarkers: biomarkers,
	})
	if err != nil || opinion == nil {
		if err == nil {
			err = domain.ErrEmptyResponse
		}
		if e.logger != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"cancer_type": cancerType,
				"treatment":   drug,
			}).Warn("Advisory assessment failed, using default opinion")
		}
		return domain.DefaultAdvisoryOpinion()
	}

	normalized := *opinion
	normalized.Normalize()
	return &normalized
}

func clampPoints(p int) int {
	if p < 0 {
		return 0
	}
	if p > domain.PerDrugMaxPoints {
		return domain.PerDrugMaxPoints
	}
	return p
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
