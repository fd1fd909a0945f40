package service

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
)

// ContraindicationRulesFromConfig builds rules from a biomarker → drug families map.
// An empty map yields nil so the matcher falls back to its built-in rules.
func ContraindicationRulesFromConfig(cfg map[string][]string) []ContraindicationRule {
	if len(cfg) == 0 {
		return nil
	}
	biomarkers := make([]string, 0, len(cfg))
	for b := range cfg {
		biomarkers = append(biomarkers, b)
	}
	sort.Strings(biomarkers)

	rules := make([]ContraindicationRule, 0, len(biomarkers))
	for _, b := range biomarkers {
		rules = append(rules, ContraindicationRule{
			Biomarker: b,
			Drugs:     append([]string(nil), cfg[b]...),
			Reason:    "противопоказано при " + b,
		})
	}
	return rules
}

// NewScorerFromConfig wires matcher, evaluator and aggregator from scoring settings.
// advisory may be nil.
func NewScorerFromConfig(
	logger *logrus.Logger,
	index domain.ProtocolIndex,
	resolver *drugs.Resolver,
	advisory domain.AdvisoryFallback,
	scoring domain.ScoringConfig,
	concurrency int,
) *ComplianceScorer {
	matcher := NewProtocolMatcher(logger, resolver, MatchWeightsFromConfig(scoring), ContraindicationRulesFromConfig(scoring.Contraindications))

	evalCfg := DefaultEvaluatorConfig()
	if scoring.FamilyMatchFactor > 0 {
		evalCfg.FamilyMatchFactor = scoring.FamilyMatchFactor
	}
	if scoring.OutsideProtocolPoints > 0 {
		evalCfg.OutsideProtocolPoints = scoring.OutsideProtocolPoints
	}
	if concurrency > 0 {
		evalCfg.Concurrency = concurrency
	}
	evaluator := NewLineEvaluator(logger, matcher, advisory, evalCfg)

	return NewComplianceScorer(logger, index, matcher, evaluator, StageWeightsFromMap(scoring.StageWeights))
}
