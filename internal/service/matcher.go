package service

import (
	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
)

// MatchWeights are the constants of the protocol ranking.
type MatchWeights struct {
	ContraindicationPenalty int
	OverlapBonus            int
	StageBonus              int
}

// DefaultMatchWeights returns penalty 100, overlap 10 and stage 30.
func DefaultMatchWeights() MatchWeights {
	return MatchWeights{
		ContraindicationPenalty: 100,
		OverlapBonus:            10,
		StageBonus:              30,
	}
}

// MatchWeightsFromConfig overlays non-zero configured values onto the defaults.
func MatchWeightsFromConfig(cfg domain.ScoringConfig) MatchWeights {
	w := DefaultMatchWeights()
	if cfg.ContraindicationPenalty > 0 {
		w.ContraindicationPenalty = cfg.ContraindicationPenalty
	}
	if cfg.OverlapBonus > 0 {
		w.OverlapBonus = cfg.OverlapBonus
	}
	if cfg.StageBonus > 0 {
		w.StageBonus = cfg.StageBonus
	}
	return w
}

// ContraindicationRule marks drug families that must not be given when a biomarker is present.
// Drugs are canonical family names from the drug table.
type ContraindicationRule struct {
	Biomarker string
	Drugs     []string
	Reason    string
}

// DefaultContraindicationRules returns the anti-HER2 rule for HER2-negative disease
// and the endocrine rule for triple-negative disease.
func DefaultContraindicationRules() []ContraindicationRule {
	return []ContraindicationRule{
		{
			Biomarker: "her2_negative",
			Drugs:     []string{"трастузумаб", "пертузумаб", "тукатиниб"},
			Reason:    "анти-HER2 терапия при HER2-негативном статусе",
		},
		{
			Biomarker: "triple_negative",
			Drugs:     []string{"тамоксифен", "летрозол"},
			Reason:    "гормонотерапия при трижды негативном раке",
		},
	}
}

// LineContext identifies the therapy position a drug list is matched for.
type LineContext struct {
	Number int
	Stage  domain.StageTag
}

// ProtocolMatcher selects the protocol that best explains a line's drug list.
// Ranking is a single greedy pass so the choice can be explained to a clinician.
type ProtocolMatcher struct {
	logger   *logrus.Logger
	resolver *drugs.Resolver
	weights  MatchWeights
	rules    []ContraindicationRule
}

// NewProtocolMatcher creates a matcher. A nil rules slice selects DefaultContraindicationRules;
// an empty non-nil slice disables contraindication checks.
func NewProtocolMatcher(logger *logrus.Logger, resolver *drugs.Resolver, weights MatchWeights, rules []ContraindicationRule) *ProtocolMatcher {
	if resolver == nil {
		resolver = drugs.NewResolver(nil)
	}
	if rules == nil {
		rules = DefaultContraindicationRules()
	}
	return &ProtocolMatcher{
		logger:   logger,
		resolver: resolver,
		weights:  weights,
		rules:    rules,
	}
}

// Resolver returns the drug resolver used for matching.
func (m *ProtocolMatcher) Resolver() *drugs.Resolver {
	return m.resolver
}

// Contraindication returns the first active rule the drug violates.
func (m *ProtocolMatcher) Contraindication(drug string, biomarkers domain.Biomarkers) (ContraindicationRule, bool) {
	for _, rule := range m.rules {
		if !biomarkers.Has(rule.Biomarker) {
			continue
		}
		for _, family := range rule.Drugs {
			if m.resolver.InFamily(drug, family) {
				return rule, true
			}
		}
	}
	return ContraindicationRule{}, false
}

type candidate struct {
	protocol *domain.ProtocolRecord
	score    int
	// overlap counts prescribed drugs the protocol covers, contraindicated ones excluded.
	overlap int
	// endorses is set when the protocol lists a drug that is contraindicated here.
	endorses bool
}

// BestMatch returns the highest-scoring protocol for the drugs, or nil when no
// protocol earns a positive score and no contraindication penalty applied.
// Ties keep the earlier protocol in the index.
//
// A protocol that lists a contraindicated prescribed drug cannot win while some
// other candidate covers at least one prescribed drug without listing one.
func (m *ProtocolMatcher) BestMatch(protocols []domain.ProtocolRecord, line LineContext, prescribed []string, biomarkers domain.Biomarkers) *domain.ProtocolRecord {
	contraindicated := make([]bool, len(prescribed))
	penalty := 0
	for i, d := range prescribed {
		if _, bad := m.Contraindication(d, biomarkers); bad {
			contraindicated[i] = true
			penalty += m.weights.ContraindicationPenalty
		}
	}

	var candidates []candidate
	guarded := false
	for i := range protocols {
		p := &protocols[i]
		if len(p.Medications) == 0 {
			continue
		}

		c := candidate{protocol: p, score: -penalty}
		for n, d := range prescribed {
			if _, _, ok := m.resolver.MatchAny(d, p.Medications); !ok {
				continue
			}
			if contraindicated[n] {
				c.endorses = true
				continue
			}
			c.overlap++
			c.score += m.weights.OverlapBonus
		}
		if stageCompatible(line, p.Stage) {
			c.score += m.weights.StageBonus
		}

		if c.score <= 0 && penalty == 0 {
			continue
		}
		if !c.endorses && c.overlap > 0 {
			guarded = true
		}
		candidates = append(candidates, c)
	}

	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if guarded && c.endorses {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}

	if best == nil {
		return nil
	}
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"protocol":   best.protocol.DisplayName(),
			"score":      best.score,
			"line":       line.Number,
			"penalized":  penalty > 0,
			"drug_count": len(prescribed),
		}).Debug("Selected protocol for line")
	}
	return best.protocol
}

// stageCompatible applies the line-number table; an explicit stage hint on the
// line also matches a protocol written for that same stage.
func stageCompatible(line LineContext, stage domain.StageTag) bool {
	if line.Stage != "" && line.Stage != domain.StageUnknown && line.Stage == stage {
		return true
	}
	switch {
	case line.Number == 1:
		return stage == domain.StageFirstLine || stage == domain.StageAdjuvant || stage == domain.StageNeoadjuvant
	case line.Number == 2:
		return stage == domain.StageSecondLine || stage == domain.StageMetastatic
	case line.Number >= 3:
		return stage == domain.StageThirdLine || stage == domain.StageMetastatic
	default:
		return false
	}
}
