package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/protocol"
)

func TestContraindicationRulesFromConfig(t *testing.T) {
	assert.Nil(t, ContraindicationRulesFromConfig(nil))

	rules := ContraindicationRulesFromConfig(map[string][]string{
		"kras_mutated": {"цетуксимаб", "панитумумаб"},
		"egfr_wild":    {"осимертиниб"},
	})
	require.Len(t, rules, 2)
	assert.Equal(t, "egfr_wild", rules[0].Biomarker, "rules are ordered by biomarker")
	assert.Equal(t, []string{"цетуксимаб", "панитумумаб"}, rules[1].Drugs)
}

func TestNewScorerFromConfig(t *testing.T) {
	logger, _ := newTestLogger()
	index := protocol.NewIndex(breastProtocols())

	t.Run("defaults", func(t *testing.T) {
		scorer := NewScorerFromConfig(logger, index, nil, nil, domain.ScoringConfig{}, 0)
		result := scorer.ScoreFor(context.Background(), &domain.ScoreRequest{
			CancerType: "breast",
			History: domain.TreatmentHistory{Lines: []domain.TherapyLine{
				domain.NewDatedLine(1, []string{"паклитаксел", "карбоплатин"}, ""),
			}},
		})
		assert.Equal(t, 100, result.Score)
		assert.Equal(t, domain.ProvenanceKnowledgeBase, result.Provenance)
	})

	t.Run("configured contraindications replace built-in rules", func(t *testing.T) {
		scorer := NewScorerFromConfig(logger, index, nil, nil, domain.ScoringConfig{
			Contraindications: map[string][]string{"cardiotoxicity_risk": {"трастузумаб"}},
		}, 2)

		her2neg := scorer.ScoreFor(context.Background(), &domain.ScoreRequest{
			CancerType: "breast",
			History: domain.TreatmentHistory{Lines: []domain.TherapyLine{
				domain.NewDatedLine(2, []string{"трастузумаб", "доцетаксел"}, ""),
			}},
			Biomarkers: domain.Biomarkers{"her2_negative": true},
		})
		assert.Equal(t, 100, her2neg.Score, "her2_negative is no longer a rule")

		cardio := scorer.ScoreFor(context.Background(), &domain.ScoreRequest{
			CancerType: "breast",
			History: domain.TreatmentHistory{Lines: []domain.TherapyLine{
				domain.NewDatedLine(2, []string{"трастузумаб", "доцетаксел"}, ""),
			}},
			Biomarkers: domain.Biomarkers{"cardiotoxicity_risk": true},
		})
		assert.Less(t, cardio.Score, 100)
		assert.Equal(t, domain.StatusCritical, cardio.Findings[0].Status)
	})
}
