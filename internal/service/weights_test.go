package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treatment-compliance-server/internal/domain"
)

func TestStageWeights_For(t *testing.T) {
	w := DefaultStageWeights()

	tests := []struct {
		name string
		line domain.TherapyLine
		want float64
	}{
		{"first", domain.NewDatedLine(1, nil, ""), 1.0},
		{"second", domain.NewDatedLine(2, nil, ""), 0.9},
		{"third", domain.NewDatedLine(3, nil, ""), 0.8},
		{"fourth", domain.NewDatedLine(4, nil, ""), 0.7},
		{"tenth", domain.NewDatedLine(10, nil, ""), 0.7},
		{"planned", domain.NewPlannedLine(nil, ""), 0.85},
		{"unknown_number", domain.NewDatedLine(0, nil, ""), 0.8},
		{"adjuvant_hint", domain.TherapyLine{Number: 3, Stage: domain.StageAdjuvant}, 0.95},
		{"neoadjuvant_hint", domain.TherapyLine{Number: 1, Stage: domain.StageNeoadjuvant}, 0.95},
		{"metastatic_hint", domain.TherapyLine{Number: 1, Stage: domain.StageMetastatic}, 0.8},
		{"unknown_hint_uses_number", domain.TherapyLine{Number: 2, Stage: domain.StageUnknown}, 0.9},
		{"planned_ignores_hint", domain.TherapyLine{Kind: domain.LineKindPlanned, Stage: domain.StageAdjuvant}, 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.For(tt.line))
		})
	}
}

func TestStageWeightsFromMap(t *testing.T) {
	w := StageWeightsFromMap(map[string]float64{
		"planned":   0.5,
		"adjuvant":  0,
		"bogus_key": 3,
	})

	assert.Equal(t, 0.5, w.Planned)
	assert.Equal(t, 0.95, w.Adjuvant, "non-positive overrides are ignored")
	assert.Equal(t, DefaultStageWeights().FirstLine, w.FirstLine)
}

func TestScoreMessage(t *testing.T) {
	tests := []struct {
		score  int
		prefix string
	}{
		{100, "✅"},
		{90, "✅"},
		{89, "👍"},
		{75, "👍"},
		{74, "⚠️"},
		{60, "⚠️"},
		{59, "❌"},
		{40, "❌"},
		{39, "🚨"},
		{0, "🚨"},
	}

	for _, tt := range tests {
		assert.Regexp(t, "^"+tt.prefix, ScoreMessage(tt.score), "score %d", tt.score)
	}
}

func TestProvenanceNote(t *testing.T) {
	for _, p := range []domain.Provenance{
		domain.ProvenanceKnowledgeBase,
		domain.ProvenanceMixed,
		domain.ProvenanceAIOnly,
		domain.ProvenanceAIFallback,
	} {
		assert.NotEmpty(t, ProvenanceNote(p), p)
	}
	assert.Empty(t, ProvenanceNote("other"))
}
