package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageTag(t *testing.T) {
	tests := []struct {
		input   string
		want    StageTag
		wantErr bool
	}{
		{"first_line", StageFirstLine, false},
		{"Second-Line", StageSecondLine, false},
		{"  ADJUVANT ", StageAdjuvant, false},
		{"", StageUnknown, false},
		{"fifth_line", StageUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStageTag(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidStage))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvenance_UsesAdvisory(t *testing.T) {
	assert.False(t, ProvenanceKnowledgeBase.UsesAdvisory())
	assert.True(t, ProvenanceMixed.UsesAdvisory())
	assert.True(t, ProvenanceAIOnly.UsesAdvisory())
	assert.True(t, ProvenanceAIFallback.UsesAdvisory())
	assert.False(t, Provenance("other").IsValid())
}

func TestBiomarkers(t *testing.T) {
	b := Biomarkers{"her2_negative": true, "egfr_mutated": false, "alk_positive": true}

	assert.True(t, b.Has("her2_negative"))
	assert.False(t, b.Has("egfr_mutated"))
	assert.False(t, b.Has("missing"))
	assert.Equal(t, []string{"alk_positive", "her2_negative"}, b.Active())

	var empty Biomarkers
	assert.False(t, empty.Has("her2_negative"))
	assert.Empty(t, empty.Active())
}

func TestTreatmentHistory_Normalize(t *testing.T) {
	t.Run("legacy sentinel becomes planned", func(t *testing.T) {
		h := &TreatmentHistory{Lines: []TherapyLine{
			NewDatedLine(1, []string{"паклитаксел"}, "PR"),
			NewDatedLine(PlannedLineSentinel, []string{"осимертиниб"}, ""),
		}}
		h.Normalize()

		require.Len(t, h.Lines, 1)
		require.NotNil(t, h.Planned)
		assert.True(t, h.Planned.IsPlanned())
		assert.Equal(t, []string{"осимертиниб"}, h.Planned.Drugs)
		assert.Equal(t, "planned", h.Planned.Label())
	})

	t.Run("explicit planned line wins", func(t *testing.T) {
		planned := TherapyLine{Drugs: []string{"пембролизумаб"}}
		h := &TreatmentHistory{
			Lines:   []TherapyLine{NewDatedLine(PlannedLineSentinel, []string{"x"}, "")},
			Planned: &planned,
		}
		h.Normalize()

		assert.Len(t, h.Lines, 1)
		assert.Equal(t, LineKindPlanned, h.Planned.Kind)
		assert.Equal(t, []string{"пембролизумаб"}, h.Planned.Drugs)
	})

	t.Run("nil history", func(t *testing.T) {
		var h *TreatmentHistory
		assert.NotPanics(t, func() { h.Normalize() })
	})
}

func TestTherapyLine_HasDrugs(t *testing.T) {
	assert.False(t, NewDatedLine(1, nil, "").HasDrugs())
	assert.False(t, NewDatedLine(1, []string{" ", ""}, "").HasDrugs())
	assert.True(t, NewDatedLine(1, []string{"", "цисплатин"}, "").HasDrugs())
	assert.Equal(t, "2", NewDatedLine(2, nil, "").Label())
}

func TestScoreRequest_Validate(t *testing.T) {
	valid := &ScoreRequest{
		CancerType: "breast",
		History:    TreatmentHistory{Lines: []TherapyLine{NewDatedLine(1, []string{"доцетаксел"}, "")}},
	}
	assert.NoError(t, valid.Validate())

	var nilReq *ScoreRequest
	assert.Error(t, nilReq.Validate())

	noType := &ScoreRequest{CancerType: "  "}
	err := noType.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "cancer_type", verr.Field)

	badLine := &ScoreRequest{CancerType: "lung", History: TreatmentHistory{Lines: []TherapyLine{NewDatedLine(0, nil, "")}}}
	require.True(t, errors.As(badLine.Validate(), &verr))
	assert.Equal(t, "treatment_lines.lines[0].line", verr.Field)

	badStage := &ScoreRequest{CancerType: "lung", History: TreatmentHistory{Lines: []TherapyLine{{Number: 1, Stage: "sixth"}}}}
	require.True(t, errors.As(badStage.Validate(), &verr))
	assert.Equal(t, "treatment_lines.lines[0].stage", verr.Field)

	empty := &ScoreRequest{CancerType: "lung"}
	assert.NoError(t, empty.Validate())
}

func TestAdvisoryOpinion_Normalize(t *testing.T) {
	rec := 40
	o := &AdvisoryOpinion{Confidence: 1.7, ScoreRecommendation: &rec}
	o.Normalize()

	assert.Equal(t, 1.0, o.Confidence)
	require.NotNil(t, o.ScoreRecommendation)
	assert.Equal(t, PerDrugMaxPoints, *o.ScoreRecommendation)
	assert.Equal(t, 40, rec, "normalization must not mutate the caller's value")

	neg := -5
	o = &AdvisoryOpinion{Confidence: -0.2, ScoreRecommendation: &neg}
	o.Normalize()
	assert.Equal(t, 0.0, o.Confidence)
	assert.Equal(t, 0, *o.ScoreRecommendation)

	def := DefaultAdvisoryOpinion()
	assert.True(t, def.IsAppropriate)
	assert.False(t, def.IsContraindicated)
	assert.Equal(t, 0.5, def.Confidence)
}

func TestProtocolRecord_DisplayName(t *testing.T) {
	assert.Equal(t, "AC-T", (&ProtocolRecord{Name: "AC-T"}).DisplayName())
	assert.Equal(t, "Минздрав РФ", (&ProtocolRecord{Source: "Минздрав РФ"}).DisplayName())
	assert.Equal(t, "unnamed protocol", (&ProtocolRecord{}).DisplayName())
	var p *ProtocolRecord
	assert.Equal(t, "", p.DisplayName())
}

func TestServiceError(t *testing.T) {
	err := NewServiceError(ErrInvalidInput, "bad request", "cancer_type missing", "req-1")
	assert.Equal(t, "INVALID_INPUT: bad request", err.Error())
	assert.False(t, err.Timestamp.IsZero())

	verr := NewValidationError("cancer_type", "cancer type is required", "")
	assert.Equal(t, "validation error for field 'cancer_type': cancer type is required", verr.Error())
}
