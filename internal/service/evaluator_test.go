package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/treatment-compliance-server/internal/domain"
)

func TestLineEvaluator_ProtocolPath(t *testing.T) {
	e := newEngine(nil)
	protocol := &breastProtocols()["breast"][0]
	line := domain.NewDatedLine(1, []string{"Паклитаксел", "Taxol", "пембролизумаб", "  "}, "стабилизация")

	result := e.evaluator.Evaluate(context.Background(), line, protocol, "breast", nil)

	require.Len(t, result.Findings, 3, "blank mentions are dropped")
	assert.Equal(t, 75, result.MaxScore)
	assert.Equal(t, 25+22+5, result.Score)
	assert.Equal(t, domain.SourceProtocol, result.Source)
	assert.Equal(t, "PCb", result.Protocol)

	exact, family, outside := result.Findings[0], result.Findings[1], result.Findings[2]

	assert.Equal(t, domain.StatusCorrect, exact.Status)
	assert.Equal(t, domain.MatchExact, exact.MatchKind)
	assert.Equal(t, 25, exact.Points)
	assert.Contains(t, exact.Comment, "Полное соответствие")

	assert.Equal(t, domain.StatusCorrect, family.Status)
	assert.Equal(t, domain.MatchFamily, family.MatchKind)
	assert.Equal(t, 22, family.Points)
	assert.Contains(t, family.Comment, "Родственный препарат")

	assert.Equal(t, domain.StatusWarning, outside.Status)
	assert.Equal(t, domain.MatchNone, outside.MatchKind)
	assert.Equal(t, 5, outside.Points)
	assert.Equal(t, "⚠️ Не входит в протокол PCb", outside.Comment)

	for _, f := range result.Findings {
		assert.Equal(t, 1, f.Line)
		assert.Equal(t, "1", f.LineLabel)
		assert.False(t, f.IsPlanned)
		assert.Equal(t, "стабилизация", f.LineResponse)
		assert.Equal(t, "PCb", f.Protocol)
		assert.Nil(t, f.Confidence)
	}
	e.advisory.AssertNotCalled(t, "AssessTreatment", mock.Anything, mock.Anything)
}

func TestLineEvaluator_ProtocolPathContraindication(t *testing.T) {
	e := newEngine(nil)
	protocol := &domain.ProtocolRecord{Name: "TH", Medications: []string{"трастузумаб", "доцетаксел"}}
	line := domain.NewDatedLine(2, []string{"Герцептин", "доцетаксел"}, "")

	result := e.evaluator.Evaluate(context.Background(), line, protocol, "breast", domain.Biomarkers{"her2_negative": true})

	require.Len(t, result.Findings, 2)
	critical := result.Findings[0]
	assert.Equal(t, domain.StatusCritical, critical.Status)
	assert.Equal(t, 0, critical.Points)
	assert.Equal(t, domain.MatchFamily, critical.MatchKind, "match kind is still reported")
	assert.Contains(t, critical.Comment, "Противопоказан")
	assert.Equal(t, 25, result.Score)
	assert.Equal(t, 50, result.MaxScore)
}

func TestLineEvaluator_AdvisoryTiers(t *testing.T) {
	tests := []struct {
		name       string
		opinion    *domain.AdvisoryOpinion
		wantStatus domain.FindingStatus
		wantPoints int
		wantText   string
	}{
		{
			name:       "high_confidence",
			opinion:    &domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.95, Explanation: "стандарт"},
			wantStatus: domain.StatusCorrect,
			wantPoints: 25,
			wantText:   "✅ стандарт",
		},
		{
			name:       "medium_confidence",
			opinion:    &domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.75},
			wantStatus: domain.StatusCorrect,
			wantPoints: 22,
			wantText:   "✅ Подходит",
		},
		{
			name:       "low_confidence",
			opinion:    &domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.4},
			wantStatus: domain.StatusCorrect,
			wantPoints: 20,
		},
		{
			name:       "explicit_recommendation_wins",
			opinion:    &domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.95, ScoreRecommendation: intPtr(12)},
			wantStatus: domain.StatusCorrect,
			wantPoints: 12,
		},
		{
			name:       "recommendation_clamped",
			opinion:    &domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 3, ScoreRecommendation: intPtr(40)},
			wantStatus: domain.StatusCorrect,
			wantPoints: 25,
		},
		{
			name:       "uncertain",
			opinion:    &domain.AdvisoryOpinion{Confidence: 0.6},
			wantStatus: domain.StatusWarning,
			wantPoints: 7,
			wantText:   "⚠️ Нестандартное назначение",
		},
		{
			name:       "uncertain_with_recommendation",
			opinion:    &domain.AdvisoryOpinion{Confidence: 0.6, ScoreRecommendation: intPtr(-3)},
			wantStatus: domain.StatusWarning,
			wantPoints: 0,
		},
		{
			name:       "contraindicated",
			opinion:    &domain.AdvisoryOpinion{IsContraindicated: true, IsAppropriate: true, Confidence: 0.9, Explanation: "токсичность"},
			wantStatus: domain.StatusCritical,
			wantPoints: 0,
			wantText:   "❌ ПРОТИВОПОКАЗАН: токсичность",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(nil)
			e.advisory.On("AssessTreatment", mock.Anything, forTreatment("иринотекан")).Return(tt.opinion, nil).Once()

			result := e.evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"иринотекан"}, ""), nil, "colorectal", nil)

			require.Len(t, result.Findings, 1)
			f := result.Findings[0]
			assert.Equal(t, domain.SourceAdvisory, f.Source)
			assert.Equal(t, domain.MatchNone, f.MatchKind)
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Equal(t, tt.wantPoints, f.Points)
			assert.Equal(t, tt.wantPoints, result.Score)
			assert.Equal(t, 25, result.MaxScore)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, f.Comment)
			}
			require.NotNil(t, f.Confidence)
			assert.GreaterOrEqual(t, *f.Confidence, 0.0)
			assert.LessOrEqual(t, *f.Confidence, 1.0)
			e.advisory.AssertExpectations(t)
		})
	}
}

func TestLineEvaluator_AdvisoryRequestShape(t *testing.T) {
	e := newEngine(nil)
	biomarkers := domain.Biomarkers{"msi_high": true}
	e.advisory.On("AssessTreatment", mock.Anything, mock.MatchedBy(func(req *domain.AdvisoryRequest) bool {
		return req.CancerType == "colorectal" && req.Treatment == "пембролизумаб" && req.Biomarkers.Has("msi_high")
	})).Return(&domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.9}, nil).Once()

	e.evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"пембролизумаб"}, ""), nil, "colorectal", biomarkers)

	e.advisory.AssertExpectations(t)
}

func TestLineEvaluator_AdvisoryFailOpen(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		e := newEngine(nil)
		e.advisory.On("AssessTreatment", mock.Anything, mock.Anything).Return(nil, errors.New("malformed response")).Once()

		result := e.evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"иринотекан"}, ""), nil, "colorectal", nil)

		require.Len(t, result.Findings, 1)
		f := result.Findings[0]
		assert.Equal(t, domain.StatusCorrect, f.Status)
		assert.Equal(t, 20, f.Points)
		assert.Equal(t, "✅ Оценка по умолчанию", f.Comment)
		require.NotNil(t, f.Confidence)
		assert.Equal(t, 0.5, *f.Confidence)

		entry := e.hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "Advisory assessment failed, using default opinion", entry.Message)
		assert.Equal(t, "иринотекан", entry.Data["treatment"])
	})

	t.Run("nil_opinion", func(t *testing.T) {
		e := newEngine(nil)
		e.advisory.On("AssessTreatment", mock.Anything, mock.Anything).Return(nil, nil).Once()

		result := e.evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"иринотекан"}, ""), nil, "colorectal", nil)

		assert.Equal(t, 20, result.Score)
		require.NotEmpty(t, e.hook.AllEntries())
	})

	t.Run("no_advisory_configured", func(t *testing.T) {
		logger, _ := newTestLogger()
		matcher := NewProtocolMatcher(logger, nil, DefaultMatchWeights(), nil)
		evaluator := NewLineEvaluator(logger, matcher, nil, DefaultEvaluatorConfig())

		result := evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"иринотекан", "оксалиплатин"}, ""), nil, "colorectal", nil)

		assert.Equal(t, 40, result.Score)
		assert.Equal(t, 50, result.MaxScore)
	})
}

func TestLineEvaluator_RuleContraindicationSkipsAdvisory(t *testing.T) {
	e := newEngine(nil)

	result := e.evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, []string{"трастузумаб"}, ""), nil, "stomach", domain.Biomarkers{"her2_negative": true})

	require.Len(t, result.Findings, 1)
	f := result.Findings[0]
	assert.Equal(t, domain.StatusCritical, f.Status)
	assert.Equal(t, 0, f.Points)
	assert.Equal(t, "❌ ПРОТИВОПОКАЗАН: анти-HER2 терапия при HER2-негативном статусе", f.Comment)
	assert.Nil(t, f.Confidence)
	e.advisory.AssertNotCalled(t, "AssessTreatment", mock.Anything, mock.Anything)
}

func TestLineEvaluator_ConcurrentAdvisoryKeepsOrder(t *testing.T) {
	logger, _ := newTestLogger()
	advisory := new(MockAdvisory)
	matcher := NewProtocolMatcher(logger, nil, DefaultMatchWeights(), nil)
	cfg := DefaultEvaluatorConfig()
	cfg.Concurrency = 4
	evaluator := NewLineEvaluator(logger, matcher, advisory, cfg)

	drugList := []string{"иринотекан", "оксалиплатин", "фторурацил", "бевацизумаб", "цетуксимаб", "лейковорин"}
	for i, d := range drugList {
		advisory.On("AssessTreatment", mock.Anything, forTreatment(d)).
			Return(&domain.AdvisoryOpinion{IsAppropriate: true, Confidence: 0.9, ScoreRecommendation: intPtr(i + 1)}, nil).Once()
	}

	result := evaluator.Evaluate(context.Background(), domain.NewDatedLine(1, drugList, ""), nil, "colorectal", nil)

	require.Len(t, result.Findings, len(drugList))
	for i, f := range result.Findings {
		assert.Equal(t, drugList[i], f.DrugMention)
		assert.Equal(t, i+1, f.Points)
	}
	assert.Equal(t, 21, result.Score)
	advisory.AssertExpectations(t)
}

func TestLineEvaluator_PlannedLine(t *testing.T) {
	e := newEngine(nil)
	protocol := &breastProtocols()["breast"][2]

	result := e.evaluator.Evaluate(context.Background(), domain.NewPlannedLine([]string{"капецитабин"}, ""), protocol, "breast", nil)

	require.Len(t, result.Findings, 1)
	f := result.Findings[0]
	assert.True(t, f.IsPlanned)
	assert.Equal(t, "planned", f.LineLabel)
	assert.Equal(t, 25, f.Points)
}

func TestNewLineEvaluator_InvalidConfigFallsBack(t *testing.T) {
	logger, _ := newTestLogger()
	matcher := NewProtocolMatcher(logger, nil, DefaultMatchWeights(), nil)
	evaluator := NewLineEvaluator(logger, matcher, nil, EvaluatorConfig{FamilyMatchFactor: 4, OutsideProtocolPoints: 90})

	assert.Equal(t, 0.9, evaluator.cfg.FamilyMatchFactor)
	assert.Equal(t, 5, evaluator.cfg.OutsideProtocolPoints)
}
