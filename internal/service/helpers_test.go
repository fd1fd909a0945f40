package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
	"github.com/treatment-compliance-server/internal/protocol"
)

// MockAdvisory is a mock implementation of the AdvisoryFallback interface
type MockAdvisory struct {
	mock.Mock
}

func (m *MockAdvisory) AssessTreatment(ctx context.Context, req *domain.AdvisoryRequest) (*domain.AdvisoryOpinion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdvisoryOpinion), args.Error(1)
}

func forTreatment(drug string) interface{} {
	return mock.MatchedBy(func(req *domain.AdvisoryRequest) bool {
		return req != nil && req.Treatment == drug
	})
}

func intPtr(v int) *int { return &v }

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

type engine struct {
	scorer    *ComplianceScorer
	matcher   *ProtocolMatcher
	evaluator *LineEvaluator
	advisory  *MockAdvisory
	hook      *test.Hook
}

func newEngine(protocols map[string][]domain.ProtocolRecord) *engine {
	logger, hook := newTestLogger()
	advisory := new(MockAdvisory)
	matcher := NewProtocolMatcher(logger, drugs.NewResolver(nil), DefaultMatchWeights(), nil)
	evaluator := NewLineEvaluator(logger, matcher, advisory, DefaultEvaluatorConfig())
	scorer := NewComplianceScorer(logger, protocol.NewIndex(protocols), matcher, evaluator, DefaultStageWeights())
	return &engine{
		scorer:    scorer,
		matcher:   matcher,
		evaluator: evaluator,
		advisory:  advisory,
		hook:      hook,
	}
}

func breastProtocols() map[string][]domain.ProtocolRecord {
	return map[string][]domain.ProtocolRecord{
		"breast": {
			{Name: "PCb", Stage: domain.StageFirstLine, Medications: []string{"паклитаксел", "карбоплатин"}, Source: protocol.GuidelineSource},
			{Name: "TH", Stage: domain.StageSecondLine, Medications: []string{"трастузумаб", "доцетаксел"}, Source: protocol.GuidelineSource},
			{Name: "Capecitabine", Stage: domain.StageMetastatic, Medications: []string{"капецитабин"}, Source: protocol.GuidelineSource},
		},
	}
}
