package domain

import (
	"context"
)

// ProtocolIndex provides read-only access to the protocols known for each cancer type.
// Implementations are built once and are safe for concurrent reads.
type ProtocolIndex interface {
	ProtocolsFor(cancerType string) []ProtocolRecord
	CancerTypes() []string
}

// DrugResolver decides whether a prescribed drug mention corresponds to a protocol medication.
type DrugResolver interface {
	Match(mention, protocolDrug string) (bool, MatchKind)
	FamiliesOf(mention string) []string
}

// AdvisoryFallback is the external service consulted when no protocol matches a line.
// Errors are recovered by the caller; implementations need not fail open themselves.
type AdvisoryFallback interface {
	AssessTreatment(ctx context.Context, req *AdvisoryRequest) (*AdvisoryOpinion, error)
}

// ComplianceScorer computes the compliance score of a treatment history.
type ComplianceScorer interface {
	ScoreFor(ctx context.Context, req *ScoreRequest) *ScoreResult
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetAdvisoryConfig() *AdvisoryConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
