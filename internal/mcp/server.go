// Package mcp exposes the compliance scoring engine as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/audit"
	"github.com/treatment-compliance-server/internal/domain"
)

// ServerName and ServerVersion identify the server to MCP clients.
const (
	ServerName    = "treatment-compliance-mcp-server"
	ServerVersion = "v0.1.0"
)

// Catalog is the read side of the protocol index.
type Catalog interface {
	ProtocolsFor(cancerType string) []domain.ProtocolRecord
	CancerTypes() []string
}

// DrugMatcher checks drug mentions against protocol medications.
type DrugMatcher interface {
	Match(mention, protocolDrug string) (bool, domain.MatchKind)
	FamiliesOf(mention string) []string
}

// Dependencies are the collaborators the tools are wired to. Audit is optional;
// without it assessments are not recorded and the audit tools are not registered.
type Dependencies struct {
	Scorer    domain.ComplianceScorer
	Catalog   Catalog
	Drugs     DrugMatcher
	Audit     audit.Store
	ExportDir string
}

// Server represents the treatment compliance MCP server
type Server struct {
	mcpServer *mcp.Server
	deps      Dependencies
	logger    *logrus.Logger
	closers   []func() error
}

// NewServer creates the MCP server and registers its tools.
func NewServer(logger *logrus.Logger, deps Dependencies) (*Server, error) {
	if deps.Scorer == nil || deps.Catalog == nil || deps.Drugs == nil {
		return nil, errors.New("mcp: scorer, catalog and drug matcher are required")
	}

	serverInfo := &mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}

	server := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		deps:      deps,
		logger:    logger,
	}

	if err := server.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return server, nil
}

// registerTools registers the scoring, lookup and audit tools.
func (s *Server) registerTools() error {
	s.logger.Info("Registering MCP tools...")

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolScoreTreatment,
		Description: "Score how well a patient's treatment history complies with the clinical guideline protocols for the cancer type. Returns a 0-100 score, per-drug findings and the score provenance.",
	}, s.handleScoreTreatment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListProtocols,
		Description: "List the guideline protocols indexed for a cancer type, or the known cancer types when none is given.",
	}, s.handleListProtocols)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolMatchDrugs,
		Description: "Check whether a prescribed drug mention (trade name, synonym or class) is equivalent to a protocol medication.",
	}, s.handleMatchDrugs)

	registered := 3
	if s.deps.Audit != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        ToolReviewAssessment,
			Description: "Record a clinician's review of a previously scored assessment: agreement, corrected score and notes.",
		}, s.handleReviewAssessment)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        ToolExportAssessments,
			Description: "Export all recorded assessments with their reviews to a JSON file.",
		}, s.handleExportAssessments)
		registered += 2
	}

	s.logger.WithField("tool_count", registered).Info("Successfully registered all tools")
	return nil
}

// Start runs the server over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting treatment compliance MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the audit store and any resources registered by the builder.
func (s *Server) Close() error {
	var errs []error
	if s.deps.Audit != nil {
		if err := s.deps.Audit.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close audit store")
			errs = append(errs, err)
		}
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
