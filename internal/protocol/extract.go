package protocol

import (
	"strings"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
)

// GuidelineSource is the attribution recorded on every extracted protocol.
const GuidelineSource = "Минздрав РФ"

// RecommendationProtocolName names protocols recovered from free-text bullets.
const RecommendationProtocolName = "Клиническая рекомендация"

const conditionPreviewRunes = 100

// Extractor turns one document schema into normalized protocol records.
type Extractor interface {
	Name() string
	Extract(doc *GuidelineDocument, cancerType string) []domain.ProtocolRecord
}

// StructuredExtractor reads the explicit treatment_protocols section.
type StructuredExtractor struct{}

// Name implements Extractor.
func (StructuredExtractor) Name() string { return "structured" }

// Extract implements Extractor.
func (StructuredExtractor) Extract(doc *GuidelineDocument, cancerType string) []domain.ProtocolRecord {
	var out []domain.ProtocolRecord
	for _, p := range doc.Protocols {
		meds := cleanList(p.Medications)
		if len(meds) == 0 {
			continue
		}
		stage := explicitStage(p.Stage)
		if stage == domain.StageUnknown {
			stage = DetectStage(p.Condition + " " + p.Name)
		}
		out = append(out, domain.ProtocolRecord{
			Name:           strings.TrimSpace(p.Name),
			Condition:      strings.TrimSpace(p.Condition),
			Stage:          stage,
			Medications:    meds,
			TreatmentSteps: cleanList(p.TreatmentSteps),
			Source:         GuidelineSource,
			CancerType:     cancerType,
			Document:       doc.Info.Title,
		})
	}
	return out
}

// RecommendationExtractor scans free-text recommendation bullets for known drug names.
type RecommendationExtractor struct {
	Resolver *drugs.Resolver
}

// Name implements Extractor.
func (RecommendationExtractor) Name() string { return "recommendation" }

// Extract implements Extractor.
func (e RecommendationExtractor) Extract(doc *GuidelineDocument, cancerType string) []domain.ProtocolRecord {
	resolver := e.Resolver
	if resolver == nil {
		resolver = drugs.NewResolver(nil)
	}
	var out []domain.ProtocolRecord
	for _, bullet := range doc.Recommendations.Bullets() {
		found := resolver.FindKnown(bullet)
		if len(found) == 0 {
			continue
		}
		out = append(out, domain.ProtocolRecord{
			Name:        RecommendationProtocolName,
			Condition:   truncateRunes(bullet, conditionPreviewRunes),
			Stage:       DetectStage(bullet),
			Medications: found,
			Source:      GuidelineSource,
			CancerType:  cancerType,
			Document:    doc.Info.Title,
		})
	}
	return out
}

// DefaultExtractors returns the structured extractor followed by the recommendation scanner.
func DefaultExtractors(resolver *drugs.Resolver) []Extractor {
	return []Extractor{
		StructuredExtractor{},
		RecommendationExtractor{Resolver: resolver},
	}
}

func explicitStage(value string) domain.StageTag {
	tag, err := domain.ParseStageTag(value)
	if err != nil {
		return domain.StageUnknown
	}
	return tag
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
