// Package domain contains the core entities of the treatment compliance engine:
// clinical protocols drawn from guideline documents, the therapy lines a patient
// received, and the per-drug findings and scores produced when the two are compared.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StageTag is the therapy stage a protocol is written for.
type StageTag string

const (
	StageFirstLine   StageTag = "first_line"
	StageSecondLine  StageTag = "second_line"
	StageThirdLine   StageTag = "third_line"
	StageAdjuvant    StageTag = "adjuvant"
	StageNeoadjuvant StageTag = "neoadjuvant"
	StageMetastatic  StageTag = "metastatic"
	StageUnknown     StageTag = "unknown"
)

// MatchKind describes how a prescribed drug matched a protocol medication.
type MatchKind string

const (
	MatchExact  MatchKind = "exact"
	MatchFamily MatchKind = "family"
	MatchNone   MatchKind = "none"
)

// FindingStatus is the clinical verdict attached to a single drug.
type FindingStatus string

const (
	StatusCorrect  FindingStatus = "correct"
	StatusWarning  FindingStatus = "warning"
	StatusCritical FindingStatus = "critical"
)

// FindingSource records which tier produced a finding.
type FindingSource string

const (
	SourceProtocol FindingSource = "protocol"
	SourceAdvisory FindingSource = "advisory"
)

// Provenance labels where a final score came from.
type Provenance string

const (
	ProvenanceKnowledgeBase Provenance = "minzdrav_db"
	ProvenanceMixed         Provenance = "mixed"
	ProvenanceAIOnly        Provenance = "ai_only"
	ProvenanceAIFallback    Provenance = "ai_fallback"
)

// Validation errors for engine inputs
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidStage        = errors.New("invalid therapy stage")
	ErrInvalidProvenance   = errors.New("invalid provenance")
	ErrAdvisoryUnavailable = errors.New("advisory service unavailable")
	ErrEmptyResponse       = errors.New("empty advisory response")
)

// IsValid reports whether s is one of the known stage tags.
func (s StageTag) IsValid() bool {
	switch s {
	case StageFirstLine, StageSecondLine, StageThirdLine,
		StageAdjuvant, StageNeoadjuvant, StageMetastatic, StageUnknown:
		return true
	default:
		return false
	}
}

func (s StageTag) String() string {
	return string(s)
}

// ParseStageTag converts free-form input into a StageTag.
// Empty input yields StageUnknown without error.
func ParseStageTag(value string) (StageTag, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return StageUnknown, nil
	}
	v = strings.ReplaceAll(v, "-", "_")
	tag := StageTag(v)
	if !tag.IsValid() {
		return StageUnknown, fmt.Errorf("%w: %q", ErrInvalidStage, value)
	}
	return tag, nil
}

func (m MatchKind) String() string {
	return string(m)
}

// IsValid reports whether the status is one of correct, warning or critical.
func (s FindingStatus) IsValid() bool {
	switch s {
	case StatusCorrect, StatusWarning, StatusCritical:
		return true
	default:
		return false
	}
}

func (s FindingStatus) String() string {
	return string(s)
}

// IsValid reports whether p is a known provenance label.
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceKnowledgeBase, ProvenanceMixed, ProvenanceAIOnly, ProvenanceAIFallback:
		return true
	default:
		return false
	}
}

func (p Provenance) String() string {
	return string(p)
}

// UsesAdvisory reports whether any part of the score came from the advisory service.
// Such results should be verified manually by a clinician.
func (p Provenance) UsesAdvisory() bool {
	return p != ProvenanceKnowledgeBase
}

// Biomarkers maps a biomarker key (her2_negative, triple_negative, egfr_mutated, ...)
// to whether it was observed.
type Biomarkers map[string]bool

// Has reports whether the biomarker key is present and true.
func (b Biomarkers) Has(key string) bool {
	if b == nil {
		return false
	}
	return b[key]
}

// Active returns the sorted keys of all true biomarkers.
func (b Biomarkers) Active() []string {
	keys := make([]string, 0, len(b))
	for k, v := range b {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
