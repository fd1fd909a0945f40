// Package protocol builds the read-only index of clinical protocols extracted
// from guideline documents, keyed by canonical cancer type.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GuidelineDocument is the parsed shape of one guideline JSON document.
type GuidelineDocument struct {
	Info            DocumentInfo            `json:"document_info"`
	Protocols       []ProtocolEntry         `json:"treatment_protocols"`
	Recommendations ClinicalRecommendations `json:"clinical_recommendations"`
}

// DocumentInfo carries document metadata.
type DocumentInfo struct {
	Title string `json:"title"`
}

// ProtocolEntry is a structured treatment protocol as written in the document.
type ProtocolEntry struct {
	Name           string   `json:"protocol_name"`
	Condition      string   `json:"condition"`
	Stage          string   `json:"stage"`
	Medications    []string `json:"medications"`
	TreatmentSteps []string `json:"treatment_steps"`
}

// ClinicalRecommendations holds free-text recommendation bullets.
// Non-string bullets are tolerated and ignored.
type ClinicalRecommendations struct {
	Specific []json.RawMessage `json:"specific"`
}

// Bullets returns the string-valued recommendation bullets in document order.
func (c ClinicalRecommendations) Bullets() []string {
	out := make([]string, 0, len(c.Specific))
	for _, raw := range c.Specific {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseDocument decodes a guideline document.
func ParseDocument(data []byte) (*GuidelineDocument, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var doc GuidelineDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding guideline document: %w", err)
	}
	return &doc, nil
}
