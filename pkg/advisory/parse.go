package advisory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/treatment-compliance-server/internal/domain"
)

// rawOpinion tolerates the loose typing models produce for numeric fields.
type rawOpinion struct {
	IsAppropriate       bool         `json:"is_appropriate"`
	IsContraindicated   bool         `json:"is_contraindicated"`
	Explanation         string       `json:"explanation"`
	Confidence          *json.Number `json:"confidence"`
	ScoreRecommendation *json.Number `json:"score_recommendation"`
}

// ParseOpinion decodes a model reply into a normalized opinion.
// Markdown code fences around the JSON are stripped first.
func ParseOpinion(content string) (*domain.AdvisoryOpinion, error) {
	clean := stripCodeFences(content)
	if clean == "" {
		return nil, domain.ErrEmptyResponse
	}

	var raw rawOpinion
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode advisory response: %w", err)
	}

	opinion := &domain.AdvisoryOpinion{
		IsAppropriate:     raw.IsAppropriate,
		IsContraindicated: raw.IsContraindicated,
		Explanation:       strings.TrimSpace(raw.Explanation),
		Confidence:        0.5,
	}
	if raw.Confidence != nil {
		c, err := raw.Confidence.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid confidence %q: %w", raw.Confidence.String(), err)
		}
		opinion.Confidence = c
	}
	if raw.ScoreRecommendation != nil {
		f, err := raw.ScoreRecommendation.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid score_recommendation %q: %w", raw.ScoreRecommendation.String(), err)
		}
		v := int(f)
		opinion.ScoreRecommendation = &v
	}

	opinion.Normalize()
	return opinion, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
