package domain

import (
	"fmt"
	"strings"
)

// PlannedLineSentinel is the legacy line number callers used for "planned" therapy.
const PlannedLineSentinel = 99

// PerDrugMaxPoints is the most a single drug can contribute to a line score.
const PerDrugMaxPoints = 25

// ProtocolRecord is a reference drug combination extracted from a guideline document.
// Records are owned by the protocol index and must not be modified after loading.
type ProtocolRecord struct {
	Name           string   `json:"name"`
	Condition      string   `json:"condition"`
	Stage          StageTag `json:"stage"`
	Medications    []string `json:"medications"`
	TreatmentSteps []string `json:"treatment_steps,omitempty"`
	Source         string   `json:"source"`
	CancerType     string   `json:"cancer_type"`
	Document       string   `json:"document,omitempty"`
}

// DisplayName returns the protocol name, falling back to its source for unnamed entries.
func (p *ProtocolRecord) DisplayName() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	if p.Source != "" {
		return p.Source
	}
	return "unnamed protocol"
}

// DrugFamily groups the synonyms, brand names and class aliases of one active substance.
type DrugFamily struct {
	Canonical string   `json:"canonical"`
	Synonyms  []string `json:"synonyms"`
}

// LineKind distinguishes historical therapy lines from the planned one.
type LineKind int

const (
	LineKindDated LineKind = iota
	LineKindPlanned
)

func (k LineKind) String() string {
	if k == LineKindPlanned {
		return "planned"
	}
	return "dated"
}

// TherapyLine is one phase of treatment with its own drug combination.
type TherapyLine struct {
	Kind     LineKind `json:"-"`
	Number   int      `json:"line"`
	Drugs    []string `json:"drugs"`
	Response string   `json:"response,omitempty"`
	// Stage optionally pins the line to a therapy stage (e.g. adjuvant);
	// when empty the stage follows from Number.
	Stage StageTag `json:"stage,omitempty"`
}

// NewDatedLine creates a historical therapy line.
func NewDatedLine(number int, drugs []string, response string) TherapyLine {
	return TherapyLine{Kind: LineKindDated, Number: number, Drugs: drugs, Response: response}
}

// NewPlannedLine creates the planned (future) therapy line.
func NewPlannedLine(drugs []string, response string) TherapyLine {
	return TherapyLine{Kind: LineKindPlanned, Drugs: drugs, Response: response}
}

// IsPlanned reports whether the line describes future therapy.
func (l TherapyLine) IsPlanned() bool {
	return l.Kind == LineKindPlanned
}

// HasDrugs reports whether at least one non-blank drug mention is present.
func (l TherapyLine) HasDrugs() bool {
	for _, d := range l.Drugs {
		if strings.TrimSpace(d) != "" {
			return true
		}
	}
	return false
}

// Label is the human-readable line identifier used on findings.
func (l TherapyLine) Label() string {
	if l.IsPlanned() {
		return "planned"
	}
	return fmt.Sprintf("%d", l.Number)
}

// TreatmentHistory is the already-parsed treatment structure supplied by callers.
type TreatmentHistory struct {
	Lines   []TherapyLine `json:"lines"`
	Planned *TherapyLine  `json:"planned,omitempty"`
}

// Normalize converts legacy sentinel-numbered lines into the planned line.
// The first dated line numbered PlannedLineSentinel becomes Planned when Planned is unset;
// further sentinel lines are kept as dated lines.
func (h *TreatmentHistory) Normalize() {
	if h == nil {
		return
	}
	kept := h.Lines[:0:0]
	for _, l := range h.Lines {
		if l.Kind == LineKindDated && l.Number == PlannedLineSentinel && h.Planned == nil {
			planned := NewPlannedLine(l.Drugs, l.Response)
			h.Planned = &planned
			continue
		}
		kept = append(kept, l)
	}
	h.Lines = kept
	if h.Planned != nil {
		h.Planned.Kind = LineKindPlanned
	}
}

// Finding is the verdict on one prescribed drug.
type Finding struct {
	DrugMention  string        `json:"treatment"`
	Status       FindingStatus `json:"status"`
	Comment      string        `json:"comment"`
	Points       int           `json:"score_contributed"`
	Protocol     string        `json:"protocol,omitempty"`
	Source       FindingSource `json:"source"`
	MatchKind    MatchKind     `json:"match_kind,omitempty"`
	Line         int           `json:"line_number,omitempty"`
	LineLabel    string        `json:"line"`
	IsPlanned    bool          `json:"is_planned"`
	LineResponse string        `json:"line_response,omitempty"`
	Confidence   *float64      `json:"ai_confidence,omitempty"`
}

// LineResult is the evaluation of a single therapy line.
type LineResult struct {
	Score    int           `json:"score"`
	MaxScore int           `json:"max_score"`
	Findings []Finding     `json:"findings"`
	Protocol string        `json:"protocol_used,omitempty"`
	Source   FindingSource `json:"source"`
}

// ScoreResult is the terminal output of the scoring engine.
type ScoreResult struct {
	Score                  int        `json:"score"`
	Findings               []Finding  `json:"findings"`
	Provenance             Provenance `json:"source"`
	Message                string     `json:"message"`
	Note                   string     `json:"kb_note,omitempty"`
	AnalyzedLineCount      int        `json:"analyzed_lines"`
	AvailableProtocolCount int        `json:"protocols_available"`
}

// LogFields returns structured logging fields for the audit trail.
func (r *ScoreResult) LogFields() map[string]any {
	critical := 0
	for _, f := range r.Findings {
		if f.Status == StatusCritical {
			critical++
		}
	}
	return map[string]any{
		"score":               r.Score,
		"provenance":          string(r.Provenance),
		"findings":            len(r.Findings),
		"critical_findings":   critical,
		"analyzed_lines":      r.AnalyzedLineCount,
		"protocols_available": r.AvailableProtocolCount,
	}
}

// ScoreRequest bundles the inputs of one scoring call.
type ScoreRequest struct {
	CancerType string           `json:"cancer_type"`
	History    TreatmentHistory `json:"treatment_lines"`
	Biomarkers Biomarkers       `json:"biomarkers"`
}

// Validate checks the request shape. Missing drugs or lines are not errors.
func (r *ScoreRequest) Validate() error {
	if r == nil {
		return NewValidationError("request", "request is required", nil)
	}
	if strings.TrimSpace(r.CancerType) == "" {
		return NewValidationError("cancer_type", "cancer type is required", r.CancerType)
	}
	for i, l := range r.History.Lines {
		if l.Kind == LineKindDated && l.Number < 1 {
			return NewValidationError(fmt.Sprintf("treatment_lines.lines[%d].line", i), "line number must be >= 1", l.Number)
		}
		if l.Stage != "" && !l.Stage.IsValid() {
			return NewValidationError(fmt.Sprintf("treatment_lines.lines[%d].stage", i), "unknown therapy stage", l.Stage)
		}
	}
	return nil
}

// AdvisoryRequest is the question put to the advisory service for one drug.
type AdvisoryRequest struct {
	CancerType string     `json:"cancer_type"`
	Treatment  string     `json:"treatment"`
	Biomarkers Biomarkers `json:"biomarkers"`
}

// AdvisoryOpinion is the advisory service's verdict on one drug.
type AdvisoryOpinion struct {
	IsAppropriate       bool    `json:"is_appropriate"`
	IsContraindicated   bool    `json:"is_contraindicated"`
	Explanation         string  `json:"explanation"`
	Confidence          float64 `json:"confidence"`
	ScoreRecommendation *int    `json:"score_recommendation,omitempty"`
}

// DefaultAdvisoryOpinion is substituted whenever the advisory service fails.
func DefaultAdvisoryOpinion() *AdvisoryOpinion {
	return &AdvisoryOpinion{
		IsAppropriate:     true,
		IsContraindicated: false,
		Explanation:       "Оценка по умолчанию",
		Confidence:        0.5,
	}
}

// Normalize clamps confidence to [0,1] and the score recommendation to [0, PerDrugMaxPoints].
func (o *AdvisoryOpinion) Normalize() {
	if o.Confidence < 0 {
		o.Confidence = 0
	}
	if o.Confidence > 1 {
		o.Confidence = 1
	}
	if o.ScoreRecommendation != nil {
		v := *o.ScoreRecommendation
		if v < 0 {
			v = 0
		}
		if v > PerDrugMaxPoints {
			v = PerDrugMaxPoints
		}
		o.ScoreRecommendation = &v
	}
}
