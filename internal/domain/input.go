package domain

import (
	"fmt"
	"strings"
)

// LineInput is one therapy line as submitted by API and tool callers.
// An omitted line number means the first line.
type LineInput struct {
	Line       *int     `json:"line,omitempty"`
	Treatments []string `json:"treatments"`
	Response   string   `json:"response,omitempty"`
	Stage      string   `json:"stage,omitempty"`
}

// PlannedInput is the planned line as submitted by callers.
type PlannedInput struct {
	Treatments []string `json:"treatments"`
	Response   string   `json:"response,omitempty"`
}

// TreatmentLinesInput is the wire shape of a treatment history.
type TreatmentLinesInput struct {
	Lines   []LineInput   `json:"lines"`
	Planned *PlannedInput `json:"planned,omitempty"`
}

// ScoreInput is the wire shape of a scoring call.
type ScoreInput struct {
	CancerType     string              `json:"cancer_type"`
	TreatmentLines TreatmentLinesInput `json:"treatment_lines"`
	Biomarkers     Biomarkers          `json:"biomarkers"`
}

// ToRequest converts wire input into a validated ScoreRequest.
func (in *ScoreInput) ToRequest() (*ScoreRequest, error) {
	if in == nil {
		return nil, NewValidationError("request", "request is required", nil)
	}

	req := &ScoreRequest{
		CancerType: strings.TrimSpace(in.CancerType),
		Biomarkers: in.Biomarkers,
	}
	for i, l := range in.TreatmentLines.Lines {
		number := 1
		if l.Line != nil {
			number = *l.Line
		}
		line := NewDatedLine(number, l.Treatments, l.Response)
		if strings.TrimSpace(l.Stage) != "" {
			stage, err := ParseStageTag(l.Stage)
			if err != nil {
				return nil, NewValidationError(fmt.Sprintf("treatment_lines.lines[%d].stage", i), err.Error(), l.Stage)
			}
			line.Stage = stage
		}
		req.History.Lines = append(req.History.Lines, line)
	}
	if p := in.TreatmentLines.Planned; p != nil {
		planned := NewPlannedLine(p.Treatments, p.Response)
		req.History.Planned = &planned
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
