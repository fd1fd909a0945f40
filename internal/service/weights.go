package service

import (
	"github.com/treatment-compliance-server/internal/domain"
)

// StageWeights scale each line's score before aggregation.
type StageWeights struct {
	FirstLine   float64
	SecondLine  float64
	ThirdLine   float64
	FourthPlus  float64
	Planned     float64
	Adjuvant    float64
	Neoadjuvant float64
	Metastatic  float64
	Unknown     float64
}

// DefaultStageWeights returns the standard weighting table.
func DefaultStageWeights() StageWeights {
	return StageWeights{
		FirstLine:   1.0,
		SecondLine:  0.9,
		ThirdLine:   0.8,
		FourthPlus:  0.7,
		Planned:     0.85,
		Adjuvant:    0.95,
		Neoadjuvant: 0.95,
		Metastatic:  0.8,
		Unknown:     0.8,
	}
}

// StageWeightsFromMap overlays configured weights (keyed first_line, second_line,
// third_line, fourth_plus, planned, adjuvant, neoadjuvant, metastatic, unknown)
// onto the defaults. Non-positive values are ignored.
func StageWeightsFromMap(overrides map[string]float64) StageWeights {
	w := DefaultStageWeights()
	targets := map[string]*float64{
		"first_line":  &w.FirstLine,
		"second_line": &w.SecondLine,
		"third_line":  &w.ThirdLine,
		"fourth_plus": &w.FourthPlus,
		"planned":     &w.Planned,
		"adjuvant":    &w.Adjuvant,
		"neoadjuvant": &w.Neoadjuvant,
		"metastatic":  &w.Metastatic,
		"unknown":     &w.Unknown,
	}
	for key, v := range overrides {
		if dst, ok := targets[key]; ok && v > 0 {
			*dst = v
		}
	}
	return w
}

// For returns the weight of a therapy line. The planned line has its own weight;
// a dated line uses its explicit stage when set, otherwise its number.
func (w StageWeights) For(line domain.TherapyLine) float64 {
	if line.IsPlanned() {
		return w.Planned
	}
	switch line.Stage {
	case domain.StageFirstLine:
		return w.FirstLine
	case domain.StageSecondLine:
		return w.SecondLine
	case domain.StageThirdLine:
		return w.ThirdLine
	case domain.StageAdjuvant:
		return w.Adjuvant
	case domain.StageNeoadjuvant:
		return w.Neoadjuvant
	case domain.StageMetastatic:
		return w.Metastatic
	}
	switch {
	case line.Number == 1:
		return w.FirstLine
	case line.Number == 2:
		return w.SecondLine
	case line.Number == 3:
		return w.ThirdLine
	case line.Number >= 4:
		return w.FourthPlus
	default:
		return w.Unknown
	}
}
