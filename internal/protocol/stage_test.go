package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treatment-compliance-server/internal/domain"
)

func TestDetectStage(t *testing.T) {
	tests := []struct {
		text string
		want domain.StageTag
	}{
		{"Первая линия терапии", domain.StageFirstLine},
		{"first-line metastatic", domain.StageFirstLine},
		{"терапия второй линии", domain.StageSecondLine},
		{"3rd line", domain.StageThirdLine},
		{"Неоадъювантная химиотерапия", domain.StageNeoadjuvant},
		{"neoadjuvant setting", domain.StageNeoadjuvant},
		{"Адъювантная терапия", domain.StageAdjuvant},
		{"adjuvant", domain.StageAdjuvant},
		{"метастатический процесс", domain.StageMetastatic},
		{"поддерживающая терапия", domain.StageUnknown},
		{"", domain.StageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStage(tt.text))
		})
	}
}

func TestMapCancerType(t *testing.T) {
	tests := map[string]string{
		"breast_cancer_parsed.json":   "breast",
		"breast_cancer.json":          "breast",
		"data/cns_tumors_parsed.json": "brain",
		"germ_cell_male_parsed.json":  "testicular",
		"lymphoid_cancer":             "lymphoma",
		"thyroid_diff_cancer.json":    "thyroid",
		"ovarian_borderline.json":     "ovarian",
		"Stomach_Cancer.json":         "stomach",
		"rare_tumor_parsed.json":      "rare_tumor",
		"Rare_Tumor_parsed.json":      "Rare_Tumor",
		"GIST.JSON":                   "gist",
		"melanoma":                    "melanoma",
		"":                            "",
	}

	for input, want := range tests {
		assert.Equal(t, want, MapCancerType(input), input)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "абв", truncateRunes("абвгд", 3))
	assert.Equal(t, "аб", truncateRunes("аб", 3))
}
