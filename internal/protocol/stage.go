package protocol

import (
	"path/filepath"
	"strings"

	"github.com/treatment-compliance-server/internal/domain"
)

type stageKeywords struct {
	stage    domain.StageTag
	keywords []string
}

// Checked in order. Neoadjuvant precedes adjuvant because every
// "неоадъювант" mention also contains "адъювант".
var stageRules = []stageKeywords{
	{domain.StageFirstLine, []string{"первая линия", "first-line", "first line", "1st", "первой линии"}},
	{domain.StageSecondLine, []string{"вторая линия", "second-line", "second line", "2nd", "второй линии"}},
	{domain.StageThirdLine, []string{"третья линия", "third-line", "third line", "3rd", "третьей линии"}},
	{domain.StageNeoadjuvant, []string{"неоадъювант", "neoadjuvant"}},
	{domain.StageAdjuvant, []string{"адъювант", "adjuvant"}},
	{domain.StageMetastatic, []string{"метастатич", "metastatic"}},
}

// DetectStage infers the therapy stage a free-text condition or protocol name refers to.
func DetectStage(text string) domain.StageTag {
	t := strings.ToLower(text)
	for _, rule := range stageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.stage
			}
		}
	}
	return domain.StageUnknown
}

// cancerTypeAliases maps guideline file stems to canonical cancer types.
var cancerTypeAliases = map[string]string{
	"adrenal_cancer":           "adrenal",
	"anal_cancer":              "anal",
	"bladder_cancer":           "bladder",
	"bone_sarcoma":             "bone_sarcoma",
	"bone_sarcoma_parsed":      "bone_sarcoma",
	"brain_metastasis":         "brain",
	"breast_cancer":            "breast",
	"cancer_unknown_primary":   "cancer_unknown_primary",
	"cervical_cancer":          "cervical",
	"cervical_cancer_neck":     "cervical",
	"cns_tumors":               "brain",
	"colon_cancer":             "colon",
	"esophageal_cancer":        "esophageal",
	"germ_cell_male":           "testicular",
	"gist":                     "gist",
	"gist_parsed":              "gist",
	"head_neck_cancer":         "head_neck",
	"hypopharynx_cancer":       "hypopharynx",
	"kidney_cancer":            "kidney",
	"kidney_parenchyma_cancer": "kidney",
	"laryngeal_cancer":         "laryngeal",
	"lip_cancer":               "lip",
	"liver_cancer":             "liver",
	"lung_cancer":              "lung",
	"lymphoid_cancer":          "lymphoma",
	"mediastinal_tumors":       "mediastinal_tumors",
	"melanoma":                 "melanoma",
	"merkel_cell_carcinoma":    "merkel_cell",
	"mesothelioma":             "mesothelioma",
	"nasal_cancer":             "nasal",
	"nasopharyngeal_cancer":    "nasopharyngeal",
	"oral_cavity_cancer":       "oral_cavity",
	"oropharynx_cancer":        "oropharynx",
	"ovarian_borderline":       "ovarian",
	"ovarian_cancer":           "ovarian",
	"ovarian_nonepithelial":    "ovarian",
	"pancreatic_cancer":        "pancreatic",
	"penile_cancer":            "penile",
	"prostate_cancer":          "prostate",
	"rectal_cancer":            "rectal",
	"retroperitoneal_sarcoma":  "retroperitoneal_sarcoma",
	"salivary_glands_cancer":   "salivary_glands",
	"skin_bcc":                 "skin_bcc",
	"skin_scc":                 "skin_scc",
	"soft_tissue_sarcoma":      "soft_tissue_sarcoma",
	"stomach_cancer":           "stomach",
	"testicular_cancer":        "testicular",
	"thyroid_cancer":           "thyroid",
	"thyroid_diff_cancer":      "thyroid",
	"uterine_cancer":           "uterine",
}

// MapCancerType turns a guideline file name (or bare key) into its canonical
// cancer type. The file suffix is stripped and the alias lookup ignores case;
// unmapped keys are returned as written.
func MapCancerType(filename string) string {
	if strings.TrimSpace(filename) == "" {
		return ""
	}
	key := strings.TrimSpace(filepath.Base(filename))
	for _, suffix := range []string{"_parsed.json", ".json"} {
		if strings.HasSuffix(strings.ToLower(key), suffix) {
			key = key[:len(key)-len(suffix)]
		}
	}
	if mapped, ok := cancerTypeAliases[strings.ToLower(key)]; ok {
		return mapped
	}
	return key
}
