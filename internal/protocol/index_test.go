package protocol

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
)

const breastDoc = `{
  "document_info": {"title": "Рак молочной железы"},
  "treatment_protocols": [
    {
      "protocol_name": "Паклитаксел + карбоплатин",
      "condition": "Первая линия при метастатическом раке",
      "medications": ["паклитаксел", "карбоплатин"],
      "treatment_steps": ["каждые 21 день"]
    },
    {
      "protocol_name": "Без препаратов",
      "condition": "Наблюдение",
      "medications": []
    },
    {
      "protocol_name": "T-DXd",
      "condition": "HER2-positive",
      "stage": "second_line",
      "medications": ["трастузумаб дерукстекан"]
    }
  ],
  "clinical_recommendations": {
    "specific": [
      "Рекомендуется адъювантная терапия доцетаксел + циклофосфамид",
      "Динамическое наблюдение",
      {"nested": "ignored"}
    ]
  }
}`

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func TestBuild_ExtractsStructuredAndRecommendationProtocols(t *testing.T) {
	logger, _ := newTestLogger()
	src := StaticSource{{Name: "breast_cancer_parsed.json", Body: []byte(breastDoc)}}

	idx, err := Build(context.Background(), src, BuildOptions{Resolver: drugs.NewResolver(nil), Logger: logger})
	require.NoError(t, err)

	records := idx.ProtocolsFor("breast")
	require.Len(t, records, 3, "empty-medication protocol must be discarded")

	assert.Equal(t, "Паклитаксел + карбоплатин", records[0].Name)
	assert.Equal(t, domain.StageFirstLine, records[0].Stage)
	assert.Equal(t, []string{"паклитаксел", "карбоплатин"}, records[0].Medications)
	assert.Equal(t, GuidelineSource, records[0].Source)
	assert.Equal(t, "Рак молочной железы", records[0].Document)
	assert.Equal(t, "breast", records[0].CancerType)

	assert.Equal(t, domain.StageSecondLine, records[1].Stage, "explicit stage wins over detection")

	assert.Equal(t, RecommendationProtocolName, records[2].Name)
	assert.Equal(t, domain.StageAdjuvant, records[2].Stage)
	assert.Equal(t, []string{"доцетаксел", "циклофосфамид"}, records[2].Medications)

	stats := idx.Stats()
	assert.Equal(t, 1, stats.DocumentsLoaded)
	assert.Equal(t, 0, stats.DocumentsSkipped)
	assert.Equal(t, 3, stats.Protocols)
	assert.Equal(t, []string{"breast"}, idx.CancerTypes())
}

func TestBuild_SkipsMalformedDocuments(t *testing.T) {
	logger, hook := newTestLogger()
	src := StaticSource{
		{Name: "lung_cancer.json", Body: []byte(`{"treatment_protocols": [`)},
		{Name: "colon_cancer.json", Err: errors.New("permission denied")},
		{Name: "breast_cancer.json", Body: []byte(breastDoc)},
	}

	idx, err := Build(context.Background(), src, BuildOptions{Logger: logger})
	require.NoError(t, err)

	assert.Empty(t, idx.ProtocolsFor("lung"))
	assert.NotEmpty(t, idx.ProtocolsFor("breast"))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.DocumentsLoaded)
	assert.Equal(t, 2, stats.DocumentsSkipped)
	assert.Equal(t, []string{"lung_cancer.json", "colon_cancer.json"}, stats.SkippedFiles)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestBuild_MergesDocumentsMappedToSameType(t *testing.T) {
	logger, _ := newTestLogger()
	doc := func(drug string) []byte {
		return []byte(`{"treatment_protocols":[{"protocol_name":"p","condition":"","medications":["` + drug + `"]}]}`)
	}
	src := StaticSource{
		{Name: "brain_metastasis_parsed.json", Body: doc("темозоломид")},
		{Name: "cns_tumors_parsed.json", Body: doc("бевацизумаб")},
	}

	idx, err := Build(context.Background(), src, BuildOptions{Logger: logger})
	require.NoError(t, err)

	records := idx.ProtocolsFor("brain")
	require.Len(t, records, 2)
	assert.Equal(t, []string{"темозоломид"}, records[0].Medications)
	assert.Equal(t, []string{"бевацизумаб"}, records[1].Medications)
}

func TestBuild_UnmappedTypesAreCaseInsensitive(t *testing.T) {
	logger, _ := newTestLogger()
	src := StaticSource{
		{Name: "Rare_Tumor_parsed.json", Body: []byte(`{"treatment_protocols":[{"protocol_name":"p","condition":"","medications":["темозоломид"]}]}`)},
	}

	idx, err := Build(context.Background(), src, BuildOptions{Logger: logger})
	require.NoError(t, err)

	assert.Equal(t, []string{"rare_tumor"}, idx.CancerTypes())
	assert.Len(t, idx.ProtocolsFor("Rare_Tumor"), 1)
	assert.Len(t, idx.ProtocolsFor("rare_tumor"), 1)
}

func TestBuild_DirectorySource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stomach_cancer_parsed.json"), []byte(`{
	  "treatment_protocols": [{"protocol_name": "XELOX", "condition": "adjuvant", "medications": ["капецитабин", "оксалиплатин"]}]
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	logger, _ := newTestLogger()
	idx, err := Build(context.Background(), NewDirectorySource(dir), BuildOptions{Logger: logger})
	require.NoError(t, err)

	records := idx.ProtocolsFor("stomach")
	require.Len(t, records, 1)
	assert.Equal(t, "XELOX", records[0].Name)
	assert.Equal(t, domain.StageAdjuvant, records[0].Stage)
}

func TestBuild_MissingDirectoryYieldsEmptyIndex(t *testing.T) {
	logger, hook := newTestLogger()

	idx, err := Build(context.Background(), NewDirectorySource(filepath.Join(t.TempDir(), "absent")), BuildOptions{Logger: logger})
	require.NoError(t, err)

	assert.Empty(t, idx.CancerTypes())
	assert.Empty(t, idx.ProtocolsFor("breast"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

type failingSource struct{}

func (failingSource) Documents(ctx context.Context) ([]RawDocument, error) {
	return nil, errors.New("connection refused")
}

func TestBuild_SourceFailure(t *testing.T) {
	logger, _ := newTestLogger()

	_, err := Build(context.Background(), failingSource{}, BuildOptions{Logger: logger})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIndex_ProtocolsForReturnsCopy(t *testing.T) {
	idx := NewIndex(map[string][]domain.ProtocolRecord{
		"breast": {{Name: "AC", Medications: []string{"доксорубицин", "циклофосфамид"}}},
		"empty":  {{Name: "none"}},
	})

	first := idx.ProtocolsFor("breast")
	first[0].Medications[0] = "mutated"
	first[0].Name = "mutated"

	second := idx.ProtocolsFor("Breast")
	assert.Equal(t, "AC", second[0].Name)
	assert.Equal(t, "доксорубицин", second[0].Medications[0])

	assert.Equal(t, []string{"breast"}, idx.CancerTypes(), "types without usable protocols are omitted")
	assert.NotNil(t, idx.ProtocolsFor("unknown"))
	assert.Empty(t, idx.ProtocolsFor("unknown"))
	assert.Equal(t, idx.ProtocolsFor("breast"), idx.ProtocolsFor("breast_cancer"))
}
