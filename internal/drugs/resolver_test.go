package drugs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treatment-compliance-server/internal/domain"
)

func TestResolver_Match(t *testing.T) {
	r := NewResolver(DefaultTable())

	tests := []struct {
		name     string
		mention  string
		protocol string
		want     bool
		kind     domain.MatchKind
	}{
		{"identical", "паклитаксел", "паклитаксел", true, domain.MatchExact},
		{"case insensitive", "Паклитаксел", "ПАКЛИТАКСЕЛ", true, domain.MatchExact},
		{"mention contains protocol", "паклитаксел 175 мг/м2", "паклитаксел", true, domain.MatchExact},
		{"protocol contains mention", "карбоплатин", "карбоплатин AUC 5", true, domain.MatchExact},
		{"brand name", "Герцептин", "трастузумаб", true, domain.MatchFamily},
		{"english inn", "osimertinib", "осимертиниб", true, domain.MatchFamily},
		{"class alias", "таксан", "доцетаксел", true, domain.MatchFamily},
		{"platinum alias", "препараты платины", "цисплатин", true, domain.MatchFamily},
		{"yo folding", "тамоксифён", "тамоксифен", true, domain.MatchExact},
		{"different substances", "паклитаксел", "доцетаксел", false, domain.MatchNone},
		{"unrelated", "пембролизумаб", "цисплатин", false, domain.MatchNone},
		{"empty mention", "", "цисплатин", false, domain.MatchNone},
		{"empty protocol", "цисплатин", "   ", false, domain.MatchNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kind := r.Match(tt.mention, tt.protocol)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestResolver_MatchIsSymmetricForFamilies(t *testing.T) {
	r := NewResolver(nil)

	ok1, k1 := r.Match("Кейтруда", "pembrolizumab")
	ok2, k2 := r.Match("pembrolizumab", "Кейтруда")

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, k1, k2)
}

func TestResolver_MatchAny(t *testing.T) {
	r := NewResolver(nil)

	med, kind, ok := r.MatchAny("кселода", []string{"оксалиплатин", "капецитабин"})
	require.True(t, ok)
	assert.Equal(t, "капецитабин", med)
	assert.Equal(t, domain.MatchFamily, kind)

	_, kind, ok = r.MatchAny("кселода", nil)
	assert.False(t, ok)
	assert.Equal(t, domain.MatchNone, kind)
}

func TestResolver_FamiliesOf(t *testing.T) {
	r := NewResolver(nil)

	assert.Equal(t, []string{"трастузумаб", "трастузумаб дерукстекан", "трастузумаб-эмтансин"}, r.FamiliesOf("Трастузумаб дерукстекан"))
	assert.Equal(t, []string{"паклитаксел", "доцетаксел"}, r.FamiliesOf("таксаны"))
	assert.Empty(t, r.FamiliesOf("неизвестный препарат"))
	assert.Nil(t, r.FamiliesOf(""))
}

func TestResolver_InFamily(t *testing.T) {
	r := NewResolver(nil)

	assert.True(t, r.InFamily("Герцептин 8 мг/кг", "трастузумаб"))
	assert.True(t, r.InFamily("трастузумаб-эмтансин", "трастузумаб"))
	assert.True(t, r.InFamily("Фемара", "летрозол"))
	assert.False(t, r.InFamily("анастрозол", "летрозол"))
	assert.True(t, r.InFamily("новый препарат x", "препарат x"), "unknown family falls back to containment")
	assert.False(t, r.InFamily("", "трастузумаб"))
}

func TestResolver_FindKnown(t *testing.T) {
	r := NewResolver(nil)

	found := r.FindKnown("Рекомендуется Паклитаксел + Карбоплатин каждые 3 недели")
	assert.Equal(t, []string{"паклитаксел", "карбоплатин"}, found)

	found = r.FindKnown("Трастузумаб дерукстекан во второй линии")
	assert.Equal(t, []string{"трастузумаб", "трастузумаб дерукстекан"}, found)

	assert.Empty(t, r.FindKnown("Динамическое наблюдение"))
	assert.Contains(t, r.KnownDrugs(), "ипилимумаб")
}

func TestNewTable_SubstituteTable(t *testing.T) {
	table := NewTable([]domain.DrugFamily{
		{Canonical: " Alpha ", Synonyms: []string{"ALPHA", "", "alfa"}},
		{Canonical: "", Synonyms: []string{"ignored"}},
	}, []string{"Alpha", " "})

	require.Equal(t, 1, table.Len())
	fams := table.Families()
	assert.Equal(t, "alpha", fams[0].Canonical)
	assert.Equal(t, []string{"alpha", "alfa"}, fams[0].Synonyms)

	fams[0].Synonyms[0] = "mutated"
	assert.Equal(t, "alpha", table.Families()[0].Synonyms[0], "Families must return a copy")

	r := NewResolver(table)
	ok, kind := r.Match("alfa-1", "Alpha")
	assert.True(t, ok)
	assert.Equal(t, domain.MatchFamily, kind)
	assert.Equal(t, []string{"alpha"}, r.KnownDrugs())

	ok, _ = r.Match("герцептин", "трастузумаб")
	assert.False(t, ok, "substitute table has no trastuzumab family")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "5-фторурацил", Normalize("  5-Фторурацил\t"))
	assert.Equal(t, "трастузумаб дерукстекан", Normalize("Трастузумаб   дерукстекан"))
	assert.Equal(t, "еще", Normalize("ЕЩЁ"))
	assert.Equal(t, "", Normalize("   "))
}
