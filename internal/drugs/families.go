// Package drugs resolves whether two drug mentions denote the same active
// substance, using a static table of synonyms, brand names, transliterations
// and class aliases.
package drugs

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/treatment-compliance-server/internal/domain"
)

// Table is an immutable, ordered set of drug families plus the list of
// canonical names scanned for in free-text recommendations.
type Table struct {
	families []domain.DrugFamily
	known    []string
}

// NewTable normalizes the given families and known-drug names into a Table.
// Blank synonyms are dropped; a family's canonical name is always one of its synonyms.
func NewTable(families []domain.DrugFamily, known []string) *Table {
	t := &Table{
		families: make([]domain.DrugFamily, 0, len(families)),
		known:    make([]string, 0, len(known)),
	}
	for _, f := range families {
		canonical := Normalize(f.Canonical)
		if canonical == "" {
			continue
		}
		seen := map[string]bool{canonical: true}
		synonyms := []string{canonical}
		for _, s := range f.Synonyms {
			n := Normalize(s)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			synonyms = append(synonyms, n)
		}
		t.families = append(t.families, domain.DrugFamily{Canonical: canonical, Synonyms: synonyms})
	}
	for _, k := range known {
		if n := Normalize(k); n != "" {
			t.known = append(t.known, n)
		}
	}
	return t
}

// Families returns a copy of the table's families in declaration order.
func (t *Table) Families() []domain.DrugFamily {
	out := make([]domain.DrugFamily, len(t.families))
	for i, f := range t.families {
		out[i] = domain.DrugFamily{Canonical: f.Canonical, Synonyms: append([]string(nil), f.Synonyms...)}
	}
	return out
}

// Len returns the number of families.
func (t *Table) Len() int {
	return len(t.families)
}

// Normalize prepares a drug mention for comparison: Unicode NFC, lower case,
// trimmed, collapsed whitespace and ё folded to е.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// DefaultTable returns the built-in equivalence table for oncology drugs
// referenced by the Russian clinical guidelines.
func DefaultTable() *Table {
	return NewTable(defaultFamilies, defaultKnownDrugs)
}

var defaultFamilies = []domain.DrugFamily{
	// anti-HER2
	{Canonical: "трастузумаб", Synonyms: []string{"герцептин", "trastuzumab"}},
	{Canonical: "трастузумаб дерукстекан", Synonyms: []string{"энхерту", "tdxd", "t-dxd", "trastuzumab deruxtecan", "трастузумаб"}},
	{Canonical: "трастузумаб-эмтансин", Synonyms: []string{"т-дм1", "t-dm1", "кадсила", "trastuzumab emtansine", "трастузумаб"}},
	{Canonical: "пертузумаб", Synonyms: []string{"перьета", "pertuzumab"}},
	{Canonical: "тукатиниб", Synonyms: []string{"tukysa", "tucatinib"}},

	// taxanes
	{Canonical: "паклитаксел", Synonyms: []string{"taxol", "paclitaxel", "таксан"}},
	{Canonical: "доцетаксел", Synonyms: []string{"taxotere", "docetaxel", "таксан"}},

	// platinum
	{Canonical: "карбоплатин", Synonyms: []string{"carboplatin", "платина", "платины"}},
	{Canonical: "цисплатин", Synonyms: []string{"cisplatin", "платина", "платины"}},
	{Canonical: "оксалиплатин", Synonyms: []string{"oxaliplatin", "платина", "платины"}},

	// fluoropyrimidines
	{Canonical: "капецитабин", Synonyms: []string{"кселода", "capecitabine"}},
	{Canonical: "фторурацил", Synonyms: []string{"5fu", "5-фу", "5-фторурацил", "fluorouracil"}},

	{Canonical: "иринотекан", Synonyms: []string{"camptosar", "irinotecan"}},

	// anti-angiogenic
	{Canonical: "рамуцирумаб", Synonyms: []string{"цирамза", "ramucirumab"}},
	{Canonical: "бевацизумаб", Synonyms: []string{"авастин", "bevacizumab"}},

	// EGFR
	{Canonical: "гефитиниб", Synonyms: []string{"иресса", "gefitinib"}},
	{Canonical: "эрлотиниб", Synonyms: []string{"тарцева", "erlotinib"}},
	{Canonical: "осимертиниб", Synonyms: []string{"тагрессо", "osimertinib"}},

	// ALK
	{Canonical: "алектиниб", Synonyms: []string{"алеценза", "alectinib"}},
	{Canonical: "кризотиниб", Synonyms: []string{"ксалкори", "crizotinib"}},
	{Canonical: "церитиниб", Synonyms: []string{"зикадия", "ceritinib"}},

	// BRAF/MEK
	{Canonical: "дабрафениб", Synonyms: []string{"тафинлар", "dabrafenib"}},
	{Canonical: "траметиниб", Synonyms: []string{"мекинист", "trametinib"}},
	{Canonical: "вемурафениб", Synonyms: []string{"зельбораф", "vemurafenib"}},

	// checkpoint inhibitors
	{Canonical: "пембролизумаб", Synonyms: []string{"кейтруда", "pembrolizumab"}},
	{Canonical: "ниволумаб", Synonyms: []string{"опдиво", "nivolumab"}},
	{Canonical: "атезолизумаб", Synonyms: []string{"тецентрик", "atezolizumab"}},
	{Canonical: "ипилимумаб", Synonyms: []string{"ервой", "ipilimumab"}},

	// anthracyclines
	{Canonical: "доксорубицин", Synonyms: []string{"адриамицин", "doxorubicin"}},
	{Canonical: "эпирубицин", Synonyms: []string{"epirubicin"}},

	// alkylating and others
	{Canonical: "циклофосфамид", Synonyms: []string{"cyclophosphamide"}},
	{Canonical: "ифосфамид", Synonyms: []string{"ifosfamide"}},
	{Canonical: "митомицин", Synonyms: []string{"mitomycin"}},
	{Canonical: "митотан", Synonyms: []string{"mitotane"}},

	// hormonal
	{Canonical: "тамоксифен", Synonyms: []string{"tamoxifen"}},
	{Canonical: "летрозол", Synonyms: []string{"letrozole", "фемара"}},
	{Canonical: "анастрозол", Synonyms: []string{"anastrozole", "аримидекс"}},
	{Canonical: "эксеместан", Synonyms: []string{"exemestane", "аромазин"}},
	{Canonical: "фулвестрант", Synonyms: []string{"fulvestrant", "фаслодекс"}},

	// CDK4/6
	{Canonical: "палбоциклиб", Synonyms: []string{"palbociclib", "ибранс"}},
	{Canonical: "рибоциклиб", Synonyms: []string{"ribociclib", "кискали"}},
	{Canonical: "абемациклиб", Synonyms: []string{"abemaciclib", "верзенио"}},

	{Canonical: "этопозид", Synonyms: []string{"etoposide"}},
	{Canonical: "винбластин", Synonyms: []string{"vinblastine"}},
	{Canonical: "винкристин", Synonyms: []string{"vincristine"}},
	{Canonical: "блеомицин", Synonyms: []string{"bleomycin"}},
	{Canonical: "пеметрексед", Synonyms: []string{"alimta", "pemetrexed"}},
	{Canonical: "винорельбин", Synonyms: []string{"navelbine", "vinorelbine"}},
	{Canonical: "эрибулин", Synonyms: []string{"eribulin", "халавен"}},
	{Canonical: "гемцитабин", Synonyms: []string{"гемзар", "gemcitabine"}},
	{Canonical: "метотрексат", Synonyms: []string{"methotrexate"}},
}

// defaultKnownDrugs is the scan list for free-text recommendation bullets.
// Order matters: matches are reported in this order.
var defaultKnownDrugs = []string{
	"паклитаксел", "карбоплатин", "цисплатин", "гемцитабин",
	"трастузумаб", "трастузумаб дерукстекан", "пертузумаб", "тукатиниб",
	"осимертиниб", "гефитиниб", "эрлотиниб", "алектиниб",
	"пембролизумаб", "ниволумаб", "атезолизумаб", "бевацизумаб",
	"рамуцирумаб", "иринотекан", "доцетаксел", "капецитабин",
	"оксалиплатин", "фторурацил", "этопозид", "доксорубицин",
	"циклофосфамид", "метотрексат", "винорельбин", "эрибулин",
	"тамоксифен", "летрозол", "анастрозол", "кризотиниб",
	"церитиниб", "ипилимумаб",
}
