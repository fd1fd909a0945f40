package drugs

import (
	"strings"

	"github.com/treatment-compliance-server/internal/domain"
)

// Resolver answers drug-equivalence questions against an injected Table.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	table *Table
}

// NewResolver creates a resolver over the given table. A nil table selects DefaultTable.
func NewResolver(table *Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	return &Resolver{table: table}
}

// Match reports whether a prescribed mention corresponds to a protocol drug.
//
// An exact match is case-insensitive substring containment in either direction.
// A family match requires both strings to contain a synonym of the same family.
// Empty strings never match.
func (r *Resolver) Match(mention, protocolDrug string) (bool, domain.MatchKind) {
	m := Normalize(mention)
	p := Normalize(protocolDrug)
	if m == "" || p == "" {
		return false, domain.MatchNone
	}

	if strings.Contains(m, p) || strings.Contains(p, m) {
		return true, domain.MatchExact
	}

	for _, f := range r.table.families {
		if containsAny(m, f.Synonyms) && containsAny(p, f.Synonyms) {
			return true, domain.MatchFamily
		}
	}
	return false, domain.MatchNone
}

// MatchAny returns the first protocol medication the mention matches, in list order.
func (r *Resolver) MatchAny(mention string, medications []string) (string, domain.MatchKind, bool) {
	for _, med := range medications {
		if ok, kind := r.Match(mention, med); ok {
			return med, kind, true
		}
	}
	return "", domain.MatchNone, false
}

// FamiliesOf returns the canonical names of all families with a synonym in the mention,
// in table order.
func (r *Resolver) FamiliesOf(mention string) []string {
	m := Normalize(mention)
	if m == "" {
		return nil
	}
	var out []string
	for _, f := range r.table.families {
		if containsAny(m, f.Synonyms) {
			out = append(out, f.Canonical)
		}
	}
	return out
}

// InFamily reports whether the mention contains a synonym of the named family.
// Unknown family names fall back to plain containment of the name itself.
func (r *Resolver) InFamily(mention, canonical string) bool {
	m := Normalize(mention)
	c := Normalize(canonical)
	if m == "" || c == "" {
		return false
	}
	for _, f := range r.table.families {
		if f.Canonical == c {
			return containsAny(m, f.Synonyms)
		}
	}
	return strings.Contains(m, c)
}

// KnownDrugs returns the drug names scanned for in free-text recommendations.
func (r *Resolver) KnownDrugs() []string {
	return append([]string(nil), r.table.known...)
}

// FindKnown returns every known drug name occurring in text, in scan-list order.
func (r *Resolver) FindKnown(text string) []string {
	t := Normalize(text)
	if t == "" {
		return nil
	}
	var found []string
	for _, d := range r.table.known {
		if strings.Contains(t, d) {
			found = append(found, d)
		}
	}
	return found
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
