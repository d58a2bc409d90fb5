package feed

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/listing-comb/app/database"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run drops the listings matched by any rule and reports how many were dropped.
func (f *Filterer) Run(listings []database.Listing, rules []Rule) ([]database.Listing, int) {
	if len(rules) == 0 {
		return listings, 0
	}

	kept := make([]database.Listing, 0, len(listings))
	for _, listing := range listings {
		if isExcluded, _ := f.applyRules(listing, rules); isExcluded {
			continue
		}
		kept = append(kept, listing)
	}

	return kept, len(listings) - len(kept)
}

// Match reports whether a listing is excluded by rules, with the reason.
func (f *Filterer) Match(listing database.Listing, rules []Rule) (bool, string) {
	return f.applyRules(listing, rules)
}

func (f *Filterer) applyRules(listing database.Listing, rules []Rule) (bool, string) {
	for _, rule := range rules {
		value := f.getFieldValue(listing, rule.Field)
		if value == "" {
			continue
		}

		for _, exclude := range rule.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s rule: %s contains '%s'", rule.Name, rule.Field, exclude)
			}
		}
	}

	return false, ""
}

// matchesFilter is a substring match that ignores case and diacritics, so
// "Véhicule" matches "vehicule".
func (f *Filterer) matchesFilter(value, pattern string) bool {
	pattern = fold(pattern)
	if pattern == "" {
		return false
	}
	return strings.Contains(fold(value), pattern)
}

func (f *Filterer) getFieldValue(listing database.Listing, field string) string {
	switch field {
	case FieldTitle, "":
		return listing.Title
	default:
		return ""
	}
}

// fold builds its transformers per call: they carry state and the filterer
// runs from concurrent section pipelines.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
