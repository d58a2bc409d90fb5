package feed

import (
	"maps"
	"slices"
	"time"

	"github.com/lysyi3m/listing-comb/app/database"
)

// Listing is a listing enriched with the slugs of its category. Empty slugs
// mean the category could not be resolved from the snapshot.
type Listing struct {
	database.Listing
	CategorySlug       string
	ParentCategorySlug string
}

// Section pairs a top-level category with its newest listings, including the
// ones filed under its subcategories.
type Section struct {
	Category database.Category
	Listings []Listing
}

type Snapshot struct {
	Sections []Section
	BuiltAt  time.Time
	Duration time.Duration
}

func (s *Snapshot) Section(slug string) (Section, bool) {
	for _, section := range s.Sections {
		if section.Category.Slug == slug {
			return section, true
		}
	}
	return Section{}, false
}

// Rule removes listings from the sections of the listed categories when the
// configured field contains any of the exclude keywords.
type Rule struct {
	Name       string   `yaml:"-" json:"name"` // Derived from filename (without .yml extension)
	Categories []string `yaml:"categories" json:"categories"`
	Field      string   `yaml:"field" json:"field"`
	Excludes   []string `yaml:"excludes" json:"excludes"`
}

// RuleSet indexes rules by category slug. It is built once and never
// modified; use NewRuleSet.
type RuleSet struct {
	bySlug map[string][]Rule
}

func NewRuleSet(rules []Rule) RuleSet {
	bySlug := make(map[string][]Rule)
	for _, rule := range rules {
		for _, slug := range rule.Categories {
			bySlug[slug] = append(bySlug[slug], rule)
		}
	}
	return RuleSet{bySlug: bySlug}
}

func (rs RuleSet) For(categorySlug string) []Rule {
	return slices.Clone(rs.bySlug[categorySlug])
}

func (rs RuleSet) Slugs() []string {
	return slices.Sorted(maps.Keys(rs.bySlug))
}

func (rs RuleSet) Len() int {
	return len(rs.bySlug)
}

const (
	DefaultExcludeSlug    = "stores-pro"
	DefaultPageSize       = 20
	DefaultSectionTimeout = 10 * time.Second

	FieldTitle = "title"
)

// DefaultRules covers vehicles that sellers file under real-estate rentals.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "vehicles-in-rentals",
			Categories: []string{"location-immobiliere", "immobilier-location"},
			Field:      FieldTitle,
			Excludes:   []string{"bmw", "mercedes", "voiture", "moto"},
		},
	}
}
