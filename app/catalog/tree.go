package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lysyi3m/listing-comb/app/database"
)

// CategorySource is the part of the data source the tree needs.
type CategorySource interface {
	GetAllCategories(ctx context.Context) ([]database.Category, error)
}

// Tree is an immutable snapshot of the category forest. It is built once per
// aggregation pass and only read afterwards, so it is safe for concurrent use
// without locking.
type Tree struct {
	byID     map[string]database.Category
	children map[string][]database.Category
	topLevel []database.Category
}

// LoadTree fetches every category in one call and indexes it by ID.
func LoadTree(ctx context.Context, source CategorySource) (*Tree, error) {
	categories, err := source.GetAllCategories(ctx)
	if err != nil {
		if database.IsDataSourceError(err) {
			return nil, err
		}
		return nil, &database.DataSourceError{Op: "failed to load category tree", Err: err}
	}

	return NewTree(categories), nil
}

// NewTree indexes an already fetched category set. Duplicate IDs keep the
// first occurrence.
func NewTree(categories []database.Category) *Tree {
	t := &Tree{
		byID:     make(map[string]database.Category, len(categories)),
		children: make(map[string][]database.Category),
	}

	for _, category := range categories {
		if _, exists := t.byID[category.ID]; exists {
			slog.Warn("Duplicate category ignored", "id", category.ID, "slug", category.Slug)
			continue
		}
		t.byID[category.ID] = category

		if category.IsTopLevel() {
			t.topLevel = append(t.topLevel, category)
		} else {
			t.children[*category.ParentID] = append(t.children[*category.ParentID], category)
		}
	}

	sortCategories(t.topLevel)
	for parentID, siblings := range t.children {
		sortCategories(siblings)

		parent, ok := t.byID[parentID]
		switch {
		case !ok:
			slog.Warn("Categories reference a missing parent", "parent_id", parentID, "count", len(siblings))
		case !parent.IsTopLevel():
			slog.Warn("Category tree deeper than two levels", "parent_id", parentID, "parent_slug", parent.Slug)
		}
	}

	slog.Debug("Category tree built", "categories", len(t.byID), "top_level", len(t.topLevel))

	return t
}

func (t *Tree) Len() int {
	return len(t.byID)
}

func (t *Tree) Category(id string) (database.Category, bool) {
	category, ok := t.byID[id]
	return category, ok
}

// TopLevelCategories returns parent-less categories in ascending display
// order, leaving out the one whose slug equals excludeSlug.
func (t *Tree) TopLevelCategories(excludeSlug string) []database.Category {
	result := make([]database.Category, 0, len(t.topLevel))
	for _, category := range t.topLevel {
		if excludeSlug != "" && category.Slug == excludeSlug {
			continue
		}
		result = append(result, category)
	}
	return result
}

func (t *Tree) ChildrenOf(categoryID string) []database.Category {
	return slices.Clone(t.children[categoryID])
}

// ResolveSlugs returns the slug of the category and of its parent. The parent
// slug is empty for top-level categories and when the parent is missing; both
// are empty when the category itself is unknown.
func (t *Tree) ResolveSlugs(categoryID string) (categorySlug, parentSlug string) {
	category, ok := t.byID[categoryID]
	if !ok {
		return "", ""
	}
	if category.IsTopLevel() {
		return category.Slug, ""
	}
	if parent, ok := t.byID[*category.ParentID]; ok {
		return category.Slug, parent.Slug
	}
	return category.Slug, ""
}

// TopLevelAncestor follows parent links up to the root of categoryID.
func (t *Tree) TopLevelAncestor(categoryID string) (database.Category, bool) {
	category, ok := t.byID[categoryID]
	if !ok {
		return database.Category{}, false
	}

	seen := map[string]bool{category.ID: true}
	for !category.IsTopLevel() {
		parent, ok := t.byID[*category.ParentID]
		if !ok || seen[parent.ID] {
			return database.Category{}, false
		}
		seen[parent.ID] = true
		category = parent
	}

	return category, true
}

// CategoryIDs returns categoryID followed by the IDs of its direct children.
func (t *Tree) CategoryIDs(categoryID string) []string {
	children := t.children[categoryID]
	ids := make([]string, 0, len(children)+1)
	ids = append(ids, categoryID)
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	return ids
}

func (t *Tree) String() string {
	return fmt.Sprintf("catalog.Tree{categories: %d, top_level: %d}", len(t.byID), len(t.topLevel))
}

func sortCategories(categories []database.Category) {
	slices.SortStableFunc(categories, func(a, b database.Category) int {
		return cmp.Or(
			cmp.Compare(a.DisplayOrder, b.DisplayOrder),
			cmp.Compare(a.Slug, b.Slug),
		)
	})
}
