package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

var _ CategoryRepository = (*CategoryRepo)(nil)

type CategoryRepo struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

const categoryColumns = `id, slug, parent_id, name, COALESCE(name_en, ''), COALESCE(name_ar, ''), display_order, created_at`

// GetAllCategories returns every category, top-level and subcategories, in one query
func (r *CategoryRepo) GetAllCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		ORDER BY display_order, slug
	`)
	if err != nil {
		return nil, newDataSourceError("failed to get categories", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// GetTopLevelCategories returns parent-less categories ordered by display order,
// skipping excludeSlug when it is not empty
func (r *CategoryRepo) GetTopLevelCategories(ctx context.Context, excludeSlug string) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT `+categoryColumns+`
		FROM categories
		WHERE parent_id IS NULL
		  AND slug <> ?
		ORDER BY display_order, slug
	`), excludeSlug)
	if err != nil {
		return nil, newDataSourceError("failed to get top-level categories", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

// GetChildCategories returns the direct subcategories of parentID
func (r *CategoryRepo) GetChildCategories(ctx context.Context, parentID string) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT `+categoryColumns+`
		FROM categories
		WHERE parent_id = ?
		ORDER BY display_order, slug
	`), parentID)
	if err != nil {
		return nil, newDataSourceError("failed to get child categories", err)
	}
	defer rows.Close()

	return scanCategories(rows)
}

func (r *CategoryRepo) GetCategoryCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count)
	if err != nil {
		return 0, newDataSourceError("failed to get category count", err)
	}
	return count, nil
}

// UpsertCategory inserts or updates a category keyed by its ID and returns the ID
func (r *CategoryRepo) UpsertCategory(ctx context.Context, category Category) (string, error) {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now()
	}

	var parentID sql.NullString
	if !category.IsTopLevel() {
		parentID = sql.NullString{String: *category.ParentID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO categories (id, slug, parent_id, name, name_en, name_ar, display_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			slug = excluded.slug,
			parent_id = excluded.parent_id,
			name = excluded.name,
			name_en = excluded.name_en,
			name_ar = excluded.name_ar,
			display_order = excluded.display_order
	`), category.ID, category.Slug, parentID, category.Name, category.NameEN, category.NameAR,
		category.DisplayOrder, category.CreatedAt.UTC())
	if err != nil {
		return "", newDataSourceError("failed to upsert category", err)
	}

	return category.ID, nil
}

func scanCategories(rows *sql.Rows) ([]Category, error) {
	var categories []Category
	for rows.Next() {
		var category Category
		var parentID sql.NullString
		err := rows.Scan(
			&category.ID, &category.Slug, &parentID, &category.Name,
			&category.NameEN, &category.NameAR, &category.DisplayOrder, &category.CreatedAt,
		)
		if err != nil {
			return nil, newDataSourceError("failed to scan category row", err)
		}
		if parentID.Valid && parentID.String != "" {
			id := parentID.String
			category.ParentID = &id
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, newDataSourceError("error iterating category rows", err)
	}

	return categories, nil
}
