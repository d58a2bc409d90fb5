package database

import (
	"context"
)

type CategoryRepository interface {
	GetAllCategories(ctx context.Context) ([]Category, error)
	GetTopLevelCategories(ctx context.Context, excludeSlug string) ([]Category, error)
	GetChildCategories(ctx context.Context, parentID string) ([]Category, error)
	GetCategoryCount(ctx context.Context) (int, error)

	UpsertCategory(ctx context.Context, category Category) (string, error)
}

type ListingRepository interface {
	GetActiveListings(ctx context.Context, categoryIDs []string, limit int) ([]Listing, error)
	GetListing(ctx context.Context, id string) (*Listing, error)
	GetActiveListingCount(ctx context.Context) (int, error)

	UpsertListing(ctx context.Context, listing Listing) (string, error)
	UpsertSeller(ctx context.Context, seller Seller) (string, error)
}
