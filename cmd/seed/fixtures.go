package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/listing-comb/app/database"
)

type Fixtures struct {
	Categories []CategoryFixture `yaml:"categories"`
	Sellers    []SellerFixture   `yaml:"sellers"`
	Listings   []ListingFixture  `yaml:"listings"`
}

type CategoryFixture struct {
	Slug         string `yaml:"slug"`
	Parent       string `yaml:"parent"`
	Name         string `yaml:"name"`
	NameEN       string `yaml:"name_en"`
	NameAR       string `yaml:"name_ar"`
	DisplayOrder int    `yaml:"display_order"`
}

type SellerFixture struct {
	Key               string `yaml:"key"`
	FullName          string `yaml:"full_name"`
	PhoneNumber       string `yaml:"phone_number"`
	WhatsappNumber    string `yaml:"whatsapp_number"`
	MessengerUsername string `yaml:"messenger_username"`
}

type ListingFixture struct {
	Title    string        `yaml:"title"`
	Category string        `yaml:"category"`
	Seller   string        `yaml:"seller"`
	Price    int64         `yaml:"price"`
	Status   string        `yaml:"status"`
	Age      time.Duration `yaml:"age"`
}

type Store interface {
	UpsertCategory(ctx context.Context, category database.Category) (string, error)
	UpsertSeller(ctx context.Context, seller database.Seller) (string, error)
	UpsertListing(ctx context.Context, listing database.Listing) (string, error)
}

type Summary struct {
	Categories int
	Sellers    int
	Listings   int
}

func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var fixtures Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	return &fixtures, nil
}

// stableID derives a deterministic UUID so seeding twice updates rows
// instead of duplicating them.
func stableID(kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("listing-comb:"+kind+":"+key)).String()
}

// Apply upserts categories, sellers and listings in that order. Parents are
// referenced by slug and must appear in the same file.
func Apply(ctx context.Context, store Store, fixtures *Fixtures, now time.Time) (Summary, error) {
	var summary Summary

	categoryIDs := make(map[string]string, len(fixtures.Categories))
	for _, c := range fixtures.Categories {
		categoryIDs[c.Slug] = stableID("category", c.Slug)
	}

	for _, c := range fixtures.Categories {
		category := database.Category{
			ID:           categoryIDs[c.Slug],
			Slug:         c.Slug,
			Name:         c.Name,
			NameEN:       c.NameEN,
			NameAR:       c.NameAR,
			DisplayOrder: c.DisplayOrder,
			CreatedAt:    now,
		}
		if c.Parent != "" {
			parentID, ok := categoryIDs[c.Parent]
			if !ok {
				return summary, fmt.Errorf("category %s: unknown parent %s", c.Slug, c.Parent)
			}
			category.ParentID = &parentID
		}

		if _, err := store.UpsertCategory(ctx, category); err != nil {
			return summary, fmt.Errorf("category %s: %w", c.Slug, err)
		}
		summary.Categories++
	}

	sellerIDs := make(map[string]string, len(fixtures.Sellers))
	for _, s := range fixtures.Sellers {
		id, err := store.UpsertSeller(ctx, database.Seller{
			ID:                stableID("seller", s.Key),
			FullName:          s.FullName,
			PhoneNumber:       s.PhoneNumber,
			WhatsappNumber:    s.WhatsappNumber,
			MessengerUsername: s.MessengerUsername,
		})
		if err != nil {
			return summary, fmt.Errorf("seller %s: %w", s.Key, err)
		}
		sellerIDs[s.Key] = id
		summary.Sellers++
	}

	for i, l := range fixtures.Listings {
		categoryID, ok := categoryIDs[l.Category]
		if !ok {
			// Listings may point at a category that no longer exists
			categoryID = stableID("category", l.Category)
		}

		status := database.ListingStatus(l.Status)
		if status == "" {
			status = database.ListingStatusActive
		}

		listing := database.Listing{
			ID:         stableID("listing", fmt.Sprintf("%d:%s", i, l.Title)),
			CategoryID: categoryID,
			UserID:     sellerIDs[l.Seller],
			Status:     status,
			Title:      l.Title,
			Price:      l.Price,
			CreatedAt:  now.Add(-l.Age),
		}

		if _, err := store.UpsertListing(ctx, listing); err != nil {
			return summary, fmt.Errorf("listing %q: %w", l.Title, err)
		}
		summary.Listings++
	}

	return summary, nil
}
