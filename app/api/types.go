package api

import (
	"context"
	"time"

	"github.com/lysyi3m/listing-comb/app/catalog"
	"github.com/lysyi3m/listing-comb/app/database"
	"github.com/lysyi3m/listing-comb/app/feed"
	"github.com/lysyi3m/listing-comb/app/intent"
)

type GeneratorInterface interface {
	Run(section feed.Section, builtAt time.Time) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type SnapshotProvider interface {
	Current(ctx context.Context) (*feed.Snapshot, error)
	Rebuild(ctx context.Context) (*feed.Snapshot, error)
}

// CategoryReader serves the category bar directly from the data source and
// the full tree for slug resolution.
type CategoryReader interface {
	catalog.CategorySource
	GetTopLevelCategories(ctx context.Context, excludeSlug string) ([]database.Category, error)
	GetChildCategories(ctx context.Context, parentID string) ([]database.Category, error)
}

type ListingReader interface {
	GetListing(ctx context.Context, id string) (*database.Listing, error)
	GetActiveListingCount(ctx context.Context) (int, error)
}

type RuleProvider interface {
	GetRules() []feed.Rule
	GetRuleCount() int
	Reload() error
}

// RSSCache holds rendered section RSS per build. Optional.
type RSSCache interface {
	GetSectionRSS(ctx context.Context, slug string, builtAt time.Time) (string, bool, error)
	SetSectionRSS(ctx context.Context, slug string, builtAt time.Time, rss string) error
}

type CategoryResponse struct {
	ID           string  `json:"id"`
	Slug         string  `json:"slug"`
	ParentID     *string `json:"parent_id"`
	Name         string  `json:"name"`
	NameEN       string  `json:"name_en,omitempty"`
	NameAR       string  `json:"name_ar,omitempty"`
	DisplayOrder int     `json:"display_order"`
}

type SellerResponse struct {
	ID                string `json:"id"`
	FullName          string `json:"full_name,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	WhatsappNumber    string `json:"whatsapp_number,omitempty"`
	MessengerUsername string `json:"messenger_username,omitempty"`
}

type ListingResponse struct {
	ID                 string              `json:"id"`
	CategoryID         string              `json:"category_id"`
	UserID             string              `json:"user_id"`
	Title              string              `json:"title"`
	Price              int64               `json:"price"`
	Status             string              `json:"status"`
	CreatedAt          time.Time           `json:"created_at"`
	CategorySlug       *string             `json:"category_slug"`
	ParentCategorySlug *string             `json:"parent_category_slug"`
	PurchaseType       intent.PurchaseType `json:"purchase_type"`
	Seller             *SellerResponse     `json:"seller,omitempty"`
}

type SectionResponse struct {
	Category CategoryResponse  `json:"category"`
	Listings []ListingResponse `json:"listings"`
}

type FeedResponse struct {
	Sections []SectionResponse `json:"sections"`
	BuiltAt  time.Time         `json:"built_at"`
}

type IntentResponse struct {
	ListingID           string              `json:"listing_id,omitempty"`
	CategorySlug        string              `json:"category_slug"`
	ParentCategorySlug  string              `json:"parent_category_slug,omitempty"`
	PurchaseType        intent.PurchaseType `json:"purchase_type"`
	CanAddToCart        bool                `json:"can_add_to_cart"`
	RequiresReservation bool                `json:"requires_reservation"`
}

func newCategoryResponse(category database.Category) CategoryResponse {
	return CategoryResponse{
		ID:           category.ID,
		Slug:         category.Slug,
		ParentID:     category.ParentID,
		Name:         category.Name,
		NameEN:       category.NameEN,
		NameAR:       category.NameAR,
		DisplayOrder: category.DisplayOrder,
	}
}

func newListingResponse(listing feed.Listing) ListingResponse {
	response := ListingResponse{
		ID:                 listing.ID,
		CategoryID:         listing.CategoryID,
		UserID:             listing.UserID,
		Title:              listing.Title,
		Price:              listing.Price,
		Status:             string(listing.Status),
		CreatedAt:          listing.CreatedAt,
		CategorySlug:       optional(listing.CategorySlug),
		ParentCategorySlug: optional(listing.ParentCategorySlug),
		PurchaseType:       intent.Classify(listing.CategorySlug, listing.ParentCategorySlug),
	}

	if seller := listing.Seller; seller != nil {
		response.Seller = &SellerResponse{
			ID:                seller.ID,
			FullName:          seller.FullName,
			PhoneNumber:       seller.PhoneNumber,
			WhatsappNumber:    seller.WhatsappNumber,
			MessengerUsername: seller.MessengerUsername,
		}
	}

	return response
}

func newFeedResponse(snapshot *feed.Snapshot) FeedResponse {
	sections := make([]SectionResponse, 0, len(snapshot.Sections))
	for _, section := range snapshot.Sections {
		listings := make([]ListingResponse, 0, len(section.Listings))
		for _, listing := range section.Listings {
			listings = append(listings, newListingResponse(listing))
		}
		sections = append(sections, SectionResponse{
			Category: newCategoryResponse(section.Category),
			Listings: listings,
		})
	}

	return FeedResponse{
		Sections: sections,
		BuiltAt:  snapshot.BuiltAt,
	}
}

func newIntentResponse(categorySlug, parentSlug string) IntentResponse {
	result := intent.ForListing(categorySlug, parentSlug)
	return IntentResponse{
		CategorySlug:        categorySlug,
		ParentCategorySlug:  parentSlug,
		PurchaseType:        result.PurchaseType,
		CanAddToCart:        result.CanAddToCart,
		RequiresReservation: result.RequiresReservation,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
