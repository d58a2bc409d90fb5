package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ListingRepository = (*ListingRepo)(nil)

type ListingRepo struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const listingColumns = `l.id, l.category_id, COALESCE(l.user_id, ''), l.status, l.title, l.price, l.created_at,
		       s.id, COALESCE(s.full_name, ''), COALESCE(s.phone_number, ''),
		       COALESCE(s.whatsapp_number, ''), COALESCE(s.messenger_username, '')`

// GetActiveListings returns the newest active listings filed under any of categoryIDs
func (r *ListingRepo) GetActiveListings(ctx context.Context, categoryIDs []string, limit int) ([]Listing, error) {
	if len(categoryIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	args := make([]any, 0, len(categoryIDs)+2)
	args = append(args, string(ListingStatusActive))
	for _, id := range categoryIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.db.rebind(fmt.Sprintf(`
		SELECT %s
		FROM listings l
		LEFT JOIN sellers s ON s.id = l.user_id
		WHERE l.status = ?
		  AND l.category_id IN (%s)
		ORDER BY l.created_at DESC, l.id
		LIMIT ?
	`, listingColumns, placeholders(len(categoryIDs)))), args...)
	if err != nil {
		return nil, newDataSourceError("failed to get active listings", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}

	if err := rows.Err(); err != nil {
		return nil, newDataSourceError("error iterating listing rows", err)
	}

	return listings, nil
}

// GetListing returns a listing by ID, or nil when it does not exist
func (r *ListingRepo) GetListing(ctx context.Context, id string) (*Listing, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT `+listingColumns+`
		FROM listings l
		LEFT JOIN sellers s ON s.id = l.user_id
		WHERE l.id = ?
	`), id)

	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &listing, nil
}

func (r *ListingRepo) GetActiveListingCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.rebind("SELECT COUNT(*) FROM listings WHERE status = ?"),
		string(ListingStatusActive)).Scan(&count)
	if err != nil {
		return 0, newDataSourceError("failed to get active listing count", err)
	}
	return count, nil
}

// UpsertListing inserts or updates a listing keyed by its ID and returns the ID
func (r *ListingRepo) UpsertListing(ctx context.Context, listing Listing) (string, error) {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now()
	}
	if listing.Status == "" {
		listing.Status = ListingStatusActive
	}

	var userID sql.NullString
	if listing.UserID != "" {
		userID = sql.NullString{String: listing.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO listings (id, category_id, user_id, status, title, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category_id = excluded.category_id,
			user_id = excluded.user_id,
			status = excluded.status,
			title = excluded.title,
			price = excluded.price
	`), listing.ID, listing.CategoryID, userID, string(listing.Status), listing.Title,
		listing.Price, listing.CreatedAt.UTC())
	if err != nil {
		return "", newDataSourceError("failed to upsert listing", err)
	}

	return listing.ID, nil
}

func (r *ListingRepo) UpsertSeller(ctx context.Context, seller Seller) (string, error) {
	if seller.ID == "" {
		seller.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO sellers (id, full_name, phone_number, whatsapp_number, messenger_username)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			phone_number = excluded.phone_number,
			whatsapp_number = excluded.whatsapp_number,
			messenger_username = excluded.messenger_username
	`), seller.ID, seller.FullName, seller.PhoneNumber, seller.WhatsappNumber, seller.MessengerUsername)
	if err != nil {
		return "", newDataSourceError("failed to upsert seller", err)
	}

	return seller.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (Listing, error) {
	var listing Listing
	var status string
	var sellerID sql.NullString
	var seller Seller

	err := row.Scan(
		&listing.ID, &listing.CategoryID, &listing.UserID, &status, &listing.Title,
		&listing.Price, &listing.CreatedAt,
		&sellerID, &seller.FullName, &seller.PhoneNumber,
		&seller.WhatsappNumber, &seller.MessengerUsername,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, err
	}
	if err != nil {
		return Listing{}, newDataSourceError("failed to scan listing row", err)
	}

	listing.Status = ListingStatus(status)
	if sellerID.Valid {
		seller.ID = sellerID.String
		listing.Seller = &seller
	}

	return listing, nil
}
