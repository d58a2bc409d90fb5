package database

import (
	"time"
)

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSuspended ListingStatus = "suspended"
	ListingStatusSold      ListingStatus = "sold"
)

type Category struct {
	ID           string
	Slug         string
	ParentID     *string // nil for top-level categories
	Name         string
	NameEN       string
	NameAR       string
	DisplayOrder int
	CreatedAt    time.Time
}

func (c Category) IsTopLevel() bool {
	return c.ParentID == nil || *c.ParentID == ""
}

type Seller struct {
	ID                string
	FullName          string
	PhoneNumber       string
	WhatsappNumber    string
	MessengerUsername string
}

type Listing struct {
	ID         string
	CategoryID string
	UserID     string
	Status     ListingStatus
	Title      string
	Price      int64 // whole dinars
	CreatedAt  time.Time
	Seller     *Seller // joined from sellers, nil when the seller row is missing
}
