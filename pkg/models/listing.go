package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing status values
const (
	ListingStatusActive  = "active"
	ListingStatusSold    = "sold"
	ListingStatusRemoved = "removed"
)

// Photo bounds for a listing
const (
	MinListingPhotos = 2
	MaxListingPhotos = 6
)

// Listing is a published marketplace listing with its ordered photo set.
type Listing struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OwnerID       uuid.UUID `db:"owner_id" json:"owner_id"`
	Title         string    `db:"title" json:"title"`
	Description   *string   `db:"description" json:"description,omitempty"`
	Price         float64   `db:"price" json:"price"`
	OriginalPrice *float64  `db:"original_price" json:"original_price,omitempty"`
	Category      string    `db:"category" json:"category"`
	AgeRange      string    `db:"age_range" json:"age_range"`
	Condition     string    `db:"condition" json:"condition"`
	Brand         *string   `db:"brand" json:"brand,omitempty"`
	Model         *string   `db:"model" json:"model,omitempty"`
	IsSmokeFree   *bool     `db:"is_smoke_free" json:"is_smoke_free,omitempty"`
	IsPetFree     *bool     `db:"is_pet_free" json:"is_pet_free,omitempty"`
	LocationZip   string    `db:"location_zip" json:"location_zip"`
	Status        string    `db:"status" json:"status"`
	Views         int       `db:"views" json:"views"`
	SafetyChecked bool      `db:"safety_checked" json:"safety_checked"`
	HasRecall     bool      `db:"has_recall" json:"has_recall"`
	RecallNotes   *string   `db:"recall_notes" json:"recall_notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	Photos []Photo `db:"-" json:"photos,omitempty"`
}

// TableName returns the database table name
func (Listing) TableName() string {
	return "listings"
}

// Photo is an image reference owned by a listing. Photos are cascade-deleted
// with their listing and ordered by DisplayOrder.
type Photo struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ListingID    uuid.UUID `db:"listing_id" json:"listing_id"`
	URL          string    `db:"url" json:"url"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Photo) TableName() string {
	return "listing_photos"
}

// ListingDraft is a candidate listing under ingestion. It exists only
// in-flight; a draft is never partially persisted. Photo URLs arrive from the
// upload collaborator already stored, in the seller's chosen display order.
type ListingDraft struct {
	Title         string   `json:"title" validate:"required"`
	Description   *string  `json:"description,omitempty"`
	Price         float64  `json:"price" validate:"min=0"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	Category      string   `json:"category" validate:"required"`
	AgeRange      string   `json:"age_range" validate:"required"`
	Condition     string   `json:"condition" validate:"required"`
	Brand         *string  `json:"brand,omitempty"`
	Model         *string  `json:"model,omitempty"`
	IsSmokeFree   *bool    `json:"is_smoke_free,omitempty"`
	IsPetFree     *bool    `json:"is_pet_free,omitempty"`
	LocationZip   string   `json:"location_zip" validate:"required"`
	Photos        []string `json:"photos" validate:"required"`
}
