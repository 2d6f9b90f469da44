// Package listing persists marketplace listings and their photo sets. A
// listing and its photos are written in a single transaction; a listing is
// never visible without its full photo set.
package listing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/grayleopard/safeswap/pkg/database"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

const (
	listingsTable = "listings"
	photosTable   = "listing_photos"

	defaultPageSize = 20
	maxPageSize     = 100
)

var listingColumns = []string{
	"id", "owner_id", "title", "description", "price", "original_price",
	"category", "age_range", "condition", "brand", "model",
	"is_smoke_free", "is_pet_free", "location_zip", "status", "views",
	"safety_checked", "has_recall", "recall_notes", "created_at", "updated_at",
}

// Filter narrows a browse query. Zero values mean "no constraint".
type Filter struct {
	Category string
	AgeRange string
	Search   string
	Limit    int
	Offset   int
}

// Repository handles listing persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create persists a listing together with its photos. The photo rows take
// their display order from the slice order. Everything commits or nothing
// does; a failure on any photo rolls back the listing row as well.
func (r *Repository) Create(ctx context.Context, listing *models.Listing, photoURLs []string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Create")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if listing.Status == "" {
		listing.Status = models.ListingStatusActive
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(listingsTable).
		Cols(listingColumns...).
		Values(
			listing.ID, listing.OwnerID, listing.Title, listing.Description, listing.Price, listing.OriginalPrice,
			listing.Category, listing.AgeRange, listing.Condition, listing.Brand, listing.Model,
			listing.IsSmokeFree, listing.IsPetFree, listing.LocationZip, listing.Status, listing.Views,
			listing.SafetyChecked, listing.HasRecall, listing.RecallNotes, listing.CreatedAt, listing.UpdatedAt,
		)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": listing.ID,
		}).Error("failed to insert listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
	}

	listing.Photos = make([]models.Photo, 0, len(photoURLs))
	for i, url := range photoURLs {
		photo := models.Photo{
			ID:           uuid.New(),
			ListingID:    listing.ID,
			URL:          url,
			DisplayOrder: i,
			CreatedAt:    now,
		}

		pib := database.NewInsertBuilder()
		pib.InsertInto(photosTable).
			Cols("id", "listing_id", "url", "display_order", "created_at").
			Values(photo.ID, photo.ListingID, photo.URL, photo.DisplayOrder, photo.CreatedAt)

		pq, pargs := pib.Build()
		if _, err := tx.ExecContext(ctx, pq, pargs...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"listing_id":    listing.ID,
				"display_order": i,
			}).Error("failed to insert listing photo")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
		}

		listing.Photos = append(listing.Photos, photo)
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit listing")
	}

	return nil
}

// GetByID returns a listing with its ordered photos
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From(listingsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var listing models.Listing
	if err := r.db.GetContext(ctx, &listing, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "listing %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": id,
		}).Error("failed to get listing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}

	photos, err := r.photosFor(ctx, id)
	if err != nil {
		return nil, err
	}
	listing.Photos = photos

	return &listing, nil
}

// IncrementViews bumps the view counter. View counts are best effort and the
// caller may ignore the error.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.IncrementViews")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(listingsTable)
	ub.Set(ub.Incr("views"))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": id,
		}).Warn("failed to increment listing views")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to increment views")
	}
	return nil
}

// List returns active listings matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter Filter) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From(listingsTable)
	sb.Where(sb.Equal("status", models.ListingStatusActive))
	if filter.Category != "" {
		sb.Where(sb.Equal("category", filter.Category))
	}
	if filter.AgeRange != "" {
		sb.Where(sb.Equal("age_range", filter.AgeRange))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		sb.Where(sb.Or(sb.ILike("title", pattern), sb.ILike("description", pattern)))
	}
	sb.OrderBy("created_at DESC")

	limit := filter.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	sb.Limit(limit)
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	if err := r.attachPhotos(ctx, listings); err != nil {
		return nil, err
	}

	return listings, nil
}

// ListByOwner returns all of an owner's listings regardless of status
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListByOwner")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From(listingsTable)
	sb.Where(sb.Equal("owner_id", ownerID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"owner_id": ownerID,
		}).Error("failed to list owner listings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	if err := r.attachPhotos(ctx, listings); err != nil {
		return nil, err
	}

	return listings, nil
}

// Update applies mutable fields to a listing owned by ownerID. Safety fields
// are not touched here; they are set once at ingestion.
func (r *Repository) Update(ctx context.Context, listing *models.Listing, ownerID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(listingsTable)
	ub.Set(
		ub.Assign("title", listing.Title),
		ub.Assign("description", listing.Description),
		ub.Assign("price", listing.Price),
		ub.Assign("original_price", listing.OriginalPrice),
		ub.Assign("condition", listing.Condition),
		ub.Assign("is_smoke_free", listing.IsSmokeFree),
		ub.Assign("is_pet_free", listing.IsPetFree),
		ub.Assign("location_zip", listing.LocationZip),
		ub.Assign("status", listing.Status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", listing.ID), ub.Equal("owner_id", ownerID))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": listing.ID,
		}).Error("failed to update listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "listing %s not found", listing.ID)
	}

	return nil
}

// Delete removes a listing owned by ownerID. Photos cascade at the schema
// level.
func (r *Repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Delete")
	defer span.End()

	delb := database.NewDeleteBuilder()
	delb.DeleteFrom(listingsTable)
	delb.Where(delb.Equal("id", id), delb.Equal("owner_id", ownerID))

	query, args := delb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": id,
		}).Error("failed to delete listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete listing")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete listing")
	}
	if affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "listing %s not found", id)
	}

	return nil
}

func (r *Repository) photosFor(ctx context.Context, listingID uuid.UUID) ([]models.Photo, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "listing_id", "url", "display_order", "created_at")
	sb.From(photosTable)
	sb.Where(sb.Equal("listing_id", listingID))
	sb.OrderBy("display_order ASC")

	query, args := sb.Build()
	var photos []models.Photo
	if err := r.db.SelectContext(ctx, &photos, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"listing_id": listingID,
		}).Error("failed to load listing photos")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load listing photos")
	}
	return photos, nil
}

func (r *Repository) attachPhotos(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ids := ectolinq.Map(listings, func(l models.Listing) any {
		return l.ID
	})

	sb := database.NewSelectBuilder()
	sb.Select("id", "listing_id", "url", "display_order", "created_at")
	sb.From(photosTable)
	sb.Where(sb.In("listing_id", ids...))
	sb.OrderBy("listing_id", "display_order ASC")

	query, args := sb.Build()
	var photos []models.Photo
	if err := r.db.SelectContext(ctx, &photos, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load listing photos")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load listing photos")
	}

	byListing := make(map[uuid.UUID][]models.Photo, len(listings))
	for _, p := range photos {
		byListing[p.ListingID] = append(byListing[p.ListingID], p)
	}
	for i := range listings {
		listings[i].Photos = byListing[listings[i].ID]
	}

	return nil
}
