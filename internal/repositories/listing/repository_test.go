package listing_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	listingrepo "github.com/grayleopard/safeswap/internal/repositories/listing"
	"github.com/grayleopard/safeswap/pkg/database"
	"github.com/grayleopard/safeswap/pkg/models"
)

func newTestRepository(t *testing.T) (*listingrepo.Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return listingrepo.NewRepository(db, logger), mock
}

func testListing() *models.Listing {
	return &models.Listing{
		OwnerID:     uuid.New(),
		Title:       "Graco SnugRide 35 infant car seat",
		Price:       45,
		Category:    "Car Seats",
		AgeRange:    "0-12m",
		Condition:   "good",
		LocationZip: "97205",
	}
}

func listingRows(listings ...models.Listing) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "title", "description", "price", "original_price",
		"category", "age_range", "condition", "brand", "model",
		"is_smoke_free", "is_pet_free", "location_zip", "status", "views",
		"safety_checked", "has_recall", "recall_notes", "created_at", "updated_at",
	})
	for _, l := range listings {
		rows.AddRow(
			l.ID, l.OwnerID, l.Title, l.Description, l.Price, l.OriginalPrice,
			l.Category, l.AgeRange, l.Condition, l.Brand, l.Model,
			l.IsSmokeFree, l.IsPetFree, l.LocationZip, l.Status, l.Views,
			l.SafetyChecked, l.HasRecall, l.RecallNotes, l.CreatedAt, l.UpdatedAt,
		)
	}
	return rows
}

func photoRows(photos ...models.Photo) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "listing_id", "url", "display_order", "created_at"})
	for _, p := range photos {
		rows.AddRow(p.ID, p.ListingID, p.URL, p.DisplayOrder, p.CreatedAt)
	}
	return rows
}

func TestRepositoryCreate(t *testing.T) {
	photos := []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}

	t.Run("commits listing and photos together", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO listings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO listing_photos").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO listing_photos").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		l := testListing()
		require.NoError(t, repo.Create(context.Background(), l, photos))
		assert.NotEqual(t, uuid.Nil, l.ID)
		assert.Equal(t, models.ListingStatusActive, l.Status)
		require.Len(t, l.Photos, 2)
		assert.Equal(t, 0, l.Photos[0].DisplayOrder)
		assert.Equal(t, 1, l.Photos[1].DisplayOrder)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back the listing when a photo insert fails", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO listings").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO listing_photos").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.Create(context.Background(), testListing(), photos)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the listing insert fails", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO listings").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.Create(context.Background(), testListing(), photos)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryGetByID(t *testing.T) {
	t.Run("returns listing with ordered photos", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		l := testListing()
		l.ID = uuid.New()
		l.Status = models.ListingStatusActive
		l.CreatedAt = time.Now().UTC()
		l.UpdatedAt = l.CreatedAt

		mock.ExpectQuery("SELECT .+ FROM listings").WillReturnRows(listingRows(*l))
		mock.ExpectQuery("SELECT .+ FROM listing_photos").WillReturnRows(photoRows(
			models.Photo{ID: uuid.New(), ListingID: l.ID, URL: "https://cdn.example.com/a.jpg", DisplayOrder: 0},
			models.Photo{ID: uuid.New(), ListingID: l.ID, URL: "https://cdn.example.com/b.jpg", DisplayOrder: 1},
		))

		got, err := repo.GetByID(context.Background(), l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.ID, got.ID)
		require.Len(t, got.Photos, 2)
		assert.Equal(t, "https://cdn.example.com/a.jpg", got.Photos[0].URL)
	})

	t.Run("returns not found for a missing listing", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM listings").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), uuid.New())
		assert.Error(t, err)
	})
}

func TestRepositoryList(t *testing.T) {
	t.Run("applies filters and attaches photos", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		l := testListing()
		l.ID = uuid.New()
		l.Status = models.ListingStatusActive

		mock.ExpectQuery("SELECT .+ FROM listings").WillReturnRows(listingRows(*l))
		mock.ExpectQuery("SELECT .+ FROM listing_photos").WillReturnRows(photoRows(
			models.Photo{ID: uuid.New(), ListingID: l.ID, URL: "https://cdn.example.com/a.jpg", DisplayOrder: 0},
		))

		listings, err := repo.List(context.Background(), listingrepo.Filter{
			Category: "Car Seats",
			AgeRange: "0-12m",
			Search:   "snugride",
		})
		require.NoError(t, err)
		require.Len(t, listings, 1)
		require.Len(t, listings[0].Photos, 1)
	})

	t.Run("returns empty result without a photo query", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM listings").WillReturnRows(listingRows())

		listings, err := repo.List(context.Background(), listingrepo.Filter{})
		require.NoError(t, err)
		assert.Empty(t, listings)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryUpdate(t *testing.T) {
	t.Run("updates owned listing", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("UPDATE listings").WillReturnResult(sqlmock.NewResult(0, 1))

		l := testListing()
		l.ID = uuid.New()
		require.NoError(t, repo.Update(context.Background(), l, l.OwnerID))
	})

	t.Run("returns not found when the owner does not match", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("UPDATE listings").WillReturnResult(sqlmock.NewResult(0, 0))

		l := testListing()
		l.ID = uuid.New()
		assert.Error(t, repo.Update(context.Background(), l, uuid.New()))
	})
}

func TestRepositoryDelete(t *testing.T) {
	t.Run("deletes owned listing", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("DELETE FROM listings").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(context.Background(), uuid.New(), uuid.New()))
	})

	t.Run("returns not found when nothing was deleted", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("DELETE FROM listings").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Error(t, repo.Delete(context.Background(), uuid.New(), uuid.New()))
	})
}
