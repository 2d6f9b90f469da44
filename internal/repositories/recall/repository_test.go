package recall_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	recallrepo "github.com/grayleopard/safeswap/internal/repositories/recall"
	"github.com/grayleopard/safeswap/pkg/database"
	"github.com/grayleopard/safeswap/pkg/models"
)

func newTestRepository(t *testing.T) (*recallrepo.Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return recallrepo.NewRepository(db, logger), mock
}

func recallRows(records ...models.RecallRecord) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"recall_id", "product_name", "brand", "model", "hazard", "remedy", "recall_date", "created_at"})
	for _, rec := range records {
		rows.AddRow(rec.RecallID, rec.ProductName, rec.Brand, rec.Model, rec.Hazard, rec.Remedy, rec.RecallDate, rec.CreatedAt)
	}
	return rows
}

func strPtr(s string) *string { return &s }

func TestRepositoryLookup(t *testing.T) {
	base := models.RecallRecord{
		RecallID:    "24-101",
		ProductName: "SnugRide 35 Infant Car Seat",
		Brand:       "Graco",
		Model:       strPtr("SnugRide 35"),
		Hazard:      "Harness buckle can stick",
		Remedy:      "Contact Graco for a replacement buckle",
		RecallDate:  time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("returns matching record", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnRows(recallRows(base))

		rec, err := repo.Lookup(context.Background(), "Graco", "SnugRide 35")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "24-101", rec.RecallID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when no candidate matches the model", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnRows(recallRows(base))

		rec, err := repo.Lookup(context.Background(), "Graco", "TurboBooster")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("prefers the most recent recall on ties", func(t *testing.T) {
		older := base
		older.RecallID = "19-044"
		older.RecallDate = time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)

		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnRows(recallRows(older, base))

		rec, err := repo.Lookup(context.Background(), "graco", "snugride 35")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "24-101", rec.RecallID)
	})

	t.Run("returns error on database failure", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnError(sql.ErrConnDone)

		rec, err := repo.Lookup(context.Background(), "Graco", "SnugRide 35")
		assert.Error(t, err)
		assert.Nil(t, rec)
	})
}

func TestRepositoryInsert(t *testing.T) {
	rec := &models.RecallRecord{
		RecallID:    "24-101",
		ProductName: "SnugRide 35 Infant Car Seat",
		Brand:       "Graco",
		Model:       strPtr("SnugRide 35"),
		Hazard:      "Harness buckle can stick",
		Remedy:      "Contact Graco for a replacement buckle",
		RecallDate:  time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("inserts record", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("INSERT INTO safety_recalls").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), rec))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absorbs duplicate recall ids", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("INSERT INTO safety_recalls").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.Insert(context.Background(), rec))
	})

	t.Run("returns error on database failure", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec("INSERT INTO safety_recalls").
			WillReturnError(sql.ErrConnDone)

		assert.Error(t, repo.Insert(context.Background(), rec))
	})
}

func TestRepositoryListRecent(t *testing.T) {
	t.Run("returns records ordered by recall date", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		newest := models.RecallRecord{
			RecallID:    "25-003",
			ProductName: "Rock 'n Play Sleeper",
			Brand:       "Fisher-Price",
			Hazard:      "Infant fatality risk when used unrestrained",
			Remedy:      "Stop use and contact Fisher-Price for a refund",
			RecallDate:  time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
			CreatedAt:   time.Now().UTC(),
		}
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnRows(recallRows(newest))

		records, err := repo.ListRecent(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "25-003", records[0].RecallID)
	})

	t.Run("returns error on database failure", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT .+ FROM safety_recalls").
			WillReturnError(sql.ErrConnDone)

		_, err := repo.ListRecent(context.Background(), 10)
		assert.Error(t, err)
	})
}
