// Package recall persists the durable cache of recall records discovered
// from the registry. Writes are append-only and idempotent on recall_id;
// reads are matched in code, not in SQL, so the heuristic stays testable.
package recall

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/grayleopard/safeswap/pkg/database"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/recall"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

const recallsTable = "safety_recalls"

var recallColumns = []string{"recall_id", "product_name", "brand", "model", "hazard", "remedy", "recall_date", "created_at"}

// Repository handles recall record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new recall repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Lookup returns the cached record that best matches the brand/model pair,
// or nil on a miss. Candidates are narrowed by brand in SQL and matched with
// the explicit heuristic; ties resolve to the most recent recall date.
func (r *Repository) Lookup(ctx context.Context, brand, model string) (*models.RecallRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.Lookup")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(recallColumns...)
	sb.From(recallsTable)
	sb.Where(sb.Equal("LOWER(brand)", strings.ToLower(strings.TrimSpace(brand))))
	sb.OrderBy("recall_date DESC")

	query, args := sb.Build()
	var candidates []models.RecallRecord
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"brand": brand,
		}).Error("failed to load recall candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up recalls")
	}

	return recall.BestMatch(brand, model, candidates), nil
}

// Insert caches a recall record. Duplicate recall_ids are silently absorbed
// via ON CONFLICT DO NOTHING, which is the only concurrency control the
// append-only store needs.
func (r *Repository) Insert(ctx context.Context, rec *models.RecallRecord) error {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.Insert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(recallsTable).
		Cols("recall_id", "product_name", "brand", "model", "hazard", "remedy", "recall_date", "created_at").
		Values(rec.RecallID, rec.ProductName, rec.Brand, rec.Model, rec.Hazard, rec.Remedy, rec.RecallDate, rec.CreatedAt).
		OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"recall_id": rec.RecallID,
		}).Error("failed to insert recall record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert recall record")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"recall_id": rec.RecallID,
	}).Debugf("Cached recall record in %s", recallsTable)
	return nil
}

// ListRecent returns the most recently issued recalls for display
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.RecallRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.ListRecent")
	defer span.End()

	if limit < 1 {
		limit = 10
	}

	sb := database.NewSelectBuilder()
	sb.Select(recallColumns...)
	sb.From(recallsTable)
	sb.OrderBy("recall_date DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.RecallRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list recent recalls")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list recent recalls")
	}

	return records, nil
}
