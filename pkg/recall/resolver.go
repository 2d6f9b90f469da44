package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/grayleopard/safeswap/pkg/metrics"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/recall/registry"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

// Verdict notes. Callers and tests rely on these to tell a verified-safe
// result apart from one assumed safe during a registry outage.
const (
	NotesNotChecked     = "not checked"
	NotesNoRecallsFound = "no recalls found"
	NotesUnableToVerify = "unable to verify"
	NotesUnknownStatus  = "unable to verify safety status"
)

// Store is the durable recall cache consulted before the registry.
type Store interface {
	// Lookup returns the best matching cached record or nil. Read-only.
	Lookup(ctx context.Context, brand, model string) (*models.RecallRecord, error)
	// Insert caches a newly discovered record. Idempotent on recall_id;
	// concurrent duplicate discoveries are absorbed silently.
	Insert(ctx context.Context, rec *models.RecallRecord) error
}

// RegistryClient queries the external recall authority.
type RegistryClient interface {
	Query(ctx context.Context, brand, model, category string) ([]registry.RawRecall, error)
}

// Resolver produces a tri-state recall verdict for a brand/model pair:
// cache first, registry on miss, write-through on discovery.
type Resolver struct {
	logger   ectologger.Logger
	store    Store
	registry RegistryClient
}

// NewResolver creates a new resolver
func NewResolver(logger ectologger.Logger, store Store, registryClient RegistryClient) *Resolver {
	return &Resolver{
		logger:   logger,
		store:    store,
		registry: registryClient,
	}
}

// Resolve checks a brand/model pair against recall data. It never returns an
// error: cache misses fall through to the registry, and registry outages
// degrade to an optimistic Safe verdict with unverified notes so sellers are
// not blocked by third-party downtime.
func (r *Resolver) Resolve(ctx context.Context, brand, model, category string) models.RecallVerdict {
	ctx, span := tracing.StartSpan(ctx, "recall.Resolver.Resolve")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"brand":    brand,
		"model":    model,
		"category": category,
	})

	// Without a brand there is nothing to verify; skip the pipeline entirely.
	if Normalize(brand) == "" {
		metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictUnknown), "skipped").Inc()
		return models.RecallVerdict{Status: models.VerdictUnknown, Notes: NotesNotChecked}
	}

	cached, err := r.store.Lookup(ctx, brand, model)
	if err != nil {
		log.WithError(err).Error("recall store lookup failed")
		metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictUnknown), "degraded").Inc()
		return models.RecallVerdict{Status: models.VerdictUnknown, Notes: NotesUnknownStatus}
	}
	if cached != nil {
		log.WithFields(map[string]any{"recall_id": cached.RecallID}).Info("recall matched from cache")
		metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictRecalled), "cache").Inc()
		return models.RecallVerdict{
			Status: models.VerdictRecalled,
			Notes:  recallNotes(cached.Hazard, cached.Remedy),
			Recall: cached,
		}
	}

	found, err := r.registry.Query(ctx, brand, model, category)
	if err != nil {
		if !errors.Is(err, registry.ErrRegistryUnavailable) {
			log.WithError(err).Error("unexpected registry error")
		}
		// Optimistic default: never block sellers on registry downtime, but
		// mark the verdict so it cannot be mistaken for a verified result.
		metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictSafe), "degraded").Inc()
		return models.RecallVerdict{Status: models.VerdictSafe, Notes: NotesUnableToVerify}
	}

	if len(found) == 0 {
		metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictSafe), "registry").Inc()
		return models.RecallVerdict{Status: models.VerdictSafe, Notes: NotesNoRecallsFound}
	}

	// The registry returns best-match first
	rec := newRecord(found[0], brand, model)

	// Write-through so the next resolution for this product skips the
	// registry. Insert is idempotent; a lost race with a concurrent
	// resolution is absorbed, not surfaced.
	if err := r.store.Insert(ctx, rec); err != nil {
		log.WithError(err).Warn("failed to cache discovered recall")
	} else {
		metrics.RecallCacheWrites.Inc()
	}

	log.WithFields(map[string]any{"recall_id": rec.RecallID}).Info("recall discovered from registry")
	metrics.ResolutionsTotal.WithLabelValues(string(models.VerdictRecalled), "registry").Inc()
	return models.RecallVerdict{
		Status: models.VerdictRecalled,
		Notes:  recallNotes(rec.Hazard, rec.Remedy),
		Recall: rec,
	}
}

func newRecord(raw registry.RawRecall, brand, model string) *models.RecallRecord {
	rec := &models.RecallRecord{
		RecallID:    raw.ID,
		ProductName: raw.ProductName,
		Brand:       brand,
		Hazard:      raw.Hazard,
		Remedy:      raw.Remedy,
		RecallDate:  raw.Date,
		CreatedAt:   time.Now().UTC(),
	}
	if m := Normalize(model); m != "" {
		rec.Model = &model
	}
	return rec
}

func recallNotes(hazard, remedy string) string {
	return fmt.Sprintf("Recall: %s. Remedy: %s", hazard, remedy)
}
