// Package ingestion coordinates listing submission: validation, recall
// resolution, policy enforcement and atomic persistence. The coordinator is
// deliberately thin; matching lives in pkg/recall and persistence in the
// repositories.
package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/grayleopard/safeswap/pkg/kafka"
	"github.com/grayleopard/safeswap/pkg/metrics"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/recall"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

// Policy decides what happens to a submission that matches an active recall.
type Policy string

const (
	// PolicyBlock rejects recalled submissions outright
	PolicyBlock = Policy("block")
	// PolicyFlag publishes recalled submissions with a visible safety warning
	PolicyFlag = Policy("flag")
)

// ParsePolicy validates a configured policy string
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyBlock, PolicyFlag:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown recall policy %q", s)
	}
}

// Outcome of a submission
type Outcome string

const (
	OutcomeCreated = Outcome("created")
	OutcomeBlocked = Outcome("blocked")
)

// Result is the outcome of a submission. Listing is nil when the submission
// was blocked; nothing is persisted in that case.
type Result struct {
	Outcome Outcome
	Listing *models.Listing
	Verdict models.RecallVerdict
}

// Resolver produces a recall verdict for a brand/model pair
type Resolver interface {
	Resolve(ctx context.Context, brand, model, category string) models.RecallVerdict
}

// ListingStore persists a listing and its photos atomically
type ListingStore interface {
	Create(ctx context.Context, listing *models.Listing, photoURLs []string) error
}

// EventPublisher emits listing lifecycle events. Publishing is best effort
// and never fails a submission.
type EventPublisher interface {
	PublishListingEvent(ctx context.Context, evt *kafka.ListingEventMessage) error
}

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Service runs the listing ingestion pipeline
type Service struct {
	logger    ectologger.Logger
	validate  *validator.Validate
	resolver  Resolver
	listings  ListingStore
	publisher EventPublisher
	policy    Policy
}

// NewService creates a new ingestion service
func NewService(logger ectologger.Logger, resolver Resolver, listings ListingStore, publisher EventPublisher, policy Policy) *Service {
	return &Service{
		logger:    logger,
		validate:  validator.New(),
		resolver:  resolver,
		listings:  listings,
		publisher: publisher,
		policy:    policy,
	}
}

// Submit runs a draft through validation, recall resolution and persistence.
// Validation failures and recall blocks leave no trace in storage; the same
// draft can be resubmitted any number of times.
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, draft *models.ListingDraft) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Submit")
	defer span.End()

	start := time.Now()
	outcome := "validation_error"
	defer func() {
		metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
		metrics.SubmissionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	brand := ""
	model := ""
	if draft.Brand != nil {
		brand = *draft.Brand
	}
	if draft.Model != nil {
		model = *draft.Model
	}

	// Safety verification needs at least a brand; without one the listing is
	// published unchecked rather than rejected.
	verdict := models.RecallVerdict{Status: models.VerdictUnknown, Notes: ""}
	safetyChecked := false
	if brand != "" {
		verdict = s.resolver.Resolve(ctx, brand, model, draft.Category)
		safetyChecked = true
	}

	if verdict.Recalled() && s.policy == PolicyBlock {
		outcome = string(OutcomeBlocked)
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"owner_id": ownerID,
			"brand":    brand,
			"model":    model,
		}).Info("listing blocked by recall policy")

		s.publishEvent(ctx, &kafka.ListingEventMessage{
			Type:        kafka.EventListingBlocked,
			OwnerID:     ownerID.String(),
			Category:    draft.Category,
			HasRecall:   true,
			RecallID:    verdict.Recall.RecallID,
			RecallNotes: verdict.Notes,
		})

		return &Result{Outcome: OutcomeBlocked, Verdict: verdict}, nil
	}

	listing := listingFromDraft(ownerID, draft)
	listing.SafetyChecked = safetyChecked
	listing.HasRecall = verdict.Recalled()
	if notes := persistedNotes(verdict); notes != "" {
		listing.RecallNotes = &notes
	}

	if err := s.listings.Create(ctx, listing, draft.Photos); err != nil {
		outcome = "persistence_error"
		return nil, err
	}

	outcome = string(OutcomeCreated)

	evt := &kafka.ListingEventMessage{
		Type:      kafka.EventListingCreated,
		ListingID: listing.ID.String(),
		OwnerID:   ownerID.String(),
		Category:  listing.Category,
		HasRecall: listing.HasRecall,
	}
	if verdict.Recall != nil {
		evt.RecallID = verdict.Recall.RecallID
	}
	if listing.RecallNotes != nil {
		evt.RecallNotes = *listing.RecallNotes
	}
	s.publishEvent(ctx, evt)

	return &Result{Outcome: OutcomeCreated, Listing: listing, Verdict: verdict}, nil
}

func (s *Service) validateDraft(draft *models.ListingDraft) error {
	if draft == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "listing payload is required")
	}

	if err := s.validate.Struct(draft); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid listing: %v", err)
	}

	if !zipPattern.MatchString(draft.LocationZip) {
		return httperror.NewHTTPError(http.StatusBadRequest, "location_zip must be a 5 digit ZIP code")
	}

	if n := len(draft.Photos); n < models.MinListingPhotos || n > models.MaxListingPhotos {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "a listing requires between %d and %d photos, got %d",
			models.MinListingPhotos, models.MaxListingPhotos, n)
	}
	for _, url := range draft.Photos {
		if url == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "photo URLs must not be empty")
		}
	}

	return nil
}

func (s *Service) publishEvent(ctx context.Context, evt *kafka.ListingEventMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishListingEvent(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to publish listing event")
	}
}

func listingFromDraft(ownerID uuid.UUID, draft *models.ListingDraft) *models.Listing {
	return &models.Listing{
		OwnerID:       ownerID,
		Title:         draft.Title,
		Description:   draft.Description,
		Price:         draft.Price,
		OriginalPrice: draft.OriginalPrice,
		Category:      draft.Category,
		AgeRange:      draft.AgeRange,
		Condition:     draft.Condition,
		Brand:         draft.Brand,
		Model:         draft.Model,
		IsSmokeFree:   draft.IsSmokeFree,
		IsPetFree:     draft.IsPetFree,
		LocationZip:   draft.LocationZip,
		Status:        models.ListingStatusActive,
	}
}

// persistedNotes decides which verdict notes are stored on the listing. A
// clean Safe result stores nothing; recall details and unverified statuses
// must survive so buyers can see them.
func persistedNotes(verdict models.RecallVerdict) string {
	switch {
	case verdict.Recalled():
		return verdict.Notes
	case verdict.Status == models.VerdictSafe && verdict.Notes == recall.NotesUnableToVerify:
		return verdict.Notes
	case verdict.Status == models.VerdictUnknown && verdict.Notes == recall.NotesUnknownStatus:
		return verdict.Notes
	default:
		return ""
	}
}
