package ingestion_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grayleopard/safeswap/internal/services/ingestion"
	"github.com/grayleopard/safeswap/pkg/kafka"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/recall"
)

type fakeResolver struct {
	verdict models.RecallVerdict
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, brand, model, category string) models.RecallVerdict {
	f.calls++
	return f.verdict
}

type fakeListingStore struct {
	created []*models.Listing
	err     error
}

func (f *fakeListingStore) Create(ctx context.Context, listing *models.Listing, photoURLs []string) error {
	if f.err != nil {
		return f.err
	}
	listing.ID = uuid.New()
	f.created = append(f.created, listing)
	return nil
}

type fakePublisher struct {
	events []*kafka.ListingEventMessage
	err    error
}

func (f *fakePublisher) PublishListingEvent(ctx context.Context, evt *kafka.ListingEventMessage) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func strPtr(s string) *string { return &s }

func validDraft() *models.ListingDraft {
	return &models.ListingDraft{
		Title:       "Graco SnugRide 35 infant car seat",
		Price:       45,
		Category:    "Car Seats",
		AgeRange:    "0-12m",
		Condition:   "good",
		Brand:       strPtr("Graco"),
		Model:       strPtr("SnugRide 35"),
		LocationZip: "97205",
		Photos:      []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
	}
}

func safeVerdict() models.RecallVerdict {
	return models.RecallVerdict{Status: models.VerdictSafe, Notes: recall.NotesNoRecallsFound}
}

func recalledVerdict() models.RecallVerdict {
	return models.RecallVerdict{
		Status: models.VerdictRecalled,
		Notes:  "Recall: Harness buckle can stick. Remedy: Contact Graco for a replacement buckle",
		Recall: &models.RecallRecord{RecallID: "24-101", Brand: "Graco", RecallDate: time.Now()},
	}
}

func newService(resolver *fakeResolver, store ingestion.ListingStore, publisher *fakePublisher, policy ingestion.Policy) *ingestion.Service {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	return ingestion.NewService(logger, resolver, store, publisher, policy)
}

func TestSubmitCreatesSafeListing(t *testing.T) {
	resolver := &fakeResolver{verdict: safeVerdict()}
	store := &fakeListingStore{}
	publisher := &fakePublisher{}
	svc := newService(resolver, store, publisher, ingestion.PolicyBlock)

	res, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	require.NoError(t, err)

	assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
	require.NotNil(t, res.Listing)
	assert.True(t, res.Listing.SafetyChecked)
	assert.False(t, res.Listing.HasRecall)
	assert.Nil(t, res.Listing.RecallNotes, "a clean safe verdict stores no notes")
	require.Len(t, store.created, 1)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, kafka.EventListingCreated, publisher.events[0].Type)
}

func TestSubmitBlocksRecalledListing(t *testing.T) {
	resolver := &fakeResolver{verdict: recalledVerdict()}
	store := &fakeListingStore{}
	publisher := &fakePublisher{}
	svc := newService(resolver, store, publisher, ingestion.PolicyBlock)

	res, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	require.NoError(t, err)

	assert.Equal(t, ingestion.OutcomeBlocked, res.Outcome)
	assert.Nil(t, res.Listing)
	assert.Empty(t, store.created, "a blocked submission must persist nothing")
	require.Len(t, publisher.events, 1)
	assert.Equal(t, kafka.EventListingBlocked, publisher.events[0].Type)
	assert.Equal(t, "24-101", publisher.events[0].RecallID)
}

func TestSubmitBlockedIsRepeatable(t *testing.T) {
	resolver := &fakeResolver{verdict: recalledVerdict()}
	store := &fakeListingStore{}
	svc := newService(resolver, store, &fakePublisher{}, ingestion.PolicyBlock)

	draft := validDraft()
	for i := 0; i < 3; i++ {
		res, err := svc.Submit(context.Background(), uuid.New(), draft)
		require.NoError(t, err)
		assert.Equal(t, ingestion.OutcomeBlocked, res.Outcome)
	}
	assert.Empty(t, store.created)
}

func TestSubmitFlagPolicyPublishesWithWarning(t *testing.T) {
	resolver := &fakeResolver{verdict: recalledVerdict()}
	store := &fakeListingStore{}
	svc := newService(resolver, store, &fakePublisher{}, ingestion.PolicyFlag)

	res, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	require.NoError(t, err)

	assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
	require.NotNil(t, res.Listing)
	assert.True(t, res.Listing.HasRecall)
	require.NotNil(t, res.Listing.RecallNotes)
	assert.Contains(t, *res.Listing.RecallNotes, "Harness buckle can stick")
	require.Len(t, store.created, 1)
}

func TestSubmitWithoutBrandSkipsSafetyCheck(t *testing.T) {
	resolver := &fakeResolver{}
	store := &fakeListingStore{}
	svc := newService(resolver, store, &fakePublisher{}, ingestion.PolicyBlock)

	draft := validDraft()
	draft.Brand = nil
	draft.Model = nil

	res, err := svc.Submit(context.Background(), uuid.New(), draft)
	require.NoError(t, err)

	assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
	assert.False(t, res.Listing.SafetyChecked)
	assert.False(t, res.Listing.HasRecall)
	assert.Zero(t, resolver.calls, "no brand means no resolution")
}

func TestSubmitRegistryOutagePersistsUnverified(t *testing.T) {
	resolver := &fakeResolver{verdict: models.RecallVerdict{
		Status: models.VerdictSafe,
		Notes:  recall.NotesUnableToVerify,
	}}
	store := &fakeListingStore{}
	svc := newService(resolver, store, &fakePublisher{}, ingestion.PolicyBlock)

	res, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	require.NoError(t, err)

	assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
	assert.True(t, res.Listing.SafetyChecked)
	assert.False(t, res.Listing.HasRecall)
	require.NotNil(t, res.Listing.RecallNotes)
	assert.Equal(t, recall.NotesUnableToVerify, *res.Listing.RecallNotes)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ListingDraft)
	}{
		{"missing title", func(d *models.ListingDraft) { d.Title = "" }},
		{"negative price", func(d *models.ListingDraft) { d.Price = -1 }},
		{"missing category", func(d *models.ListingDraft) { d.Category = "" }},
		{"missing age range", func(d *models.ListingDraft) { d.AgeRange = "" }},
		{"missing condition", func(d *models.ListingDraft) { d.Condition = "" }},
		{"bad zip", func(d *models.ListingDraft) { d.LocationZip = "9720" }},
		{"alphanumeric zip", func(d *models.ListingDraft) { d.LocationZip = "9720a" }},
		{"no photos", func(d *models.ListingDraft) { d.Photos = nil }},
		{"one photo", func(d *models.ListingDraft) { d.Photos = d.Photos[:1] }},
		{"seven photos", func(d *models.ListingDraft) {
			d.Photos = make([]string, 7)
			for i := range d.Photos {
				d.Photos[i] = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
			}
		}},
		{"empty photo url", func(d *models.ListingDraft) { d.Photos = []string{"https://cdn.example.com/a.jpg", ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{verdict: safeVerdict()}
			store := &fakeListingStore{}
			svc := newService(resolver, store, &fakePublisher{}, ingestion.PolicyBlock)

			draft := validDraft()
			tt.mutate(draft)

			_, err := svc.Submit(context.Background(), uuid.New(), draft)
			assert.Error(t, err)
			assert.Zero(t, resolver.calls, "validation must fail before recall resolution")
			assert.Empty(t, store.created)
		})
	}
}

func TestSubmitPhotoBounds(t *testing.T) {
	for _, n := range []int{2, 6} {
		t.Run(fmt.Sprintf("%d photos accepted", n), func(t *testing.T) {
			store := &fakeListingStore{}
			svc := newService(&fakeResolver{verdict: safeVerdict()}, store, &fakePublisher{}, ingestion.PolicyBlock)

			draft := validDraft()
			draft.Photos = make([]string, n)
			for i := range draft.Photos {
				draft.Photos[i] = fmt.Sprintf("https://cdn.example.com/%d.jpg", i)
			}

			res, err := svc.Submit(context.Background(), uuid.New(), draft)
			require.NoError(t, err)
			assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
		})
	}
}

func TestSubmitPersistenceFailure(t *testing.T) {
	store := &fakeListingStore{err: errors.New("connection refused")}
	publisher := &fakePublisher{}
	svc := newService(&fakeResolver{verdict: safeVerdict()}, store, publisher, ingestion.PolicyBlock)

	_, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	assert.Error(t, err)
	assert.Empty(t, publisher.events, "no event for a failed submission")
}

func TestSubmitPublisherFailureDoesNotFailSubmission(t *testing.T) {
	store := &fakeListingStore{}
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := newService(&fakeResolver{verdict: safeVerdict()}, store, publisher, ingestion.PolicyBlock)

	res, err := svc.Submit(context.Background(), uuid.New(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, ingestion.OutcomeCreated, res.Outcome)
}

func TestSubmitConcurrent(t *testing.T) {
	store := &fakeListingStore{}
	var mu sync.Mutex
	guarded := &lockedStore{inner: store, mu: &mu}
	svc := newService(&fakeResolver{verdict: safeVerdict()}, guarded, &fakePublisher{}, ingestion.PolicyBlock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), uuid.New(), validDraft())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.created, 8)
}

type lockedStore struct {
	inner *fakeListingStore
	mu    *sync.Mutex
}

func (l *lockedStore) Create(ctx context.Context, listing *models.Listing, photoURLs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Create(ctx, listing, photoURLs)
}

func TestParsePolicy(t *testing.T) {
	for _, valid := range []string{"block", "flag"} {
		p, err := ingestion.ParsePolicy(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(p))
	}

	_, err := ingestion.ParsePolicy("quarantine")
	assert.Error(t, err)
}
