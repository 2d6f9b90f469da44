package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	listingrepo "github.com/grayleopard/safeswap/internal/repositories/listing"
	"github.com/grayleopard/safeswap/internal/services/ingestion"
	"github.com/grayleopard/safeswap/pkg/models"
)

// ListingHandler handles listing operations
type ListingHandler struct {
	ingestion *ingestion.Service
	listings  *listingrepo.Repository
	logger    ectologger.Logger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(ingestionSvc *ingestion.Service, listings *listingrepo.Repository, logger ectologger.Logger) *ListingHandler {
	return &ListingHandler{
		ingestion: ingestionSvc,
		listings:  listings,
		logger:    logger,
	}
}

// RegisterRoutes registers listing routes
func (h *ListingHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/listings", h.CreateListing)
	g.GET("/listings", h.ListListings)
	g.GET("/listings/:listing_id", h.GetListing)
	g.PUT("/listings/:listing_id", h.UpdateListing)
	g.DELETE("/listings/:listing_id", h.DeleteListing)
	g.GET("/users/me/listings", h.MyListings)
}

// BlockedResponse is returned when a submission is rejected by the recall
// policy. It carries enough recall detail for the seller to understand why.
type BlockedResponse struct {
	Message     string `json:"message"`
	RecallID    string `json:"recall_id,omitempty"`
	RecallNotes string `json:"recall_notes"`
}

// CreateListing ingests a new listing submission
func (h *ListingHandler) CreateListing(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var draft models.ListingDraft
	if err := c.Bind(&draft); err != nil {
		return BadRequest("invalid listing payload")
	}

	result, err := h.ingestion.Submit(ctx, userID, &draft)
	if err != nil {
		return err
	}

	if result.Outcome == ingestion.OutcomeBlocked {
		resp := BlockedResponse{
			Message:     "This product has an active safety recall and cannot be listed",
			RecallNotes: result.Verdict.Notes,
		}
		if result.Verdict.Recall != nil {
			resp.RecallID = result.Verdict.Recall.RecallID
		}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}

	return CreatedResponse(c, result.Listing)
}

// ListListings returns active listings matching the query filters
func (h *ListingHandler) ListListings(c echo.Context) error {
	ctx := c.Request().Context()

	filter := listingrepo.Filter{
		Category: c.QueryParam("category"),
		AgeRange: c.QueryParam("age_range"),
		Search:   c.QueryParam("search"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return BadRequest("limit must be a positive integer")
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return BadRequest("offset must be a non-negative integer")
		}
		filter.Offset = n
	}

	listings, err := h.listings.List(ctx, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}

// GetListing returns a single listing and bumps its view counter
func (h *ListingHandler) GetListing(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "listing_id")
	if err != nil {
		return err
	}

	listing, err := h.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// View counts are best effort; a failed bump never fails the read.
	if err := h.listings.IncrementViews(ctx, id); err == nil {
		listing.Views++
	}

	return SuccessResponse(c, listing)
}

// UpdateListingRequest carries the mutable listing fields. Nil fields are
// left unchanged. Safety fields are set at ingestion and cannot be edited.
type UpdateListingRequest struct {
	Title         *string  `json:"title,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	Condition     *string  `json:"condition,omitempty"`
	IsSmokeFree   *bool    `json:"is_smoke_free,omitempty"`
	IsPetFree     *bool    `json:"is_pet_free,omitempty"`
	LocationZip   *string  `json:"location_zip,omitempty"`
	Status        *string  `json:"status,omitempty"`
}

// UpdateListing applies edits to a listing owned by the caller
func (h *ListingHandler) UpdateListing(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "listing_id")
	if err != nil {
		return err
	}

	var req UpdateListingRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid listing payload")
	}

	listing, err := h.listings.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if req.Title != nil {
		if *req.Title == "" {
			return BadRequest("title must not be empty")
		}
		listing.Title = *req.Title
	}
	if req.Description != nil {
		listing.Description = req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return BadRequest("price must not be negative")
		}
		listing.Price = *req.Price
	}
	if req.OriginalPrice != nil {
		listing.OriginalPrice = req.OriginalPrice
	}
	if req.Condition != nil {
		listing.Condition = *req.Condition
	}
	if req.IsSmokeFree != nil {
		listing.IsSmokeFree = req.IsSmokeFree
	}
	if req.IsPetFree != nil {
		listing.IsPetFree = req.IsPetFree
	}
	if req.LocationZip != nil {
		listing.LocationZip = *req.LocationZip
	}
	if req.Status != nil {
		switch *req.Status {
		case models.ListingStatusActive, models.ListingStatusSold, models.ListingStatusRemoved:
			listing.Status = *req.Status
		default:
			return BadRequest("status must be one of active, sold, removed")
		}
	}

	if err := h.listings.Update(ctx, listing, userID); err != nil {
		return err
	}

	return SuccessResponse(c, listing)
}

// DeleteListing removes a listing owned by the caller
func (h *ListingHandler) DeleteListing(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "listing_id")
	if err != nil {
		return err
	}

	if err := h.listings.Delete(ctx, id, userID); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// MyListings returns all of the caller's listings regardless of status
func (h *ListingHandler) MyListings(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	listings, err := h.listings.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}
