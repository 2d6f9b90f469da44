package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	recallrepo "github.com/grayleopard/safeswap/internal/repositories/recall"
	"github.com/grayleopard/safeswap/pkg/models"
	"github.com/grayleopard/safeswap/pkg/recall"
	"github.com/grayleopard/safeswap/pkg/redis"
)

const (
	recentRecallsKey   = "recalls:recent"
	recentRecallsLimit = 10
	maxRecentRecalls   = 50
)

// RecallHandler exposes recall data: the recent recalls feed and an ad hoc
// safety check for products a buyer already owns.
type RecallHandler struct {
	resolver *recall.Resolver
	recalls  *recallrepo.Repository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   ectologger.Logger
}

// NewRecallHandler creates a new recall handler
func NewRecallHandler(resolver *recall.Resolver, recalls *recallrepo.Repository, cache *redis.Client, cacheTTL time.Duration, logger ectologger.Logger) *RecallHandler {
	return &RecallHandler{
		resolver: resolver,
		recalls:  recalls,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// RegisterRoutes registers recall routes
func (h *RecallHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/recalls/recent", h.RecentRecalls)
	g.POST("/recalls/check", h.CheckProduct)
}

// RecentRecalls returns the most recently issued recalls. The default page
// is served from Redis; the cache is a plain TTL, no invalidation.
func (h *RecallHandler) RecentRecalls(c echo.Context) error {
	ctx := c.Request().Context()

	limit := recentRecallsLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecentRecalls {
			return BadRequest("limit must be between 1 and " + strconv.Itoa(maxRecentRecalls))
		}
		limit = n
	}

	useCache := h.cache != nil && limit == recentRecallsLimit
	if useCache {
		if cached, err := h.cache.Get(ctx, recentRecallsKey); err == nil {
			var records []models.RecallRecord
			if err := json.Unmarshal([]byte(cached), &records); err == nil {
				return SuccessResponse(c, map[string]any{"recalls": records, "count": len(records)})
			}
		} else if !redis.IsNil(err) {
			h.logger.WithContext(ctx).WithError(err).Warn("recent recalls cache read failed")
		}
	}

	records, err := h.recalls.ListRecent(ctx, limit)
	if err != nil {
		return err
	}

	if useCache {
		if data, err := json.Marshal(records); err == nil {
			if err := h.cache.Set(ctx, recentRecallsKey, data, h.cacheTTL); err != nil {
				h.logger.WithContext(ctx).WithError(err).Warn("recent recalls cache write failed")
			}
		}
	}

	return SuccessResponse(c, map[string]any{"recalls": records, "count": len(records)})
}

// CheckProductRequest identifies a product to check against recall data
type CheckProductRequest struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Category string `json:"category"`
}

// CheckProduct resolves a recall verdict for a product without creating a
// listing. Useful for buyers checking gear they already own.
func (h *RecallHandler) CheckProduct(c echo.Context) error {
	ctx := c.Request().Context()

	var req CheckProductRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid check payload")
	}
	if req.Brand == "" {
		return BadRequest("brand is required")
	}

	verdict := h.resolver.Resolve(ctx, req.Brand, req.Model, req.Category)
	return SuccessResponse(c, verdict)
}
