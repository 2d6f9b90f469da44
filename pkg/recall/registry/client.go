// Package registry provides the client for the external recall registry
// (the CPSC SaferProducts REST API). The registry is rate-limited and
// occasionally unavailable; every failure mode collapses into the single
// ErrRegistryUnavailable condition so callers can degrade uniformly.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/grayleopard/safeswap/pkg/httpclient"
	"github.com/grayleopard/safeswap/pkg/metrics"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

// ErrRegistryUnavailable covers timeouts, network failures, rate-limit
// rejections and malformed responses. The client never surfaces partial
// or ambiguous results.
var ErrRegistryUnavailable = errors.New("recall registry unavailable")

// DefaultTimeout bounds a single registry lookup
const DefaultTimeout = 5 * time.Second

// RawRecall is a single recall entry as returned by the registry,
// best-match first.
type RawRecall struct {
	ID          string
	ProductName string
	Hazard      string
	Remedy      string
	Date        time.Time
}

// Config holds registry client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client queries the recall registry. It is pure lookup: no local state,
// no mutation. Construct one at startup and inject it where needed.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  ectologger.Logger
}

// NewClient creates a new registry client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := httpclient.NewClient(httpclient.Config{
		Timeout:         timeout,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}, logger)

	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// cpscRecall mirrors the registry's wire format
type cpscRecall struct {
	RecallNumber string `json:"RecallNumber"`
	RecallDate   string `json:"RecallDate"`
	Products     []struct {
		Name string `json:"Name"`
	} `json:"Products"`
	Hazards []struct {
		Name string `json:"Name"`
	} `json:"Hazards"`
	Remedies []struct {
		Name string `json:"Name"`
	} `json:"Remedies"`
}

// Query looks up recalls for a brand/model pair. The category is translated
// to the registry's product taxonomy. An empty result is a successful "no
// recalls" answer, not an error.
func (c *Client) Query(ctx context.Context, brand, model, category string) ([]RawRecall, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Client.Query")
	defer span.End()

	start := time.Now()

	title := strings.TrimSpace(brand + " " + model)
	params := url.Values{}
	params.Set("format", "json")
	params.Set("ProductType", ProductType(category))
	params.Set("RecallTitle", title)

	resp, err := c.http.Get(ctx, c.baseURL+"/Recall?"+params.Encode(), nil)
	metrics.RegistryRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RegistryRequestsTotal.WithLabelValues("unavailable").Inc()
		c.logger.WithContext(ctx).WithError(err).Warnf("recall registry lookup failed for %q", title)
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.RegistryRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: rate limited", ErrRegistryUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RegistryRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	var raw []cpscRecall
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		metrics.RegistryRequestsTotal.WithLabelValues("unavailable").Inc()
		c.logger.WithContext(ctx).WithError(err).Warn("recall registry returned a malformed response")
		return nil, fmt.Errorf("%w: malformed response", ErrRegistryUnavailable)
	}

	recalls := make([]RawRecall, 0, len(raw))
	for _, r := range raw {
		recalls = append(recalls, convertRecall(r, title))
	}

	if len(recalls) > 0 {
		metrics.RegistryRequestsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.RegistryRequestsTotal.WithLabelValues("miss").Inc()
	}

	c.logger.WithContext(ctx).Debugf("recall registry returned %d entries for %q", len(recalls), title)
	return recalls, nil
}

func convertRecall(r cpscRecall, fallbackName string) RawRecall {
	rec := RawRecall{
		ID:          r.RecallNumber,
		ProductName: fallbackName,
		Hazard:      "Unknown hazard",
		Remedy:      "Contact manufacturer",
		Date:        parseRecallDate(r.RecallDate),
	}

	if len(r.Products) > 0 && r.Products[0].Name != "" {
		rec.ProductName = r.Products[0].Name
	}
	if len(r.Hazards) > 0 && r.Hazards[0].Name != "" {
		rec.Hazard = r.Hazards[0].Name
	}
	if len(r.Remedies) > 0 && r.Remedies[0].Name != "" {
		rec.Remedy = r.Remedies[0].Name
	}

	return rec
}

// parseRecallDate accepts the registry's date variants; unparseable dates
// fall back to now so the record still sorts as fresh.
func parseRecallDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
