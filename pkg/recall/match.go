// Package recall implements the recall resolution pipeline: an explicit
// matching heuristic over brand/model strings, and a resolver that combines
// the local recall store with the external registry into a tri-state verdict.
package recall

import (
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/grayleopard/safeswap/pkg/models"
)

// Normalize prepares a brand or model string for comparison
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// compact additionally strips interior whitespace. Sellers write
// "SnugRide 35" and "SnugRide35" interchangeably; model comparison has to
// survive both.
func compact(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// Matches reports whether a cached recall record applies to a submitted
// brand/model pair. Brands must match exactly (case-insensitive). Models
// match either exactly or as a substring of the recall's product name;
// sellers type model numbers inconsistently ("SnugRide 35" vs "SnugRide35
// Elite") and a false positive is far cheaper than a missed recall.
// An empty submitted model only matches brand-wide records with no model.
func Matches(brand, model string, rec models.RecallRecord) bool {
	nb := Normalize(brand)
	if nb == "" || nb != Normalize(rec.Brand) {
		return false
	}

	nm := compact(model)
	recModel := ""
	if rec.Model != nil {
		recModel = compact(*rec.Model)
	}

	if nm == "" {
		return recModel == ""
	}

	if nm == recModel {
		return true
	}

	return strings.Contains(compact(rec.ProductName), nm)
}

// BestMatch selects the applicable record with the most recent recall date,
// or nil when none match.
func BestMatch(brand, model string, records []models.RecallRecord) *models.RecallRecord {
	matched := ectolinq.Filter(records, func(rec models.RecallRecord) bool {
		return Matches(brand, model, rec)
	})
	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RecallDate.After(matched[j].RecallDate)
	})
	return &matched[0]
}
