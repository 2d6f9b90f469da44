package models

import (
	"time"
)

// RecallRecord is a cached safety recall as discovered from the recall
// registry. Rows are append-only; the registry stays the source of truth and
// records are never updated or deleted here.
type RecallRecord struct {
	RecallID    string    `db:"recall_id" json:"recall_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	Brand       string    `db:"brand" json:"brand"`
	Model       *string   `db:"model" json:"model,omitempty"`
	Hazard      string    `db:"hazard" json:"hazard"`
	Remedy      string    `db:"remedy" json:"remedy"`
	RecallDate  time.Time `db:"recall_date" json:"recall_date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (RecallRecord) TableName() string {
	return "safety_recalls"
}

// VerdictStatus is the tri-state outcome of a recall resolution
type VerdictStatus string

const (
	VerdictSafe     VerdictStatus = "safe"
	VerdictRecalled VerdictStatus = "recalled"
	VerdictUnknown  VerdictStatus = "unknown"
)

// RecallVerdict is the transient result of resolving a brand/model against
// recall data. Verdicts are produced fresh per resolution and never stored;
// only the underlying RecallRecord is cached.
type RecallVerdict struct {
	Status VerdictStatus `json:"status"`
	Notes  string        `json:"notes"`
	Recall *RecallRecord `json:"recall,omitempty"`
}

// Recalled reports whether the verdict confirmed a recall match
func (v RecallVerdict) Recalled() bool {
	return v.Status == VerdictRecalled
}
