package taxclean

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ReportVersion is one stored submission with the results computed for it.
// A ReportVersion is never modified once stored: whether it is active or
// archived is tracked by the store beside it.
type ReportVersion struct {
	ID          string      `json:"id"`
	NaturalKey  NaturalKey  `json:"natural_key"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Version     int         `json:"version"`
	State       ReportState `json:"state"`
	RunID       string      `json:"run_id"`
	Source      string      `json:"source,omitempty"`

	Submission     *Submission          `json:"submission"`
	Validation     ValidationResult     `json:"validation"`
	Reconciliation ReconciliationResult `json:"reconciliation"`
	Tax            TaxResult            `json:"tax"`

	StoredAt time.Time `json:"stored_at"`
	// Held versions are kept for the audit trail but never become active.
	Held       bool   `json:"held,omitempty"`
	HeldReason string `json:"held_reason,omitempty"`
}

// VersionID returns the id of version n of a natural key. Account and year
// are kept readable; the short digest of the whole key tells apart the
// statements of one year that differ in period or report type.
func VersionID(k NaturalKey, n int) string {
	sum := sha256.Sum256([]byte(k.String()))
	return fmt.Sprintf("RPT-%s-%d-%x-v%d", k.AccountID, k.Year, sum[:3], n)
}

// StoredVersion is a ReportVersion with its current status in the store.
type StoredVersion struct {
	*ReportVersion
	IsActive       bool       `json:"is_active"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	ArchivedReason string     `json:"archived_reason,omitempty"`
}

// Archived reports whether the version was superseded by a revision.
func (v StoredVersion) Archived() bool { return v.ArchivedAt != nil }
