package taxclean

import (
	"time"
)

// ClientStore is the read side of the client registry.
type ClientStore interface {
	// Client returns the client of an account.
	Client(accountID string) (Client, bool)
	// Clients returns every client, sorted by account id.
	Clients() []Client
}

// VersionStore is the read side of the report version history.
type VersionStore interface {
	// Versions returns every version of a natural key, by version number.
	Versions(k NaturalKey) []StoredVersion
	// ActiveVersion returns the active version of a natural key.
	ActiveVersion(k NaturalKey) (StoredVersion, bool)
	// Version returns a version by id.
	Version(id string) (StoredVersion, bool)
	// AccountVersions returns every version of an account, in storage order.
	AccountVersions(accountID string) []StoredVersion
}

// TaxReportStore is the read side of the tax reports.
type TaxReportStore interface {
	TaxReport(id string) (TaxReport, bool)
	TaxReportFor(accountID string, year TaxYear) (TaxReport, bool)
	// TaxReports returns the reports matching f, sorted by account then year.
	TaxReports(f TaxReportFilter) []TaxReport
}

// AuditStore is the read side of the audit trail.
type AuditStore interface {
	Events(f EventFilter) []AuditEvent
	Exceptions(f ExceptionFilter) []Exception
	Exception(id string) (Exception, bool)
}

// Store holds the whole state of the pipeline. All writes go through Apply,
// which commits a Changeset entirely or not at all.
type Store interface {
	ClientStore
	VersionStore
	TaxReportStore
	AuditStore

	// Apply checks every precondition of c and then commits it. On error
	// nothing is written.
	Apply(c *Changeset) (Receipt, error)
	// Reset clears the clients, versions, tax reports, audit events,
	// exceptions and id counters at once.
	Reset()
}

// Changeset is a set of writes committed together by Store.Apply. Audit
// events and exceptions are recorded in the order they were added.
type Changeset struct {
	Time  time.Time
	RunID string

	clients     []Client
	versions    []versionWrite
	taxReports  []TaxReportInput
	transitions []Transition
	audit       []auditWrite
}

type versionWrite struct {
	version *ReportVersion
	// activate archives every earlier version of the key and makes this one
	// active.
	activate bool
	// expectActive is the id of the active version seen when the version
	// was prepared, empty when there was none.
	expectActive string
}

// auditWrite is exactly one of an event, an exception or a resolution.
type auditWrite struct {
	event      *AuditEvent
	exception  *Exception
	resolution *resolutionWrite
}

type resolutionWrite struct {
	id         string
	resolution Resolution
	notes      string
}

// NewChangeset returns an empty changeset stamped with now and runID.
func NewChangeset(now time.Time, runID string) *Changeset {
	return &Changeset{Time: now, RunID: runID}
}

// PutClient creates or replaces a client.
func (c *Changeset) PutClient(cl Client) *Changeset {
	c.clients = append(c.clients, cl.Clone())
	return c
}

// AddVersion appends v to its natural key history. v.Version must be the
// next version number of the key. When activate is set, every earlier
// version of the key is archived, and expectActive must still be the active
// version id.
func (c *Changeset) AddVersion(v *ReportVersion, activate bool, expectActive string) *Changeset {
	c.versions = append(c.versions, versionWrite{version: v, activate: activate, expectActive: expectActive})
	return c
}

// PutTaxReport generates or regenerates the tax report of an account and year.
func (c *Changeset) PutTaxReport(in TaxReportInput) *Changeset {
	c.taxReports = append(c.taxReports, in)
	return c
}

// TransitionTaxReport changes the workflow status of a tax report and logs
// the matching event.
func (c *Changeset) TransitionTaxReport(t Transition) *Changeset {
	c.transitions = append(c.transitions, t)
	return c
}

// LogEvent appends an audit event.
func (c *Changeset) LogEvent(t EventType, accountID string, details map[string]any) *Changeset {
	c.audit = append(c.audit, auditWrite{event: &AuditEvent{
		Type:      t,
		AccountID: accountID,
		RunID:     c.RunID,
		Timestamp: c.Time,
		Details:   details,
	}})
	return c
}

// CreateException raises an open exception from a finding. The store logs
// the EXCEPTION_CREATED event right after it.
func (c *Changeset) CreateException(f Finding, accountID string, severity Severity) *Changeset {
	if severity == 0 {
		severity = f.Type.DefaultSeverity()
	}
	c.audit = append(c.audit, auditWrite{exception: &Exception{
		Type:      f.Type,
		Severity:  severity,
		AccountID: accountID,
		Detail:    f.Detail,
		Context:   f.Context,
		Status:    ExceptionOpen,
		RunID:     c.RunID,
		CreatedAt: c.Time,
	}})
	return c
}

// ResolveException closes an open exception. The store logs the
// EXCEPTION_RESOLVED event right after it.
func (c *Changeset) ResolveException(id string, r Resolution, notes string) *Changeset {
	c.audit = append(c.audit, auditWrite{resolution: &resolutionWrite{id: id, resolution: r, notes: notes}})
	return c
}

// Receipt reports what Apply wrote, with the ids assigned by the store.
type Receipt struct {
	Events     []AuditEvent
	Exceptions []Exception
	Resolved   []Exception
	Versions   []StoredVersion
	// Archived lists the ids of the versions archived by this commit.
	Archived   []string
	TaxReports []TaxReport
}

// ExceptionIDs returns the ids of the exceptions created.
func (r Receipt) ExceptionIDs() []string {
	ids := make([]string, len(r.Exceptions))
	for i, e := range r.Exceptions {
		ids[i] = e.ID
	}
	return ids
}
