package taxclean

import (
	"fmt"
	"time"
)

// AuditEvent is one immutable line of the audit trail.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"event_type"`
	AccountID string         `json:"account_id"`
	RunID     string         `json:"run_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Exception is an anomaly waiting for a human decision. Once raised, only its
// resolution can change.
type Exception struct {
	ID              string          `json:"id"`
	Type            ExceptionType   `json:"type"`
	Severity        Severity        `json:"severity"`
	AccountID       string          `json:"account_id"`
	Detail          string          `json:"detail"`
	Context         map[string]any  `json:"context,omitempty"`
	Status          ExceptionStatus `json:"status"`
	RunID           string          `json:"run_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Resolution      Resolution      `json:"resolution,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// ExceptionFilter selects exceptions. Zero fields match everything.
type ExceptionFilter struct {
	Status    ExceptionStatus
	AccountID string
	Type      ExceptionType
	Severity  Severity
}

func (f ExceptionFilter) match(e *Exception) bool {
	return (f.Status == 0 || e.Status == f.Status) &&
		(f.AccountID == "" || e.AccountID == f.AccountID) &&
		(f.Type == "" || e.Type == f.Type) &&
		(f.Severity == 0 || e.Severity == f.Severity)
}

// EventFilter selects audit events. Zero fields match everything.
type EventFilter struct {
	AccountID string
	Type      EventType
	RunID     string
}

func (f EventFilter) match(e *AuditEvent) bool {
	return (f.AccountID == "" || e.AccountID == f.AccountID) &&
		(f.Type == "" || e.Type == f.Type) &&
		(f.RunID == "" || e.RunID == f.RunID)
}

func eventID(n int) string     { return fmt.Sprintf("AUD-%05d", n) }
func exceptionID(n int) string { return fmt.Sprintf("EXC-%05d", n) }
func taxReportID(n int) string { return fmt.Sprintf("TR-%04d", n) }

// AuditLog is the append-only event and exception log on top of a Store.
// Each call is committed on its own.
type AuditLog struct {
	store Store
	clock func() time.Time
}

// NewAuditLog returns an AuditLog writing to s.
func NewAuditLog(s Store) *AuditLog {
	return &AuditLog{store: s, clock: time.Now}
}

// LogEvent appends an event and returns it with its id and timestamp.
func (l *AuditLog) LogEvent(t EventType, accountID string, details map[string]any) (AuditEvent, error) {
	c := NewChangeset(l.clock(), "")
	c.LogEvent(t, accountID, details)
	r, err := l.store.Apply(c)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("could not log %s event: %w", t, err)
	}
	return r.Events[0], nil
}

// CreateException raises an open exception. An EXCEPTION_CREATED event is
// always logged with it.
func (l *AuditLog) CreateException(f Finding, accountID string, severity Severity) (Exception, error) {
	c := NewChangeset(l.clock(), "")
	c.CreateException(f, accountID, severity)
	r, err := l.store.Apply(c)
	if err != nil {
		return Exception{}, fmt.Errorf("could not create %s exception: %w", f.Type, err)
	}
	return r.Exceptions[0], nil
}

// ResolveException closes an exception with a decision. It returns
// ErrNotFound, and logs nothing, when id is unknown.
func (l *AuditLog) ResolveException(id string, resolution Resolution, notes string) (Exception, error) {
	c := NewChangeset(l.clock(), "")
	c.ResolveException(id, resolution, notes)
	r, err := l.store.Apply(c)
	if err != nil {
		return Exception{}, fmt.Errorf("could not resolve exception %q: %w", id, err)
	}
	return r.Resolved[0], nil
}

// Exceptions lists the exceptions matching f, oldest first.
func (l *AuditLog) Exceptions(f ExceptionFilter) []Exception { return l.store.Exceptions(f) }

// Events lists the events matching f, oldest first.
func (l *AuditLog) Events(f EventFilter) []AuditEvent { return l.store.Events(f) }
