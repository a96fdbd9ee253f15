package taxclean

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the processing of one submission.
const DefaultTimeout = 30 * time.Second

// Pipeline processes submissions against a Store. It is safe for concurrent
// use: submissions of one account are processed one at a time, other
// accounts in parallel.
type Pipeline struct {
	store     Store
	audit     *AuditLog
	log       *zap.Logger
	rules     TaxRules
	reconcile ReconcileOptions
	timeout   time.Duration
	clock     func() time.Time
	newRunID  func() string

	// resetMu is held for reading by every write so that Reset never
	// interleaves with a commit.
	resetMu sync.RWMutex
	locks   accountLocks
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default logs nothing.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithTaxRules sets the tax rules. The default is IsraeliRules.
func WithTaxRules(r TaxRules) Option {
	return func(p *Pipeline) { p.rules = r }
}

// WithReconcileOptions sets the reconciliation fields and tolerance.
func WithReconcileOptions(o ReconcileOptions) Option {
	return func(p *Pipeline) { p.reconcile = o }
}

// WithTimeout bounds the processing of one submission.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithClock sets the clock used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithRunIDs sets the generator of run ids. The default is random UUIDs.
func WithRunIDs(next func() string) Option {
	return func(p *Pipeline) { p.newRunID = next }
}

// NewPipeline returns a pipeline over s.
func NewPipeline(s Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     s,
		log:       zap.NewNop(),
		rules:     IsraeliRules(),
		reconcile: DefaultReconcileOptions(),
		timeout:   DefaultTimeout,
		clock:     time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.audit = &AuditLog{store: s, clock: p.clock}
	return p
}

// Store returns the store the pipeline writes to.
func (p *Pipeline) Store() Store { return p.store }

// accountLocks serializes work per account id. Entries are dropped when no
// one holds or waits for them.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func (l *accountLocks) lock(account string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*accountLock)
	}
	al, ok := l.m[account]
	if !ok {
		al = &accountLock{}
		l.m[account] = al
	}
	al.refs++
	l.mu.Unlock()

	al.Lock()
	return func() {
		al.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.m, account)
		}
		l.mu.Unlock()
	}
}

// Process runs one submission through identity resolution, classification,
// validation, reconciliation and tax derivation, then commits everything it
// produced in a single write. It always returns a complete Outcome; failures
// are reported as an ERROR outcome with nothing written but the error event.
func (p *Pipeline) Process(ctx context.Context, s *Submission, source string) (out Outcome) {
	start := time.Now()
	out = Outcome{RunID: p.newRunID(), Source: source, ExceptionIDs: []string{}}
	if s != nil && s.Header != nil {
		out.AccountID, out.Year = s.Header.AccountID, s.Header.Year
	}
	log := p.log.With(zap.String("run_id", out.RunID), zap.String("account_id", out.AccountID), zap.String("source", source))
	defer func() {
		out.ProcessingTime = time.Since(start)
		log.Info("submission processed",
			zap.Stringer("status", out.OverallStatus),
			zap.Stringer("state", out.Classification.State),
			zap.Duration("elapsed", out.ProcessingTime))
	}()

	if s == nil || s.Header == nil || s.Header.AccountID == "" {
		p.fail(&out, log, ErrNoHeader)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.resetMu.RLock()
	defer p.resetMu.RUnlock()
	unlock := p.locks.lock(out.AccountID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		p.fail(&out, log, fmt.Errorf("processing not started: %w", err))
		return out
	}
	c, err := p.prepare(s, &out, log)
	if err != nil {
		p.fail(&out, log, err)
		return out
	}
	if err := ctx.Err(); err != nil {
		p.fail(&out, log, fmt.Errorf("processing overran its deadline: %w", err))
		return out
	}
	rcpt, err := p.store.Apply(c)
	if err != nil {
		p.fail(&out, log, fmt.Errorf("could not commit submission: %w", err))
		return out
	}

	out.ExceptionIDs = rcpt.ExceptionIDs()
	out.Storage.Archived = rcpt.Archived
	if len(rcpt.TaxReports) > 0 {
		out.Storage.TaxReportID = rcpt.TaxReports[0].ID
	}
	return out
}

// fail turns out into an ERROR outcome and logs the PROCESSING_ERROR event.
func (p *Pipeline) fail(out *Outcome, log *zap.Logger, err error) {
	log.Error("submission failed", zap.Error(err))
	out.OverallStatus = OutcomeError
	out.Error = err.Error()
	out.Storage = StorageResult{Reason: "error"}
	out.ExceptionIDs = []string{}
	if out.Validation.Status == 0 {
		out.Validation = SkippedValidation("Processing error")
	}
	if out.Reconciliation.Status == 0 {
		out.Reconciliation = SkippedReconciliation("Processing error")
	}
	if out.Tax.Status == 0 {
		out.Tax = TaxStep{Status: TaxSkipped, Reason: "Processing error"}
	}

	c := NewChangeset(p.clock(), out.RunID)
	c.LogEvent(EventProcessingError, out.AccountID, map[string]any{"error": out.Error, "source": out.Source})
	if _, err := p.store.Apply(c); err != nil {
		log.Error("could not log processing error", zap.Error(err))
	}
}

// prepare computes every result of the submission and collects the writes
// in a changeset. It does not write.
func (p *Pipeline) prepare(s *Submission, out *Outcome, log *zap.Logger) (c *Changeset, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("processing panicked: %v", r)
		}
	}()

	now := p.clock()
	h := s.Header
	acct := h.AccountID
	c = NewChangeset(now, out.RunID)

	res := ResolveClient(p.store, h, now)
	out.Client = ClientStep{Action: res.Action, Conflict: res.Conflict}
	if cf := res.Conflict; cf != nil {
		c.CreateException(Finding{
			Type:   IdentityConflict,
			Detail: fmt.Sprintf("Username conflict: existing=%q incoming=%q", cf.ExistingUsername, cf.IncomingUsername),
			Context: map[string]any{
				"account_id":        cf.AccountID,
				"existing_username": cf.ExistingUsername,
				"incoming_username": cf.IncomingUsername,
			},
		}, acct, SeverityHigh)
	}
	log.Debug("client resolved", zap.Stringer("action", res.Action))

	cl := Classify(p.store, s)
	out.Classification = cl
	log = log.With(zap.String("natural_key", cl.NaturalKey.String()))
	log.Debug("report classified", zap.Stringer("state", cl.State), zap.String("fingerprint", cl.Fingerprint.Short()))
	c.LogEvent(EventReportIngested, acct, map[string]any{
		"report_state": cl.State.String(),
		"fingerprint":  string(cl.Fingerprint),
		"natural_key":  cl.NaturalKey.String(),
		"source_file":  h.SourceFileName,
	})

	if cl.State == StateDuplicate {
		c.LogEvent(EventDuplicateSkipped, acct, map[string]any{
			"duplicate_of": cl.DuplicateOf,
			"detail":       "Duplicate of existing report, no reprocessing needed",
		})
		out.Validation = SkippedValidation("Duplicate report")
		out.Reconciliation = SkippedReconciliation("Duplicate report")
		out.Tax = TaxStep{Status: TaxSkipped, Reason: "Duplicate report"}
		out.Storage = StorageResult{Reason: "duplicate"}
		out.OverallStatus = overallStatus(out)
		return c, nil
	}

	v := Validate(s)
	out.Validation = v
	for _, f := range v.Findings {
		c.CreateException(f, acct, 0)
	}
	c.LogEvent(EventValidationCompleted, acct, map[string]any{
		"validation_status": v.Status.String(),
		"checks":            v.Checks,
		"warnings":          len(v.Warnings),
	})
	log.Debug("report validated", zap.Stringer("status", v.Status), zap.Int("findings", len(v.Findings)))

	r := Reconcile(s, p.reconcile)
	out.Reconciliation = r
	for _, d := range r.Mismatches() {
		c.CreateException(Finding{
			Type:   TotalsMismatch(d.Field),
			Detail: d.Message,
			Context: map[string]any{
				"field":       d.Field,
				"monthly_sum": d.MonthlySum.String(),
				"grand_total": d.GrandTotal.String(),
				"difference":  d.Difference.String(),
			},
		}, acct, SeverityHigh)
	}
	c.LogEvent(EventReconciliationCompleted, acct, map[string]any{
		"reconciliation_status": r.Status.String(),
		"checks":                r.Checks,
	})
	log.Debug("report reconciled", zap.Stringer("status", r.Status))

	state := cl.State
	if res.Conflict != nil {
		state = StateConflict
	}
	tax := Derive(s, v, r, state, p.rules)
	out.Tax = TaxStep{Status: tax.Status, Reason: tax.Reason, Preview: tax.Preview}
	c.LogEvent(EventTaxGenerated, acct, map[string]any{"tax_cleaned_status": tax.Status.String(), "reason": tax.Reason})
	log.Debug("tax derived", zap.Stringer("status", tax.Status))

	held := state == StateConflict
	version := &ReportVersion{
		ID:             VersionID(cl.NaturalKey, cl.NextVersion),
		NaturalKey:     cl.NaturalKey,
		Fingerprint:    cl.Fingerprint,
		Version:        cl.NextVersion,
		State:          cl.State,
		RunID:          out.RunID,
		Source:         out.Source,
		Submission:     s.Clone(),
		Validation:     v,
		Reconciliation: r,
		Tax:            tax,
		StoredAt:       now,
		Held:           held,
	}
	if held {
		version.HeldReason = heldReason(cl, res.Conflict)
	}
	c.AddVersion(version, !held, cl.ActiveVersionID)
	out.Storage = StorageResult{
		Stored:    true,
		Active:    !held,
		VersionID: version.ID,
		Version:   version.Version,
		Reason:    version.HeldReason,
	}
	if cl.State == StateRevision && !held {
		c.LogEvent(EventPriorVersionArchived, acct, map[string]any{
			"new_version_id": version.ID,
			"prior_versions": cl.PriorVersions,
		})
	}

	if res.Conflict == nil {
		client := res.Client
		if !held {
			client.RecordReport(h.Year, now)
		}
		c.PutClient(client)
	}

	if tax.Status == TaxGenerated {
		c.PutTaxReport(TaxReportInput{
			AccountID:  acct,
			Year:       h.Year,
			ClientName: h.ClientDisplayName,
			Data:       tax.Data,
			SourceFile: h.SourceFileName,
			VersionID:  version.ID,
		})
	}

	out.OverallStatus = overallStatus(out)
	c.LogEvent(EventProcessingCompleted, acct, map[string]any{
		"report_state":          cl.State.String(),
		"validation_status":     v.Status.String(),
		"reconciliation_status": r.Status.String(),
		"tax_cleaned_status":    tax.Status.String(),
		"stored":                true,
		"active":                !held,
		"overall_status":        out.OverallStatus.String(),
	})
	return c, nil
}

func heldReason(cl Classification, conflict *IdentityConflictDetail) string {
	if conflict != nil {
		return fmt.Sprintf("Held for review: username %q does not match %q on file", conflict.IncomingUsername, conflict.ExistingUsername)
	}
	return fmt.Sprintf("Held for review: %s with %s", cl.ConflictReason, cl.ConflictWith)
}

// Clients lists the clients, sorted by account id.
func (p *Pipeline) Clients() []Client { return p.store.Clients() }

// ClientDetail is everything on file for one client.
type ClientDetail struct {
	Client         Client          `json:"client"`
	Versions       []StoredVersion `json:"versions"`
	ActiveVersions []StoredVersion `json:"active_versions"`
	TaxReports     []TaxReport     `json:"tax_reports"`
	Events         []AuditEvent    `json:"audit_events"`
	Exceptions     []Exception     `json:"exceptions"`
}

// ClientDetail returns the client of an account with its versions, tax
// reports, audit events and exceptions.
func (p *Pipeline) ClientDetail(accountID string) (ClientDetail, error) {
	c, ok := p.store.Client(accountID)
	if !ok {
		return ClientDetail{}, fmt.Errorf("client %q: %w", accountID, ErrNotFound)
	}
	d := ClientDetail{
		Client:         c,
		Versions:       p.store.AccountVersions(accountID),
		ActiveVersions: []StoredVersion{},
		TaxReports:     p.store.TaxReports(TaxReportFilter{AccountID: accountID}),
		Events:         p.store.Events(EventFilter{AccountID: accountID}),
		Exceptions:     p.store.Exceptions(ExceptionFilter{AccountID: accountID}),
	}
	for _, v := range d.Versions {
		if v.IsActive {
			d.ActiveVersions = append(d.ActiveVersions, v)
		}
	}
	return d, nil
}

// Exceptions lists the exceptions matching f.
func (p *Pipeline) Exceptions(f ExceptionFilter) []Exception { return p.audit.Exceptions(f) }

// Events lists the audit events matching f.
func (p *Pipeline) Events(f EventFilter) []AuditEvent { return p.audit.Events(f) }

// ResolveException closes an exception with a human decision.
func (p *Pipeline) ResolveException(id string, r Resolution, notes string) (Exception, error) {
	p.resetMu.RLock()
	defer p.resetMu.RUnlock()
	e, err := p.audit.ResolveException(id, r, notes)
	if err == nil {
		p.log.Info("exception resolved", zap.String("exception_id", id), zap.Stringer("resolution", r))
	}
	return e, err
}

// TaxReports lists the tax reports matching f.
func (p *Pipeline) TaxReports(f TaxReportFilter) []TaxReport { return p.store.TaxReports(f) }

// TaxReport returns a tax report by id.
func (p *Pipeline) TaxReport(id string) (TaxReport, error) {
	r, ok := p.store.TaxReport(id)
	if !ok {
		return TaxReport{}, fmt.Errorf("tax report %q: %w", id, ErrNotFound)
	}
	return r, nil
}

// TaxReportStats summarizes the tax reports on file.
func (p *Pipeline) TaxReportStats() TaxReportStats {
	return ComputeTaxReportStats(p.store.TaxReports(TaxReportFilter{}))
}

// ApproveTaxReport approves a draft or flagged report.
func (p *Pipeline) ApproveTaxReport(id, actor, notes string) (TaxReport, error) {
	return p.transition(Transition{ReportID: id, To: Approved, Actor: actor, Notes: notes})
}

// RejectTaxReport rejects a draft or flagged report.
func (p *Pipeline) RejectTaxReport(id, actor, notes string) (TaxReport, error) {
	return p.transition(Transition{ReportID: id, To: Rejected, Actor: actor, Notes: notes})
}

// FlagTaxReport sends a report back to review.
func (p *Pipeline) FlagTaxReport(id, actor, notes string) (TaxReport, error) {
	return p.transition(Transition{ReportID: id, To: NeedsReview, Actor: actor, Notes: notes})
}

func (p *Pipeline) transition(t Transition) (TaxReport, error) {
	p.resetMu.RLock()
	defer p.resetMu.RUnlock()
	c := NewChangeset(p.clock(), "")
	c.TransitionTaxReport(t)
	if _, err := p.store.Apply(c); err != nil {
		return TaxReport{}, fmt.Errorf("could not move tax report %q to %s: %w", t.ReportID, t.To, err)
	}
	p.log.Info("tax report transitioned", zap.String("report_id", t.ReportID), zap.Stringer("status", t.To))
	return p.TaxReport(t.ReportID)
}

// Reset clears the whole state. It waits for in-flight submissions to
// commit and blocks new ones until done.
func (p *Pipeline) Reset() {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()
	p.store.Reset()
	p.log.Warn("state reset")
}
