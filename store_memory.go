package taxclean

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store held in process memory. Report versions are kept in
// an arena of immutable records; which one is active for a key, and which
// ones are archived, is indexed beside them.
//
// Reads return copies and may run concurrently with each other. Apply holds
// the write lock for the whole commit.
type MemoryStore struct {
	mu sync.RWMutex

	clients map[string]Client

	versions []*ReportVersion
	byID     map[string]int
	byKey    map[NaturalKey][]int
	active   map[NaturalKey]string
	archived map[string]archival

	taxReports map[string]*TaxReport // by account_year
	reportIDs  map[string]string     // id to account_year
	reportSeq  int

	events     []AuditEvent
	exceptions []Exception
	excIndex   map[string]int
}

type archival struct {
	at     time.Time
	reason string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.clients = make(map[string]Client)
	s.versions = nil
	s.byID = make(map[string]int)
	s.byKey = make(map[NaturalKey][]int)
	s.active = make(map[NaturalKey]string)
	s.archived = make(map[string]archival)
	s.taxReports = make(map[string]*TaxReport)
	s.reportIDs = make(map[string]string)
	s.reportSeq = 0
	s.events = nil
	s.exceptions = nil
	s.excIndex = make(map[string]int)
}

// Reset clears everything under one lock.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *MemoryStore) Client(accountID string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[accountID]
	return c.Clone(), ok
}

func (s *MemoryStore) Clients() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		list = append(list, c.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AccountID < list[j].AccountID })
	return list
}

// stored returns the view of the version at arena index i. Callers hold the lock.
func (s *MemoryStore) stored(i int) StoredVersion {
	v := s.versions[i]
	sv := StoredVersion{ReportVersion: v, IsActive: s.active[v.NaturalKey] == v.ID}
	if a, ok := s.archived[v.ID]; ok {
		at := a.at
		sv.ArchivedAt, sv.ArchivedReason = &at, a.reason
	}
	return sv
}

func (s *MemoryStore) Versions(k NaturalKey) []StoredVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]StoredVersion, 0, len(s.byKey[k]))
	for _, i := range s.byKey[k] {
		list = append(list, s.stored(i))
	}
	return list
}

func (s *MemoryStore) ActiveVersion(k NaturalKey) (StoredVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[k]
	if !ok {
		return StoredVersion{}, false
	}
	return s.stored(s.byID[id]), true
}

func (s *MemoryStore) Version(id string) (StoredVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return StoredVersion{}, false
	}
	return s.stored(i), true
}

func (s *MemoryStore) AccountVersions(accountID string) []StoredVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []StoredVersion
	for i, v := range s.versions {
		if v.NaturalKey.AccountID == accountID {
			list = append(list, s.stored(i))
		}
	}
	return list
}

func cloneTaxReport(r *TaxReport) TaxReport {
	c := *r
	c.SourceFiles = append([]string(nil), r.SourceFiles...)
	return c
}

func (s *MemoryStore) TaxReport(id string) (TaxReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.reportIDs[id]
	if !ok {
		return TaxReport{}, false
	}
	return cloneTaxReport(s.taxReports[key]), true
}

func (s *MemoryStore) TaxReportFor(accountID string, year TaxYear) (TaxReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.taxReports[taxReportKey(accountID, year)]
	if !ok {
		return TaxReport{}, false
	}
	return cloneTaxReport(r), true
}

func (s *MemoryStore) TaxReports(f TaxReportFilter) []TaxReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []TaxReport{}
	for _, r := range s.taxReports {
		if f.match(r) {
			list = append(list, cloneTaxReport(r))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AccountID != list[j].AccountID {
			return list[i].AccountID < list[j].AccountID
		}
		return list[i].Year < list[j].Year
	})
	return list
}

func (s *MemoryStore) Events(f EventFilter) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []AuditEvent{}
	for i := range s.events {
		if f.match(&s.events[i]) {
			list = append(list, s.events[i])
		}
	}
	return list
}

func (s *MemoryStore) Exceptions(f ExceptionFilter) []Exception {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []Exception{}
	for i := range s.exceptions {
		if f.match(&s.exceptions[i]) {
			list = append(list, s.exceptions[i])
		}
	}
	return list
}

func (s *MemoryStore) Exception(id string) (Exception, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.excIndex[id]
	if !ok {
		return Exception{}, false
	}
	return s.exceptions[i], true
}

// plan is the checked outcome of a changeset, ready to be committed.
type plan struct {
	versions []*ReportVersion
	counts   map[NaturalKey]int
	active   map[NaturalKey]string
	archive  map[string]archival
	archived []string

	reports     map[string]TaxReport
	reportOrder []string
	reportSeq   int
	generated   []string
	transitions []transitioned
}

type transitioned struct {
	t Transition
	r TaxReport
}

func (p *plan) putReport(key string, r TaxReport) {
	if _, ok := p.reports[key]; !ok {
		p.reportOrder = append(p.reportOrder, key)
	}
	p.reports[key] = r
}

// plan checks every precondition of c against the current state without
// writing anything. Callers hold the write lock.
func (s *MemoryStore) plan(c *Changeset) (*plan, error) {
	p := &plan{
		counts:    make(map[NaturalKey]int),
		active:    make(map[NaturalKey]string),
		archive:   make(map[string]archival),
		reports:   make(map[string]TaxReport),
		reportSeq: s.reportSeq,
	}
	activeID := func(k NaturalKey) string {
		if id, ok := p.active[k]; ok {
			return id
		}
		return s.active[k]
	}
	archive := func(id, by string) {
		if _, done := s.archived[id]; done {
			return
		}
		if _, done := p.archive[id]; done {
			return
		}
		p.archive[id] = archival{at: c.Time, reason: "Superseded by " + by}
		p.archived = append(p.archived, id)
	}

	for _, w := range c.versions {
		v := w.version
		k := v.NaturalKey
		n, ok := p.counts[k]
		if !ok {
			n = len(s.byKey[k])
		}
		if v.Version != n+1 {
			return nil, fmt.Errorf("version %d of %s, store is at %d: %w", v.Version, k, n, ErrStaleClassification)
		}
		if _, dup := s.byID[v.ID]; dup || v.ID == "" {
			return nil, fmt.Errorf("version id %q already used: %w", v.ID, ErrStaleClassification)
		}
		if w.activate {
			if cur := activeID(k); cur != w.expectActive {
				return nil, fmt.Errorf("active version of %s is %q, expected %q: %w", k, cur, w.expectActive, ErrStaleClassification)
			}
			for _, i := range s.byKey[k] {
				archive(s.versions[i].ID, v.ID)
			}
			for _, pv := range p.versions {
				if pv.NaturalKey == k {
					archive(pv.ID, v.ID)
				}
			}
			p.active[k] = v.ID
		}
		p.counts[k] = n + 1
		p.versions = append(p.versions, v)
	}

	lookup := func(key string) (TaxReport, bool) {
		if r, ok := p.reports[key]; ok {
			return r, true
		}
		if r, ok := s.taxReports[key]; ok {
			return cloneTaxReport(r), true
		}
		return TaxReport{}, false
	}
	for _, in := range c.taxReports {
		key := taxReportKey(in.AccountID, in.Year)
		var r TaxReport
		if prev, ok := lookup(key); ok {
			r = in.regenerate(&prev, "", c.Time)
		} else {
			p.reportSeq++
			r = in.regenerate(nil, taxReportID(p.reportSeq), c.Time)
		}
		p.putReport(key, r)
		p.generated = append(p.generated, key)
	}

	for _, t := range c.transitions {
		key, ok := s.reportIDs[t.ReportID]
		if !ok {
			for k, r := range p.reports {
				if r.ID == t.ReportID {
					key, ok = k, true
				}
			}
		}
		if !ok {
			return nil, fmt.Errorf("tax report %q: %w", t.ReportID, ErrNotFound)
		}
		cur, _ := lookup(key)
		next, err := t.apply(cur, c.Time)
		if err != nil {
			return nil, err
		}
		p.putReport(key, next)
		p.transitions = append(p.transitions, transitioned{t: t, r: next})
	}

	for _, a := range c.audit {
		if a.resolution == nil {
			continue
		}
		if _, ok := s.excIndex[a.resolution.id]; !ok {
			return nil, fmt.Errorf("exception %q: %w", a.resolution.id, ErrNotFound)
		}
	}
	return p, nil
}

// Apply commits c atomically.
func (s *MemoryStore) Apply(c *Changeset) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.plan(c)
	if err != nil {
		return Receipt{}, err
	}

	var rcpt Receipt
	for _, cl := range c.clients {
		s.clients[cl.AccountID] = cl.Clone()
	}

	for _, v := range p.versions {
		i := len(s.versions)
		s.versions = append(s.versions, v)
		s.byID[v.ID] = i
		s.byKey[v.NaturalKey] = append(s.byKey[v.NaturalKey], i)
	}
	for id, a := range p.archive {
		s.archived[id] = a
	}
	for k, id := range p.active {
		s.active[k] = id
	}
	for _, v := range p.versions {
		rcpt.Versions = append(rcpt.Versions, s.stored(s.byID[v.ID]))
	}
	rcpt.Archived = p.archived

	for _, key := range p.reportOrder {
		r := p.reports[key]
		s.taxReports[key] = &r
		s.reportIDs[r.ID] = key
	}
	s.reportSeq = p.reportSeq
	for _, key := range p.generated {
		rcpt.TaxReports = append(rcpt.TaxReports, cloneTaxReport(s.taxReports[key]))
	}

	for _, t := range p.transitions {
		details := map[string]any{"report_id": t.r.ID, "status": t.r.Status.String(), "actor": t.t.Actor}
		if t.t.Actor == "" {
			details["actor"] = DefaultActor
		}
		if t.r.ReviewNotes != "" {
			details["notes"] = t.r.ReviewNotes
		}
		rcpt.Events = append(rcpt.Events, s.appendEvent(AuditEvent{
			Type: t.t.event(), AccountID: t.r.AccountID, RunID: c.RunID, Timestamp: c.Time, Details: details,
		}))
	}

	for _, a := range c.audit {
		switch {
		case a.event != nil:
			rcpt.Events = append(rcpt.Events, s.appendEvent(*a.event))

		case a.exception != nil:
			e := *a.exception
			e.ID = exceptionID(len(s.exceptions) + 1)
			s.excIndex[e.ID] = len(s.exceptions)
			s.exceptions = append(s.exceptions, e)
			rcpt.Exceptions = append(rcpt.Exceptions, e)
			rcpt.Events = append(rcpt.Events, s.appendEvent(AuditEvent{
				Type:      EventExceptionCreated,
				AccountID: e.AccountID,
				RunID:     e.RunID,
				Timestamp: c.Time,
				Details: map[string]any{
					"exception_id":   e.ID,
					"exception_type": string(e.Type),
					"severity":       e.Severity.String(),
					"detail":         e.Detail,
				},
			}))

		case a.resolution != nil:
			e := &s.exceptions[s.excIndex[a.resolution.id]]
			at := c.Time
			e.Status = ExceptionResolved
			e.Resolution = a.resolution.resolution
			e.ResolutionNotes = a.resolution.notes
			e.ResolvedAt = &at
			rcpt.Resolved = append(rcpt.Resolved, *e)
			rcpt.Events = append(rcpt.Events, s.appendEvent(AuditEvent{
				Type:      EventExceptionResolved,
				AccountID: e.AccountID,
				RunID:     c.RunID,
				Timestamp: c.Time,
				Details: map[string]any{
					"exception_id":   e.ID,
					"exception_type": string(e.Type),
					"resolution":     e.Resolution.String(),
					"notes":          e.ResolutionNotes,
				},
			}))
		}
	}
	return rcpt, nil
}

// appendEvent assigns the next id to e and appends it. Callers hold the write lock.
func (s *MemoryStore) appendEvent(e AuditEvent) AuditEvent {
	e.ID = eventID(len(s.events) + 1)
	s.events = append(s.events, e)
	return e
}
