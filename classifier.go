package taxclean

// ConflictYearMismatch is the conflict reason of a submission whose year
// disagrees with the active version of the same statement.
const ConflictYearMismatch = "YEAR_MISMATCH"

// Classification is the state of a submission against stored history.
type Classification struct {
	State       ReportState `json:"state"`
	NaturalKey  NaturalKey  `json:"natural_key"`
	Fingerprint Fingerprint `json:"fingerprint"`
	// PriorVersions are the ids of every version stored under the key.
	PriorVersions   []string `json:"prior_versions"`
	ActiveVersionID string   `json:"active_version_id,omitempty"`
	DuplicateOf     string   `json:"duplicate_of,omitempty"`
	ConflictReason  string   `json:"conflict_reason,omitempty"`
	ConflictWith    string   `json:"conflict_with,omitempty"`
	// NextVersion is the version number a stored submission would get.
	NextVersion int `json:"next_version"`
}

// sameStatement reports whether a and b describe the same account, period
// and report type, whatever their year.
func sameStatement(a, b NaturalKey) bool {
	return a.AccountID == b.AccountID && a.PeriodStart == b.PeriodStart &&
		a.PeriodEnd == b.PeriodEnd && a.ReportType == b.ReportType
}

// Classify compares a submission with the versions already stored.
//
//   - no version under the key: NEW, unless the same account and period are
//     active under another year, which is a CONFLICT;
//   - the active version has the same fingerprint: DUPLICATE;
//   - the active version has a different year: CONFLICT;
//   - otherwise: REVISION.
//
// Classify only reads; the result is checked again when it is committed.
func Classify(versions VersionStore, s *Submission) Classification {
	k := NewNaturalKey(s)
	c := Classification{
		NaturalKey:    k,
		Fingerprint:   ComputeFingerprint(s),
		PriorVersions: []string{},
	}
	prior := versions.Versions(k)
	for _, v := range prior {
		c.PriorVersions = append(c.PriorVersions, v.ID)
	}
	c.NextVersion = len(prior) + 1

	active, ok := versions.ActiveVersion(k)
	if ok {
		c.ActiveVersionID = active.ID
		switch {
		case active.Fingerprint == c.Fingerprint:
			c.State = StateDuplicate
			c.DuplicateOf = active.ID
		case active.Submission.Header != nil && s.Header != nil && active.Submission.Header.Year != s.Header.Year:
			c.State = StateConflict
			c.ConflictReason = ConflictYearMismatch
			c.ConflictWith = active.ID
		default:
			c.State = StateRevision
		}
		return c
	}

	for _, v := range versions.AccountVersions(k.AccountID) {
		if v.IsActive && v.NaturalKey.Year != k.Year && sameStatement(v.NaturalKey, k) {
			c.State = StateConflict
			c.ConflictReason = ConflictYearMismatch
			c.ConflictWith = v.ID
			return c
		}
	}

	if len(prior) == 0 {
		c.State = StateNew
	} else {
		// only held versions so far
		c.State = StateRevision
	}
	return c
}
