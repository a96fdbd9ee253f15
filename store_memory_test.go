package taxclean

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taxInput(account string, year TaxYear) TaxReportInput {
	return TaxReportInput{AccountID: account, Year: year, ClientName: "Dana Levi", Data: &TaxData{}, SourceFile: "pnl.pdf", VersionID: "v"}
}

func TestMemoryStore_ApplyIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	c := NewChangeset(testNow, "run-1").
		PutClient(Client{AccountID: "ACC-1001"}).
		PutTaxReport(taxInput("ACC-1001", 2024)).
		LogEvent(EventReportIngested, "ACC-1001", nil).
		CreateException(Finding{Type: MissingGrandTotals}, "ACC-1001", 0).
		ResolveException("EXC-99999", Accept, "")

	_, err := s.Apply(c)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, s.Clients())
	assert.Empty(t, s.TaxReports(TaxReportFilter{}))
	assert.Empty(t, s.Events(EventFilter{}))
	assert.Empty(t, s.Exceptions(ExceptionFilter{}))
}

func TestMemoryStore_StaleClassification(t *testing.T) {
	s := NewMemoryStore()
	sub := statement("ACC-1001", 2024)

	// two concurrent preparations see the same empty history.
	first, second := Classify(s, sub), Classify(s, sub)
	version := func(c Classification) *ReportVersion {
		return &ReportVersion{ID: VersionID(c.NaturalKey, c.NextVersion), NaturalKey: c.NaturalKey, Version: c.NextVersion}
	}
	_, err := s.Apply(NewChangeset(testNow, "").AddVersion(version(first), true, first.ActiveVersionID))
	require.NoError(t, err)
	_, err = s.Apply(NewChangeset(testNow, "").AddVersion(version(second), true, second.ActiveVersionID))
	assert.True(t, errors.Is(err, ErrStaleClassification), "got %v", err)
	assert.Len(t, s.Versions(first.NaturalKey), 1)
}

func TestMemoryStore_TaxReports(t *testing.T) {
	s := NewMemoryStore()
	r, err := s.Apply(NewChangeset(testNow, "").
		PutTaxReport(taxInput("ACC-2002", 2024)).
		PutTaxReport(taxInput("ACC-1001", 2024)).
		PutTaxReport(taxInput("ACC-1001", 2023)))
	require.NoError(t, err)
	require.Len(t, r.TaxReports, 3)
	assert.Equal(t, "TR-0001", r.TaxReports[0].ID)
	assert.Equal(t, "TR-0003", r.TaxReports[2].ID)

	var keys []string
	for _, r := range s.TaxReports(TaxReportFilter{}) {
		keys = append(keys, taxReportKey(r.AccountID, r.Year))
	}
	assert.Equal(t, []string{"ACC-1001_2023", "ACC-1001_2024", "ACC-2002_2024"}, keys)
	assert.Len(t, s.TaxReports(TaxReportFilter{Year: 2024}), 2)
	assert.Len(t, s.TaxReports(TaxReportFilter{AccountID: "ACC-1001"}), 2)

	t.Run("regeneration keeps the id and restarts the review", func(t *testing.T) {
		_, err := s.Apply(NewChangeset(testNow, "").TransitionTaxReport(Transition{ReportID: "TR-0002", To: Approved, Actor: "dana"}))
		require.NoError(t, err)
		approved, _ := s.TaxReport("TR-0002")
		require.Equal(t, Approved, approved.Status)

		r, err := s.Apply(NewChangeset(testNow, "").PutTaxReport(taxInput("ACC-1001", 2024)))
		require.NoError(t, err)
		got := r.TaxReports[0]
		assert.Equal(t, "TR-0002", got.ID)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, Draft, got.Status)
		assert.Empty(t, got.ApprovedBy)
		assert.Nil(t, got.ApprovedAt)
	})
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore()
	storeVersion(t, s, statement("ACC-1001", 2024), true)
	_, err := s.Apply(NewChangeset(testNow, "").
		PutClient(Client{AccountID: "ACC-1001"}).
		PutTaxReport(taxInput("ACC-1001", 2024)).
		CreateException(Finding{Type: MissingGrandTotals}, "ACC-1001", 0))
	require.NoError(t, err)

	s.Reset()
	assert.Empty(t, s.Clients())
	assert.Empty(t, s.AccountVersions("ACC-1001"))
	assert.Empty(t, s.TaxReports(TaxReportFilter{}))
	assert.Empty(t, s.Events(EventFilter{}))
	assert.Empty(t, s.Exceptions(ExceptionFilter{}))

	// identifiers start over.
	r, err := s.Apply(NewChangeset(testNow, "").
		PutTaxReport(taxInput("ACC-1001", 2024)).
		CreateException(Finding{Type: MissingGrandTotals}, "ACC-1001", 0))
	require.NoError(t, err)
	assert.Equal(t, "TR-0001", r.TaxReports[0].ID)
	assert.Equal(t, "EXC-00001", r.Exceptions[0].ID)
	assert.Equal(t, "AUD-00001", r.Events[0].ID)
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Apply(NewChangeset(testNow, "").
		PutClient(Client{AccountID: "ACC-1001", YearsOnFile: []TaxYear{2024}}).
		PutTaxReport(taxInput("ACC-1001", 2024)))
	require.NoError(t, err)

	c, _ := s.Client("ACC-1001")
	c.YearsOnFile[0] = 1999
	r, _ := s.TaxReport("TR-0001")
	r.SourceFiles[0] = "tampered"

	c, _ = s.Client("ACC-1001")
	assert.Equal(t, []TaxYear{2024}, c.YearsOnFile)
	r, _ = s.TaxReport("TR-0001")
	assert.Equal(t, []string{"pnl.pdf"}, r.SourceFiles)
}
