package taxclean

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/PaesslerAG/jsonpath"
)

// envelopes are the places a submission may be found in an uploaded file,
// tried in order.
var envelopes = []string{"$", "$.payload", "$.data"}

// DecodeSubmission reads a submission from JSON. The submission may be the
// document itself, or be wrapped under "payload" or "data".
func DecodeSubmission(data []byte) (*Submission, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid submission JSON: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("invalid submission: expected a JSON object, got %T", doc)
	}

	body := data
	for _, path := range envelopes {
		if _, err := jsonpath.Get(path+".report_header", doc); err != nil {
			continue
		}
		if path == "$" {
			break
		}
		inner, err := jsonpath.Get(path, doc)
		if err != nil {
			continue
		}
		// json.Number values are written back verbatim.
		if body, err = json.Marshal(inner); err != nil {
			return nil, fmt.Errorf("invalid submission under %s: %w", path, err)
		}
		break
	}

	var s Submission
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	return &s, nil
}

// ReadSubmission reads a submission file.
func ReadSubmission(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read submission: %w", err)
	}
	s, err := DecodeSubmission(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadDir returns one batch item per *.json file of dir, sorted by file
// name. A file that cannot be read is still returned, with its error.
func LoadDir(dir string) ([]BatchItem, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JSON files found in %s", dir)
	}
	sort.Strings(files)
	items := make([]BatchItem, 0, len(files))
	for _, f := range files {
		s, err := ReadSubmission(f)
		items = append(items, BatchItem{ID: filepath.Base(f), Submission: s, Err: err})
	}
	return items, nil
}

// Expected is the outcome a scenario is expected to produce. Empty fields
// are not checked.
type Expected struct {
	ReportState    string `json:"report_state,omitempty"`
	Validation     string `json:"validation,omitempty"`
	Reconciliation string `json:"reconciliation,omitempty"`
	Tax            string `json:"tax_cleaned,omitempty"`
	ClientAction   string `json:"client_action,omitempty"`
}

var expectedPaths = []struct {
	path  string
	field func(*Expected) *string
}{
	{"$.expected_outcomes.report_resolution.report_state", func(e *Expected) *string { return &e.ReportState }},
	{"$.expected_outcomes.validation.status", func(e *Expected) *string { return &e.Validation }},
	{"$.expected_outcomes.reconciliation.status", func(e *Expected) *string { return &e.Reconciliation }},
	{"$.expected_outcomes.tax_cleaned.status", func(e *Expected) *string { return &e.Tax }},
	{"$.expected_outcomes.client_resolution.client_action", func(e *Expected) *string { return &e.ClientAction }},
}

// ReadExpected reads an expected outcomes file. Outcomes it does not state
// are left empty.
func ReadExpected(path string) (*Expected, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read expected outcomes: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid expected outcomes %s: %w", path, err)
	}
	var e Expected
	for _, p := range expectedPaths {
		v, err := jsonpath.Get(p.path, doc)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			*p.field(&e) = s
		}
	}
	return &e, nil
}

// Matches compares an outcome with the expectation, field by field.
func (e *Expected) Matches(o *Outcome) ExpectationMatch {
	eq := func(want string, got fmt.Stringer) bool { return want == "" || want == got.String() }
	m := ExpectationMatch{
		ReportState:    eq(e.ReportState, o.Classification.State),
		Validation:     eq(e.Validation, o.Validation.Status),
		Reconciliation: eq(e.Reconciliation, o.Reconciliation.Status),
		Tax:            eq(e.Tax, o.Tax.Status),
		ClientAction:   eq(e.ClientAction, o.Client.Action),
	}
	m.All = m.ReportState && m.Validation && m.Reconciliation && m.Tax && m.ClientAction
	return m
}

// ExpectationMatch tells which expected outcomes were met.
type ExpectationMatch struct {
	ReportState    bool `json:"report_state_match"`
	Validation     bool `json:"validation_status_match"`
	Reconciliation bool `json:"reconciliation_status_match"`
	Tax            bool `json:"tax_cleaned_status_match"`
	ClientAction   bool `json:"client_action_match"`
	All            bool `json:"all"`
}

type manifest struct {
	Scenarios []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Group string `json:"group"`
	} `json:"scenarios"`
}

// LoadManifest reads a scenario pack: a manifest.json listing scenarios,
// each with scenarios/<id>/input/input_report.json and optionally
// scenarios/<id>/expected/expected_outcomes.json.
func LoadManifest(dir string) ([]BatchItem, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("could not read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	items := make([]BatchItem, 0, len(m.Scenarios))
	for _, sc := range m.Scenarios {
		base := filepath.Join(dir, "scenarios", sc.ID)
		it := BatchItem{ID: sc.ID, Title: sc.Title, Group: sc.Group}
		it.Submission, it.Err = ReadSubmission(filepath.Join(base, "input", "input_report.json"))
		expected := filepath.Join(base, "expected", "expected_outcomes.json")
		if _, err := os.Stat(expected); err == nil {
			if it.Expected, err = ReadExpected(expected); err != nil && it.Err == nil {
				it.Err = err
			}
		}
		items = append(items, it)
	}
	return items, nil
}
