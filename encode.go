package taxclean

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// The state of a MemoryStore is persisted as JSONL: one record per line,
// each with a "kind" property telling what it holds. Lines are written in
// dependency order (clients, versions, tax reports, exceptions, events) so
// the file reads top to bottom like the history it records.

const (
	kindMeta      = "meta"
	kindClient    = "client"
	kindVersion   = "version"
	kindTaxReport = "tax_report"
	kindException = "exception"
	kindEvent     = "event"
)

// maxLineSize bounds one JSONL record. A version line carries a whole
// submission and its tax data.
const maxLineSize = 64 << 20

type stateMeta struct {
	ReportSeq int `json:"report_seq"`
}

// encodeRecord writes v as one JSON line tagged with kind.
func encodeRecord(w io.Writer, kind string, v any) error {
	var obj jsonObjectWriter
	obj.Append("kind", kind)
	obj.Embed(v)
	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("could not encode %s record: %w", kind, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("could not write %s record: %w", kind, err)
	}
	return nil
}

// Encode writes the whole state of s to w.
func (s *MemoryStore) Encode(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := encodeRecord(w, kindMeta, stateMeta{ReportSeq: s.reportSeq}); err != nil {
		return err
	}

	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := encodeRecord(w, kindClient, s.clients[id]); err != nil {
			return err
		}
	}

	for i := range s.versions {
		if err := encodeRecord(w, kindVersion, s.stored(i)); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(s.taxReports))
	for k := range s.taxReports {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.taxReports[keys[i]].ID < s.taxReports[keys[j]].ID })
	for _, k := range keys {
		if err := encodeRecord(w, kindTaxReport, s.taxReports[k]); err != nil {
			return err
		}
	}

	for i := range s.exceptions {
		if err := encodeRecord(w, kindException, s.exceptions[i]); err != nil {
			return err
		}
	}
	for i := range s.events {
		if err := encodeRecord(w, kindEvent, s.events[i]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMemoryStore reads a state written by Encode.
func DecodeMemoryStore(r io.Reader) (*MemoryStore, error) {
	s := NewMemoryStore()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var id struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &id); err != nil {
			return nil, fmt.Errorf("line %d: not a JSON record: %w", n, err)
		}
		if err := s.decodeRecord(id.Kind, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read state: %w", err)
	}
	return s, nil
}

func (s *MemoryStore) decodeRecord(kind string, line []byte) error {
	switch kind {
	case kindMeta:
		var m stateMeta
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		s.reportSeq = m.ReportSeq

	case kindClient:
		var c Client
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		s.clients[c.AccountID] = c

	case kindVersion:
		sv := StoredVersion{ReportVersion: new(ReportVersion)}
		if err := json.Unmarshal(line, &sv); err != nil {
			return err
		}
		v := sv.ReportVersion
		if _, dup := s.byID[v.ID]; dup {
			return fmt.Errorf("version %q is defined twice", v.ID)
		}
		i := len(s.versions)
		s.versions = append(s.versions, v)
		s.byID[v.ID] = i
		s.byKey[v.NaturalKey] = append(s.byKey[v.NaturalKey], i)
		if sv.IsActive {
			if cur, ok := s.active[v.NaturalKey]; ok {
				return fmt.Errorf("versions %q and %q are both active", cur, v.ID)
			}
			s.active[v.NaturalKey] = v.ID
		}
		if sv.ArchivedAt != nil {
			s.archived[v.ID] = archival{at: *sv.ArchivedAt, reason: sv.ArchivedReason}
		}

	case kindTaxReport:
		var r TaxReport
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		key := taxReportKey(r.AccountID, r.Year)
		s.taxReports[key] = &r
		s.reportIDs[r.ID] = key

	case kindException:
		var e Exception
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s.excIndex[e.ID] = len(s.exceptions)
		s.exceptions = append(s.exceptions, e)

	case kindEvent:
		var e AuditEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s.events = append(s.events, e)

	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return nil
}

// LoadState reads the state file at path. A missing file is an empty state.
func LoadState(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMemoryStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open state: %w", err)
	}
	defer f.Close()
	s, err := DecodeMemoryStore(f)
	if err != nil {
		return nil, fmt.Errorf("invalid state %s: %w", path, err)
	}
	return s, nil
}

// SaveState writes s to path. The file is replaced at once: a reader never
// sees a partial state.
func SaveState(path string, s *MemoryStore) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not save state: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := s.Encode(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("could not save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not save state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not save state: %w", err)
	}
	return nil
}
