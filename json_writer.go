package taxclean

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonObjectWriter builds a JSON object whose fields keep the order they are
// added in. Fingerprints and the state file depend on that order. Its zero
// value is an empty object.
//
// The first error is kept and returned by MarshalJSON, later calls are
// no-ops.
type jsonObjectWriter struct {
	fields [][]byte
	err    error
}

// Append adds key with the JSON encoding of value.
func (w *jsonObjectWriter) Append(key string, value any) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	raw, err := json.Marshal(value)
	if err != nil {
		w.err = fmt.Errorf("cannot encode %q: %w", key, err)
		return w
	}
	return w.AppendRaw(key, raw)
}

// AppendNonEmpty adds key only when s is not empty.
func (w *jsonObjectWriter) AppendNonEmpty(key, s string) *jsonObjectWriter {
	if s == "" {
		return w
	}
	return w.Append(key, s)
}

// AppendRaw adds key with an encoded value. A nil value is written as null.
func (w *jsonObjectWriter) AppendRaw(key string, raw json.RawMessage) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	if !json.Valid(raw) {
		w.err = fmt.Errorf("invalid JSON for %q: %.20s", key, raw)
		return w
	}
	k, _ := json.Marshal(key)
	field := make([]byte, 0, len(k)+1+len(raw))
	field = append(append(append(field, k...), ':'), raw...)
	w.fields = append(w.fields, field)
	return w
}

// Embed adds every field of v, which must encode as a JSON object, in the
// order it encodes them.
func (w *jsonObjectWriter) Embed(v any) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	raw, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("cannot encode embedded %T: %w", v, err)
		return w
	}
	body, ok := bytes.CutPrefix(bytes.TrimSpace(raw), []byte("{"))
	if ok {
		body, ok = bytes.CutSuffix(body, []byte("}"))
	}
	if !ok {
		w.err = fmt.Errorf("cannot embed %T: not a JSON object", v)
		return w
	}
	if body = bytes.TrimSpace(body); len(body) > 0 {
		w.fields = append(w.fields, body)
	}
	return w
}

// MarshalJSON returns the object built so far.
func (w *jsonObjectWriter) MarshalJSON() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return wrapJSON('{', w.fields, '}'), nil
}

// jsonArray joins encoded values into a JSON array.
func jsonArray(items []json.RawMessage) json.RawMessage {
	parts := make([][]byte, len(items))
	for i, it := range items {
		parts[i] = it
	}
	return wrapJSON('[', parts, ']')
}

func wrapJSON(open byte, parts [][]byte, closing byte) []byte {
	var b bytes.Buffer
	b.WriteByte(open)
	b.Write(bytes.Join(parts, []byte(",")))
	b.WriteByte(closing)
	return b.Bytes()
}
