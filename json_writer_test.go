package taxclean

import (
	"encoding/json"
	"testing"
)

func TestJsonObjectWriter(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *jsonObjectWriter)
		want  string
	}{
		{"empty", func(w *jsonObjectWriter) {}, `{}`},
		{"insertion order", func(w *jsonObjectWriter) {
			w.Append("year", 2024).Append("account_id", "ACC-1001")
		}, `{"year":2024,"account_id":"ACC-1001"}`},
		{"non empty strings", func(w *jsonObjectWriter) {
			w.AppendNonEmpty("currency", "").AppendNonEmpty("amount", "875")
		}, `{"amount":"875"}`},
		{"raw and null", func(w *jsonObjectWriter) {
			w.AppendRaw("net_pnl", json.RawMessage("2000.50")).AppendRaw("summary_totals", nil)
		}, `{"net_pnl":2000.50,"summary_totals":null}`},
		{"array", func(w *jsonObjectWriter) {
			w.AppendRaw("monthly_rows", jsonArray([]json.RawMessage{json.RawMessage(`{"month":"January"}`), json.RawMessage(`{}`)}))
		}, `{"monthly_rows":[{"month":"January"},{}]}`},
		{"embedded object", func(w *jsonObjectWriter) {
			w.Append("kind", "client")
			w.Embed(struct {
				AccountID string `json:"account_id"`
				Reports   int    `json:"report_count"`
			}{"ACC-1001", 2})
			w.Append("after", true)
		}, `{"kind":"client","account_id":"ACC-1001","report_count":2,"after":true}`},
		{"embedded empty object", func(w *jsonObjectWriter) {
			w.Append("kind", "event").Embed(struct{}{})
		}, `{"kind":"event"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w jsonObjectWriter
			tt.build(&w)
			got, err := w.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("MarshalJSON() = %s, want %s", got, tt.want)
			}
			if !json.Valid(got) {
				t.Errorf("MarshalJSON() = %s is not valid JSON", got)
			}
		})
	}
}

func TestJsonObjectWriter_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *jsonObjectWriter)
	}{
		{"embed an array", func(w *jsonObjectWriter) { w.Embed([]int{1, 2}) }},
		{"invalid raw", func(w *jsonObjectWriter) { w.AppendRaw("net_pnl", json.RawMessage("{")) }},
		{"unencodable", func(w *jsonObjectWriter) { w.Append("ch", make(chan int)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w jsonObjectWriter
			tt.build(&w)
			w.Append("ignored", 1)
			if _, err := w.MarshalJSON(); err == nil {
				t.Error("MarshalJSON() error = nil, want an error")
			}
			if len(w.fields) != 0 {
				t.Errorf("fields added after the error: %q", w.fields)
			}
		})
	}
}
