package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"name": "acme.example"})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("expected error field to be omitted, got %s", w.Body.String())
	}
	env := decodeEnvelope(t, w)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", env.Data)
	}
	if data["name"] != "acme.example" {
		t.Errorf("expected name=acme.example, got %v", data["name"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusConflict, "extension number already exists")

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error != "extension number already exists" {
		t.Errorf("unexpected error %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
}

func TestReadJSON(t *testing.T) {
	type gateway struct {
		Name  string `json:"name"`
		Proxy string `json:"proxy"`
		Port  int    `json:"port"`
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"valid", `{"name":"carrier","proxy":"sip.carrier.example","port":5060}`, ""},
		{"empty body", "", "request body must not be empty"},
		{"malformed", "{bad", "malformed json"},
		{"truncated", `{"name":"carrier"`, "malformed json"},
		{"wrong type", `{"port":"5060"}`, `field "port" has the wrong type`},
		{"unknown field", `{"name":"carrier","realm":"x"}`, `unknown field "realm"`},
		{"two objects", `{"name":"a"}{"name":"b"}`, "request body must contain a single json object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst gateway
			if got := readJSON(r, &dst); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if tt.want == "" && (dst.Name != "carrier" || dst.Port != 5060) {
				t.Errorf("unexpected decode result %+v", dst)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query   string
		want    pagination
		wantErr string
	}{
		{"", pagination{Limit: defaultLimit}, ""},
		{"?limit=50&offset=10", pagination{Limit: 50, Offset: 10}, ""},
		{"?limit=500", pagination{Limit: maxLimit}, ""},
		{"?offset=0", pagination{Limit: defaultLimit}, ""},
		{"?limit=abc", pagination{}, "limit must be a positive integer"},
		{"?limit=0", pagination{}, "limit must be a positive integer"},
		{"?limit=-5", pagination{}, "limit must be a positive integer"},
		{"?offset=abc", pagination{}, "offset must be a non-negative integer"},
		{"?offset=-1", pagination{}, "offset must be a non-negative integer"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/tenants"+tt.query, nil)
			got, errMsg := parsePagination(r)
			if errMsg != tt.wantErr {
				t.Fatalf("expected error %q, got %q", tt.wantErr, errMsg)
			}
			if tt.wantErr == "" && got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestPage(t *testing.T) {
	items := []string{"a.example", "b.example", "c.example", "d.example", "e.example"}

	got := page(items, pagination{Limit: 2, Offset: 1})
	if got.Total != 5 || got.Limit != 2 || got.Offset != 1 {
		t.Errorf("unexpected page header %+v", got)
	}
	if s := got.Items.([]string); len(s) != 2 || s[0] != "b.example" {
		t.Errorf("expected [b.example c.example], got %v", s)
	}

	got = page(items, pagination{Limit: 2, Offset: 10})
	if s := got.Items.([]string); len(s) != 0 {
		t.Errorf("expected empty page past the end, got %v", s)
	}

	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, page(items, pagination{Limit: 20}))
	data := decodeEnvelope(t, w).Data.(map[string]any)
	if data["total"] != float64(5) {
		t.Errorf("expected total=5, got %v", data["total"])
	}
	if list, ok := data["items"].([]any); !ok || len(list) != 5 {
		t.Errorf("expected 5 items, got %v", data["items"])
	}
}
