package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusUnauthorized, "unauthorized", "missing bearer token")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "unauthorized" || body.Error.Message != "missing bearer token" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{name: "ok", body: `{"name":"ana"}`},
		{name: "unknown field", body: `{"name":"ana","x":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"ana"}{}`, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, max: 16, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, tt.max, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && dst.Name != "ana" {
				t.Fatalf("name = %q", dst.Name)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"Bearer abc":       "abc",
		"bearer   abc  ":   "abc",
		"Basic dXNlcjpwdw": "",
		"Bearer":           "",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := BearerToken(req); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	req.Header.Set("X-Forwarded-For", "not-an-ip, 203.0.113.9")

	if got := ClientIP(req, false); got.String() != "10.0.0.7" {
		t.Fatalf("untrusted = %v", got)
	}
	if got := ClientIP(req, true); got.String() != "203.0.113.9" {
		t.Fatalf("trusted = %v", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.1")
	if got := ClientIP(req, true); got.String() != "198.51.100.1" {
		t.Fatalf("real ip = %v", got)
	}
}
