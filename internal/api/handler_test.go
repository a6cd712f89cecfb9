package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/giveaway"
	"github.com/runah1996/api.runah.pt/internal/source"
)

type stubFetcher struct {
	payload []byte
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type stubCounter int

func (c stubCounter) Count() int { return int(c) }

func newTestHandler(f *stubFetcher, auth AuthConfig) http.Handler {
	store := cache.NewStore()
	refresher := cache.NewRefresher(store, f, time.Hour, time.Second)
	svc := giveaway.NewService("public_giveaway_data", refresher, time.Hour)
	return New(svc, stubCounter(3), auth)
}

func doRequest(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetGiveaway(t *testing.T) {
	f := &stubFetcher{payload: []byte(`{"giveaway":{"title":"Sorteio","total_value":"2000€"}}`)}
	h := newTestHandler(f, AuthConfig{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/giveaway", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("success: got false")
	}
	if resp.Cached {
		t.Error("cached: got true on first request")
	}
	if resp.Version != 1 {
		t.Errorf("version: got %d, want 1", resp.Version)
	}
	if resp.CacheDurationSeconds != 3600 {
		t.Errorf("cache_duration_seconds: got %d, want 3600", resp.CacheDurationSeconds)
	}
	if string(resp.Data) != string(f.payload) {
		t.Errorf("data: got %s", resp.Data)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}

	// Second request is served from cache.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/giveaway", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Cached {
		t.Error("cached: got false on second request")
	}
}

func TestGetGiveaway_UpstreamFailureWithoutCache(t *testing.T) {
	f := &stubFetcher{err: &source.UpstreamError{Op: "read config", Err: errors.New("missing")}}
	h := newTestHandler(f, AuthConfig{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/giveaway", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("success: got true in error response")
	}
}

func TestGetGiveaway_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&stubFetcher{payload: []byte(`{}`)}, AuthConfig{})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/giveaway", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", rec.Code)
	}
}

func TestRefresh_APIKey(t *testing.T) {
	auth := AuthConfig{Mode: "apikey", Header: "x-api-key", Key: "sekret"}

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"x-api-key": "nope"}, http.StatusUnauthorized},
		{"valid key", map[string]string{"x-api-key": "sekret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFetcher{payload: []byte(`{"title":"x"}`)}
			h := newTestHandler(f, auth)

			rec := doRequest(t, h, http.MethodPost, "/api/v1/refresh", tt.header)
			if rec.Code != tt.want {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRefresh_IncrementsVersion(t *testing.T) {
	f := &stubFetcher{payload: []byte(`{"title":"x"}`)}
	h := newTestHandler(f, AuthConfig{})

	// Warm through the read path, then force.
	doRequest(t, h, http.MethodGet, "/api/v1/giveaway", nil)
	rec := doRequest(t, h, http.MethodPost, "/api/v1/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}

	var resp RefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Version != 2 {
		t.Errorf("refresh response: %+v, want success with version 2", resp)
	}
}

func TestRefresh_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&stubFetcher{payload: []byte(`{}`)}, AuthConfig{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/refresh", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d, want 405", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubFetcher{payload: []byte(`{}`)}, AuthConfig{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status: got %q", resp.Status)
	}
	if resp.Service != serviceName {
		t.Errorf("service: got %q", resp.Service)
	}
	if resp.Subscribers != 3 {
		t.Errorf("subscribers: got %d, want 3", resp.Subscribers)
	}
}

func TestRateLimitedRefreshReturns429(t *testing.T) {
	f := &stubFetcher{payload: []byte(`{"title":"x"}`)}
	store := cache.NewStore()
	refresher := cache.NewRefresher(store, f, time.Hour, time.Second)
	svc := giveaway.NewService("public_giveaway_data", refresher, time.Hour,
		giveaway.WithUpdateRate(1),
	)
	h := New(svc, stubCounter(0), AuthConfig{})

	if rec := doRequest(t, h, http.MethodPost, "/api/v1/refresh", nil); rec.Code != http.StatusOK {
		t.Fatalf("first refresh: got %d (%s)", rec.Code, rec.Body.String())
	}
	rec := doRequest(t, h, http.MethodPost, "/api/v1/refresh", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh: got %d, want 429", rec.Code)
	}
}
