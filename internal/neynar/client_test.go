package neynar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// helper to create client pointed at a test server
func newTestClient(ts *httptest.Server) *HTTPClient {
	c := NewHTTPClient(ts.URL, "test-key")
	c.httpClient = ts.Client()
	c.maxAttempts = 3
	c.baseBackoff = 10 * time.Millisecond
	return c
}

func TestDoWithRetryHandles429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), req, "test")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestFetchBulkUsersParsesProfiles(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		if r.Header.Get("api_key") != "test-key" {
			t.Errorf("missing api_key header")
		}
		_, _ = w.Write([]byte(`{"users":[
			{"fid":2,"username":"v","display_name":"Varun","follower_count":5,"following_count":3,
			 "profile":{"bio":{"text":"farcaster protocol"}}}
		]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	users, err := c.FetchBulkUsers(context.Background(), []int64{2, 3}, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotPath, "fids=2%2C3") || !strings.Contains(gotPath, "viewer_fid=7") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if len(users) != 1 || users[0].FID != 2 || users[0].Bio != "farcaster protocol" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestFetchBulkUsersOmitsZeroViewer(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		_, _ = w.Write([]byte(`{"users":[]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if _, err := c.FetchBulkUsers(context.Background(), []int64{2}, 0); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotPath, "viewer_fid") {
		t.Fatalf("viewer_fid must be omitted for anonymous lookups, path %q", gotPath)
	}
}

func TestFetchFollowingUnwrapsEdges(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
			{"user":{"fid":10,"username":"a"}},
			{"user":{"fid":11,"username":"b"}},
			{"user":{}}
		]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	users, err := c.FetchFollowing(context.Background(), 7, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].FID != 10 || users[1].FID != 11 {
		t.Fatalf("unexpected follow list: %+v", users)
	}
}

func TestLookupUserByAddressFallsThroughVariants(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "by_custody_address") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"user":{"fid":42,"username":"walletuser"}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	user, err := c.LookupUserByAddress(context.Background(), "0xABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if user.FID != 42 {
		t.Fatalf("expected FID 42, got %d", user.FID)
	}
	if len(paths) != 2 {
		t.Fatalf("expected custody then verification attempts, got %v", paths)
	}
}

func TestLookupUserByAddressNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if _, err := c.LookupUserByAddress(context.Background(), "0xdead"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFollowUserSendsSignerPayload(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.FollowUser(context.Background(), "uuid-1", 100); err != nil {
		t.Fatal(err)
	}
	if body["signer_uuid"] != "uuid-1" {
		t.Fatalf("unexpected payload: %v", body)
	}
}
