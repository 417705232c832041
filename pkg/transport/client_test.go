package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = 5 * time.Millisecond
	cfg.StatusPollInterval = 5 * time.Millisecond
	cfg.StatusPollMaxWait = 200 * time.Millisecond
	cfg.DeploymentTimeout = 200 * time.Millisecond
	return cfg
}

func TestFetchHashesOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hashes" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"hashes": map[string]string{"a": "H1"},
			"status": "ok",
		})
	}))
	defer server.Close()

	c := New(server.URL, testConfig())
	hashes, status, err := c.FetchHashes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "ok" || hashes["a"] != "H1" {
		t.Fatalf("unexpected result: %v %v", status, hashes)
	}
}

func TestFetchHashesDoesNotRetryServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			// The first request gets a 500; a second request would succeed,
			// but the client is expected to stop at the first response.
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"hashes": map[string]string{}, "status": "no_war"})
	}))
	defer server.Close()

	c := New(server.URL, testConfig())
	_, status, err := c.FetchHashes(context.Background())
	// A 500 on GET /hashes is not retried by retryableGet (only transport
	// errors are); it surfaces as a HashFetchFailed error on the first
	// non-200 response.
	if err == nil {
		t.Fatalf("expected error for first-attempt 500, got status=%s", status)
	}
}

func Test409IsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	c := New(server.URL, testConfig())
	outcome, err := c.DeployInline(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.InProgress {
		t.Fatal("expected inProgress=true for 409 response")
	}
}

func TestPollDeployStatusResolvesOnNewerCompletion(t *testing.T) {
	start := time.Now()
	completed := start.Add(50 * time.Millisecond)

	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(StatusResult{Deploying: true})
			return
		}
		json.NewEncoder(w).Encode(StatusResult{
			Deploying:       false,
			LastCompletedAt: &completed,
			LastResult:      &DeployResultBody{Success: true},
		})
	}))
	defer server.Close()

	c := New(server.URL, testConfig())
	status, err := c.PollDeployStatus(context.Background(), start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.LastResult == nil || !status.LastResult.Success {
		t.Fatal("expected a successful last result")
	}
}

func TestPollDeployStatusTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StatusResult{Deploying: true})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.StatusPollMaxWait = 20 * time.Millisecond
	c := New(server.URL, cfg)
	_, err := c.PollDeployStatus(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
