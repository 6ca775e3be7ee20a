package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// testPolicy returns a RetryPolicy with fast delays for testing
func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		if statusCodes[idx] == http.StatusOK {
			io.WriteString(w, `{"status":"ok"}`)
		}
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetchWithRetry_RetryableThenSuccess(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		attempts int32
	}{
		{"first attempt", []int{200}, 1},
		{"5xx then 200", []int{500, 503, 200}, 3},
		{"429 then 200", []int{429, 200}, 2},
		{"mixed", []int{500, 429, 500, 200}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.statuses)

			fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(req, context.Background())
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if attempts.Load() != tt.attempts {
				t.Errorf("expected %d attempts, got %d", tt.attempts, attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_AllRetriesFail(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	if err == nil {
		t.Fatal("expected error after all retries failed")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response when all retries fail")
	}
	if !errors.Is(err, utils.ErrRetryFailed) || !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected ErrRetryFailed wrapping ErrServerHTTPError, got: %v", err)
	}
	if got := utils.CategorizeError(err); got != "RetryFailed_HTTPServer" {
		t.Errorf("CategorizeError = %q, want RetryFailed_HTTPServer", got)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 4 attempts (initial + 3 retries), got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ClientError_NoRetry(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusBadRequest} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server, attempts := mockServer(t, []int{code})

			fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(req, context.Background())
			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response for 4xx (caller may need to inspect)")
			}
			resp.Body.Close()

			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt (no retry for 4xx), got %d", attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_ZeroRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testPolicy(0), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	if resp != nil {
		resp.Body.Close()
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retries), got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.FetchWithRetry(req, ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextTimeout_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	policy := RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Second, MaxDelay: 10 * time.Second}
	fetcher := NewFetcher(testClient(), policy, testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.FetchWithRetry(req, ctx)
	if err == nil {
		t.Fatal("expected error for timed out context")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff sleep ignored context deadline")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before timeout, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_NetworkError_RetrySuccess(t *testing.T) {
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attemptCount.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testPolicy(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	resp.Body.Close()

	if attemptCount.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attemptCount.Load())
	}
}

func TestFetchBody(t *testing.T) {
	server, _ := mockServer(t, []int{503, 200})
	fetcher := NewFetcher(testClient(), testPolicy(2), testLogger())

	body, err := fetcher.FetchBody(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q", body)
	}
}

func TestFetchBody_Errors(t *testing.T) {
	fetcher := NewFetcher(testClient(), testPolicy(0), testLogger())

	if _, err := fetcher.FetchBody(context.Background(), "://bad"); !errors.Is(err, utils.ErrRequestCreation) {
		t.Errorf("expected ErrRequestCreation, got: %v", err)
	}

	server, _ := mockServer(t, []int{404})
	if _, err := fetcher.FetchBody(context.Background(), server.URL); !errors.Is(err, utils.ErrClientHTTPError) {
		t.Errorf("expected ErrClientHTTPError, got: %v", err)
	}
}

func TestNewClient_SessionHeaders(t *testing.T) {
	var gotUA, gotAccept, gotLang, gotCustom atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		gotAccept.Store(r.Header.Get("Accept"))
		gotLang.Store(r.Header.Get("Accept-Language"))
		gotCustom.Store(r.Header.Get("X-Test"))
	}))
	t.Cleanup(server.Close)

	appCfg := config.AppConfig{UserAgent: "paper-test/1.0"}
	client := NewClient(config.HTTPClientConfig{Timeout: 5 * time.Second}, SessionHeaders(appCfg), testLogger())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Test", "kept")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotUA.Load() != "paper-test/1.0" {
		t.Errorf("User-Agent = %v", gotUA.Load())
	}
	if gotAccept.Load() != "application/json" {
		t.Errorf("request Accept should win over session default, got %v", gotAccept.Load())
	}
	if gotLang.Load() != config.DefaultAcceptLanguage {
		t.Errorf("Accept-Language = %v", gotLang.Load())
	}
	if gotCustom.Load() != "kept" {
		t.Errorf("X-Test = %v", gotCustom.Load())
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("session headers must not be written into the caller's request")
	}
}
