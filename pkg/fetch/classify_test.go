package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sriram-PR/paper-scraper/pkg/config"
	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

func testHTTPConfig() config.HTTPClientConfig {
	return config.HTTPClientConfig{Timeout: 5 * time.Second}
}

func newTestClassifier(opts ClassifierOptions) *Classifier {
	return NewClassifier(testClient(), nil, nil, opts, testLogger())
}

// contentServer serves body with the given status and content type on every path
func contentServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClassifierFetch(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		kind        models.OutcomeKind
		sentinel    error
	}{
		{"pdf with signature", 200, "application/pdf", "%PDF-1.4\n...", models.OutcomeBinaryDocument, nil},
		{"pdf type with html body", 200, "application/pdf", "<html>login</html>", models.OutcomeOtherOrFailure, utils.ErrClassificationMismatch},
		{"x-pdf type", 200, "application/x-pdf; qs=0.001", "%PDF-1.7", models.OutcomeBinaryDocument, nil},
		{"html page", 200, "text/html; charset=utf-8", "<html><body>Hi</body></html>", models.OutcomeHTMLPage, nil},
		{"xhtml page", 200, "application/xhtml+xml", "<html></html>", models.OutcomeHTMLPage, nil},
		{"pdf bytes without pdf type", 200, "application/octet-stream", "%PDF-1.4", models.OutcomeOtherOrFailure, utils.ErrClassificationMismatch},
		{"not found", 404, "text/html", "<html>404</html>", models.OutcomeOtherOrFailure, utils.ErrTransport},
		{"server error with pdf", 500, "application/pdf", "%PDF-1.4", models.OutcomeOtherOrFailure, utils.ErrTransport},
		{"non-200 success", 203, "application/pdf", "%PDF-1.4", models.OutcomeOtherOrFailure, utils.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := contentServer(t, tt.status, tt.contentType, tt.body)

			outcome := newTestClassifier(ClassifierOptions{Timeout: 5 * time.Second}).Fetch(context.Background(), server.URL+"/doc")

			if outcome.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v (err: %v)", outcome.Kind, tt.kind, outcome.Err)
			}
			if outcome.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", outcome.StatusCode, tt.status)
			}
			if tt.sentinel != nil && !errors.Is(outcome.Err, tt.sentinel) {
				t.Errorf("Err = %v, want wrapping %v", outcome.Err, tt.sentinel)
			}
			if tt.sentinel == nil && outcome.Err != nil {
				t.Errorf("unexpected Err: %v", outcome.Err)
			}

			switch outcome.Kind {
			case models.OutcomeBinaryDocument:
				if string(outcome.Body) != tt.body {
					t.Errorf("Body = %q, want %q", outcome.Body, tt.body)
				}
			case models.OutcomeHTMLPage:
				if outcome.Text != tt.body {
					t.Errorf("Text = %q, want %q", outcome.Text, tt.body)
				}
			default:
				if outcome.Body != nil || outcome.Text != "" {
					t.Error("failed outcomes must not carry a body")
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(200, "application/pdf", []byte("%PDF-1.4")) != models.OutcomeBinaryDocument {
		t.Error("pdf with signature should be BinaryDocument")
	}
	if Classify(200, "application/pdf", []byte("<html>")) != models.OutcomeOtherOrFailure {
		t.Error("signature mismatch must not be trusted on headers alone")
	}
	if Classify(200, "TEXT/HTML", nil) != models.OutcomeHTMLPage {
		t.Error("content type match should be case-insensitive")
	}
	if Classify(301, "text/html", nil) != models.OutcomeOtherOrFailure {
		t.Error("non-200 must be OtherOrFailure")
	}
}

func TestClassifierFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/doi/10.1/x", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/content/x.pdf", http.StatusFound)
	})
	mux.HandleFunc("/content/x.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.5")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(testHTTPConfig(), nil, testLogger())
	c := NewClassifier(client, nil, nil, ClassifierOptions{}, testLogger())

	outcome := c.Fetch(context.Background(), server.URL+"/doi/10.1/x")
	if outcome.Kind != models.OutcomeBinaryDocument {
		t.Fatalf("Kind = %v (err %v)", outcome.Kind, outcome.Err)
	}
	if outcome.URL != server.URL+"/content/x.pdf" {
		t.Errorf("URL = %q, want final URL after redirect", outcome.URL)
	}
}

func TestClassifierFetch_TransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		outcome := newTestClassifier(ClassifierOptions{}).Fetch(context.Background(), addr)
		if outcome.Kind != models.OutcomeOtherOrFailure || !errors.Is(outcome.Err, utils.ErrTransport) {
			t.Errorf("expected OtherOrFailure wrapping ErrTransport, got %v / %v", outcome.Kind, outcome.Err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(server.Close)

		outcome := newTestClassifier(ClassifierOptions{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), server.URL)
		if outcome.Kind != models.OutcomeOtherOrFailure {
			t.Fatalf("Kind = %v", outcome.Kind)
		}
		if got := utils.CategorizeError(outcome.Err); got != "Transport_Timeout" {
			t.Errorf("CategorizeError = %q, want Transport_Timeout (err %v)", got, outcome.Err)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		for _, raw := range []string{"", "not a url", "ftp://x.org/a.pdf", "https://"} {
			outcome := newTestClassifier(ClassifierOptions{}).Fetch(context.Background(), raw)
			if outcome.Kind != models.OutcomeOtherOrFailure || outcome.Err == nil {
				t.Errorf("Fetch(%q) should fail without panicking, got %v", raw, outcome.Kind)
			}
		}
	})
}

func TestClassifierFetch_BodyCap(t *testing.T) {
	big := "%PDF-1.4" + strings.Repeat("x", 100)
	server := contentServer(t, 200, "application/pdf", big)

	outcome := newTestClassifier(ClassifierOptions{MaxBodyBytes: 32}).Fetch(context.Background(), server.URL)
	if outcome.Kind != models.OutcomeOtherOrFailure || !errors.Is(outcome.Err, utils.ErrResponseBodyRead) {
		t.Errorf("oversized pdf should fail with ErrResponseBodyRead, got %v / %v", outcome.Kind, outcome.Err)
	}

	page := contentServer(t, 200, "text/html", "<html>"+strings.Repeat("y", 100)+"</html>")
	outcome = newTestClassifier(ClassifierOptions{MaxBodyBytes: 32}).Fetch(context.Background(), page.URL)
	if outcome.Kind != models.OutcomeHTMLPage || len(outcome.Text) != 32 {
		t.Errorf("oversized html should be truncated to the cap, got %v with %d bytes", outcome.Kind, len(outcome.Text))
	}
}

func TestClassifierFetch_DecodesCharset(t *testing.T) {
	// "café" in ISO-8859-1
	server := contentServer(t, 200, "text/html; charset=iso-8859-1", "<p>caf\xe9</p>")

	outcome := newTestClassifier(ClassifierOptions{}).Fetch(context.Background(), server.URL)
	if outcome.Text != "<p>café</p>" {
		t.Errorf("Text = %q, want UTF-8 decoded body", outcome.Text)
	}
}

func TestClassifierFetch_HostGateAndRobots(t *testing.T) {
	var pageHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>ok</html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	log := testLogger()
	limiter := NewRateLimiter(0, log)
	robots := NewRobotsHandler(NewFetcher(testClient(), testPolicy(0), log), limiter, 0, "paper-test", log)
	gate := NewHostGate(1, 0, limiter, log)
	c := NewClassifier(testClient(), gate, robots, ClassifierOptions{}, log)

	blocked := c.Fetch(context.Background(), server.URL+"/private/paper.pdf")
	if !errors.Is(blocked.Err, utils.ErrRobotsDisallowed) {
		t.Errorf("expected ErrRobotsDisallowed, got %v", blocked.Err)
	}
	if pageHits.Load() != 0 {
		t.Error("disallowed URL must not be requested")
	}

	allowed := c.Fetch(context.Background(), server.URL+"/article/1")
	if allowed.Kind != models.OutcomeHTMLPage {
		t.Errorf("allowed URL Kind = %v (err %v)", allowed.Kind, allowed.Err)
	}
	if hosts := gate.Hosts(); len(hosts) != 1 {
		t.Errorf("expected one tracked host, got %v", hosts)
	}
}

func TestRobotsHandler_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	log := testLogger()
	robots := NewRobotsHandler(NewFetcher(testClient(), testPolicy(0), log), NewRateLimiter(0, log), 0, "paper-test", log)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/anything", nil)
	if !robots.TestAgent(context.Background(), req.URL) {
		t.Error("a missing robots.txt should allow everything")
	}
	if robots.GetRobotsData(context.Background(), req.URL) != nil {
		t.Error("expected cached nil robots data")
	}
}
