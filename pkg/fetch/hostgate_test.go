package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u.Host
}

func pdfHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	io.WriteString(w, "%PDF-1.4\n%%EOF\n")
}

func TestHostGate_BoundsRequestsPerMirror(t *testing.T) {
	var slowHits atomic.Int32
	entered := make(chan struct{}, 4)
	unblock := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowHits.Add(1)
		entered <- struct{}{}
		<-unblock
		pdfHandler(w, r)
	}))
	t.Cleanup(slow.Close)
	fast := httptest.NewServer(http.HandlerFunc(pdfHandler))
	t.Cleanup(fast.Close)

	gate := NewHostGate(1, 0, nil, testLogger())
	c := NewClassifier(testClient(), gate, nil, ClassifierOptions{}, testLogger())

	first := make(chan models.FetchOutcome, 1)
	go func() { first <- c.Fetch(context.Background(), slow.URL+"/a.pdf") }()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		close(unblock)
		t.Fatal("first request never reached the slow mirror")
	}

	// Another host is not held up by the busy one
	if out := c.Fetch(context.Background(), fast.URL+"/b.pdf"); out.Kind != models.OutcomeBinaryDocument {
		t.Errorf("fast mirror Kind = %v (err %v)", out.Kind, out.Err)
	}

	// The busy host has no free slot; the waiter gives up with its context
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	waited := c.Fetch(ctx, slow.URL+"/c.pdf")
	cancel()
	if !errors.Is(waited.Err, utils.ErrTransport) || !errors.Is(waited.Err, context.DeadlineExceeded) {
		t.Errorf("expected transport error wrapping the deadline, got %v", waited.Err)
	}
	if slowHits.Load() != 1 {
		t.Errorf("slow mirror saw %d requests while its only slot was held", slowHits.Load())
	}

	close(unblock)
	if out := <-first; out.Kind != models.OutcomeBinaryDocument {
		t.Errorf("first request Kind = %v (err %v)", out.Kind, out.Err)
	}

	// The abandoned wait left no phantom holder behind
	if out := c.Fetch(context.Background(), slow.URL+"/d.pdf"); out.Kind != models.OutcomeBinaryDocument {
		t.Errorf("slot not released: Kind = %v (err %v)", out.Kind, out.Err)
	}
	if dropped, kept := gate.prune(time.Now().Add(time.Hour), time.Minute); dropped != 2 || kept != 0 {
		t.Errorf("prune = (%d, %d), want both hosts idle", dropped, kept)
	}
}

func TestHostGate_SpacesRedirectTarget(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(pdfHandler))
	t.Cleanup(cdn.Close)
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cdn.URL+"/files/paper.pdf", http.StatusFound)
	}))
	t.Cleanup(mirror.Close)

	const delay = 150 * time.Millisecond
	gate := NewHostGate(4, delay, nil, testLogger())
	c := NewClassifier(testClient(), gate, nil, ClassifierOptions{}, testLogger())

	out := c.Fetch(context.Background(), mirror.URL+"/10.1000/x")
	if out.Kind != models.OutcomeBinaryDocument {
		t.Fatalf("redirected fetch Kind = %v (err %v)", out.Kind, out.Err)
	}
	if hostOf(t, out.URL) != hostOf(t, cdn.URL) {
		t.Errorf("final URL %s is not on the CDN", out.URL)
	}

	hosts := gate.Hosts()
	if len(hosts) != 2 {
		t.Fatalf("expected mirror and CDN to be tracked, got %v", hosts)
	}

	start := time.Now()
	if out := c.Fetch(context.Background(), cdn.URL+"/files/paper.pdf"); out.Kind != models.OutcomeBinaryDocument {
		t.Errorf("direct CDN fetch Kind = %v (err %v)", out.Kind, out.Err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("CDN request after a redirect to it waited only %v", elapsed)
	}
}

func TestHostGate_PruneKeepsBusyHosts(t *testing.T) {
	gate := NewHostGate(1, 0, nil, testLogger())

	busyLeave, err := gate.Enter(context.Background(), "mirror.example")
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	idleLeave, err := gate.Enter(context.Background(), "cdn.example")
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	idleLeave()
	idleLeave()

	if dropped, kept := gate.prune(time.Now().Add(time.Hour), time.Minute); dropped != 1 || kept != 1 {
		t.Errorf("prune = (%d, %d), want (1, 1)", dropped, kept)
	}
	if hosts := gate.Hosts(); len(hosts) != 1 || hosts[0] != "mirror.example" {
		t.Errorf("Hosts() = %v, want only the busy mirror", hosts)
	}

	busyLeave()
	if _, kept := gate.prune(time.Now(), time.Minute); kept != 1 {
		t.Error("a host idle for less than maxIdle must be kept")
	}
	if _, kept := gate.prune(time.Now().Add(time.Hour), time.Minute); kept != 0 {
		t.Errorf("expected every host forgotten, %d remain", kept)
	}
}

func TestHostGate_RunEvictionStopsWithContext(t *testing.T) {
	gate := NewHostGate(2, 0, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gate.RunEviction(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEviction did not return after cancellation")
	}
}
