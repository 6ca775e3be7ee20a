package fetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostSlot is the politeness state of one host
type hostSlot struct {
	sem       *semaphore.Weighted
	users     int       // holders plus waiters
	idleSince time.Time // zero while in use
}

// HostGate sits in front of every classified request. It bounds in-flight
// requests per host and spaces consecutive requests to one host by the
// configured delay. Mirrors and publisher CDNs are shared by every identifier
// of a batch, so one gate serves all workers.
type HostGate struct {
	mu      sync.Mutex
	slots   map[string]*hostSlot
	perHost int64
	delay   time.Duration
	spacing *RateLimiter
	log     *logrus.Entry
}

// NewHostGate creates a gate. spacing is shared with the robots.txt fetcher so
// both count towards the same per-host delay; nil creates a private one.
func NewHostGate(maxPerHost int, delay time.Duration, spacing *RateLimiter, log *logrus.Entry) *HostGate {
	if maxPerHost <= 0 {
		maxPerHost = 4
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", maxPerHost)
	}
	if spacing == nil {
		spacing = NewRateLimiter(delay, log)
	}
	return &HostGate{
		slots:   make(map[string]*hostSlot),
		perHost: int64(maxPerHost),
		delay:   delay,
		spacing: spacing,
		log:     log,
	}
}

// Enter blocks until host has a free slot and its spacing delay has passed.
// leave must be called once the response is consumed; it is safe to call twice.
func (g *HostGate) Enter(ctx context.Context, host string) (leave func(), err error) {
	slot := g.join(host)
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		g.part(slot)
		return nil, err
	}
	g.spacing.ApplyDelay(ctx, host, g.delay)
	if err := ctx.Err(); err != nil {
		slot.sem.Release(1)
		g.part(slot)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.spacing.UpdateLastRequestTime(host)
			slot.sem.Release(1)
			g.part(slot)
		})
	}, nil
}

// Redirected records that host answered a request entered under another host,
// so the next request to it waits out the delay too
func (g *HostGate) Redirected(host string) {
	g.part(g.join(host))
	g.spacing.UpdateLastRequestTime(host)
	g.log.WithField("host", host).Debug("Tracking redirect target")
}

func (g *HostGate) join(host string) *hostSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(g.perHost)}
		g.slots[host] = slot
		g.log.WithFields(logrus.Fields{"host": host, "limit": g.perHost}).Debug("New host slot")
	}
	slot.users++
	slot.idleSince = time.Time{}
	return slot
}

func (g *HostGate) part(slot *hostSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.users--
	if slot.users == 0 {
		slot.idleSince = time.Now()
	}
}

// RunEviction forgets hosts idle for a whole interval until ctx is done.
// Large batches touch thousands of publisher hosts once each.
func (g *HostGate) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.log.Debugf("Host gate eviction stopped: %v", ctx.Err())
			return
		case now := <-ticker.C:
			if dropped, kept := g.prune(now, interval); dropped > 0 {
				g.log.Debugf("Forgot %d idle hosts, %d tracked", dropped, kept)
			}
		}
	}
}

// prune drops unused hosts idle since before now-maxIdle
func (g *HostGate) prune(now time.Time, maxIdle time.Duration) (dropped, kept int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for host, slot := range g.slots {
		if slot.users == 0 && now.Sub(slot.idleSince) >= maxIdle {
			delete(g.slots, host)
			g.spacing.Forget(host)
			dropped++
		}
	}
	return dropped, len(g.slots)
}

// Hosts lists the tracked hosts in order
func (g *HostGate) Hosts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	hosts := make([]string, 0, len(g.slots))
	for h := range g.slots {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
