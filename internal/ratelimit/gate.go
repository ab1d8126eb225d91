// Package ratelimit spaces outbound calls per external API and keeps soft
// per-minute usage counters. Hard stop decisions belong to the quota checks
// in the enrichment client, not here.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"leadflow-engine/internal/state"
)

const usageCounterTTL = 2 * time.Hour

// Gate enforces a minimum inter-request interval per API name. Burst is 1,
// so the first call to an API never waits.
type Gate struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	intervals map[string]time.Duration
	def       time.Duration

	store  state.Store
	limits map[string]int // provider per-minute limits, for warning only
	now    func() time.Time
}

func NewGate(defaultInterval time.Duration, store state.Store) *Gate {
	return &Gate{
		limiters:  make(map[string]*rate.Limiter),
		intervals: make(map[string]time.Duration),
		def:       defaultInterval,
		store:     store,
		limits:    make(map[string]int),
		now:       time.Now,
	}
}

// SetInterval overrides the inter-request interval for one API.
func (g *Gate) SetInterval(api string, d time.Duration) {
	g.mu.Lock()
	g.intervals[api] = d
	delete(g.limiters, api) // rebuild on next Wait
	g.mu.Unlock()
}

// SetMinuteLimit registers the provider's published per-minute limit so
// RecordUsage can warn when we blow past it.
func (g *Gate) SetMinuteLimit(api string, limit int) {
	g.mu.Lock()
	g.limits[api] = limit
	g.mu.Unlock()
}

func (g *Gate) limiterFor(api string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if lim, ok := g.limiters[api]; ok {
		return lim
	}
	interval := g.def
	if d, ok := g.intervals[api]; ok {
		interval = d
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	g.limiters[api] = lim
	return lim
}

// Wait blocks until the API's minimum interval has elapsed since the
// previous call, or the context is cancelled.
func (g *Gate) Wait(ctx context.Context, api string) error {
	return g.limiterFor(api).Wait(ctx)
}

// RecordUsage bumps the API's current-minute counter. Soft tracking only:
// exceeding the provider limit logs a warning but never blocks.
func (g *Gate) RecordUsage(api, endpoint string) int {
	key := "usage:" + api + ":" + g.now().UTC().Format("200601021504")

	g.mu.Lock()
	limit := g.limits[api]
	g.mu.Unlock()

	count := 1
	if b, ok := g.store.Get(key); ok {
		if n, err := strconv.Atoi(string(b)); err == nil {
			count = n + 1
		}
	}
	g.store.Put(key, []byte(strconv.Itoa(count)), usageCounterTTL)

	if limit > 0 && count > limit {
		log.Printf("[ratelimit] %s over per-minute limit: %d > %d (endpoint=%s)", api, count, limit, endpoint)
	}
	return count
}

// MinuteUsage returns the counter for the current minute.
func (g *Gate) MinuteUsage(api string) int {
	key := "usage:" + api + ":" + g.now().UTC().Format("200601021504")
	if b, ok := g.store.Get(key); ok {
		if n, err := strconv.Atoi(string(b)); err == nil {
			return n
		}
	}
	return 0
}
