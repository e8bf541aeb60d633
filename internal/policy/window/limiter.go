// Package window limits inbound trigger calls per caller and path with fixed
// windows. Counters live in process memory and are cleaned by an explicit Sweep.
package window

import (
	"sync"
	"time"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultWindow  = time.Minute
	DefaultLimit   = 60
	DefaultIdleTTL = 24 * time.Hour
)

// Config sets the window length, the default per-window limit, per-path
// overrides and how long an idle key is kept.
type Config struct {
	Window  time.Duration
	Limit   int
	Paths   map[string]int
	IdleTTL time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

type counter struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// Limiter tracks one counter per caller:path key.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	counters map[string]*counter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	return &Limiter{cfg: cfg, counters: make(map[string]*counter)}
}

// LimitFor returns the per-window limit that applies to path.
func (l *Limiter) LimitFor(path string) int {
	if n, ok := l.cfg.Paths[path]; ok && n > 0 {
		return n
	}
	return l.cfg.Limit
}

// Allow counts one request from caller to path at now.
func (l *Limiter) Allow(caller, path string, now time.Time) Decision {
	limit := l.LimitFor(path)
	key := caller + ":" + path

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || !now.Before(c.start.Add(l.cfg.Window)) {
		c = &counter{start: now}
		l.counters[key] = c
	}
	c.lastSeen = now
	reset := c.start.Add(l.cfg.Window)

	if c.count >= limit {
		return Decision{
			Limit:      limit,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}
	}
	c.count++
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - c.count,
		Reset:     reset,
	}
}

// Sweep drops keys idle for longer than IdleTTL and returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.counters {
		if now.Sub(c.lastSeen) > l.cfg.IdleTTL {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
