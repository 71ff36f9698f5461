// Package mcppool implements the daemon-side Connection Pool (spec.md
// §4.5): a key→entry map of live sessions, keyed by server name, with
// single-flight acquisition, config-hash invalidation, and idle eviction.
// Generalized from the teacher's pkg/mcpclient.StdioConnectionPool — a
// process-global singleton pool keyed the same way, with the same
// ticker-driven cleanup shape — to a per-daemon pool that tracks config
// identity instead of a time-boxed health check.
package mcppool

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcpfactory"
	"github.com/cs50victor/mcpx/internal/mcptransport"
	"github.com/cs50victor/mcpx/internal/metrics"
	"github.com/cs50victor/mcpx/internal/retry"
	"github.com/cs50victor/mcpx/pkg/logger"
)

const (
	cleanupInterval    = 60 * time.Second
	defaultIdleTimeout = 5 * time.Minute
)

// Entry mirrors spec.md §3's PoolEntry.
type Entry struct {
	Session      mcptransport.Session
	Config       mcpconfig.ServerConfig
	ConfigSource string
	ConfigHash   string
	StartedAt    time.Time
	LastUsed     time.Time
}

// DetailedEntry is the read-only view listDetailed returns.
type DetailedEntry struct {
	Name         string
	Transport    mcpconfig.Transport
	ConfigSource string
	IdleSeconds  int64
}

// Pool is the key→entry map described in spec.md §4.5. The zero value is
// not usable; construct with New.
type Pool struct {
	log logger.Logger

	mu      sync.Mutex
	entries map[string]*Entry

	idleTimeout time.Duration
	sf          singleflight.Group

	// openSession builds a live session for a config; defaults to
	// mcpfactory.OpenSession but is swappable in tests so the pool's
	// invariants (hash reconnection, single-flight, idle eviction) can be
	// exercised without spawning a real subprocess.
	openSession func(ctx context.Context, cfg mcpconfig.ServerConfig, retryCfg retry.Config, budget *retry.Budget, diagnostic io.Writer) (mcptransport.Session, error)

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a Pool and starts its idle-eviction timer.
func New(log logger.Logger, idleTimeout time.Duration) *Pool {
	return newPool(log, idleTimeout, mcpfactory.OpenSession)
}

func newPool(log logger.Logger, idleTimeout time.Duration, openSession func(context.Context, mcpconfig.ServerConfig, retry.Config, *retry.Budget, io.Writer) (mcptransport.Session, error)) *Pool {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	p := &Pool{
		log:         log,
		entries:     make(map[string]*Entry),
		idleTimeout: idleTimeout,
		openSession: openSession,
		stop:        make(chan struct{}),
	}
	go p.runIdleEviction()
	return p
}

// AcquireResult carries the (session, alreadyConnected, reconnected) tuple
// spec.md §4.5's acquire contract returns.
type AcquireResult struct {
	Session          mcptransport.Session
	AlreadyConnected bool
	Reconnected      bool
}

// Acquire implements spec.md §4.5's four-step algorithm. Concurrent
// acquires for the same name share one in-progress open via
// golang.org/x/sync/singleflight, so every observer sees the
// post-conditions the spec requires even under parallel dispatch — the
// explicit coordination primitive the design note in spec.md §4.5 calls
// for when request handling isn't already serialized.
func (p *Pool) Acquire(ctx context.Context, cfg mcpconfig.ServerConfig, source string, retryCfg retry.Config, budget *retry.Budget) (AcquireResult, error) {
	hash := mcpconfig.Hash(cfg)

	v, err, _ := p.sf.Do(cfg.Name, func() (interface{}, error) {
		p.mu.Lock()
		existing, ok := p.entries[cfg.Name]
		if ok && existing.ConfigHash == hash {
			existing.LastUsed = time.Now()
			session := existing.Session
			p.mu.Unlock()
			return AcquireResult{Session: session, AlreadyConnected: true}, nil
		}
		p.mu.Unlock()

		reconnected := false
		if ok {
			p.closeAndDrop(cfg.Name, existing)
			reconnected = true
			metrics.Reconnects.Inc()
		}

		session, err := p.openSession(ctx, cfg, retryCfg, budget, logWriter{log: p.log, serverName: cfg.Name})
		if err != nil {
			return AcquireResult{}, err
		}

		now := time.Now()
		entry := &Entry{
			Session:      session,
			Config:       cfg,
			ConfigSource: source,
			ConfigHash:   hash,
			StartedAt:    now,
			LastUsed:     now,
		}
		p.mu.Lock()
		p.entries[cfg.Name] = entry
		size := len(p.entries)
		p.mu.Unlock()
		metrics.PoolSize.Set(float64(size))

		return AcquireResult{Session: session, AlreadyConnected: false, Reconnected: reconnected}, nil
	})
	if err != nil {
		return AcquireResult{}, err
	}
	return v.(AcquireResult), nil
}

func (p *Pool) closeAndDrop(name string, entry *Entry) {
	p.mu.Lock()
	delete(p.entries, name)
	size := len(p.entries)
	p.mu.Unlock()
	metrics.PoolSize.Set(float64(size))
	if err := entry.Session.Close(); err != nil {
		p.log.Debugf("pool: error closing replaced session %q: %v", name, err)
	}
}

// Release closes and removes the named entry; idempotent.
func (p *Pool) Release(name string) {
	p.mu.Lock()
	entry, ok := p.entries[name]
	if ok {
		delete(p.entries, name)
	}
	size := len(p.entries)
	p.mu.Unlock()
	if !ok {
		return
	}
	metrics.PoolSize.Set(float64(size))
	if err := entry.Session.Close(); err != nil {
		p.log.Debugf("pool: error closing session %q: %v", name, err)
	}
}

// ReleaseAll closes every entry, stops idle eviction, and returns the
// names that were held.
func (p *Pool) ReleaseAll() []string {
	p.mu.Lock()
	names := make([]string, 0, len(p.entries))
	entries := make([]*Entry, 0, len(p.entries))
	for name, entry := range p.entries {
		names = append(names, name)
		entries = append(entries, entry)
	}
	p.entries = make(map[string]*Entry)
	p.mu.Unlock()
	metrics.PoolSize.Set(0)

	p.stopOnce.Do(func() { close(p.stop) })

	for i, entry := range entries {
		if err := entry.Session.Close(); err != nil {
			p.log.Debugf("pool: error closing session %q during releaseAll: %v", names[i], err)
		}
	}
	return names
}

// Has reports whether name is currently pooled.
func (p *Pool) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[name]
	return ok
}

// List returns the names of every pooled entry.
func (p *Pool) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	return names
}

// ListDetailed returns spec.md §4.5's listDetailed view.
func (p *Pool) ListDetailed() []DetailedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	out := make([]DetailedEntry, 0, len(p.entries))
	for name, entry := range p.entries {
		out = append(out, DetailedEntry{
			Name:         name,
			Transport:    entry.Config.Transport,
			ConfigSource: entry.ConfigSource,
			IdleSeconds:  int64(now.Sub(entry.LastUsed) / time.Second),
		})
	}
	return out
}

// Size returns the current entry count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) runIdleEviction() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) evictIdle() {
	now := time.Now()

	p.mu.Lock()
	var stale []string
	for name, entry := range p.entries {
		if now.Sub(entry.LastUsed) > p.idleTimeout {
			stale = append(stale, name)
		}
	}
	p.mu.Unlock()

	for _, name := range stale {
		p.Release(name)
		metrics.IdleEvictions.Inc()
	}
}

// logWriter routes a pooled session's subprocess stderr into the daemon's
// own log instead of a controlling terminal, which a daemon process
// doesn't have.
type logWriter struct {
	log        logger.Logger
	serverName string
}

func (w logWriter) Write(b []byte) (int, error) {
	w.log.Debugf("%s", strings.TrimRight(string(b), "\n"))
	return len(b), nil
}
