package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
)

// Instance is one pooled browser session with its usage bookkeeping.
// At most one holder at a time; holding is exclusive by construction, so
// usage under a held slot needs no further locking.
type Instance struct {
	session      Session
	inUse        bool
	affinity     string // e.g. county key, preferred on reacquisition
	createdAt    time.Time
	requestCount int
}

// Handle is the caller's exclusive grip on a session. Temporary handles
// come from overflow and are destroyed on release instead of returned.
type Handle struct {
	pool      *Pool
	inst      *Instance
	temporary bool
	released  bool
}

// Context returns the browser context for running automation tasks.
// Satisfies interfaces.BrowserSession.
func (h *Handle) Context() context.Context {
	return h.inst.session.Context()
}

// RequestCount reports how many acquisitions this slot has served since
// its last recycle.
func (h *Handle) RequestCount() int {
	return h.inst.requestCount
}

// Temporary reports whether this handle came from overflow rather than a
// managed slot.
func (h *Handle) Temporary() bool {
	return h.temporary
}

// MarkFailed flags the held session as possibly corrupted. The slot is
// forced through a recycle on its next acquisition.
func (h *Handle) MarkFailed() {
	if h.temporary {
		return
	}
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	h.inst.requestCount = h.pool.recycleThreshold + 1
}

// Pool grants exclusive access to one browser session per concurrent
// scrape, bounded by configured capacity, with affinity and recycling.
// One mutex guards the slot list; scan plus mutate is atomic.
type Pool struct {
	mu    sync.Mutex
	slots []*Instance

	size             int
	recycleThreshold int
	pollInterval     time.Duration
	maxAcquireTries  int

	factory SessionFactory
	cfg     common.BrowserConfig
	logger  arbor.ILogger

	started bool
}

// NewPool creates a pool. factory defaults to NewChromedpSession; tests
// inject a stub.
func NewPool(cfg common.BrowserConfig, factory SessionFactory, logger arbor.ILogger) *Pool {
	if factory == nil {
		factory = NewChromedpSession
	}
	pollInterval := time.Second
	if d, err := time.ParseDuration(cfg.AcquirePollInterval); err == nil && d > 0 {
		pollInterval = d
	}
	maxTries := cfg.AcquireMaxRetries
	if maxTries <= 0 {
		maxTries = 10
	}
	threshold := cfg.RecycleThreshold
	if threshold <= 0 {
		threshold = 50
	}

	return &Pool{
		size:             cfg.PoolSize,
		recycleThreshold: threshold,
		pollInterval:     pollInterval,
		maxAcquireTries:  maxTries,
		factory:          factory,
		cfg:              cfg,
		logger:           logger,
	}
}

// Start eagerly creates the managed sessions. Creation failures are
// tolerated as long as at least one session comes up.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("browser pool already started")
	}

	p.logger.Info().
		Int("pool_size", p.size).
		Int("recycle_threshold", p.recycleThreshold).
		Msg("Initializing browser session pool")

	var lastErr error
	for i := 0; i < p.size; i++ {
		session, err := p.factory(p.cfg)
		if err != nil {
			lastErr = err
			p.logger.Warn().Err(err).Int("slot", i).Msg("Failed to create browser session")
			continue
		}
		p.slots = append(p.slots, &Instance{
			session:   session,
			createdAt: time.Now(),
		})
	}

	if len(p.slots) == 0 {
		return fmt.Errorf("failed to create any browser sessions, last error: %w", lastErr)
	}
	if len(p.slots) < p.size {
		p.logger.Warn().
			Int("requested", p.size).
			Int("created", len(p.slots)).
			Msg("Created fewer browser sessions than requested")
	}

	p.started = true
	p.logger.Info().Int("sessions", len(p.slots)).Msg("Browser session pool started")
	return nil
}

// Acquire returns an exclusive handle, preferring an idle slot already
// bound to affinityKey. When every slot is busy it polls for a bounded
// number of attempts and then falls back to a temporary instance outside
// the managed pool, so callers never block forever.
func (p *Pool) Acquire(ctx context.Context, affinityKey string) (*Handle, error) {
	if !p.started {
		return nil, fmt.Errorf("browser pool not started")
	}

	for attempt := 0; ; attempt++ {
		inst := p.tryClaim(affinityKey)
		if inst != nil {
			if inst.requestCount > p.recycleThreshold {
				if err := p.recycle(inst); err != nil {
					p.releaseSlot(inst)
					return nil, err
				}
			}
			return &Handle{pool: p, inst: inst}, nil
		}

		if attempt >= p.maxAcquireTries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}

	// Capacity exhausted. Hand out a temporary session that bypasses the
	// managed slots and is destroyed on release.
	p.logger.Warn().
		Str("affinity", affinityKey).
		Int("pool_size", len(p.slots)).
		Msg("Browser pool exhausted, creating temporary session")

	session, err := p.factory(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("create temporary browser session: %w", err)
	}
	return &Handle{
		pool: p,
		inst: &Instance{
			session:      session,
			inUse:        true,
			affinity:     affinityKey,
			createdAt:    time.Now(),
			requestCount: 1,
		},
		temporary: true,
	}, nil
}

// tryClaim atomically scans for an idle slot and marks it held.
func (p *Pool) tryClaim(affinityKey string) *Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	var inst *Instance
	if affinityKey != "" {
		for _, candidate := range p.slots {
			if !candidate.inUse && candidate.affinity == affinityKey {
				inst = candidate
				break
			}
		}
	}
	if inst == nil {
		for _, candidate := range p.slots {
			if !candidate.inUse {
				inst = candidate
				break
			}
		}
	}
	if inst == nil {
		return nil
	}

	inst.inUse = true
	inst.requestCount++
	inst.affinity = affinityKey
	return inst
}

// recycle tears down a held slot's session and replaces it in place,
// preserving affinity. Called only while the slot is exclusively held.
func (p *Pool) recycle(inst *Instance) error {
	p.logger.Info().
		Int("request_count", inst.requestCount).
		Str("affinity", inst.affinity).
		Msg("Recycling browser session")

	if err := inst.session.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Error closing browser session during recycle")
	}

	session, err := p.factory(p.cfg)
	if err != nil {
		return fmt.Errorf("recycle browser session: %w", err)
	}

	p.mu.Lock()
	inst.session = session
	inst.createdAt = time.Now()
	inst.requestCount = 1
	p.mu.Unlock()
	return nil
}

func (p *Pool) releaseSlot(inst *Instance) {
	p.mu.Lock()
	inst.inUse = false
	p.mu.Unlock()
}

// Release returns a handle to the pool. Managed slots are only flagged
// idle; destruction happens via recycling or Shutdown. Temporary overflow
// sessions are destroyed eagerly.
func (p *Pool) Release(h *Handle) {
	if h == nil || h.released {
		return
	}
	h.released = true

	if h.temporary {
		if err := h.inst.session.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing temporary browser session")
		}
		return
	}
	p.releaseSlot(h.inst)
}

// Shutdown tears down every managed session, best effort.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.logger.Info().Int("sessions", len(p.slots)).Msg("Shutting down browser session pool")
	for _, inst := range p.slots {
		if err := inst.session.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing browser session")
		}
	}
	p.slots = nil
	p.started = false
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, inst := range p.slots {
		if inst.inUse {
			inUse++
		}
	}
	return map[string]interface{}{
		"pool_size": len(p.slots),
		"in_use":    inUse,
		"available": len(p.slots) - inUse,
		"started":   p.started,
	}
}
