// Package pool manages a bounded set of live connections to a single tool
// provider. Acquisition is backpressured: when the pool is at capacity,
// callers queue and are woken in FIFO order as connections come back.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrAcquireTimeout is returned when no connection became available
	// within the bounded wait.
	ErrAcquireTimeout = errors.New("pool: acquire timed out")

	// ErrPoolClosed is returned for acquires against a closed pool.
	ErrPoolClosed = errors.New("pool: closed")
)

// Conn is a live connection to a provider
type Conn interface {
	ID() string
	Invoke(ctx context.Context, tool string, params map[string]interface{}) (interface{}, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer establishes new provider connections
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Config holds pool configuration
type Config struct {
	ProviderID     string
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration // bounded wait for a connection
	DialTimeout    time.Duration
	FreshFor       time.Duration // idle age beyond which reuse requires a probe
	ProbeTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.FreshFor <= 0 {
		c.FreshFor = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	return c
}

// PooledConn is a connection checked out of a pool. It is exclusively
// owned by one caller until handed back via Release or MarkUnhealthy.
type PooledConn struct {
	Conn
	providerID string
	lastUsed   time.Time
}

// ProviderID returns the owning provider's id
func (pc *PooledConn) ProviderID() string {
	return pc.providerID
}

type waiter struct {
	// ch receives a connection handoff, or nil when capacity freed up and
	// the waiter should retry the fast path itself.
	ch chan *PooledConn
}

// Stats is a point-in-time snapshot of pool state
type Stats struct {
	Live       int
	Idle       int
	CheckedOut int
	Waiting    int
}

// Pool is a bounded connection pool for one provider
type Pool struct {
	cfg    Config
	dialer Dialer

	mu      sync.Mutex
	idle    []*PooledConn
	live    int // idle + checked out + mid-dial reservations
	waiters []*waiter
	closed  bool
}

// New creates a pool. Connections are dialed lazily; call Warm to
// pre-establish the minimum set.
func New(cfg Config, dialer Dialer) *Pool {
	return &Pool{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
	}
}

// ProviderID returns the provider this pool serves
func (p *Pool) ProviderID() string {
	return p.cfg.ProviderID
}

// Acquire returns a connection, blocking up to the acquire timeout when the
// pool is exhausted. The caller's context cancels the wait promptly.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Fast path: reuse an idle connection.
		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			p.mu.Unlock()

			if p.verify(ctx, pc) {
				pc.lastUsed = time.Now()
				return pc, nil
			}

			// Stale connection: discard and try again.
			_ = pc.Conn.Close()
			p.mu.Lock()
			p.live--
		}

		// Grow while below capacity.
		if p.live < p.cfg.MaxConns {
			p.live++
			p.mu.Unlock()

			pc, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.live--
				p.wakeOneLocked(nil)
				p.mu.Unlock()
				return nil, fmt.Errorf("pool: dial %s: %w", p.cfg.ProviderID, err)
			}
			return pc, nil
		}

		// At capacity: queue behind earlier arrivals.
		w := &waiter{ch: make(chan *PooledConn, 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		select {
		case pc := <-w.ch:
			if pc != nil {
				return pc, nil
			}
			// Capacity freed; retry the fast path with the remaining wait budget.
			continue

		case <-waitCtx.Done():
			p.abandonWaiter(w)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrAcquireTimeout
		}
	}
}

// abandonWaiter removes a cancelled waiter, re-homing any connection that
// was handed to it in the race with release.
func (p *Pool) abandonWaiter(w *waiter) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	// Already dequeued: a handoff is sitting in the buffered channel.
	p.mu.Unlock()
	select {
	case pc := <-w.ch:
		if pc != nil {
			p.Release(pc)
		}
	default:
	}
}

// Release returns a healthy connection to the pool, handing it to the
// longest-waiting caller if any are queued.
func (p *Pool) Release(pc *PooledConn) {
	if pc == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.live--
		p.mu.Unlock()
		_ = pc.Conn.Close()
		return
	}

	pc.lastUsed = time.Now()
	if p.wakeOneLocked(pc) {
		p.mu.Unlock()
		return
	}

	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

// MarkUnhealthy discards a connection that failed mid-call, freeing its
// capacity slot so a waiter can dial a fresh one.
func (p *Pool) MarkUnhealthy(pc *PooledConn) {
	if pc == nil {
		return
	}

	p.mu.Lock()
	p.live--
	p.wakeOneLocked(nil)
	p.mu.Unlock()

	_ = pc.Conn.Close()

	log.Warn().
		Str("provider", p.cfg.ProviderID).
		Str("connection", pc.ID()).
		Msg("Connection discarded as unhealthy")
}

// wakeOneLocked hands pc (or a retry signal when pc is nil) to the first
// queued waiter. Must be called with p.mu held.
func (p *Pool) wakeOneLocked(pc *PooledConn) bool {
	if len(p.waiters) == 0 {
		return false
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	w.ch <- pc
	return true
}

// Warm dials up to target connections, returning an error if none
// succeeded. Used at registration so a provider only becomes eligible for
// selection once it has at least one live connection.
func (p *Pool) Warm(ctx context.Context, target int) error {
	if target > p.cfg.MaxConns {
		target = p.cfg.MaxConns
	}

	dialed := 0
	var lastErr error
	for i := 0; i < target; i++ {
		p.mu.Lock()
		if p.closed || p.live >= p.cfg.MaxConns {
			p.mu.Unlock()
			break
		}
		p.live++
		p.mu.Unlock()

		pc, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
			lastErr = err
			continue
		}
		dialed++
		p.Release(pc)
	}

	if target > 0 && dialed == 0 {
		if lastErr == nil {
			lastErr = ErrPoolClosed
		}
		return fmt.Errorf("pool: warm-up of %s failed: %w", p.cfg.ProviderID, lastErr)
	}

	log.Info().
		Str("provider", p.cfg.ProviderID).
		Int("connections", dialed).
		Msg("Pool warmed")

	return nil
}

// HealthCheck probes idle connections, evicts dead ones and refills up to
// MinConns. Intended to run from the maintenance loop.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	snapshot := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range snapshot {
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		err := pc.Ping(probeCtx)
		cancel()

		if err != nil {
			p.mu.Lock()
			p.live--
			p.wakeOneLocked(nil)
			p.mu.Unlock()
			_ = pc.Conn.Close()

			log.Debug().
				Str("provider", p.cfg.ProviderID).
				Str("connection", pc.ID()).
				Err(err).
				Msg("Idle connection evicted")
			continue
		}
		p.Release(pc)
	}

	// Refill to the configured minimum.
	for {
		p.mu.Lock()
		if p.closed || p.live >= p.cfg.MinConns || p.live >= p.cfg.MaxConns {
			p.mu.Unlock()
			return
		}
		p.live++
		p.mu.Unlock()

		pc, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
			return
		}
		p.Release(pc)
	}
}

// Stats returns a snapshot of pool state
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Live:       p.live,
		Idle:       len(p.idle),
		CheckedOut: p.live - len(p.idle),
		Waiting:    len(p.waiters),
	}
}

// Close drains the pool: idle connections close now, checked-out ones close
// as they are released, and queued waiters fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	p.live -= len(idle)

	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w.ch <- nil
	}
	for _, pc := range idle {
		_ = pc.Conn.Close()
	}

	log.Info().Str("provider", p.cfg.ProviderID).Msg("Pool closed")
}

// verify decides whether an idle connection is safe to hand out, probing it
// when it has sat idle longer than the freshness window.
func (p *Pool) verify(ctx context.Context, pc *PooledConn) bool {
	if time.Since(pc.lastUsed) <= p.cfg.FreshFor {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	return pc.Ping(probeCtx) == nil
}

func (p *Pool) dial(ctx context.Context) (*PooledConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	conn, err := p.dialer.Dial(dialCtx)
	if err != nil {
		return nil, err
	}

	return &PooledConn{
		Conn:       conn,
		providerID: p.cfg.ProviderID,
		lastUsed:   time.Now(),
	}, nil
}
