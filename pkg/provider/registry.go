package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/uagent/toolcore/pkg/balancer"
	"github.com/uagent/toolcore/pkg/pool"
)

// DialerFunc adapts a function to pool.Dialer
type DialerFunc func(ctx context.Context) (pool.Conn, error)

// Dial implements pool.Dialer
func (f DialerFunc) Dial(ctx context.Context) (pool.Conn, error) {
	return f(ctx)
}

// callerConn wraps a Caller as a pool connection. Each dialed connection
// gets its own id so pool eviction and logs can tell them apart.
type callerConn struct {
	id     string
	caller Caller
}

func (c *callerConn) ID() string { return c.id }

func (c *callerConn) Invoke(ctx context.Context, tool string, params map[string]interface{}) (interface{}, error) {
	return c.caller.Call(ctx, tool, params)
}

func (c *callerConn) Ping(ctx context.Context) error {
	return c.caller.Ping(ctx)
}

func (c *callerConn) Close() error { return nil }

// CallerFactory builds a Caller for a handle. The default builds an
// HTTPCaller; tests substitute in-memory callers.
type CallerFactory func(handle Handle) Caller

type entry struct {
	handle Handle
	pool   *pool.Pool
	warm   bool // at least one successful dial; ineligible until then
}

// Registry tracks registered providers and their pools.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	factory CallerFactory
}

// NewRegistry creates an empty registry. A nil factory defaults to
// HTTP callers.
func NewRegistry(factory CallerFactory) *Registry {
	if factory == nil {
		factory = func(handle Handle) Caller { return NewHTTPCaller(handle) }
	}
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
	}
}

// Register adds a provider and warms its pool. The provider only becomes
// eligible for selection once at least one connection dialed successfully;
// a failed warm-up leaves it registered but ineligible, to be retried by
// the health probe. Re-registering an id replaces the old entry and drains
// its pool.
func (r *Registry) Register(ctx context.Context, handle Handle) error {
	if handle.ID == "" {
		return fmt.Errorf("provider: handle has empty id")
	}

	caller := r.factory(handle)
	p := pool.New(pool.Config{
		ProviderID: handle.ID,
		MinConns:   handle.MinConns,
		MaxConns:   handle.MaxConns,
	}, DialerFunc(func(ctx context.Context) (pool.Conn, error) {
		// Verify reachability before counting the connection live, so
		// warm-up and refill fail fast against a downed provider.
		if err := caller.Ping(ctx); err != nil {
			return nil, fmt.Errorf("provider %s unreachable: %w", handle.ID, err)
		}
		return &callerConn{id: uuid.New().String(), caller: caller}, nil
	}))

	e := &entry{handle: handle, pool: p}

	r.mu.Lock()
	old := r.entries[handle.ID]
	r.entries[handle.ID] = e
	r.mu.Unlock()

	if old != nil {
		log.Info().Str("provider", handle.ID).Msg("replacing provider registration")
		old.pool.Close()
	}

	target := handle.MinConns
	if target < 1 {
		target = 1
	}
	if err := p.Warm(ctx, target); err != nil {
		log.Warn().Err(err).Str("provider", handle.ID).Msg("provider warm-up failed, deferring eligibility")
		return err
	}

	r.mu.Lock()
	e.warm = true
	r.mu.Unlock()

	log.Info().Str("provider", handle.ID).Msg("provider registered")
	return nil
}

// Deregister removes a provider and drains its pool: checked-out
// connections finish their calls and close on release.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.pool.Close()
	log.Info().Str("provider", id).Msg("provider deregistered")
	return true
}

// Pool returns the pool for a provider id
func (r *Registry) Pool(id string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.pool, true
}

// Handle returns the registered handle for an id
func (r *Registry) Handle(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// IDs returns all registered provider ids
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// CandidateStats builds balancer inputs for the given provider ids,
// skipping unknown and not-yet-warm entries. Active load comes from the
// pool's checked-out count plus queued waiters.
func (r *Registry) CandidateStats(ids []string) []balancer.ProviderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]balancer.ProviderStats, 0, len(ids))
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok || !e.warm {
			continue
		}
		s := e.pool.Stats()
		stats = append(stats, balancer.ProviderStats{
			ID:      id,
			Active:  s.CheckedOut + s.Waiting,
			Healthy: s.Live > 0 || s.Waiting == 0,
		})
	}
	return stats
}

// ProbeAll runs a health check pass over every pool and retries warm-up
// for providers that never managed a first dial.
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.RUnlock()

	for _, e := range snapshot {
		r.mu.RLock()
		warm := e.warm
		r.mu.RUnlock()

		if !warm {
			warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := e.pool.Warm(warmCtx, 1)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("provider", e.handle.ID).Msg("warm-up retry failed")
				continue
			}
			r.mu.Lock()
			e.warm = true
			r.mu.Unlock()
			log.Info().Str("provider", e.handle.ID).Msg("provider became eligible")
			continue
		}
		e.pool.HealthCheck(ctx)
	}
}

// Close drains every pool
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.pool.Close()
	}
}
