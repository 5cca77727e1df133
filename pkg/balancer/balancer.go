// Package balancer selects a provider for a tool call from the set of
// healthy candidates, using live pool metrics.
package balancer

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoProvider is returned when no healthy candidate remains.
var ErrNoProvider = errors.New("balancer: no provider available")

// ProviderStats is the per-provider metric snapshot fed into a strategy
type ProviderStats struct {
	ID           string
	Active       int // connections currently checked out
	AvgLatencyMs float64
	Healthy      bool
}

// Strategy picks one provider from a non-empty healthy candidate list
type Strategy interface {
	Pick(candidates []ProviderStats) string
}

// LeastActive chooses the provider with the fewest active connections,
// breaking ties by lower average latency and finally by lexicographically
// smallest id so selection is reproducible.
type LeastActive struct{}

// Pick implements Strategy
func (LeastActive) Pick(candidates []ProviderStats) string {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Active < best.Active {
			best = c
			continue
		}
		if c.Active > best.Active {
			continue
		}
		if c.AvgLatencyMs < best.AvgLatencyMs {
			best = c
			continue
		}
		if c.AvgLatencyMs > best.AvgLatencyMs {
			continue
		}
		if c.ID < best.ID {
			best = c
		}
	}
	return best.ID
}

// Balancer applies a strategy over candidate stats, enriched with its own
// exponentially-weighted latency observations.
type Balancer struct {
	strategy Strategy

	mu      sync.Mutex
	latency map[string]float64 // provider id -> EWMA latency ms
}

// ewmaAlpha weights recent observations; higher reacts faster.
const ewmaAlpha = 0.3

// New creates a balancer with the given strategy, defaulting to LeastActive
func New(strategy Strategy) *Balancer {
	if strategy == nil {
		strategy = LeastActive{}
	}
	return &Balancer{
		strategy: strategy,
		latency:  make(map[string]float64),
	}
}

// Select picks a provider for the tool from the candidates. Unhealthy
// candidates are excluded before the strategy runs.
func (b *Balancer) Select(toolName string, candidates []ProviderStats) (string, error) {
	healthy := make([]ProviderStats, 0, len(candidates))

	b.mu.Lock()
	for _, c := range candidates {
		if !c.Healthy {
			continue
		}
		if ewma, ok := b.latency[c.ID]; ok {
			c.AvgLatencyMs = ewma
		}
		healthy = append(healthy, c)
	}
	b.mu.Unlock()

	if len(healthy) == 0 {
		return "", ErrNoProvider
	}

	id := b.strategy.Pick(healthy)

	log.Debug().
		Str("tool", toolName).
		Str("provider", id).
		Int("candidates", len(healthy)).
		Msg("Provider selected")

	return id, nil
}

// ObserveLatency records a completed call's latency for a provider
func (b *Balancer) ObserveLatency(providerID string, d time.Duration) {
	ms := float64(d.Milliseconds())

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.latency[providerID]; ok {
		b.latency[providerID] = ewmaAlpha*ms + (1-ewmaAlpha)*prev
	} else {
		b.latency[providerID] = ms
	}
}

// AvgLatencyMs returns the current EWMA latency for a provider
func (b *Balancer) AvgLatencyMs(providerID string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ewma, ok := b.latency[providerID]
	return ewma, ok
}

// Forget drops latency state for a deregistered provider
func (b *Balancer) Forget(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.latency, providerID)
}
