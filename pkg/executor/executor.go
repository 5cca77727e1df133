// Package executor coordinates tool calls end to end: catalog lookup,
// access checks, provider selection, pooled invocation and outcome
// recording.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/uagent/toolcore/internal/metrics"
	"github.com/uagent/toolcore/pkg/access"
	"github.com/uagent/toolcore/pkg/audit"
	"github.com/uagent/toolcore/pkg/balancer"
	"github.com/uagent/toolcore/pkg/catalog"
	"github.com/uagent/toolcore/pkg/interaction"
	"github.com/uagent/toolcore/pkg/provider"
)

// DefaultTimeout bounds calls that do not specify their own
const DefaultTimeout = 30 * time.Second

// CallResult is the outcome of one tool call
type CallResult struct {
	CallID       string        `json:"call_id"`
	Role         string        `json:"role"`
	Tool         string        `json:"tool"`
	ProviderID   string        `json:"provider_id,omitempty"`
	Success      bool          `json:"success"`
	Payload      interface{}   `json:"payload,omitempty"`
	ErrorKind    Kind          `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Config wires the coordinator's collaborators. Metrics and Audit may be
// nil; Correlator may be nil when no tool is interactive.
type Config struct {
	Catalog    *catalog.Catalog
	Pipeline   *access.Pipeline
	Registry   *provider.Registry
	Balancer   *balancer.Balancer
	Correlator *interaction.Correlator
	Audit      audit.Sink
	Metrics    *metrics.Metrics
}

// Coordinator executes tool calls
type Coordinator struct {
	catalog    *catalog.Catalog
	pipeline   *access.Pipeline
	registry   *provider.Registry
	balancer   *balancer.Balancer
	correlator *interaction.Correlator
	sink       audit.Sink
	metrics    *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex // serialization for non-concurrency-safe tools
}

// New creates a coordinator
func New(cfg Config) *Coordinator {
	sink := cfg.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Coordinator{
		catalog:    cfg.Catalog,
		pipeline:   cfg.Pipeline,
		registry:   cfg.Registry,
		balancer:   cfg.Balancer,
		correlator: cfg.Correlator,
		sink:       sink,
		metrics:    cfg.Metrics,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Execute runs one tool call for a role. Every call gets a fresh id, an
// access decision, and an audit record regardless of outcome.
func (c *Coordinator) Execute(ctx context.Context, role, toolName string, params map[string]interface{}, timeout time.Duration) *CallResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result := &CallResult{
		CallID: uuid.New().String(),
		Role:   role,
		Tool:   toolName,
	}
	start := time.Now()

	payload, providerID, err := c.execute(ctx, role, toolName, params, timeout)

	result.Duration = time.Since(start)
	result.ProviderID = providerID

	outcome := "success"
	if err != nil {
		result.ErrorKind = KindOf(err)
		result.ErrorMessage = err.Error()
		outcome = string(result.ErrorKind)
	} else {
		result.Success = true
		result.Payload = payload
	}

	if c.metrics != nil {
		c.metrics.RecordCall(toolName, outcome, result.Duration.Seconds())
	}
	c.sink.Append(audit.Record{
		CallID:     result.CallID,
		Role:       role,
		Tool:       toolName,
		ProviderID: providerID,
		Outcome:    outcome,
		DurationMs: result.Duration.Milliseconds(),
		Timestamp:  start,
	})

	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("call_id", result.CallID).
		Str("role", role).
		Str("tool", toolName).
		Str("outcome", outcome).
		Dur("duration", result.Duration).
		Msg("Tool call finished")

	return result
}

func (c *Coordinator) execute(ctx context.Context, role, toolName string, params map[string]interface{}, timeout time.Duration) (interface{}, string, error) {
	desc, ok := c.catalog.Get(toolName)
	if !ok {
		return nil, "", newError(KindInvalidParameters, nil, "unknown tool %q", toolName)
	}

	if err := c.pipeline.Run(role, toolName, c.catalog.Schema(toolName), params); err != nil {
		return nil, "", classifyAccessError(err)
	}

	if desc.Interactive {
		answer, err := c.askUser(ctx, params, timeout)
		return answer, "", err
	}

	if !desc.ConcurrencySafe {
		lock := c.toolLock(toolName)
		lock.Lock()
		defer lock.Unlock()
	}

	return c.invoke(ctx, desc, toolName, params, timeout)
}

func (c *Coordinator) invoke(ctx context.Context, desc catalog.Descriptor, toolName string, params map[string]interface{}, timeout time.Duration) (interface{}, string, error) {
	candidates := c.registry.CandidateStats(desc.ProviderIDs)
	providerID, err := c.balancer.Select(toolName, candidates)
	if err != nil {
		return nil, "", newError(KindProviderUnavailable, err, "no provider can serve %q", toolName)
	}

	p, ok := c.registry.Pool(providerID)
	if !ok {
		return nil, providerID, newError(KindProviderUnavailable, nil, "provider %q disappeared", providerID)
	}

	pc, err := p.Acquire(ctx)
	if err != nil {
		return nil, providerID, newError(KindProviderUnavailable, err, "provider %q has no free connection", providerID)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callStart := time.Now()
	payload, err := pc.Invoke(callCtx, toolName, params)
	if err != nil {
		// Every failed call discards its connection; the pool dials a
		// fresh one on demand.
		p.MarkUnhealthy(pc)

		var callErr *provider.CallError
		if errors.As(err, &callErr) {
			return nil, providerID, newError(KindExecutionError, err, "tool %q failed", toolName)
		}
		if callCtx.Err() != nil {
			return nil, providerID, newError(KindExecutionTimeout, err, "tool %q exceeded %s", toolName, timeout)
		}
		return nil, providerID, newError(KindExecutionError, err, "tool %q failed", toolName)
	}

	p.Release(pc)
	c.balancer.ObserveLatency(providerID, time.Since(callStart))
	return payload, providerID, nil
}

// askUser routes an interactive tool through the pending-interaction
// correlator instead of a provider.
func (c *Coordinator) askUser(ctx context.Context, params map[string]interface{}, timeout time.Duration) (interface{}, error) {
	if c.correlator == nil {
		return nil, newError(KindProviderUnavailable, nil, "interactive tools are not enabled")
	}

	question, _ := params["question"].(string)
	if question == "" {
		return nil, &Error{Kind: KindInvalidParameters, Message: "interactive call requires a question"}
	}

	var options []string
	if raw, ok := params["options"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				options = append(options, s)
			}
		}
	}

	answer, err := c.correlator.Ask(ctx, question, options, timeout)
	if err != nil {
		if errors.Is(err, interaction.ErrTimeout) {
			c.countInteraction("expired")
			return nil, newError(KindInteractionTimeout, err, "no answer within %s", timeout)
		}
		c.countInteraction("failed")
		return nil, newError(KindExecutionError, err, "interaction failed")
	}
	c.countInteraction("answered")
	return answer, nil
}

func (c *Coordinator) countInteraction(outcome string) {
	if c.metrics != nil {
		c.metrics.InteractionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Coordinator) toolLock(toolName string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[toolName]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[toolName] = lock
	}
	return lock
}

func classifyAccessError(err error) error {
	var permErr *access.PermissionError
	var rateErr *access.RateLimitError
	var paramErr *access.ParameterError

	switch {
	case errors.As(err, &permErr):
		return &Error{Kind: KindPermissionDenied, Message: permErr.Error(), Cause: err}
	case errors.As(err, &rateErr):
		return &Error{Kind: KindRateLimitExceeded, Message: rateErr.Error(), Cause: err}
	case errors.As(err, &paramErr):
		return &Error{Kind: KindInvalidParameters, Message: paramErr.Error(), Cause: err}
	default:
		return &Error{Kind: KindExecutionError, Message: err.Error(), Cause: err}
	}
}
