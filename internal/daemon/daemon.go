// Package daemon wires the tool core together: catalog, access pipeline,
// provider registry, execution coordinator, interaction correlator, audit
// sink, maintenance jobs and the gateway.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uagent/toolcore/internal/config"
	"github.com/uagent/toolcore/internal/logger"
	"github.com/uagent/toolcore/internal/metrics"
	"github.com/uagent/toolcore/pkg/access"
	"github.com/uagent/toolcore/pkg/audit"
	"github.com/uagent/toolcore/pkg/balancer"
	"github.com/uagent/toolcore/pkg/catalog"
	"github.com/uagent/toolcore/pkg/executor"
	"github.com/uagent/toolcore/pkg/gateway"
	"github.com/uagent/toolcore/pkg/interaction"
	"github.com/uagent/toolcore/pkg/maintenance"
	"github.com/uagent/toolcore/pkg/provider"
)

// Daemon is the composed tool core service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	metrics     *metrics.Metrics
	catalog     *catalog.Catalog
	registry    *provider.Registry
	balancer    *balancer.Balancer
	pipeline    *access.Pipeline
	correlator  *interaction.Correlator
	coordinator *executor.Coordinator
	auditStore  *audit.SQLiteStore
	auditSink   *audit.AsyncSink
	runner      *maintenance.Runner
	gateway     *gateway.Server
	watcher     *provider.ConfigWatcher

	configPath string

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a daemon from validated configuration. configPath may be
// empty; provider hot reload is disabled then.
func New(cfg *config.Config, log *logger.Logger, configPath string) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     cfg,
		logger:     log,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
		metrics:    metrics.NewMetrics(),
		catalog:    catalog.New(),
		balancer:   balancer.New(balancer.LeastActive{}),
		runner:     maintenance.NewRunner(),
	}

	if err := d.initModules(); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initModules() error {
	cfg := d.config

	for _, tool := range cfg.Tools {
		if err := d.catalog.Register(catalog.Descriptor{
			Name:            tool.Name,
			Description:     tool.Description,
			ProviderIDs:     tool.Providers,
			InputSchema:     tool.InputSchema,
			SafetyTags:      tool.SafetyTags,
			ConcurrencySafe: tool.ConcurrencySafe,
			Interactive:     tool.Interactive,
		}); err != nil {
			return fmt.Errorf("tool %s: %w", tool.Name, err)
		}
	}

	d.pipeline = access.NewPipeline(
		access.NewPermissionChecker(cfg.Access.Roles, cfg.Access.SecurityLevels),
		access.NewRateLimiter(rateLimits(cfg.Access.RateLimits)),
		access.NewParamValidator(access.SafetyRules{
			AllowedURLSchemes: cfg.Safety.AllowedURLSchemes,
			DeniedDirs:        cfg.Safety.DeniedDirs,
			DeniedCommands:    cfg.Safety.DeniedCommands,
		}),
	)

	d.registry = provider.NewRegistry(nil)

	var notifier interaction.Notifier = interaction.NopNotifier{}
	var hub *gateway.Hub
	if cfg.Gateway.Enabled {
		hub = gateway.NewHub(d.logger.GetZerolog())
		notifier = hub
	}
	d.correlator = interaction.New(notifier)

	if cfg.Audit.DBPath != "" {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		d.auditStore = store
		d.auditSink = audit.NewAsyncSink(store, cfg.Audit.BufferSize, func() {
			d.metrics.AuditRecordsDropped.Inc()
		})
	}

	var sink audit.Sink = audit.NopSink{}
	if d.auditSink != nil {
		sink = d.auditSink
	}

	d.coordinator = executor.New(executor.Config{
		Catalog:    d.catalog,
		Pipeline:   d.pipeline,
		Registry:   d.registry,
		Balancer:   d.balancer,
		Correlator: d.correlator,
		Audit:      sink,
		Metrics:    d.metrics,
	})

	if cfg.Gateway.Enabled {
		server, err := gateway.NewServer(gateway.Config{
			Host:        cfg.Gateway.Host,
			Port:        cfg.Gateway.Port,
			Hub:         hub,
			Coordinator: d.coordinator,
			Correlator:  d.correlator,
			Catalog:     d.catalog,
			Metrics:     d.metrics,
			Logger:      d.logger.GetZerolog(),
		})
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		d.gateway = server
	}

	return d.registerMaintenanceJobs()
}

func (d *Daemon) registerMaintenanceJobs() error {
	cfg := d.config

	probeEvery := time.Duration(cfg.Maintenance.HealthProbeSeconds) * time.Second
	if probeEvery <= 0 {
		probeEvery = 30 * time.Second
	}
	if err := d.runner.Register("provider-health", maintenance.Every(probeEvery), func(ctx context.Context) {
		d.registry.ProbeAll(ctx)
		for _, id := range d.registry.IDs() {
			if p, ok := d.registry.Pool(id); ok {
				s := p.Stats()
				d.metrics.UpdatePool(id, s.Live, s.CheckedOut, s.Waiting)
			}
		}
	}); err != nil {
		return err
	}

	pruneEvery := time.Duration(cfg.Maintenance.PruneSeconds) * time.Second
	if pruneEvery <= 0 {
		pruneEvery = time.Minute
	}
	if err := d.runner.Register("ratelimit-prune", maintenance.Every(pruneEvery), func(ctx context.Context) {
		d.pipeline.Limiter().Prune()
	}); err != nil {
		return err
	}

	sweepEvery := time.Duration(cfg.Interaction.SweepIntervalSeconds) * time.Second
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	if err := d.runner.Register("interaction-sweep", maintenance.Every(sweepEvery), func(ctx context.Context) {
		d.correlator.Sweep()
	}); err != nil {
		return err
	}

	if d.auditStore != nil && cfg.Audit.RetentionDays > 0 {
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		if err := d.runner.Register("audit-retention", maintenance.Every(time.Hour), func(ctx context.Context) {
			if _, err := d.auditStore.Prune(retention); err != nil {
				d.logger.Error().Err(err).Msg("Audit retention prune failed")
			}
		}); err != nil {
			return err
		}
	}

	return nil
}

// Start registers providers, starts the gateway and arms maintenance.
// Provider warm-up failures are logged, not fatal: the health probe
// retries them until the provider comes up.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	for _, pc := range d.config.Providers {
		handle := providerHandle(pc)
		if err := d.registry.Register(d.ctx, handle); err != nil {
			d.logger.Warn().Err(err).Str("provider", pc.ID).Msg("Provider not ready at startup")
		}
	}

	if d.gateway != nil {
		if err := d.gateway.Start(); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}

	if d.configPath != "" {
		watcher, err := provider.NewConfigWatcher(d.logger.GetZerolog(), d.configPath, d.reloadProviders)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Provider hot reload disabled")
		} else {
			d.watcher = watcher
		}
	}

	d.runner.Start()

	d.logger.Info().
		Int("tools", d.catalog.Count()).
		Int("providers", len(d.config.Providers)).
		Bool("gateway", d.gateway != nil).
		Msg("Tool core started")

	return nil
}

// Stop shuts the daemon down in reverse dependency order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping tool core")

	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	d.runner.Stop()

	if d.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.gateway.Stop(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Gateway shutdown error")
		}
		cancel()
	}

	d.correlator.Close()
	d.registry.Close()

	if d.auditSink != nil {
		if err := d.auditSink.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Audit sink close error")
		}
	}

	d.cancel()
	d.logger.Info().Msg("Tool core stopped")
	return nil
}

// Status describes the running daemon
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	Tools     int           `json:"tools"`
	Providers int           `json:"providers"`
	Pending   int           `json:"pending_interactions"`
}

// Status returns a snapshot of daemon state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	running := d.running
	started := d.startTime
	d.mu.RUnlock()

	st := Status{
		Running:   running,
		Tools:     d.catalog.Count(),
		Providers: len(d.registry.IDs()),
		Pending:   len(d.correlator.Pending()),
	}
	if running {
		st.Uptime = time.Since(started)
	}
	return st
}

// Coordinator exposes the execution coordinator
func (d *Daemon) Coordinator() *executor.Coordinator {
	return d.coordinator
}

// reloadProviders re-reads the config file and syncs the provider set:
// new ids register, removed ids drain, changed ids re-register.
func (d *Daemon) reloadProviders() {
	cfg, err := config.NewLoader(d.configPath).Load()
	if err != nil {
		d.logger.Error().Err(err).Msg("Provider reload: config load failed")
		return
	}
	if err := config.Validate(cfg); err != nil {
		d.logger.Error().Err(err).Msg("Provider reload: config invalid, keeping current providers")
		return
	}

	desired := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		desired[pc.ID] = pc
	}

	current := make(map[string]config.ProviderConfig, len(d.config.Providers))
	for _, pc := range d.config.Providers {
		current[pc.ID] = pc
	}

	for id := range current {
		if _, keep := desired[id]; !keep {
			d.registry.Deregister(id)
		}
	}
	for id, pc := range desired {
		if old, ok := current[id]; ok && old == pc {
			continue
		}
		if err := d.registry.Register(d.ctx, providerHandle(pc)); err != nil {
			d.logger.Warn().Err(err).Str("provider", id).Msg("Provider reload: not ready")
		}
	}

	d.mu.Lock()
	d.config.Providers = cfg.Providers
	d.mu.Unlock()

	d.logger.Info().Int("providers", len(desired)).Msg("Provider set reloaded")
}

func providerHandle(pc config.ProviderConfig) provider.Handle {
	return provider.Handle{
		ID:         pc.ID,
		BaseURL:    pc.BaseURL,
		AuthType:   provider.AuthType(pc.AuthType),
		Credential: pc.Credential,
		Timeout:    time.Duration(pc.TimeoutSeconds) * time.Second,
		MinConns:   pc.MinConns,
		MaxConns:   pc.MaxConns,
	}
}

func rateLimits(cfg map[string]config.RateLimitConfig) map[string]access.Limit {
	limits := make(map[string]access.Limit, len(cfg))
	for category, rl := range cfg {
		limits[category] = access.Limit{
			Requests: rl.Requests,
			Window:   time.Duration(rl.WindowSeconds) * time.Second,
		}
	}
	return limits
}
