package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/events"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/retry"
	"github.com/twinforge/twinforge/pkg/scheduler"
	"github.com/twinforge/twinforge/pkg/server"
	"github.com/twinforge/twinforge/pkg/types"
	"github.com/twinforge/twinforge/pkg/uploads"
)

// Engine hosts a set of components: it owns the shared stores, the queue
// set, the event broker, the HTTP server, and the scheduler, and walks
// them through startup and shutdown.
type Engine struct {
	cfg *config.Config

	mu         sync.Mutex
	components []component.Component
	names      map[string]bool

	provider auth.Provider
	records  record.Store
	blobs    blob.Store
	queue    queue.Queue
	broker   *events.Broker
	sched    *scheduler.Scheduler
	srv      *server.Server

	diffs []*record.MigrationDiff

	started  bool
	stopOnce sync.Once
	stopErr  error
}

// New builds an engine over the given configuration. Nothing is opened
// until Start.
func New(cfg *config.Config) *Engine {
	cfg.ApplyDefaults()
	return &Engine{cfg: cfg, names: make(map[string]bool)}
}

// Register adds a component. Names must be unique per variant; the name
// doubles as the component's table and job name.
func (e *Engine) Register(c component.Component) error {
	cfg := c.Configuration()
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errdefs.New(errdefs.KindConfiguration, "cannot register components after start")
	}
	key := string(c.Kind()) + "/" + cfg.Name
	if e.names[key] {
		return errdefs.Newf(errdefs.KindConfiguration, "component %q is already registered", cfg.Name)
	}
	e.names[key] = true
	e.components = append(e.components, c)
	return nil
}

// Validate checks the engine configuration and every registered component.
// Used directly by dry-run mode; it mutates nothing.
func (e *Engine) Validate() *config.ValidationReport {
	report := e.cfg.Validate()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.components {
		cfg := c.Configuration()
		if err := cfg.Validate(); err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}
	return report
}

// Start validates, migrates component tables, injects dependencies, starts
// the HTTP server, and hands the component set to the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	if report := e.Validate(); !report.OK() {
		return errdefs.Newf(errdefs.KindConfiguration, "invalid configuration: %s", strings.Join(report.Problems, "; "))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errdefs.New(errdefs.KindConfiguration, "engine is already started")
	}

	provider, err := auth.New(e.cfg)
	if err != nil {
		return err
	}
	e.provider = provider

	records, err := record.Open(e.cfg.DB.Driver, e.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	e.records = records

	blobs, err := blob.NewLocalStore(e.cfg.Blob.BasePath, e.cfg.Blob.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	e.blobs = blobs

	if err := e.openQueue(ctx); err != nil {
		return err
	}

	e.broker = events.NewBroker()
	e.broker.Start()

	if err := e.migrateTables(ctx); err != nil {
		return err
	}
	e.injectDependencies()

	processor := uploads.NewProcessor(e.records, e.blobs, e.broker)
	if err := e.queue.Consume(types.QueueUploads, processor.Handle); err != nil {
		return fmt.Errorf("failed to start upload workers: %w", err)
	}

	if err := e.startServer(); err != nil {
		return err
	}

	e.sched = scheduler.New(e.queue, e.records, e.blobs, e.broker, e.cfg.SingleQueue)
	for _, c := range e.components {
		e.sched.Register(c)
	}
	if err := e.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	e.started = true
	log.Logger.Info().Int("components", len(e.components)).Int("port", e.srv.ActualPort()).Msg("engine started")
	return nil
}

// openQueue connects the Redis transport, retrying transient failures, and
// applies the per-queue policy overrides.
func (e *Engine) openQueue(ctx context.Context) error {
	policies := queue.DefaultPolicies()
	if e.cfg.UploadConcurrency > 0 {
		p := policies[types.QueueUploads]
		p.Concurrency = e.cfg.UploadConcurrency
		policies[types.QueueUploads] = p
	}
	if e.cfg.SingleQueue {
		p := policies[types.QueueCollectors]
		p.Concurrency = max(len(e.components), 1)
		policies[types.QueueCollectors] = p
	}

	err := retry.Do(ctx, 15*time.Second, func() error {
		q, err := queue.NewRedis(e.cfg.Redis, policies)
		if err != nil {
			return err
		}
		e.queue = q
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect queue transport: %w", err)
	}
	return nil
}

// migrateTables creates or additively migrates every component table and
// logs the diff report.
func (e *Engine) migrateTables(ctx context.Context) error {
	for _, c := range e.components {
		cols := tableColumnsOf(c)
		if cols == nil {
			continue
		}
		name := c.Configuration().Name
		diff, err := e.records.EnsureTable(ctx, name, cols)
		if err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", name, err)
		}
		e.diffs = append(e.diffs, diff)
		if diff.Changed() {
			log.Logger.Info().
				Str("table", diff.Table).
				Bool("created", diff.Created).
				Strs("added_columns", diff.AddedColumns).
				Msg("table migrated")
		}
	}
	return nil
}

// tableColumnsOf resolves the column set a component's table needs, or nil
// for table-less components.
func tableColumnsOf(c component.Component) []types.ColumnSpec {
	if owner, ok := c.(component.TableOwner); ok {
		return owner.TableColumns()
	}
	switch c.(type) {
	case component.Collector, component.Harvester:
		return record.BaseColumns()
	}
	return nil
}

func (e *Engine) injectDependencies() {
	for _, c := range e.components {
		if dc, ok := c.(component.DependencyConsumer); ok {
			dc.Bind(e.records, e.blobs)
		}
		if uc, ok := c.(component.UploadQueueConsumer); ok {
			uc.BindUploadQueue(e.queue)
		}
	}
}

func (e *Engine) startServer() error {
	e.srv = server.New(e.cfg, e.provider, e.records)
	for _, c := range e.components {
		if srv, ok := c.(component.Servable); ok {
			if err := e.srv.MountComponent(c.Configuration(), srv); err != nil {
				return err
			}
		}
	}
	e.srv.MountQueueStats(e.queue)
	e.srv.AddHealthCheck("queue", func(ctx context.Context) error {
		_, err := e.queue.Stats(ctx)
		return err
	})
	return e.srv.Start()
}

// AddHealthCheck registers a readiness probe on the HTTP surface. Must be
// called after Start.
func (e *Engine) AddHealthCheck(name string, check server.HealthCheck) {
	e.srv.AddHealthCheck(name, check)
}

// EnqueuePriority pushes a one-shot job onto the priority queue.
func (e *Engine) EnqueuePriority(ctx context.Context, jobName string, payload types.JobPayload) error {
	target := types.QueuePriority
	if e.cfg.SingleQueue {
		target = types.QueueCollectors
	}
	return e.queue.Enqueue(ctx, target, jobName, payload)
}

// ActualPort returns the port the HTTP listener is bound to.
func (e *Engine) ActualPort() int {
	if e.srv == nil {
		return 0
	}
	return e.srv.ActualPort()
}

// MigrationDiffs reports what startup changed per component table.
func (e *Engine) MigrationDiffs() []*record.MigrationDiff { return e.diffs }

// Stop shuts the engine down: HTTP first, then workers and queues, then
// the record store. Idempotent and bounded by the shutdown timeout; later
// calls return promptly.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()

		logger := log.Logger
		if e.srv != nil {
			if err := e.srv.Stop(ctx); err != nil && e.stopErr == nil {
				e.stopErr = err
			}
		}
		if e.sched != nil {
			e.sched.Stop()
		}
		if e.queue != nil {
			if err := e.queue.Close(ctx); err != nil && e.stopErr == nil {
				e.stopErr = err
			}
		}
		if e.broker != nil {
			e.broker.Stop()
		}
		if e.records != nil {
			errdefs.SafeCleanup(logger, "record store", e.records.Close)
		}
		logger.Info().Msg("engine stopped")
	})
	return e.stopErr
}
