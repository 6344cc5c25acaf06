package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twinforge/twinforge/pkg/blob"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/events"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/metrics"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
	"github.com/twinforge/twinforge/pkg/types"
)

// sourceEventAttempts is the retry budget of source-triggered harvester jobs.
const sourceEventAttempts = 3

// Scheduler registers component jobs on the queue set, consumes the worker
// queues, and wires collector completion events to harvester triggers.
type Scheduler struct {
	queue       queue.Queue
	records     record.Store
	blobs       blob.Store
	broker      *events.Broker
	singleQueue bool

	mu         sync.RWMutex
	components map[string]component.Component
	// triggers maps a source component name to the debounced triggers of
	// the harvesters consuming it. Mutated only during registration.
	triggers map[string][]*debouncer

	sub      events.Subscriber
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a scheduler over the shared stores and event broker.
func New(q queue.Queue, records record.Store, blobs blob.Store, broker *events.Broker, singleQueue bool) *Scheduler {
	return &Scheduler{
		queue:       q,
		records:     records,
		blobs:       blobs,
		broker:      broker,
		singleQueue: singleQueue,
		components:  make(map[string]component.Component),
		triggers:    make(map[string][]*debouncer),
		stopCh:      make(chan struct{}),
	}
}

// Register adds a component to the dispatch table. Must be called before
// Start.
func (s *Scheduler) Register(c component.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[c.Configuration().Name] = c
}

// queueFor routes a queue name, collapsing onto the collector queue in
// legacy single-queue mode. The upload queue is never collapsed.
func (s *Scheduler) queueFor(name types.QueueName) types.QueueName {
	if s.singleQueue && name != types.QueueUploads {
		return types.QueueCollectors
	}
	return name
}

// Start registers repeating jobs, starts the queue workers, and begins
// consuming collector completion events.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.singleQueue {
		log.Logger.Warn().Msg("single-queue mode is enabled; this legacy mode is not recommended")
	}

	s.mu.Lock()
	for name, c := range s.components {
		cfg := c.Configuration()
		switch c.(type) {
		case component.Collector:
			if cfg.Schedule == "" {
				continue
			}
			payload := types.JobPayload{Type: "collector", TriggeredBy: "schedule"}
			if err := s.queue.UpsertRepeating(ctx, s.queueFor(types.QueueCollectors), name, cfg.Schedule, payload); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("failed to register collector %s: %w", name, err)
			}
		case component.Harvester:
			if cfg.TriggerMode != types.TriggerOnSource && cfg.Schedule != "" {
				payload := types.JobPayload{Type: "harvester", TriggeredBy: "schedule", Source: cfg.Source}
				if err := s.queue.UpsertRepeating(ctx, s.queueFor(types.QueueHarvesters), name, cfg.Schedule, payload); err != nil {
					s.mu.Unlock()
					return fmt.Errorf("failed to register harvester %s: %w", name, err)
				}
			}
			if cfg.TriggerMode == types.TriggerOnSource || cfg.TriggerMode == types.TriggerBoth {
				s.triggers[cfg.Source] = append(s.triggers[cfg.Source], s.newSourceTrigger(name, cfg))
			}
		}
	}
	s.mu.Unlock()

	queues := []types.QueueName{types.QueueCollectors}
	if !s.singleQueue {
		queues = append(queues, types.QueueHarvesters, types.QueuePriority)
	}
	for _, qn := range queues {
		if err := s.queue.Consume(qn, s.dispatch); err != nil {
			return fmt.Errorf("failed to start workers for queue %s: %w", qn, err)
		}
	}

	s.sub = s.broker.Subscribe()
	s.wg.Add(1)
	go s.eventLoop()
	return nil
}

// newSourceTrigger builds the debounced enqueue for a source-triggered
// harvester.
func (s *Scheduler) newSourceTrigger(name string, cfg component.Configuration) *debouncer {
	window := time.Duration(cfg.DebounceMs) * time.Millisecond
	// Components built without the Base helper may carry a zero DebounceMs.
	if window <= 0 {
		window = time.Second
	}
	payload := types.JobPayload{Type: "harvester", TriggeredBy: "source-event", Source: cfg.Source}
	return newDebouncer(window, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.queue.Enqueue(ctx, s.queueFor(types.QueueHarvesters), name, payload,
			queue.WithAttempts(sourceEventAttempts))
		if err != nil {
			logger := log.WithComponent(name)
			logger.Error().Err(err).Msg("failed to enqueue source-triggered harvester job")
		}
	})
}

// eventLoop feeds collector completion events into the matching debounced
// triggers.
func (s *Scheduler) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.sub:
			if !ok {
				return
			}
			if ev.Type != events.EventCollectorCompleted {
				continue
			}
			s.mu.RLock()
			triggers := s.triggers[ev.ComponentName]
			s.mu.RUnlock()
			for _, t := range triggers {
				t.Trigger()
			}
		case <-s.stopCh:
			return
		}
	}
}

// dispatch resolves a job to its component and runs it. A job naming an
// unknown component is a no-op success.
func (s *Scheduler) dispatch(ctx context.Context, job *queue.Job) error {
	s.mu.RLock()
	c, ok := s.components[job.Name]
	s.mu.RUnlock()
	if !ok {
		logger := log.WithJobID(job.ID)
		logger.Debug().Str("job", job.Name).Msg("job names no registered component, skipping")
		return nil
	}

	start := time.Now()
	var err error
	switch comp := c.(type) {
	case component.Collector:
		err = s.runCollector(ctx, comp)
	case component.Harvester:
		var ran bool
		ran, err = s.runHarvester(ctx, comp)
		if err == nil && ran {
			s.broker.Publish(&events.Event{Type: events.EventHarvesterCompleted, ComponentName: job.Name})
		}
	default:
		logger := log.WithJobID(job.ID)
		logger.Debug().Str("job", job.Name).Msg("component has no run cycle, skipping")
		return nil
	}
	metrics.ObserveJob(string(job.Queue), time.Since(start), err == nil)
	return err
}

// runCollector executes one collection cycle: collect, save the blob,
// insert the record, announce completion.
func (s *Scheduler) runCollector(ctx context.Context, c component.Collector) error {
	cfg := c.Configuration()
	logger := log.WithComponent(cfg.Name)

	payload, err := c.Collect(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect %s: %w", cfg.Name, err)
	}

	handle, err := s.blobs.Save(ctx, payload, cfg.Name, extensionFor(cfg.ContentType))
	if err != nil {
		return fmt.Errorf("failed to store payload for %s: %w", cfg.Name, err)
	}

	rec := &types.Record{
		Name:        cfg.Name,
		ContentType: cfg.ContentType,
		URL:         handle,
		Date:        time.Now().UTC(),
	}
	if err := s.records.Insert(ctx, cfg.Name, rec); err != nil {
		return fmt.Errorf("failed to insert record for %s: %w", cfg.Name, err)
	}
	metrics.RecordsInserted.WithLabelValues(cfg.Name).Inc()

	logger.Debug().Int64("record_id", rec.ID).Msg("collection cycle complete")
	s.broker.Publish(&events.Event{Type: events.EventCollectorCompleted, ComponentName: cfg.Name})
	return nil
}

// Stop halts event consumption. Queue workers are closed by the queue
// itself. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.sub != nil {
			s.broker.Unsubscribe(s.sub)
		}
	})
	s.wg.Wait()
}

// extensionFor picks a file extension for well-known content types.
func extensionFor(contentType string) string {
	switch contentType {
	case "application/json":
		return "json"
	case "text/csv":
		return "csv"
	case "text/plain":
		return "txt"
	case "application/xml", "text/xml":
		return "xml"
	default:
		return "bin"
	}
}
