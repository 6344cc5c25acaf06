package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/types"
)

const (
	keyPrefix = "twinforge"

	pollInterval    = 100 * time.Millisecond
	promoteInterval = 250 * time.Millisecond
	closeGrace      = 3 * time.Second
)

// cronParser accepts both 5-field patterns and 6-field patterns with a
// leading seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// RedisQueue implements Queue on a Redis list per queue, with a sorted set
// holding delayed retries and an in-process cron runner feeding repeating
// jobs.
type RedisQueue struct {
	client   *redis.Client
	policies map[types.QueueName]Policy
	cron     *cron.Cron

	mu        sync.Mutex
	repeating map[string]cron.EntryID
	consumed  map[types.QueueName]bool

	// ctx gates intake: the poll/promote loops and the cron pushes. jobCtx
	// is handed to in-flight handlers and their retry writes; it outlives
	// ctx so shutdown does not abort running jobs or lose their retries.
	ctx        context.Context
	cancel     context.CancelFunc
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewRedis connects to Redis and returns the queue transport.
func NewRedis(cfg config.RedisConfig, policies map[types.QueueName]Policy) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errdefs.Wrap(errdefs.KindQueue, "failed to connect to redis", err)
	}

	if policies == nil {
		policies = DefaultPolicies()
	}

	ctx, cancelAll := context.WithCancel(context.Background())
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	q := &RedisQueue{
		client:     client,
		policies:   policies,
		cron:       cron.New(cron.WithParser(cronParser)),
		repeating:  make(map[string]cron.EntryID),
		consumed:   make(map[types.QueueName]bool),
		ctx:        ctx,
		cancel:     cancelAll,
		jobCtx:     jobCtx,
		cancelJobs: cancelJobs,
	}
	q.cron.Start()
	return q, nil
}

// Policy returns the effective policy of a queue.
func (q *RedisQueue) Policy(queue types.QueueName) Policy {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policies[queue]
}

// SetPolicy overrides a queue's policy. Must be called before Consume.
func (q *RedisQueue) SetPolicy(queue types.QueueName, p Policy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policies[queue] = p
}

func readyKey(queue types.QueueName) string {
	return fmt.Sprintf("%s:queue:%s", keyPrefix, queue)
}

func delayedKey(queue types.QueueName) string {
	return fmt.Sprintf("%s:delayed:%s", keyPrefix, queue)
}

// UpsertRepeating registers or replaces a cron-pattern job.
func (q *RedisQueue) UpsertRepeating(ctx context.Context, queue types.QueueName, jobName, cronPattern string, payload interface{}) error {
	schedule, err := cronParser.Parse(cronPattern)
	if err != nil {
		return errdefs.Wrap(errdefs.KindConfiguration, "invalid cron pattern "+cronPattern, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errdefs.Wrap(errdefs.KindQueue, "failed to marshal payload", err)
	}

	key := string(queue) + "/" + jobName
	logger := log.WithQueue(string(queue))

	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.repeating[key]; ok {
		q.cron.Remove(id)
	}
	id := q.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := q.push(q.ctx, queue, jobName, raw, enqueueOptions{}); err != nil {
			logger.Error().Err(err).Str("job", jobName).Msg("failed to enqueue repeating job")
		}
	}))
	q.repeating[key] = id
	return nil
}

// Enqueue pushes a one-shot job.
func (q *RedisQueue) Enqueue(ctx context.Context, queue types.QueueName, jobName string, payload interface{}, opts ...EnqueueOption) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errdefs.Wrap(errdefs.KindQueue, "failed to marshal payload", err)
	}

	var options enqueueOptions
	for _, opt := range opts {
		opt(&options)
	}
	return q.push(ctx, queue, jobName, raw, options)
}

func (q *RedisQueue) push(ctx context.Context, queue types.QueueName, jobName string, payload json.RawMessage, options enqueueOptions) error {
	policy := q.Policy(queue)

	attempts := policy.Attempts
	if options.attempts > 0 {
		attempts = options.attempts
	}
	if attempts <= 0 {
		attempts = 1
	}
	backoff := policy.Backoff
	if options.backoff > 0 {
		backoff = options.backoff
	}

	job := &Job{
		ID:          uuid.New().String(),
		Queue:       queue,
		Name:        jobName,
		Payload:     payload,
		Attempt:     0,
		MaxAttempts: attempts,
		Backoff:     backoff,
		EnqueuedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return errdefs.Wrap(errdefs.KindQueue, "failed to marshal job", err)
	}

	if options.delay > 0 {
		score := float64(time.Now().Add(options.delay).UnixMilli())
		if err := q.client.ZAdd(ctx, delayedKey(queue), redis.Z{Score: score, Member: data}).Err(); err != nil {
			return errdefs.Wrap(errdefs.KindQueue, "failed to enqueue delayed job", err)
		}
		return nil
	}

	if err := q.client.LPush(ctx, readyKey(queue), data).Err(); err != nil {
		return errdefs.Wrap(errdefs.KindQueue, "failed to enqueue job", err)
	}
	return nil
}

// Consume starts the worker pool and the delayed-job promoter for a queue.
func (q *RedisQueue) Consume(queue types.QueueName, handler Handler) error {
	q.mu.Lock()
	if q.consumed[queue] {
		q.mu.Unlock()
		return errdefs.Newf(errdefs.KindQueue, "queue %s already consumed", queue)
	}
	q.consumed[queue] = true
	policy := q.policies[queue]
	q.mu.Unlock()

	concurrency := policy.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	limit := rate.Inf
	burst := 1
	if policy.RateLimit > 0 && policy.RatePeriod > 0 {
		limit = rate.Limit(float64(policy.RateLimit) / policy.RatePeriod.Seconds())
		burst = policy.RateLimit
	}
	limiter := rate.NewLimiter(limit, burst)

	q.wg.Add(1)
	go q.promote(queue)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.worker(queue, handler, limiter)
	}
	return nil
}

// promote moves due delayed jobs onto the ready list.
func (q *RedisQueue) promote(queue types.QueueName) {
	defer q.wg.Done()

	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			members, err := q.client.ZRangeByScore(q.ctx, delayedKey(queue), &redis.ZRangeBy{
				Min: "-inf", Max: now, Count: 100,
			}).Result()
			if err != nil || len(members) == 0 {
				continue
			}
			// The remove-push pair runs on the job context so a shutdown
			// between the two cannot drop the member.
			for _, member := range members {
				if removed, err := q.client.ZRem(q.jobCtx, delayedKey(queue), member).Result(); err != nil || removed == 0 {
					continue
				}
				if err := q.client.LPush(q.jobCtx, readyKey(queue), member).Err(); err != nil {
					logger := log.WithQueue(string(queue))
					logger.Error().Err(err).Msg("failed to promote delayed job")
				}
			}
		}
	}
}

func (q *RedisQueue) worker(queue types.QueueName, handler Handler, limiter *rate.Limiter) {
	defer q.wg.Done()

	logger := log.WithQueue(string(queue))
	for {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		if err := limiter.Wait(q.ctx); err != nil {
			return
		}

		data, err := q.client.RPop(q.ctx, readyKey(queue)).Result()
		if err == redis.Nil {
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if err != nil {
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			logger.Error().Err(err).Msg("dropping malformed job")
			continue
		}
		job.Attempt++

		if err := handler(q.jobCtx, &job); err != nil {
			q.retry(queue, &job, err, logger)
		}
	}
}

// retry reschedules a failed job with exponential backoff, or drops it once
// its attempts are exhausted.
func (q *RedisQueue) retry(queue types.QueueName, job *Job, cause error, logger zerolog.Logger) {
	if job.Attempt >= job.MaxAttempts {
		logger.Error().Err(cause).
			Str("job", job.Name).
			Int("attempt", job.Attempt).
			Msg("job failed permanently")
		return
	}

	backoff := job.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	delay := backoff << (job.Attempt - 1)

	data, err := json.Marshal(job)
	if err != nil {
		logger.Error().Err(err).Str("job", job.Name).Msg("failed to marshal job for retry")
		return
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(q.jobCtx, delayedKey(queue), redis.Z{Score: score, Member: data}).Err(); err != nil {
		logger.Error().Err(err).Str("job", job.Name).Msg("failed to schedule retry")
		return
	}
	logger.Warn().Err(cause).
		Str("job", job.Name).
		Int("attempt", job.Attempt).
		Dur("retry_in", delay).
		Msg("job failed, retrying")
}

// Stats returns per-queue depth counters.
func (q *RedisQueue) Stats(ctx context.Context) (map[types.QueueName]Stats, error) {
	out := make(map[types.QueueName]Stats)

	q.mu.Lock()
	repeating := make(map[types.QueueName]int)
	for key := range q.repeating {
		for name := range q.policies {
			if len(key) > len(name) && key[:len(name)] == string(name) && key[len(name)] == '/' {
				repeating[name]++
			}
		}
	}
	queues := make([]types.QueueName, 0, len(q.policies))
	for name := range q.policies {
		queues = append(queues, name)
	}
	q.mu.Unlock()

	for _, queue := range queues {
		ready, err := q.client.LLen(ctx, readyKey(queue)).Result()
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindQueue, "failed to read queue depth", err)
		}
		delayed, err := q.client.ZCard(ctx, delayedKey(queue)).Result()
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindQueue, "failed to read delayed depth", err)
		}
		out[queue] = Stats{Ready: ready, Delayed: delayed, Repeating: repeating[queue]}
	}
	return out, nil
}

// Close stops intake, drains the workers within the close grace, and
// force-disconnects the transport when the drain runs over. In-flight
// handlers finish and their retries are scheduled before the job context
// is cancelled.
func (q *RedisQueue) Close(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.cron.Stop()
		q.cancel()

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeGrace):
			log.Warn("queue close exceeded grace, force-disconnecting")
		case <-ctx.Done():
		}
		q.cancelJobs()

		if err := q.client.Close(); err != nil {
			log.Errorf("failed to close redis client", err)
		}
	})
	return nil
}
