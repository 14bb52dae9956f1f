package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueMpesaCallback = "jobs:mpesa_callback"

	JobTypeMpesaCallback = "mpesa_callback"

	// MaxAttempts is how many times a job is delivered before it goes to the DLQ.
	MaxAttempts = 5
)

// ErrPermanent marks a failure that retrying cannot fix. Such jobs skip
// straight to the DLQ.
var ErrPermanent = errors.New("permanent job failure")

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Processor handles one job type. A nil error acknowledges the job.
type Processor interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueMpesaCallback parks a gateway callback that could not be applied
// inline so it is retried in the background.
func (d *Dispatcher) EnqueueMpesaCallback(ctx context.Context, payload any) error {
	return d.enqueue(ctx, QueueMpesaCallback, JobTypeMpesaCallback, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return push(ctx, d.rdb, queue, Job{Type: jobType, Payload: data})
}

func push(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues with a fixed number of goroutines.
type Pool struct {
	rdb        *redis.Client
	processors map[string]Processor
	metrics    *metrics.Metrics
	// backoff is the pause before a failed job is put back on its queue
	backoff func(attempt int) time.Duration
}

func NewPool(rdb *redis.Client, m *metrics.Metrics) *Pool {
	return &Pool{
		rdb:        rdb,
		processors: map[string]Processor{},
		metrics:    m,
		backoff:    retryBackoff,
	}
}

// Register binds a processor to a job type.
func (p *Pool) Register(jobType string, proc Processor) {
	p.processors[jobType] = proc
}

// Start launches numWorkers goroutines consuming the queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go p.run(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) run(ctx context.Context, id int) {
	queues := []string{QueueMpesaCallback}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			p.process(ctx, result[0], result[1])
		}
	}
}

// process runs one raw job. Failures are re-queued with a higher attempt
// count until MaxAttempts, then dead-lettered.
func (p *Pool) process(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, p.rdb, queue, "unknown", json.RawMessage(raw), "undecodable envelope", 0)
		p.metrics.WorkerJob(queue, "dead")
		return
	}
	proc, ok := p.processors[job.Type]
	if !ok {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("no processor for job type")
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, "no processor registered", job.Attempts)
		p.metrics.WorkerJob(queue, "dead")
		return
	}

	job.Attempts++
	err := proc.Process(ctx, job.Payload)
	if err == nil {
		p.metrics.WorkerJob(queue, "done")
		return
	}

	if errors.Is(err, ErrPermanent) || job.Attempts >= MaxAttempts {
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts)
		p.metrics.WorkerJob(queue, "dead")
		return
	}

	log.Warn().Err(err).
		Str("queue", queue).
		Str("type", job.Type).
		Int("attempt", job.Attempts).
		Msg("job failed, re-queueing")
	p.metrics.WorkerJob(queue, "retry")
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff(job.Attempts)):
	}
	// Re-queue on a fresh context so a shutdown does not drop the job.
	if err := push(context.WithoutCancel(ctx), p.rdb, queue, job); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("re-queue failed")
		SendToDLQ(context.WithoutCancel(ctx), p.rdb, queue, job.Type, job.Payload, "re-queue failed: "+err.Error(), job.Attempts)
	}
}

// retryBackoff grows 2s, 4s, 8s ... capped at one minute.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
