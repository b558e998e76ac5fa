package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/pkg/log"
	"golang.org/x/time/rate"
)

// queueWorker is one queue's processing setup.
type queueWorker struct {
	handler     Handler
	concurrency int
	limiter     *rate.Limiter
}

// Runner polls the store and dispatches claimed jobs to per-queue worker
// pools. It implements srv.Service.
type Runner struct {
	store        *Store
	pollInterval time.Duration

	mu      sync.Mutex
	queues  map[string]*queueWorker
	started bool

	onProgress func(jobID string, progress int)

	shutdownTimeout time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(store *Store, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Runner{
		store:           store,
		pollInterval:    pollInterval,
		queues:          make(map[string]*queueWorker),
		shutdownTimeout: 10 * time.Second,
		done:            make(chan struct{}),
	}
}

// Register attaches a handler to a queue. Must be called before Start.
func (r *Runner) Register(queue string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[queue] = &queueWorker{
		handler:     handler,
		concurrency: 1,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
}

// SetConcurrency sets how many workers poll the queue in parallel.
func (r *Runner) SetConcurrency(queue string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.queues[queue]; ok && n > 0 {
		w.concurrency = n
	}
}

// SetRateLimit caps job starts per second for a queue.
func (r *Runner) SetRateLimit(queue string, perSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.queues[queue]; ok && perSec > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// OnProgress installs an observer for job progress updates. Must be called
// before Start.
func (r *Runner) OnProgress(fn func(jobID string, progress int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onProgress = fn
}

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}

	// Jobs left active by a previous process would otherwise never run again
	// and their live keys would block re-enqueueing.
	reclaimed, err := r.store.ReclaimOrphaned(ctx)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if reclaimed > 0 {
		log.FromCtx(ctx).Info().Int64("jobs", reclaimed).Msg("requeued orphaned jobs")
	}
	r.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = log.FromCtx(ctx).WithContext(runCtx)
	r.cancel = cancel

	var wg sync.WaitGroup
	for queue, worker := range r.queues {
		for i := 0; i < worker.concurrency; i++ {
			wg.Add(1)
			go func(queue string, worker *queueWorker) {
				defer wg.Done()
				r.workLoop(runCtx, queue, worker)
			}(queue, worker)
		}
	}
	r.mu.Unlock()

	go func() {
		wg.Wait()
		close(r.done)
	}()

	log.FromCtx(ctx).Info().Int("queues", len(r.queues)).Msg("job runner started")
	return nil
}

func (r *Runner) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(r.shutdownTimeout):
		return errors.New("job runner shutdown timed out")
	}
}

func (r *Runner) workLoop(ctx context.Context, queue string, worker *queueWorker) {
	logger := log.FromCtx(ctx)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := worker.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := r.store.ClaimNext(ctx, queue)
		if err != nil {
			logger.Error().Err(err).Str("queue", queue).Msg("failed to claim job")
			continue
		}
		if job == nil {
			continue
		}

		r.process(ctx, job, worker.handler)
	}
}

func (r *Runner) process(ctx context.Context, job *Job, handler Handler) {
	logger := log.FromCtx(ctx).With().
		Str("queue", job.Queue).
		Str("job_id", job.ID).
		Int("attempt", job.Attempts).
		Logger()

	report := func(progress int) {
		if err := r.store.SetProgress(ctx, job.ID, progress); err != nil {
			logger.Warn().Err(err).Msg("failed to record progress")
			return
		}
		if r.onProgress != nil {
			r.onProgress(job.ID, progress)
		}
	}

	start := time.Now()
	err := handler(logger.WithContext(ctx), job, report)
	if err == nil {
		if cErr := r.store.Complete(ctx, job.ID); cErr != nil {
			logger.Error().Err(cErr).Msg("failed to complete job")
		}
		logger.Debug().Dur("took", time.Since(start)).Msg("job completed")
		return
	}

	unrecoverable := core.IsUnrecoverable(err)
	if fErr := r.store.Fail(ctx, job.ID, err.Error(), unrecoverable); fErr != nil {
		logger.Error().Err(fErr).Msg("failed to record job failure")
	}
	logger.Error().Err(err).
		Bool("unrecoverable", unrecoverable).
		Msg("job failed")
}
