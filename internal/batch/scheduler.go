// Package batch runs one archive operation over many inputs with a bounded
// number of concurrent workers.
//
// Every job yields exactly one Result, returned in submission order. A job
// that fails is recorded and never aborts its siblings; with ContinueOnError
// unset the first failure raises a shared stop flag, after which workers
// finish what they hold and start nothing new. Context cancellation raises
// the same flag. Jobs already running are never interrupted.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"baler/internal/engine"
	"baler/internal/failure"
)

type Scheduler struct {
	cfg      Config
	strategy Strategy

	stop      atomic.Bool
	completed atomic.Int64

	mu      sync.Mutex
	results []Result
}

func NewScheduler(strategy Strategy, cfg Config) *Scheduler {
	cfg.MaxParallel = ClampParallel(cfg.MaxParallel)
	return &Scheduler{cfg: cfg, strategy: strategy}
}

// Stop asks workers to exit after their current job. Safe to call from any
// goroutine, any number of times.
func (s *Scheduler) Stop() {
	if !s.stop.Swap(true) {
		s.cfg.Logger.Info().Str("run_id", s.cfg.RunID).Msg("stop requested; finishing in-flight jobs")
	}
}

func (s *Scheduler) Stopped() bool {
	return s.stop.Load()
}

// Completed is the number of jobs that have a final result, skipped ones
// included.
func (s *Scheduler) Completed() int64 {
	return s.completed.Load()
}

// Run executes jobs and returns one result per job in submission order. The
// error is non-nil only when the batch could not be scheduled at all, in
// which case no job has started.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if s.strategy == nil {
		return nil, failure.New(failure.KindScheduling, "", "no strategy for this operation")
	}

	s.results = make([]Result, len(jobs))
	queue := make(chan Job, len(jobs))
	for i, job := range jobs {
		job.Index = i
		s.results[i] = Result{Index: i, Input: job.Input(), Output: job.Output}
		queue <- job
	}
	close(queue)
	if len(jobs) == 0 {
		return s.results, nil
	}

	workers := s.cfg.MaxParallel
	if workers > len(jobs) {
		workers = len(jobs)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, failure.Wrap(failure.KindScheduling, "", fmt.Errorf("create worker pool: %w", err))
	}
	defer pool.Release()

	s.send(ProgressUpdate{TotalDelta: len(jobs)})

	if ctx == nil {
		ctx = context.Background()
	}
	stopOnCancel := context.AfterFunc(ctx, s.Stop)
	defer stopOnCancel()

	s.cfg.Logger.Debug().
		Str("run_id", s.cfg.RunID).
		Int("jobs", len(jobs)).
		Int("workers", workers).
		Bool("continue_on_error", s.cfg.ContinueOnError).
		Msg("starting batch")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.worker(ctx, queue)
		}); err != nil {
			wg.Done()
			if i == 0 {
				return nil, failure.Wrap(failure.KindScheduling, "", fmt.Errorf("start worker: %w", err))
			}
			s.cfg.Logger.Warn().Err(err).Int("started", i).Msg("could not start all workers")
			break
		}
	}
	wg.Wait()

	return s.results, nil
}

func (s *Scheduler) worker(ctx context.Context, queue <-chan Job) {
	for job := range queue {
		if s.stop.Load() || ctx.Err() != nil {
			s.skip(job)
			continue
		}

		res := s.execute(ctx, job)
		s.record(res)

		if !res.Success && !s.cfg.ContinueOnError {
			s.stop.Store(true)
		}
	}
}

// execute runs one job under a context that is never cancelled: a job in
// flight always runs to completion.
func (s *Scheduler) execute(ctx context.Context, job Job) (res Result) {
	res = Result{Index: job.Index, Input: job.Input(), Output: job.Output, Attempted: true}
	log := s.cfg.Logger.With().Str("run_id", s.cfg.RunID).Int("job", job.Index).Str("input", res.Input).Logger()
	log.Debug().Str("output", job.Output).Msg("job started")

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("job panicked: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Msg("job panicked")
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.Warn().Err(res.Err).Dur("duration", res.Duration).Msg("job failed")
		} else {
			log.Debug().Int64("bytes", res.Bytes).Dur("duration", res.Duration).Msg("job finished")
		}
	}()

	outcome, err := s.strategy.Execute(context.WithoutCancel(ctx), job, s.streamed(res.Input))
	res.Bytes = outcome.Bytes
	res.Files = outcome.Files
	res.Entries = outcome.Entries
	res.Warnings = outcome.Warnings
	res.Checksum = outcome.Checksum
	res.Err = err
	res.Success = err == nil
	return res
}

func (s *Scheduler) record(res Result) {
	s.mu.Lock()
	s.results[res.Index] = res
	s.mu.Unlock()
	s.completed.Add(1)

	update := ProgressUpdate{DoneDelta: 1, BytesDelta: res.Bytes, Current: res.Input}
	if !res.Success {
		update.FailedDelta = 1
	}
	s.send(update)
}

func (s *Scheduler) skip(job Job) {
	s.mu.Lock()
	s.results[job.Index] = Result{Index: job.Index, Input: job.Input(), Output: job.Output}
	s.mu.Unlock()
	s.completed.Add(1)
	s.send(ProgressUpdate{SkippedDelta: 1, Current: job.Input()})
}

// streamed forwards engine byte counts for input to the progress display.
func (s *Scheduler) streamed(input string) engine.Callback {
	if s.cfg.Updates == nil {
		return nil
	}
	return func(entry string, n int64) {
		s.send(ProgressUpdate{StreamedDelta: n, Current: input, Entry: entry})
	}
}

func (s *Scheduler) send(update ProgressUpdate) {
	if s.cfg.Updates != nil {
		s.cfg.Updates <- update
	}
}
