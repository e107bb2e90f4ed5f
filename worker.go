package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"
)

// ErrIdleTimeout is returned by Worker.Run when no job has been seen
// for longer than the idle timeout, signalling the host to reclaim
// this compute unit.
var ErrIdleTimeout = errors.New("idle timeout reached")

// jobSource is the slice of the queue facade the poll loop needs.
type jobSource interface {
	GetJob(ctx context.Context) (*JobRecord, error)
	UpdateJobStatus(ctx context.Context, jobID string, upd StatusUpdate) error
}

// jobProcessor turns one job's slides into a final video and returns
// its location. Progress is delivered through the report callback.
type jobProcessor interface {
	Process(ctx context.Context, job *JobRecord, report func(progress int, message string)) (string, error)
}

// Worker is the poll loop running inside one compute unit. It is
// strictly sequential: one job at a time, parallelism comes from
// running more compute units, and the coordinator's serialized
// dequeue is what keeps them from colliding.
type Worker struct {
	queue    jobSource
	pipeline jobProcessor

	pollInterval  time.Duration
	pollAttempts  int
	backoffBase   time.Duration
	rateLimitWait time.Duration
	idleTimeout   time.Duration
	idleDisabled  bool

	// Test hooks
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

func NewWorker(queue jobSource, pipeline jobProcessor, cfg Config) *Worker {
	return &Worker{
		queue:         queue,
		pipeline:      pipeline,
		pollInterval:  cfg.PollInterval,
		pollAttempts:  cfg.PollAttempts,
		backoffBase:   cfg.BackoffBase,
		rateLimitWait: cfg.RateLimitWait,
		idleTimeout:   cfg.IdleTimeout,
		idleDisabled:  cfg.IdleDisabled,
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Run polls until the context is cancelled or the idle timeout fires.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("🚀 Worker started (poll interval %s, idle timeout %s, idle shutdown disabled: %v)",
		w.pollInterval, w.idleTimeout, w.idleDisabled)

	lastActive := w.now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job := w.poll(ctx)
		if job == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !w.idleDisabled && w.now().Sub(lastActive) >= w.idleTimeout {
				// A job enqueued while the wake call is still in
				// flight could become visible just as we decide to
				// exit; check one last time before terminating.
				if job = w.pollOnce(ctx); job == nil {
					log.Printf("🛑 No job for %s, shutting down", w.idleTimeout)
					return ErrIdleTimeout
				}
			} else {
				w.sleep(ctx, w.pollInterval)
				continue
			}
		}

		lastActive = w.now()
		w.process(ctx, job)
	}
}

// poll asks for the next job with bounded retry. Rate limiting and
// retry exhaustion both degrade to "no job this round"; the loop
// never crashes on a polling error.
func (w *Worker) poll(ctx context.Context) *JobRecord {
	for attempt := 0; attempt < w.pollAttempts; attempt++ {
		job, err := w.queue.GetJob(ctx)
		switch {
		case err == nil:
			return job
		case errors.Is(err, ErrQueueEmpty):
			return nil
		case errors.Is(err, ErrRateLimited):
			log.Printf("⚠️  Rate limited, waiting %s", w.rateLimitWait)
			w.sleep(ctx, w.rateLimitWait)
			return nil
		default:
			if attempt == w.pollAttempts-1 {
				log.Printf("⚠️  Poll failed after %d attempts: %v", w.pollAttempts, err)
				return nil
			}
			wait := w.backoff(attempt)
			log.Printf("⚠️  Poll attempt %d/%d failed: %v. Retrying in %s...",
				attempt+1, w.pollAttempts, err, wait)
			w.sleep(ctx, wait)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (w *Worker) pollOnce(ctx context.Context) *JobRecord {
	job, err := w.queue.GetJob(ctx)
	if err != nil {
		return nil
	}
	return job
}

// backoff is exponential with ±25% jitter.
func (w *Worker) backoff(attempt int) time.Duration {
	base := float64(w.backoffBase) * float64(int(1)<<attempt)
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(base * jitter)
}

// process drives the pipeline for one job. Every failure is absorbed
// at this boundary so a bad job never terminates the loop.
func (w *Worker) process(ctx context.Context, job *JobRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  Job %s panicked: %v", job.JobID, r)
			w.report(ctx, job.JobID, StatusUpdate{
				Status:  StatusFailed,
				Message: "internal error during generation",
			})
		}
	}()

	log.Printf("Processing job %s (%d slides)", job.JobID, len(job.Payload.Slides))
	zero := 0
	w.report(ctx, job.JobID, StatusUpdate{
		Status:   StatusProcessing,
		Progress: &zero,
		Message:  "Starting generation",
	})

	videoURL, err := w.pipeline.Process(ctx, job, func(progress int, message string) {
		p := progress
		w.report(ctx, job.JobID, StatusUpdate{
			Status:   StatusProcessing,
			Progress: &p,
			Message:  message,
		})
	})
	if err != nil {
		log.Printf("Job %s failed: %v", job.JobID, err)
		w.report(ctx, job.JobID, StatusUpdate{
			Status:  StatusFailed,
			Message: err.Error(),
		})
		return
	}

	hundred := 100
	w.report(ctx, job.JobID, StatusUpdate{
		Status:   StatusCompleted,
		Progress: &hundred,
		Message:  "Video ready",
		VideoURL: videoURL,
	})
	log.Printf("Job %s completed: %s", job.JobID, videoURL)
}

// report is fire-and-forget: a failed status report is logged and
// never aborts processing.
func (w *Worker) report(ctx context.Context, jobID string, upd StatusUpdate) {
	if err := w.queue.UpdateJobStatus(ctx, jobID, upd); err != nil {
		log.Printf("⚠️  Status report for job %s failed: %v", jobID, err)
	}
}
