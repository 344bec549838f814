package jobs

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fieldscope-hq/fieldscope/internal/core"
	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// Processor executes one file-processing job and returns a result summary.
type Processor interface {
	ProcessFile(ctx context.Context, payload models.JobPayload) (string, error)
}

// perJobTimeout bounds a single processing attempt; the source behavior had
// no timeout at all on outbound calls.
const perJobTimeout = 5 * time.Minute

// Queue is a durable, retryable work queue over the background_jobs table.
// The table is the queue; the kick channel only nudges the drain loop so an
// upload does not wait for the next tick. Draining is sequential by design:
// it keeps the embedding-provider request rate predictable and means two
// files are never processed at once without distributed locks.
type Queue struct {
	db         core.DbClient
	processor  Processor
	interval   time.Duration
	drainBatch int
	maxRetries int
	kick       chan struct{}
}

func NewQueue(db core.DbClient, processor Processor, interval time.Duration, drainBatch, maxRetries int) *Queue {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if drainBatch <= 0 {
		drainBatch = 10
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Queue{
		db:         db,
		processor:  processor,
		interval:   interval,
		drainBatch: drainBatch,
		maxRetries: maxRetries,
		kick:       make(chan struct{}, 1),
	}
}

// Enqueue inserts a pending job for the file and returns its id. The job is
// never executed inline; the drain loop picks it up.
func (q *Queue) Enqueue(ctx context.Context, fileID string, options map[string]string) (string, error) {
	job := &models.ProcessingJob{
		ID:         uuid.NewString(),
		Type:       models.JobTypeFileProcessing,
		Payload:    models.JobPayload{FileID: fileID, Options: options},
		Status:     models.JobStatusPending,
		MaxRetries: q.maxRetries,
	}
	if err := q.db.EnqueueJob(ctx, job); err != nil {
		return "", err
	}

	select {
	case q.kick <- struct{}{}:
	default:
	}
	return job.ID, nil
}

// Run drains on a fixed interval and whenever Enqueue nudges, until the
// context is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("job queue: drain loop shutting down")
			return ctx.Err()
		case <-ticker.C:
		case <-q.kick:
		}
		if err := q.DrainPending(ctx, q.drainBatch); err != nil {
			log.Printf("job queue: drain failed: %v", err)
		}
	}
}

// DrainPending fetches up to limit oldest pending jobs and executes them one
// at a time. A job failure never stops the drain; it is recorded on the job
// row and the loop moves on.
func (q *Queue) DrainPending(ctx context.Context, limit int) error {
	pending, err := q.db.FetchPendingJobs(ctx, limit)
	if err != nil {
		return err
	}

	for i := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.runOne(ctx, &pending[i])
	}
	return nil
}

// runOne drives a single job through the state machine:
// pending -> processing -> {completed | pending (retry) | failed}.
func (q *Queue) runOne(ctx context.Context, job *models.ProcessingJob) {
	if err := q.db.MarkJobProcessing(ctx, job.ID, time.Now()); err != nil {
		// Another drain call may have claimed it; skip.
		log.Printf("job queue: could not claim job %s: %v", job.ID, err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, perJobTimeout)
	summary, err := q.processor.ProcessFile(jobCtx, job.Payload)
	cancel()

	if err == nil {
		if cerr := q.db.CompleteJob(ctx, job.ID, time.Now(), summary); cerr != nil {
			log.Printf("job queue: complete job %s: %v", job.ID, cerr)
		}
		return
	}

	retries := job.RetryCount + 1
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.maxRetries
	}

	// Unsupported media types and empty extractions are fatal per file;
	// retrying cannot help.
	if core.IsFatalJobError(err) || retries >= maxRetries {
		log.Printf("job queue: job %s failed permanently after %d attempt(s): %v", job.ID, retries, err)
		if ferr := q.db.FailJob(ctx, job.ID, retries, time.Now(), err.Error()); ferr != nil {
			log.Printf("job queue: fail job %s: %v", job.ID, ferr)
		}
		return
	}

	log.Printf("job queue: job %s attempt %d/%d failed, requeueing: %v", job.ID, retries, maxRetries, err)
	if rerr := q.db.RequeueJob(ctx, job.ID, retries, err.Error()); rerr != nil {
		log.Printf("job queue: requeue job %s: %v", job.ID, rerr)
	}
}

// Status returns the job row, or nil when unknown.
func (q *Queue) Status(ctx context.Context, jobID string) (*models.ProcessingJob, error) {
	return q.db.GetJobByID(ctx, jobID)
}

// StatsByStatus counts jobs per status.
func (q *Queue) StatsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	return q.db.JobStatsByStatus(ctx)
}

// Cleanup deletes completed and failed jobs older than the retention window.
func (q *Queue) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	return q.db.DeleteTerminalJobsBefore(ctx, cutoff)
}
