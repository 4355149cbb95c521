package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"edusphere/internal/export"
	"edusphere/internal/metrics"
	"edusphere/internal/queue"
	"edusphere/internal/school"
)

// saveTimeout bounds the write of a job's final status.
const saveTimeout = 10 * time.Second

// Renderer produces the artifact for a job.
type Renderer interface {
	Render(ctx context.Context, job Job) (export.Artifact, error)
}

// Runner consumes export messages and renders them one at a time.
type Runner struct {
	store    Store
	queue    queue.Queue
	renderer Renderer
	log      *zap.Logger
	now      func() time.Time
}

func NewRunner(s Store, q queue.Queue, r Renderer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: s, queue: q, renderer: r, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	msgs, err := r.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range msgs {
		if msg.Type != queue.TypeExport {
			r.log.Warn("ignoring message", zap.String("type", msg.Type))
			continue
		}
		if err := r.Handle(ctx, string(msg.Body)); err != nil {
			r.log.Error("export job", zap.String("job_id", string(msg.Body)), zap.Error(err))
		}
	}
	return nil
}

// Handle renders one job. A render failure is recorded on the job and is not
// returned; errors are reserved for store faults. Finished jobs are skipped.
func (r *Runner) Handle(ctx context.Context, id string) error {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Finished() {
		return nil
	}
	job.Status = StatusRunning
	job.UpdatedAt = r.now()
	if err := r.store.Save(ctx, job); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	start := time.Now()
	art, err := r.renderer.Render(ctx, job)
	if err == nil {
		err = r.store.PutArtifact(ctx, job.ID, art)
	}
	job.UpdatedAt = r.now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = failureMessage(err)
		r.log.Warn("export job failed", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)), zap.Error(err))
	} else {
		job.Status = StatusDone
		job.Filename = art.Filename
		job.ContentType = art.ContentType
		r.log.Info("export job done",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("format", string(job.Format)),
			zap.Int("bytes", len(art.Data)),
			zap.Duration("took", time.Since(start)),
		)
	}
	metrics.ExportJobs.WithLabelValues(string(job.Status)).Inc()

	// the message is already consumed, so the final status must land even
	// when ctx was cancelled during the render
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := r.store.Save(sctx, job); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// failureMessage keeps user-facing errors and hides backend details.
func failureMessage(err error) string {
	switch {
	case school.IsValidation(err), school.IsNoData(err),
		errors.Is(err, school.ErrForbidden), errors.Is(err, school.ErrNotFound):
		return err.Error()
	case school.IsGateway(err):
		return "the data service is unavailable, please retry"
	}
	return "export failed"
}
