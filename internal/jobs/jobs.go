// Package jobs runs exports in the background: the API records a job and
// publishes its id, the worker renders it and stores the artifact.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"edusphere/internal/deadline"
	"edusphere/internal/export"
	"edusphere/internal/queue"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

// Kind names what a job renders.
type Kind string

const (
	KindClassReport Kind = "class_report"
	KindAssignments Kind = "assignments"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Finished reports whether s is terminal.
func (s Status) Finished() bool { return s == StatusDone || s == StatusFailed }

// Job is one export request. UserID and Role capture the requesting session
// so the worker renders with the same permissions.
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind" validate:"required,oneof=class_report assignments"`
	Format      export.Format   `json:"format" validate:"required,oneof=csv pdf print xlsx"`
	UserID      string          `json:"user_id" validate:"required"`
	Role        school.Role     `json:"role" validate:"required"`
	Report      *report.Request `json:"report,omitempty" validate:"-"`
	Deadlines   *deadline.Query `json:"deadlines,omitempty" validate:"-"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Filename    string          `json:"filename,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks that the job carries the input its kind needs.
func (j Job) Validate() error {
	if err := school.Validate(j); err != nil {
		return err
	}
	switch j.Kind {
	case KindClassReport:
		if j.Report == nil {
			return school.NewValidationError(school.FieldError{Field: "report", Error: "is required"})
		}
		return j.Report.Normalize().Validate()
	case KindAssignments:
		if j.Format != export.FormatPDF {
			return school.NewValidationError(school.FieldError{Field: "format", Error: "must be one of: pdf"})
		}
	}
	return nil
}

// Store persists jobs and their artifacts.
type Store interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	PutArtifact(ctx context.Context, id string, a export.Artifact) error
	Artifact(ctx context.Context, id string) (export.Artifact, error)
}

// Submit validates job, records it as queued and publishes its id. If the
// publish fails the job is marked failed before the error is returned.
func Submit(ctx context.Context, s Store, q queue.Queue, job Job) (Job, error) {
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	if job.Report != nil {
		req := job.Report.Normalize()
		job.Report = &req
	}
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.Status = StatusQueued
	job.Error = ""
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := s.Save(ctx, job); err != nil {
		return Job{}, fmt.Errorf("save job: %w", err)
	}
	if err := q.Publish(ctx, queue.Message{Type: queue.TypeExport, Body: []byte(job.ID)}); err != nil {
		job.Status = StatusFailed
		job.Error = "could not be queued"
		job.UpdatedAt = time.Now().UTC()
		_ = s.Save(ctx, job)
		return Job{}, fmt.Errorf("publish job: %w", err)
	}
	return job, nil
}
