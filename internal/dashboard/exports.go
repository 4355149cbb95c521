package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"edusphere/internal/deadline"
	"edusphere/internal/export"
	"edusphere/internal/jobs"
	"edusphere/internal/metrics"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

// ErrExportsDisabled is returned when no job store or queue is configured.
var ErrExportsDisabled = errors.New("background exports are not configured")

var _ jobs.Renderer = (*Service)(nil)

func (svc *Service) header(sess Session, title, classLabel string) export.Header {
	return export.Header{
		Institution: svc.branding.Institution,
		Title:       title,
		Teacher:     sess.Name(),
		ClassLabel:  classLabel,
		GeneratedAt: svc.now().In(svc.loc),
	}
}

func (svc *Service) pictures(ctx context.Context, signature bool) export.Images {
	if svc.images == nil {
		return export.Images{}
	}
	img := export.Images{Logo: svc.images.Optional(ctx, svc.branding.LogoURL)}
	if signature {
		img.Signature = svc.images.Optional(ctx, svc.branding.SignatureURL)
	}
	return img
}

func classLabel(c school.Class) string {
	if c.Subject == "" || c.Subject == c.Name {
		return c.Name
	}
	return c.Name + " - " + c.Subject
}

// ClassReport builds a class report and encodes it as f.
func (svc *Service) ClassReport(ctx context.Context, sess Session, req report.Request, f export.Format) (art export.Artifact, err error) {
	defer func() { metrics.Exports.WithLabelValues(string(f), metrics.Outcome(err)).Inc() }()

	view, err := svc.Report(ctx, sess, req)
	if err != nil {
		return export.Artifact{}, err
	}
	h := svc.header(sess, "Class Report", classLabel(view.Class))
	art = export.Artifact{
		Filename:    export.Filename(view.Class.Name, "report", h.GeneratedAt, f),
		ContentType: f.ContentType(),
	}

	var buf bytes.Buffer
	switch f {
	case export.FormatCSV:
		art.Data = export.CSV(view.Table)
	case export.FormatPDF:
		err = export.ClassReportPDF(&buf, h, view.Table, svc.pictures(ctx, true))
		art.Data = buf.Bytes()
	case export.FormatPrint:
		var doc string
		doc, err = export.PrintHTML(h, view.Table, svc.pictures(ctx, true))
		art.Data = []byte(doc)
	case export.FormatXLSX:
		err = export.XLSX(&buf, h, view.Table)
		art.Data = buf.Bytes()
	case export.FormatJSON:
		art.Data, err = json.Marshal(view)
	default:
		err = fmt.Errorf("unsupported report format %q", f)
	}
	if err != nil {
		return export.Artifact{}, err
	}
	return art, nil
}

// AssignmentsExport renders the deadlines board as a PDF grouped by priority.
func (svc *Service) AssignmentsExport(ctx context.Context, sess Session, q deadline.Query) (art export.Artifact, err error) {
	defer func() { metrics.Exports.WithLabelValues(string(export.FormatPDF), metrics.Outcome(err)).Inc() }()

	label := "all classes"
	if q.ClassID != "" {
		class, err := svc.classFor(ctx, sess, q.ClassID)
		if err != nil {
			return export.Artifact{}, err
		}
		label = classLabel(class)
	}
	view, err := svc.Deadlines(ctx, sess, q)
	if err != nil {
		return export.Artifact{}, err
	}
	h := svc.header(sess, "Assignments", label)
	var buf bytes.Buffer
	if err := export.AssignmentsPDF(&buf, h, view.Groups, view.Summary, svc.pictures(ctx, false).Logo); err != nil {
		return export.Artifact{}, err
	}
	return export.Artifact{
		Filename:    export.Filename(label, "assignments", h.GeneratedAt, export.FormatPDF),
		ContentType: export.FormatPDF.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// ExportRequest asks for an export to be rendered in the background.
type ExportRequest struct {
	Kind      jobs.Kind       `json:"kind"`
	Format    string          `json:"format"`
	Report    *report.Request `json:"report,omitempty"`
	Deadlines *deadline.Query `json:"deadlines,omitempty"`
}

// SubmitExport queues an export after checking the session may read its class.
func (svc *Service) SubmitExport(ctx context.Context, sess Session, in ExportRequest) (jobs.Job, error) {
	if svc.jobs == nil || svc.queue == nil {
		return jobs.Job{}, ErrExportsDisabled
	}
	f, err := export.ParseFormat(in.Format)
	if err != nil {
		return jobs.Job{}, school.NewValidationError(school.FieldError{Field: "format", Error: "must be one of: csv pdf print xlsx"})
	}
	job := jobs.Job{
		Kind:      in.Kind,
		Format:    f,
		UserID:    sess.UserID,
		Role:      sess.Role,
		Report:    in.Report,
		Deadlines: in.Deadlines,
	}
	if err := job.Validate(); err != nil {
		return jobs.Job{}, err
	}
	classID := ""
	if job.Report != nil {
		classID = job.Report.ClassID
	}
	if job.Kind == jobs.KindAssignments && job.Deadlines != nil {
		classID = job.Deadlines.ClassID
	}
	if classID != "" {
		if _, err := svc.classFor(ctx, sess, classID); err != nil {
			return jobs.Job{}, err
		}
	}
	return jobs.Submit(ctx, svc.jobs, svc.queue, job)
}

// Export returns a job the session submitted. Admins may read any job.
func (svc *Service) Export(ctx context.Context, sess Session, id string) (jobs.Job, error) {
	if svc.jobs == nil {
		return jobs.Job{}, ErrExportsDisabled
	}
	job, err := svc.jobs.Get(ctx, id)
	if err != nil {
		return jobs.Job{}, err
	}
	if job.UserID != sess.UserID && sess.Role != school.RoleAdmin {
		return jobs.Job{}, school.ErrNotFound
	}
	return job, nil
}

// ExportArtifact returns the rendered file of a finished job.
func (svc *Service) ExportArtifact(ctx context.Context, sess Session, id string) (export.Artifact, error) {
	job, err := svc.Export(ctx, sess, id)
	if err != nil {
		return export.Artifact{}, err
	}
	if job.Status != jobs.StatusDone {
		return export.Artifact{}, school.ErrNotFound
	}
	return svc.jobs.Artifact(ctx, id)
}

// Render implements jobs.Renderer. The session is rebuilt from the job so
// permissions are checked again at render time.
func (svc *Service) Render(ctx context.Context, job jobs.Job) (export.Artifact, error) {
	sess, err := svc.NewSession(ctx, job.UserID, job.Role)
	if err != nil {
		return export.Artifact{}, err
	}
	switch job.Kind {
	case jobs.KindClassReport:
		if job.Report == nil {
			return export.Artifact{}, school.NewValidationError(school.FieldError{Field: "report", Error: "is required"})
		}
		return svc.ClassReport(ctx, sess, *job.Report, job.Format)
	case jobs.KindAssignments:
		var q deadline.Query
		if job.Deadlines != nil {
			q = *job.Deadlines
		}
		return svc.AssignmentsExport(ctx, sess, q)
	}
	return export.Artifact{}, fmt.Errorf("unknown job kind %q", job.Kind)
}
