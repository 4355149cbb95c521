package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"edusphere/internal/gateway"
	"edusphere/internal/metrics"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

// ClassInput names one class.
type ClassInput struct {
	ClassID string `json:"class_id" validate:"required"`
}

// classFor loads a class the session may work with. Admins see every class,
// teachers only their own.
func (svc *Service) classFor(ctx context.Context, sess Session, classID string) (school.Class, error) {
	var c school.Class
	if err := svc.one(ctx, gateway.Classes, []gateway.Filter{gateway.Eq("id", classID)}, &c); err != nil {
		return school.Class{}, err
	}
	if sess.Role == school.RoleAdmin || (sess.Role == school.RoleTeacher && c.TeacherID == sess.UserID) {
		return c, nil
	}
	return school.Class{}, school.ErrForbidden
}

// Classes lists the classes the session may pick from, by name.
func (svc *Service) Classes(ctx context.Context, sess Session) ([]school.Class, error) {
	q := gateway.Query{Order: &gateway.Order{Column: "class_name"}}
	if sess.Role != school.RoleAdmin {
		q.Filters = []gateway.Filter{gateway.Eq("teacher_id", sess.UserID)}
	}
	var out []school.Class
	if err := svc.list(ctx, gateway.Classes, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Roster lists a class's students by name.
func (svc *Service) Roster(ctx context.Context, sess Session, in ClassInput) ([]school.Student, error) {
	if err := school.Validate(in); err != nil {
		return nil, err
	}
	if _, err := svc.classFor(ctx, sess, in.ClassID); err != nil {
		return nil, err
	}
	var out []school.Student
	err := svc.list(ctx, gateway.Students, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("class_id", in.ClassID)},
		Order:   &gateway.Order{Column: "name"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordKind selects the collection a batch is written to.
type RecordKind string

const (
	KindAttendance RecordKind = "attendance"
	KindGrades     RecordKind = "grades"
)

// Entry is one student's value in a batch. Status is used for attendance,
// Score for grades; a nil Score clears the grade.
type Entry struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    school.AttendanceStatus `json:"status,omitempty"`
	Score     *float64                `json:"score" validate:"omitempty,gte=0,lte=100"`
}

// SaveInput is a batch of attendance or grade entries for one class.
type SaveInput struct {
	ClassID string     `json:"class_id" validate:"required"`
	Kind    RecordKind `json:"kind" validate:"required,oneof=attendance grades"`
	Entries []Entry    `json:"entries" validate:"required,min=1,dive"`
}

func (in SaveInput) validate() error {
	if err := school.Validate(in); err != nil {
		return err
	}
	if in.Kind != KindAttendance {
		return nil
	}
	var flds []school.FieldError
	for i, e := range in.Entries {
		if !e.Status.Valid() {
			flds = append(flds, school.FieldError{
				Field: fmt.Sprintf("entries[%d].status", i),
				Error: "must be one of: Present Late Absent",
			})
		}
	}
	if len(flds) > 0 {
		return school.NewValidationError(flds...)
	}
	return nil
}

// ItemError is one entry that could not be saved.
type ItemError struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// BatchResult lists which entries were written.
type BatchResult struct {
	Succeeded []string    `json:"succeeded"`
	Failed    []ItemError `json:"failed"`
}

// SaveRecords upserts one record per entry keyed by (class_id, student_id).
// Entries are independent: a failed write is reported in the result and the
// rest of the batch continues.
func (svc *Service) SaveRecords(ctx context.Context, sess Session, in SaveInput) (BatchResult, error) {
	if err := in.validate(); err != nil {
		return BatchResult{}, err
	}
	if _, err := svc.classFor(ctx, sess, in.ClassID); err != nil {
		return BatchResult{}, err
	}
	rows, err := svc.gw.Select(ctx, gateway.Students, gateway.Query{
		Columns: []string{"id"},
		Filters: []gateway.Filter{gateway.Eq("class_id", in.ClassID)},
	})
	if err != nil {
		return BatchResult{}, err
	}
	roster := make(map[string]bool, len(rows))
	for _, r := range rows {
		roster[fmt.Sprint(r["id"])] = true
	}

	collection := gateway.Attendance
	if in.Kind == KindGrades {
		collection = gateway.Grades
	}
	res := BatchResult{Succeeded: []string{}, Failed: []ItemError{}}
	for _, e := range in.Entries {
		if !roster[e.StudentID] {
			res.Failed = append(res.Failed, ItemError{StudentID: e.StudentID, Error: "student is not in this class"})
			metrics.RecordSaves.WithLabelValues(string(in.Kind), "error").Inc()
			continue
		}
		row := gateway.Row{
			"class_id":   in.ClassID,
			"student_id": e.StudentID,
			"created_at": svc.now().UTC(),
		}
		if in.Kind == KindGrades {
			var score interface{}
			if e.Score != nil {
				score = *e.Score
			}
			row["score"] = score
		} else {
			row["status"] = string(e.Status)
		}
		err := svc.gw.Upsert(ctx, collection, row, []string{"class_id", "student_id"})
		metrics.RecordSaves.WithLabelValues(string(in.Kind), metrics.Outcome(err)).Inc()
		if err != nil {
			svc.log.Warn("save record",
				zap.String("kind", string(in.Kind)),
				zap.String("class_id", in.ClassID),
				zap.String("student_id", e.StudentID),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, ItemError{StudentID: e.StudentID, Error: "could not be saved"})
			continue
		}
		res.Succeeded = append(res.Succeeded, e.StudentID)
	}
	svc.log.Info("records saved",
		zap.String("kind", string(in.Kind)),
		zap.String("class_id", in.ClassID),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// ReportView is a built report with the class it belongs to.
type ReportView struct {
	Class school.Class `json:"class"`
	report.Table
}

// Report builds the table for one of the session's classes.
func (svc *Service) Report(ctx context.Context, sess Session, req report.Request) (ReportView, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return ReportView{}, err
	}
	class, err := svc.classFor(ctx, sess, req.ClassID)
	if err != nil {
		return ReportView{}, err
	}
	t, err := svc.reports.Build(ctx, req)
	if err != nil {
		return ReportView{}, err
	}
	metrics.ReportsGenerated.WithLabelValues(string(req.Type), string(req.Filter)).Inc()
	return ReportView{Class: class, Table: t}, nil
}
