package dashboard

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"edusphere/internal/deadline"
	"edusphere/internal/gateway"
	"edusphere/internal/metrics"
	"edusphere/internal/school"
)

// AssignmentInput creates an assignment. New assignments start Pending.
type AssignmentInput struct {
	ClassID     string      `json:"class_id" validate:"required"`
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	DueDate     school.Date `json:"due_date" validate:"required"`
}

func (in AssignmentInput) validate() error {
	if err := school.Validate(in); err != nil {
		return err
	}
	if !in.DueDate.Valid() {
		return school.NewValidationError(school.FieldError{Field: "due_date", Error: "must be a date (YYYY-MM-DD)"})
	}
	return nil
}

// CreateAssignment adds an assignment to a class. It is owned by the class's
// teacher even when an admin creates it.
func (svc *Service) CreateAssignment(ctx context.Context, sess Session, in AssignmentInput) (school.Assignment, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.validate(); err != nil {
		return school.Assignment{}, err
	}
	class, err := svc.classFor(ctx, sess, in.ClassID)
	if err != nil {
		return school.Assignment{}, err
	}
	owner := class.TeacherID
	if owner == "" {
		owner = sess.UserID
	}
	row, err := svc.gw.Insert(ctx, gateway.Assignments, gateway.Row{
		"class_id":    in.ClassID,
		"title":       in.Title,
		"description": in.Description,
		"due_date":    in.DueDate.String(),
		"status":      string(school.Pending),
		"teacher_id":  owner,
	})
	if err != nil {
		return school.Assignment{}, err
	}
	var a school.Assignment
	if err := gateway.DecodeOne(row, &a); err != nil {
		return school.Assignment{}, err
	}
	svc.log.Info("assignment created", zap.String("assignment_id", a.ID), zap.String("class_id", a.ClassID))
	return a, nil
}

// IDInput names one record.
type IDInput struct {
	ID string `json:"id" validate:"required"`
}

// StatusInput marks an assignment Completed or reopens it.
type StatusInput struct {
	ID     string                  `json:"id" validate:"required"`
	Status school.AssignmentStatus `json:"status" validate:"required,oneof=Pending Completed"`
}

func (svc *Service) ownedAssignment(ctx context.Context, sess Session, id string) (school.Assignment, error) {
	var a school.Assignment
	if err := svc.one(ctx, gateway.Assignments, []gateway.Filter{gateway.Eq("id", id)}, &a); err != nil {
		return school.Assignment{}, err
	}
	if sess.Role != school.RoleAdmin && a.TeacherID != sess.UserID {
		return school.Assignment{}, school.ErrForbidden
	}
	return a, nil
}

// UpdateAssignmentStatus changes only the status field.
func (svc *Service) UpdateAssignmentStatus(ctx context.Context, sess Session, in StatusInput) (school.Assignment, error) {
	if err := school.Validate(in); err != nil {
		return school.Assignment{}, err
	}
	a, err := svc.ownedAssignment(ctx, sess, in.ID)
	if err != nil {
		return school.Assignment{}, err
	}
	err = svc.gw.Update(ctx, gateway.Assignments, gateway.Row{"status": string(in.Status)}, []gateway.Filter{gateway.Eq("id", a.ID)})
	if err != nil {
		return school.Assignment{}, err
	}
	a.Status = in.Status
	return a, nil
}

// Deleted acknowledges a removal.
type Deleted struct {
	ID string `json:"deleted"`
}

func (svc *Service) DeleteAssignment(ctx context.Context, sess Session, in IDInput) (Deleted, error) {
	if err := school.Validate(in); err != nil {
		return Deleted{}, err
	}
	a, err := svc.ownedAssignment(ctx, sess, in.ID)
	if err != nil {
		return Deleted{}, err
	}
	if err := svc.gw.Delete(ctx, gateway.Assignments, []gateway.Filter{gateway.Eq("id", a.ID)}); err != nil {
		return Deleted{}, err
	}
	svc.log.Info("assignment deleted", zap.String("assignment_id", a.ID))
	return Deleted{ID: a.ID}, nil
}

// DeadlinesView is the teacher's assignment board. Summary covers every
// listed assignment; Items and Groups are filtered and sorted.
type DeadlinesView struct {
	Today   school.Date      `json:"today"`
	Summary deadline.Summary `json:"summary"`
	Items   []deadline.Item  `json:"items"`
	Groups  []deadline.Group `json:"groups"`
}

// Deadlines classifies the session's assignments against today.
func (svc *Service) Deadlines(ctx context.Context, sess Session, q deadline.Query) (DeadlinesView, error) {
	f, by, err := q.Parse()
	if err != nil {
		return DeadlinesView{}, err
	}
	items, err := svc.classifiedAssignments(ctx, sess, q.ClassID)
	if err != nil {
		return DeadlinesView{}, err
	}
	shown := f.Apply(items)
	deadline.Sort(shown, by)
	return DeadlinesView{
		Today:   sess.Today,
		Summary: deadline.Summarize(items),
		Items:   shown,
		Groups:  deadline.GroupByPriority(shown),
	}, nil
}

func (svc *Service) classifiedAssignments(ctx context.Context, sess Session, classID string) ([]deadline.Item, error) {
	var filters []gateway.Filter
	var classFilters []gateway.Filter
	if sess.Role != school.RoleAdmin {
		filters = append(filters, gateway.Eq("teacher_id", sess.UserID))
		classFilters = append(classFilters, gateway.Eq("teacher_id", sess.UserID))
	}
	if classID != "" {
		filters = append(filters, gateway.Eq("class_id", classID))
	}
	var assignments []school.Assignment
	err := svc.list(ctx, gateway.Assignments, gateway.Query{
		Filters: filters,
		Order:   &gateway.Order{Column: "due_date"},
	}, &assignments)
	if err != nil {
		return nil, err
	}
	names, err := svc.classNames(ctx, classFilters)
	if err != nil {
		return nil, err
	}
	return deadline.Classified(assignments, names, sess.Today), nil
}

func (svc *Service) classNames(ctx context.Context, filters []gateway.Filter) (map[string]string, error) {
	var classes []school.Class
	err := svc.list(ctx, gateway.Classes, gateway.Query{Columns: []string{"id", "class_name"}, Filters: filters}, &classes)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.Name
	}
	return names, nil
}

// Sweep classifies every assignment against today and publishes the counts
// as gauges. The worker runs it on a schedule.
func (svc *Service) Sweep(ctx context.Context) (deadline.Summary, error) {
	var assignments []school.Assignment
	err := svc.list(ctx, gateway.Assignments, gateway.Query{Columns: []string{"id", "due_date", "status"}}, &assignments)
	if err != nil {
		return deadline.Summary{}, err
	}
	today := school.DateOf(svc.now().In(svc.loc))
	s := deadline.Summarize(deadline.Classified(assignments, nil, today))
	metrics.Assignments.WithLabelValues(deadline.Overdue.Slug()).Set(float64(s.Overdue))
	metrics.Assignments.WithLabelValues(deadline.DueSoon.Slug()).Set(float64(s.DueSoon))
	metrics.Assignments.WithLabelValues(deadline.Pending.Slug()).Set(float64(s.Pending))
	metrics.Assignments.WithLabelValues(deadline.Completed.Slug()).Set(float64(s.Completed))
	svc.log.Debug("deadline sweep", zap.String("today", today.String()), zap.Int("total", s.Total), zap.Int("overdue", s.Overdue))
	return s, nil
}
