package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edusphere/internal/deadline"
	"edusphere/internal/gateway"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

// NoAverage is shown when there are no scores to average.
const NoAverage = "—"

// Average formats the mean of the non-nil scores with one decimal and a
// percent sign.
func Average(grades []school.GradeRecord) string {
	var sum float64
	var n int
	for _, g := range grades {
		if g.Score != nil {
			sum += *g.Score
			n++
		}
	}
	if n == 0 {
		return NoAverage
	}
	return fmt.Sprintf("%.1f%%", sum/float64(n))
}

// AdminStats are the headline counts of the admin dashboard.
type AdminStats struct {
	Students           int    `json:"students"`
	Teachers           int    `json:"teachers"`
	Classes            int    `json:"classes"`
	AveragePerformance string `json:"average_performance"`
}

func (svc *Service) AdminStats(ctx context.Context, _ Session) (AdminStats, error) {
	var st AdminStats
	var grades []school.GradeRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Students, err = svc.gw.Count(gctx, gateway.Students, nil)
		return err
	})
	g.Go(func() (err error) {
		st.Teachers, err = svc.gw.Count(gctx, gateway.Profiles, []gateway.Filter{gateway.Eq("role", string(school.RoleTeacher))})
		return err
	})
	g.Go(func() (err error) {
		st.Classes, err = svc.gw.Count(gctx, gateway.Classes, nil)
		return err
	})
	g.Go(func() error {
		return svc.list(gctx, gateway.Grades, gateway.Query{Columns: []string{"score"}}, &grades)
	})
	if err := g.Wait(); err != nil {
		return AdminStats{}, err
	}
	st.AveragePerformance = Average(grades)
	return st, nil
}

// LinkInput links a parent account to a student by the student's code.
type LinkInput struct {
	ParentUserID string `json:"parent_user_id" validate:"required"`
	StudentCode  string `json:"student_id" validate:"required"`
}

// LinkResult acknowledges a parent link.
type LinkResult struct {
	Linked  bool   `json:"linked"`
	Message string `json:"message"`
}

func (svc *Service) LinkParent(ctx context.Context, sess Session, in LinkInput) (LinkResult, error) {
	in.ParentUserID = strings.TrimSpace(in.ParentUserID)
	in.StudentCode = strings.TrimSpace(in.StudentCode)
	if err := school.Validate(in); err != nil {
		return LinkResult{}, err
	}
	raw, err := svc.gw.RPC(ctx, gateway.LinkParentToStudent, map[string]interface{}{
		"p_parent_user_id": in.ParentUserID,
		"p_student_id":     in.StudentCode,
	})
	if err != nil {
		return LinkResult{}, err
	}
	var linked bool
	if err := json.Unmarshal(raw, &linked); err != nil {
		linked = true
	}
	svc.log.Info("parent linked",
		zap.String("by", sess.UserID),
		zap.String("parent_user_id", in.ParentUserID),
		zap.String("student_id", in.StudentCode),
	)
	return LinkResult{Linked: linked, Message: "Parent successfully linked to student " + in.StudentCode + "."}, nil
}

// UpcomingLimit and RecentAttendanceLimit size the student overview lists.
const (
	UpcomingLimit         = 5
	RecentAttendanceLimit = 10
)

// StudentOverview is a student's own dashboard.
type StudentOverview struct {
	Profile    school.Profile            `json:"profile"`
	Student    *school.Student           `json:"student,omitempty"`
	Average    string                    `json:"average"`
	Upcoming   []deadline.Item           `json:"upcoming"`
	Attendance []school.AttendanceRecord `json:"attendance"`
}

// StudentOverview shows the caller's average, next assignments due and
// latest attendance entries. A profile not yet matched to a student record
// gets an empty overview.
func (svc *Service) StudentOverview(ctx context.Context, sess Session) (StudentOverview, error) {
	if sess.Profile.UserID == "" {
		return StudentOverview{}, school.ErrNotFound
	}
	out := StudentOverview{
		Profile:    sess.Profile,
		Average:    NoAverage,
		Upcoming:   []deadline.Item{},
		Attendance: []school.AttendanceRecord{},
	}
	if sess.Profile.StudentCode == "" {
		return out, nil
	}
	var st school.Student
	err := svc.one(ctx, gateway.Students, []gateway.Filter{gateway.Eq("student_id", sess.Profile.StudentCode)}, &st)
	if errors.Is(err, school.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return StudentOverview{}, err
	}
	out.Student = &st

	var grades []school.GradeRecord
	var upcoming []school.Assignment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.list(gctx, gateway.Grades, gateway.Query{
			Columns: []string{"score"},
			Filters: []gateway.Filter{gateway.Eq("student_id", st.ID)},
		}, &grades)
	})
	g.Go(func() error {
		return svc.list(gctx, gateway.Assignments, gateway.Query{
			Filters: []gateway.Filter{gateway.Eq("class_id", st.ClassID), gateway.Gte("due_date", sess.Today.String())},
			Order:   &gateway.Order{Column: "due_date"},
			Limit:   UpcomingLimit,
		}, &upcoming)
	})
	g.Go(func() error {
		return svc.list(gctx, gateway.Attendance, gateway.Query{
			Filters: []gateway.Filter{gateway.Eq("student_id", st.ID)},
			Order:   &gateway.Order{Column: "created_at", Desc: true},
			Limit:   RecentAttendanceLimit,
		}, &out.Attendance)
	})
	if err := g.Wait(); err != nil {
		return StudentOverview{}, err
	}
	out.Average = Average(grades)
	names, err := svc.classNames(ctx, []gateway.Filter{gateway.Eq("id", st.ClassID)})
	if err != nil {
		return StudentOverview{}, err
	}
	out.Upcoming = deadline.Classified(upcoming, names, sess.Today)
	return out, nil
}

// ParentOverview lists the caller's linked children with their latest
// attendance and grade.
type ParentOverview struct {
	Children []report.Row `json:"children"`
}

func (svc *Service) ParentOverview(ctx context.Context, sess Session) (ParentOverview, error) {
	links, err := svc.gw.Select(ctx, gateway.ParentStudents, gateway.Query{
		Columns: []string{"student_id"},
		Filters: []gateway.Filter{gateway.Eq("parent_user_id", sess.UserID)},
	})
	if err != nil {
		return ParentOverview{}, err
	}
	if len(links) == 0 {
		return ParentOverview{Children: []report.Row{}}, nil
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, fmt.Sprint(l["student_id"]))
	}

	var (
		students   []school.Student
		attendance []school.AttendanceRecord
		grades     []school.GradeRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.list(gctx, gateway.Students, gateway.Query{
			Filters: []gateway.Filter{gateway.In("id", ids)},
			Order:   &gateway.Order{Column: "name"},
		}, &students)
	})
	g.Go(func() error {
		return svc.list(gctx, gateway.Attendance, gateway.Query{Filters: []gateway.Filter{gateway.In("student_id", ids)}}, &attendance)
	})
	g.Go(func() error {
		return svc.list(gctx, gateway.Grades, gateway.Query{Filters: []gateway.Filter{gateway.In("student_id", ids)}}, &grades)
	})
	if err := g.Wait(); err != nil {
		return ParentOverview{}, err
	}
	return ParentOverview{Children: report.Merge(students, attendance, grades)}, nil
}
