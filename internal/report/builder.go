// Package report joins a class's roster with its attendance and grade
// history into the table every export format renders.
package report

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edusphere/internal/gateway"
	"edusphere/internal/school"
)

// Type selects which record collections appear in the report.
type Type string

const (
	TypeAttendance Type = "attendance"
	TypeGrades     Type = "grades"
	TypeBoth       Type = "both"
)

// Filter restricts the merged rows.
type Filter string

const (
	FilterAll            Filter = "all"
	FilterAbsentOnly     Filter = "absent"
	FilterBelowThreshold Filter = "below"
)

// PassingScore is the threshold used by FilterBelowThreshold.
const PassingScore = 50

// Column headers in their fixed order.
const (
	HeaderStudentID  = "Student ID"
	HeaderName       = "Name"
	HeaderAttendance = "Attendance"
	HeaderGrade      = "Grade"
)

// Request describes one report. Start and End bound record creation dates
// inclusively; End covers the whole day.
type Request struct {
	ClassID string       `json:"class_id" validate:"required"`
	Type    Type         `json:"type" validate:"required,oneof=attendance grades both"`
	Filter  Filter       `json:"filter" validate:"required,oneof=all absent below"`
	Start   *school.Date `json:"start,omitempty"`
	End     *school.Date `json:"end,omitempty"`
}

// Normalize lowercases Type and Filter and applies their defaults.
func (r Request) Normalize() Request {
	r.Type = Type(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.Filter = Filter(strings.ToLower(strings.TrimSpace(string(r.Filter))))
	if r.Type == "" {
		r.Type = TypeBoth
	}
	if r.Filter == "" {
		r.Filter = FilterAll
	}
	return r
}

// Validate checks required fields and the date range.
func (r Request) Validate() error {
	if err := school.Validate(r); err != nil {
		return err
	}
	var flds []school.FieldError
	if r.Start != nil && !r.Start.Valid() {
		flds = append(flds, school.FieldError{Field: "start", Error: "must be a date (YYYY-MM-DD)"})
	}
	if r.End != nil && !r.End.Valid() {
		flds = append(flds, school.FieldError{Field: "end", Error: "must be a date (YYYY-MM-DD)"})
	}
	if len(flds) == 0 && r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		flds = append(flds, school.FieldError{Field: "end", Error: "must not be before start"})
	}
	if len(flds) > 0 {
		return school.NewValidationError(flds...)
	}
	return nil
}

// Table is the normalized output shared by every renderer.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Builder reads a class's records through the gateway.
type Builder struct {
	gw  gateway.Gateway
	log *zap.Logger
	loc *time.Location
}

// NewBuilder creates a builder. Date ranges are interpreted in loc.
func NewBuilder(gw gateway.Gateway, log *zap.Logger, loc *time.Location) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{gw: gw, log: log, loc: loc}
}

// Build runs the three reads concurrently, merges, filters and shapes the
// result. A class without students yields school.ErrEmptyClass and a filter
// that leaves nothing yields school.ErrNoMatchingData.
func (b *Builder) Build(ctx context.Context, req Request) (Table, error) {
	rows, err := b.Rows(ctx, req)
	if err != nil {
		return Table{}, err
	}
	return Shape(req.Normalize().Type, rows), nil
}

// Rows is Build without the final column shaping.
func (b *Builder) Rows(ctx context.Context, req Request) ([]Row, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	filters := []gateway.Filter{gateway.Eq("class_id", req.ClassID)}
	if req.Start != nil {
		t, _ := b.startOf(*req.Start)
		filters = append(filters, gateway.Gte("created_at", t))
	}
	if req.End != nil {
		t, _ := b.endOf(*req.End)
		filters = append(filters, gateway.Lte("created_at", t))
	}

	var (
		students                   []school.Student
		attendance                 []school.AttendanceRecord
		grades                     []school.GradeRecord
		studentsErr, attErr, grErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	// the roster read is not cancelled by a failing record read so that an
	// empty class is still reported as such
	g.Go(func() error {
		studentsErr = b.read(ctx, gateway.Students, gateway.Query{
			Filters: []gateway.Filter{gateway.Eq("class_id", req.ClassID)},
			Order:   &gateway.Order{Column: "name"},
		}, &students)
		return studentsErr
	})
	g.Go(func() error {
		attErr = b.read(gctx, gateway.Attendance, gateway.Query{Filters: filters}, &attendance)
		return attErr
	})
	g.Go(func() error {
		grErr = b.read(gctx, gateway.Grades, gateway.Query{Filters: filters}, &grades)
		return grErr
	})
	waitErr := g.Wait()

	if studentsErr != nil {
		return nil, studentsErr
	}
	if len(students) == 0 {
		return nil, school.ErrEmptyClass
	}
	if waitErr != nil {
		return nil, waitErr
	}

	rows := Apply(req.Filter, Merge(students, attendance, grades))
	if len(rows) == 0 {
		return nil, school.ErrNoMatchingData
	}
	b.log.Debug("report built",
		zap.String("class_id", req.ClassID),
		zap.String("type", string(req.Type)),
		zap.String("filter", string(req.Filter)),
		zap.Int("students", len(students)),
		zap.Int("rows", len(rows)))
	return rows, nil
}

func (b *Builder) read(ctx context.Context, collection string, q gateway.Query, out interface{}) error {
	rows, err := b.gw.Select(ctx, collection, q)
	if err != nil {
		return err
	}
	if err := gateway.Decode(rows, out); err != nil {
		return &school.GatewayError{Op: "select", Collection: collection, Err: err}
	}
	return nil
}

func (b *Builder) startOf(d school.Date) (time.Time, error) {
	return time.ParseInLocation(school.DateLayout, string(d), b.loc)
}

func (b *Builder) endOf(d school.Date) (time.Time, error) {
	t, err := b.startOf(d)
	if err != nil {
		return t, err
	}
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// Apply keeps the rows satisfying f, preserving order.
func Apply(f Filter, rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		switch f {
		case FilterAbsentOnly:
			if !strings.EqualFold(r.Attendance, string(school.Absent)) {
				continue
			}
		case FilterBelowThreshold:
			score, ok := r.Score()
			if !ok || score >= PassingScore {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Headers returns the column list for t.
func Headers(t Type) []string {
	h := []string{HeaderStudentID, HeaderName}
	if t == TypeAttendance || t == TypeBoth {
		h = append(h, HeaderAttendance)
	}
	if t == TypeGrades || t == TypeBoth {
		h = append(h, HeaderGrade)
	}
	return h
}

// Shape projects rows onto the columns selected by t.
func Shape(t Type, rows []Row) Table {
	table := Table{Headers: Headers(t), Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		cells := []string{r.StudentCode, r.Name}
		if t == TypeAttendance || t == TypeBoth {
			cells = append(cells, r.Attendance)
		}
		if t == TypeGrades || t == TypeBoth {
			cells = append(cells, r.Grade)
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}
