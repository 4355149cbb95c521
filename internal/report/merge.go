package report

import (
	"strconv"
	"time"

	"edusphere/internal/school"
)

// LatestByStudent returns the record for studentID with the greatest
// timestamp. Among records sharing that timestamp the one appearing last in
// records wins. ok is false when no record matches.
func LatestByStudent[T any](studentID string, records []T, id func(T) string, at func(T) time.Time) (latest T, ok bool) {
	var best time.Time
	for _, r := range records {
		if id(r) != studentID {
			continue
		}
		t := at(r)
		if !ok || !t.Before(best) {
			latest, best, ok = r, t, true
		}
	}
	return latest, ok
}

// Row is one student's merged attendance and grade. Empty strings mean no
// record exists.
type Row struct {
	StudentID   string `json:"-"`
	StudentCode string `json:"student_id"`
	Name        string `json:"name"`
	Attendance  string `json:"attendance"`
	Grade       string `json:"grade"`
}

// Score parses Grade. ok is false when the grade is absent or non-numeric.
func (r Row) Score() (float64, bool) {
	if r.Grade == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(r.Grade, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func attendanceStudent(r school.AttendanceRecord) string { return r.StudentID }
func attendanceAt(r school.AttendanceRecord) time.Time { return r.CreatedAt }
func gradeStudent(r school.GradeRecord) string { return r.StudentID }
func gradeAt(r school.GradeRecord) time.Time { return r.CreatedAt }

// Merge produces one Row per student, in student order.
func Merge(students []school.Student, attendance []school.AttendanceRecord, grades []school.GradeRecord) []Row {
	rows := make([]Row, 0, len(students))
	for _, s := range students {
		row := Row{StudentID: s.ID, StudentCode: s.StudentCode, Name: s.Name}
		if a, ok := LatestByStudent(s.ID, attendance, attendanceStudent, attendanceAt); ok {
			row.Attendance = string(a.Status)
		}
		if g, ok := LatestByStudent(s.ID, grades, gradeStudent, gradeAt); ok {
			row.Grade = FormatScore(g.Score)
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatScore renders a score without trailing zeros; nil renders empty.
func FormatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', -1, 64)
}
