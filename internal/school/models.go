package school

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Role is the dashboard role stored on a profile.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Profile is the per-user record owned by the backend's profiles collection.
type Profile struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	StudentCode string `json:"student_id,omitempty"`
	TeacherCode string `json:"teacher_id,omitempty"`
	Department  string `json:"department,omitempty"`
}

// DisplayName joins first and last name.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Class is a roster grouping taught by one teacher.
type Class struct {
	ID        string `json:"id"`
	Name      string `json:"class_name"`
	Subject   string `json:"subject,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
}

// Student belongs to exactly one class at a time.
type Student struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ClassID     string `json:"class_id"`
	StudentCode string `json:"student_id"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// AttendanceStatus is the recorded presence of a student.
type AttendanceStatus string

const (
	Present AttendanceStatus = "Present"
	Late    AttendanceStatus = "Late"
	Absent  AttendanceStatus = "Absent"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case Present, Late, Absent:
		return true
	}
	return false
}

// AttendanceRecord is one entry of a student's attendance history in a class.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	StudentID string           `json:"student_id"`
	ClassID   string           `json:"class_id"`
	Status    AttendanceStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// GradeRecord is one entry of a student's grade history in a class.
// Score is nil when the teacher cleared it.
type GradeRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Score     *float64  `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON decodes a grade row leniently: a score that is not a finite
// number, or a string holding one, decodes as nil instead of failing the row.
func (g *GradeRecord) UnmarshalJSON(b []byte) error {
	type plain GradeRecord
	var aux struct {
		plain
		Score json.RawMessage `json:"score"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*g = GradeRecord(aux.plain)
	g.Score = parseScore(aux.Score)
	return nil
}

func parseScore(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// AssignmentStatus is the persisted completion state of an assignment.
type AssignmentStatus string

const (
	Pending   AssignmentStatus = "Pending"
	Completed AssignmentStatus = "Completed"
)

// Canonical maps any casing of a known status to its constant. Unknown
// values are returned trimmed.
func (s AssignmentStatus) Canonical() AssignmentStatus {
	t := strings.TrimSpace(string(s))
	switch {
	case strings.EqualFold(t, string(Pending)):
		return Pending
	case strings.EqualFold(t, string(Completed)):
		return Completed
	}
	return AssignmentStatus(t)
}

// Assignment is a piece of coursework with a calendar due date.
type Assignment struct {
	ID          string           `json:"id"`
	ClassID     string           `json:"class_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	DueDate     Date             `json:"due_date"`
	Status      AssignmentStatus `json:"status"`
	TeacherID   string           `json:"teacher_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Announcement is immutable once created.
type Announcement struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
