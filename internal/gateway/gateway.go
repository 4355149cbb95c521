// Package gateway abstracts the hosted backend that owns every collection the
// dashboard reads and writes. Implementations live in store (Postgres),
// supabase (REST) and this package (in-memory).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names.
const (
	Students       = "students"
	Classes        = "classes"
	Attendance     = "attendance"
	Grades         = "grades"
	Assignments    = "assignments"
	Announcements  = "announcements"
	Profiles       = "profiles"
	ParentStudents = "parent_students"
)

// LinkParentToStudent is the one remote procedure the dashboard calls.
const LinkParentToStudent = "link_parent_to_student"

// Schema lists the columns each collection exposes. SQL and REST
// implementations refuse identifiers not listed here.
var Schema = map[string][]string{
	Students:       {"id", "name", "class_id", "student_id", "avatar_url", "created_at"},
	Classes:        {"id", "class_name", "subject", "teacher_id", "created_at"},
	Attendance:     {"id", "student_id", "class_id", "status", "created_at"},
	Grades:         {"id", "student_id", "class_id", "score", "created_at"},
	Assignments:    {"id", "class_id", "title", "description", "due_date", "status", "teacher_id", "created_at"},
	Announcements:  {"id", "teacher_id", "title", "message", "created_at"},
	Profiles:       {"id", "user_id", "role", "first_name", "last_name", "email", "student_id", "teacher_id", "department", "created_at"},
	ParentStudents: {"id", "parent_user_id", "student_id", "created_at"},
}

// ValidColumn reports whether col belongs to collection.
func ValidColumn(collection, col string) bool {
	for _, c := range Schema[collection] {
		if c == col {
			return true
		}
	}
	return false
}

// CheckQuery rejects unknown collections and columns.
func CheckQuery(collection string, q Query) error {
	if _, ok := Schema[collection]; !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	for _, c := range q.Columns {
		if !ValidColumn(collection, c) {
			return fmt.Errorf("unknown column %s.%s", collection, c)
		}
	}
	if err := CheckFilters(collection, q.Filters); err != nil {
		return err
	}
	if q.Order != nil && !ValidColumn(collection, q.Order.Column) {
		return fmt.Errorf("unknown order column %s.%s", collection, q.Order.Column)
	}
	return nil
}

// CheckFilters rejects filters on unknown columns or with unknown operators.
func CheckFilters(collection string, filters []Filter) error {
	for _, f := range filters {
		if !ValidColumn(collection, f.Column) {
			return fmt.Errorf("unknown filter column %s.%s", collection, f.Column)
		}
		switch f.Op {
		case OpEq, OpIn, OpGte, OpLte:
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return nil
}

// Row is a single record keyed by column name.
type Row map[string]interface{}

// Op is a filter operator.
type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter restricts a column. For OpIn, Value is a []string.
type Filter struct {
	Column string
	Op     Op
	Value  interface{}
}

func Eq(col string, v interface{}) Filter  { return Filter{Column: col, Op: OpEq, Value: v} }
func Gte(col string, v interface{}) Filter { return Filter{Column: col, Op: OpGte, Value: v} }
func Lte(col string, v interface{}) Filter { return Filter{Column: col, Op: OpLte, Value: v} }

// In matches rows whose column is one of values.
func In(col string, values []string) Filter { return Filter{Column: col, Op: OpIn, Value: values} }

// Order sorts results by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select. Empty Columns means all columns; Limit <= 0 means no limit.
type Query struct {
	Columns []string
	Filters []Filter
	Order   *Order
	Limit   int
}

// Gateway is the record-level CRUD and query surface of the backend.
type Gateway interface {
	Select(ctx context.Context, collection string, q Query) ([]Row, error)
	Count(ctx context.Context, collection string, filters []Filter) (int, error)
	Insert(ctx context.Context, collection string, row Row) (Row, error)
	Update(ctx context.Context, collection string, patch Row, filters []Filter) error
	Upsert(ctx context.Context, collection string, row Row, conflictKeys []string) error
	Delete(ctx context.Context, collection string, filters []Filter) error
	RPC(ctx context.Context, fn string, args map[string]interface{}) (json.RawMessage, error)
}

// Decode converts rows into a slice of structs using their json tags.
func Decode(rows []Row, out interface{}) error {
	if rows == nil {
		rows = []Row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// DecodeOne converts a single row into a struct.
func DecodeOne(row Row, out interface{}) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
