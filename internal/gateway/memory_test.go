package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusphere/internal/school"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	m.Seed(Attendance,
		Row{"id": "a1", "student_id": "s1", "class_id": "c1", "status": "Present", "created_at": base},
		Row{"id": "a2", "student_id": "s1", "class_id": "c1", "status": "Absent", "created_at": base.Add(48 * time.Hour)},
		Row{"id": "a3", "student_id": "s2", "class_id": "c1", "status": "Late", "created_at": base.Add(24 * time.Hour)},
		Row{"id": "a4", "student_id": "s3", "class_id": "c2", "status": "Present", "created_at": base},
	)
	return m
}

func TestMemorySelectFilters(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "eq", q: Query{Filters: []Filter{Eq("class_id", "c1")}}, want: []string{"a1", "a2", "a3"}},
		{name: "in", q: Query{Filters: []Filter{In("student_id", []string{"s2", "s3"})}}, want: []string{"a3", "a4"}},
		{name: "gte", q: Query{Filters: []Filter{Gte("created_at", base.Add(time.Hour))}}, want: []string{"a2", "a3"}},
		{name: "lte", q: Query{Filters: []Filter{Lte("created_at", base.Add(30 * time.Hour))}}, want: []string{"a1", "a3", "a4"}},
		{name: "order desc limit", q: Query{Order: &Order{Column: "created_at", Desc: true}, Limit: 2}, want: []string{"a2", "a3"}},
		{name: "order asc stable", q: Query{Order: &Order{Column: "created_at"}}, want: []string{"a1", "a4", "a3", "a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := m.Select(ctx, Attendance, tt.q)
			require.NoError(t, err)
			var ids []string
			for _, r := range rows {
				ids = append(ids, r["id"].(string))
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryProjection(t *testing.T) {
	m := seeded(t)
	rows, err := m.Select(context.Background(), Attendance, Query{Columns: []string{"status"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"status": "Present"}, rows[0])
}

func TestMemoryUpsert(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return fixed }
	ctx := context.Background()
	keys := []string{"class_id", "student_id"}

	require.NoError(t, m.Upsert(ctx, Grades, Row{"class_id": "c1", "student_id": "s1", "score": 70.0}, keys))
	require.NoError(t, m.Upsert(ctx, Grades, Row{"class_id": "c1", "student_id": "s1", "score": 85.0}, keys))
	require.NoError(t, m.Upsert(ctx, Grades, Row{"class_id": "c1", "student_id": "s2", "score": 40.0}, keys))

	rows, err := m.Select(ctx, Grades, Query{Filters: []Filter{Eq("student_id", "s1")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 85.0, rows[0]["score"])
	assert.Equal(t, fixed, rows[0]["created_at"])
	assert.NotEmpty(t, rows[0]["id"])

	n, err := m.Count(ctx, Grades, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryInsertUpdateDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	row, err := m.Insert(ctx, Assignments, Row{"title": "Essay", "status": "Pending", "class_id": "c1"})
	require.NoError(t, err)
	id := row["id"].(string)
	assert.NotEmpty(t, id)

	require.NoError(t, m.Update(ctx, Assignments, Row{"status": "Completed"}, []Filter{Eq("id", id)}))
	rows, err := m.Select(ctx, Assignments, Query{})
	require.NoError(t, err)
	assert.Equal(t, "Completed", rows[0]["status"])

	require.NoError(t, m.Delete(ctx, Assignments, []Filter{Eq("id", id)}))
	n, err := m.Count(ctx, Assignments, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryFault(t *testing.T) {
	m := seeded(t)
	m.Fault = func(op, collection string, row Row) error {
		if op == "select" && collection == Grades {
			return errors.New("permission denied")
		}
		return nil
	}
	_, err := m.Select(context.Background(), Grades, Query{})
	assert.True(t, school.IsGateway(err))
	_, err = m.Select(context.Background(), Attendance, Query{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"select:grades", "select:attendance"}, m.Calls())
}

func TestMemoryLinkParent(t *testing.T) {
	m := NewMemory()
	m.Seed(Students, Row{"id": "s1", "student_id": "S1234526", "name": "Jane"})
	ctx := context.Background()

	_, err := m.RPC(ctx, LinkParentToStudent, map[string]interface{}{"p_parent_user_id": "p1", "p_student_id": "S1234526"})
	require.NoError(t, err)
	rows, err := m.Select(ctx, ParentStudents, Query{Filters: []Filter{Eq("parent_user_id", "p1")}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0]["student_id"])

	_, err = m.RPC(ctx, LinkParentToStudent, map[string]interface{}{"p_parent_user_id": "p1", "p_student_id": "S0"})
	assert.True(t, school.IsGateway(err))
	_, err = m.RPC(ctx, "drop_everything", nil)
	assert.Error(t, err)
}

func TestCheckQuery(t *testing.T) {
	assert.NoError(t, CheckQuery(Students, Query{Columns: []string{"id", "name"}, Filters: []Filter{Eq("class_id", "c1")}}))
	assert.Error(t, CheckQuery("secrets", Query{}))
	assert.Error(t, CheckQuery(Students, Query{Columns: []string{"password"}}))
	assert.Error(t, CheckQuery(Students, Query{Filters: []Filter{{Column: "id", Op: "like"}}}))
	assert.Error(t, CheckQuery(Students, Query{Order: &Order{Column: "1; drop table"}}))
}

func TestDecode(t *testing.T) {
	rows := []Row{{"id": "s1", "name": "Jane", "class_id": "c1", "student_id": "S001"}}
	var out []school.Student
	require.NoError(t, Decode(rows, &out))
	assert.Equal(t, []school.Student{{ID: "s1", Name: "Jane", ClassID: "c1", StudentCode: "S001"}}, out)

	var empty []school.Student
	require.NoError(t, Decode(nil, &empty))
	assert.Empty(t, empty)
}
