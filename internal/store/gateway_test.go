package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusphere/internal/gateway"
	"edusphere/internal/school"
)

func TestBuildSelect(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildSelect(gateway.Attendance, gateway.Query{
		Columns: []string{"student_id", "status", "created_at"},
		Filters: []gateway.Filter{
			gateway.Eq("class_id", "c1"),
			gateway.Gte("created_at", start),
			gateway.In("student_id", []string{"s1", "s2"}),
		},
		Order: &gateway.Order{Column: "created_at", Desc: true},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "student_id", "status", "created_at" FROM "attendance" WHERE "class_id" = $1 AND "created_at" >= $2 AND "student_id" = ANY($3) ORDER BY "created_at" DESC LIMIT $4`,
		query)
	assert.Equal(t, []interface{}{"c1", start, []string{"s1", "s2"}, 10}, args)
}

func TestBuildSelectRejectsUnknownIdentifiers(t *testing.T) {
	_, _, err := buildSelect("pg_user", gateway.Query{})
	assert.Error(t, err)
	_, _, err = buildSelect(gateway.Students, gateway.Query{Order: &gateway.Order{Column: "name; DROP TABLE students"}})
	assert.Error(t, err)
}

func TestBuildWhereNull(t *testing.T) {
	where, args := buildWhere([]gateway.Filter{gateway.Eq("score", nil), gateway.Lte("created_at", "2026-10-17")}, nil)
	assert.Equal(t, ` WHERE "score" IS NULL AND "created_at" <= $1`, where)
	assert.Equal(t, []interface{}{"2026-10-17"}, args)
}

func TestBuildInsert(t *testing.T) {
	query, args, err := buildInsert(gateway.Assignments, gateway.Row{
		"id":         "",
		"title":      "Essay",
		"due_date":   school.Date("2026-10-20"),
		"status":     school.Pending,
		"class_id":   "c1",
		"teacher_id": "t1",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "assignments" ("class_id", "due_date", "status", "teacher_id", "title") VALUES ($1, $2, $3, $4, $5) RETURNING *`,
		query)
	assert.Equal(t, []interface{}{"c1", "2026-10-20", "Pending", "t1", "Essay"}, args)

	_, _, err = buildInsert(gateway.Assignments, gateway.Row{"secret": 1})
	assert.Error(t, err)
}

func TestBuildUpdate(t *testing.T) {
	query, args, err := buildUpdate(gateway.Assignments, gateway.Row{"status": "Completed"}, []gateway.Filter{gateway.Eq("id", "a1")})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "assignments" SET "status" = $1 WHERE "id" = $2`, query)
	assert.Equal(t, []interface{}{"Completed", "a1"}, args)

	_, _, err = buildUpdate(gateway.Assignments, gateway.Row{"status": "Completed"}, nil)
	assert.Error(t, err)
}

func TestBuildUpsert(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	query, args, err := buildUpsert(gateway.Grades, gateway.Row{
		"class_id":   "c1",
		"student_id": "s1",
		"score":      88.0,
		"created_at": at,
	}, []string{"class_id", "student_id"})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "grades" ("class_id", "created_at", "score", "student_id") VALUES ($1, $2, $3, $4) ON CONFLICT ("class_id", "student_id") DO UPDATE SET "created_at" = EXCLUDED."created_at", "score" = EXCLUDED."score"`,
		query)
	assert.Equal(t, []interface{}{"c1", at, 88.0, "s1"}, args)

	query, _, err = buildUpsert(gateway.ParentStudents, gateway.Row{"parent_user_id": "p", "student_id": "s"}, []string{"parent_user_id", "student_id"})
	require.NoError(t, err)
	assert.Contains(t, query, "DO NOTHING")

	_, _, err = buildUpsert(gateway.Grades, gateway.Row{"score": 1.0}, nil)
	assert.Error(t, err)
}

func TestBuildRPC(t *testing.T) {
	query, args, err := buildRPC(gateway.LinkParentToStudent, map[string]interface{}{
		"p_student_id":     "S1234526",
		"p_parent_user_id": "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_json("link_parent_to_student"(p_parent_user_id => $1, p_student_id => $2))`, query)
	assert.Equal(t, []interface{}{"p1", "S1234526"}, args)

	_, _, err = buildRPC("pg_sleep", nil)
	assert.Error(t, err)
}
