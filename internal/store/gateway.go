package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"edusphere/internal/gateway"
	"edusphere/internal/school"
)

// procedures maps callable RPC names to their ordered argument names.
var procedures = map[string][]string{
	gateway.LinkParentToStudent: {"p_parent_user_id", "p_student_id"},
}

// PostgresGateway implements gateway.Gateway directly against Postgres.
type PostgresGateway struct {
	db *sql.DB
}

var _ gateway.Gateway = (*PostgresGateway)(nil)

// NewPostgresGateway creates a gateway over an open pool.
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// Select runs a filtered, ordered select.
func (g *PostgresGateway) Select(ctx context.Context, collection string, q gateway.Query) ([]gateway.Row, error) {
	query, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, gwErr("select", collection, err)
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gwErr("select", collection, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, gwErr("select", collection, err)
	}
	return out, nil
}

// Count returns the number of matching rows.
func (g *PostgresGateway) Count(ctx context.Context, collection string, filters []gateway.Filter) (int, error) {
	if err := gateway.CheckFilters(collection, filters); err != nil {
		return 0, gwErr("count", collection, err)
	}
	if _, ok := gateway.Schema[collection]; !ok {
		return 0, gwErr("count", collection, errors.New("unknown collection"))
	}
	where, args := buildWhere(filters, nil)
	var n int
	if err := g.db.QueryRowContext(ctx, "SELECT count(*) FROM "+ident(collection)+where, args...).Scan(&n); err != nil {
		return 0, gwErr("count", collection, err)
	}
	return n, nil
}

// Insert writes row and returns the stored representation.
func (g *PostgresGateway) Insert(ctx context.Context, collection string, row gateway.Row) (gateway.Row, error) {
	query, args, err := buildInsert(collection, row)
	if err != nil {
		return nil, gwErr("insert", collection, err)
	}
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gwErr("insert", collection, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, gwErr("insert", collection, err)
	}
	if len(out) == 0 {
		return nil, gwErr("insert", collection, errors.New("no row returned"))
	}
	return out[0], nil
}

// Update applies patch to every matching row.
func (g *PostgresGateway) Update(ctx context.Context, collection string, patch gateway.Row, filters []gateway.Filter) error {
	query, args, err := buildUpdate(collection, patch, filters)
	if err != nil {
		return gwErr("update", collection, err)
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return gwErr("update", collection, err)
	}
	return nil
}

// Upsert inserts row or overwrites the row sharing conflictKeys.
func (g *PostgresGateway) Upsert(ctx context.Context, collection string, row gateway.Row, conflictKeys []string) error {
	query, args, err := buildUpsert(collection, row, conflictKeys)
	if err != nil {
		return gwErr("upsert", collection, err)
	}
	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return gwErr("upsert", collection, err)
	}
	return nil
}

// Delete removes matching rows. An empty filter list is refused.
func (g *PostgresGateway) Delete(ctx context.Context, collection string, filters []gateway.Filter) error {
	if len(filters) == 0 {
		return gwErr("delete", collection, errors.New("refusing unfiltered delete"))
	}
	if _, ok := gateway.Schema[collection]; !ok {
		return gwErr("delete", collection, errors.New("unknown collection"))
	}
	if err := gateway.CheckFilters(collection, filters); err != nil {
		return gwErr("delete", collection, err)
	}
	where, args := buildWhere(filters, nil)
	if _, err := g.db.ExecContext(ctx, "DELETE FROM "+ident(collection)+where, args...); err != nil {
		return gwErr("delete", collection, err)
	}
	return nil
}

// RPC calls a whitelisted SQL function with named arguments.
func (g *PostgresGateway) RPC(ctx context.Context, fn string, args map[string]interface{}) (json.RawMessage, error) {
	query, params, err := buildRPC(fn, args)
	if err != nil {
		return nil, gwErr("rpc", fn, err)
	}
	var out []byte
	if err := g.db.QueryRowContext(ctx, query, params...).Scan(&out); err != nil {
		return nil, gwErr("rpc", fn, err)
	}
	if len(out) == 0 {
		out = []byte("null")
	}
	return json.RawMessage(out), nil
}

func gwErr(op, collection string, err error) error {
	return &school.GatewayError{Op: op, Collection: collection, Err: err}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildSelect(collection string, q gateway.Query) (string, []interface{}, error) {
	if err := gateway.CheckQuery(collection, q); err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			quoted = append(quoted, ident(c))
		}
		cols = strings.Join(quoted, ", ")
	}
	where, args := buildWhere(q.Filters, nil)
	query := "SELECT " + cols + " FROM " + ident(collection) + where
	if q.Order != nil {
		query += " ORDER BY " + ident(q.Order.Column)
		if q.Order.Desc {
			query += " DESC"
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + itoa(len(args))
	}
	return query, args, nil
}

func buildWhere(filters []gateway.Filter, args []interface{}) (string, []interface{}) {
	if len(filters) == 0 {
		return "", args
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		col := ident(f.Column)
		if f.Op == gateway.OpEq && f.Value == nil {
			clauses = append(clauses, col+" IS NULL")
			continue
		}
		args = append(args, sqlValue(f.Value))
		p := "$" + itoa(len(args))
		switch f.Op {
		case gateway.OpIn:
			clauses = append(clauses, col+" = ANY("+p+")")
		case gateway.OpGte:
			clauses = append(clauses, col+" >= "+p)
		case gateway.OpLte:
			clauses = append(clauses, col+" <= "+p)
		default:
			clauses = append(clauses, col+" = "+p)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// writable returns the columns of row in a stable order, dropping blank ids
// and timestamps so that column defaults apply.
func writable(collection string, row gateway.Row) ([]string, error) {
	if _, ok := gateway.Schema[collection]; !ok {
		return nil, errors.New("unknown collection")
	}
	cols := make([]string, 0, len(row))
	for k, v := range row {
		if !gateway.ValidColumn(collection, k) {
			return nil, fmt.Errorf("unknown column %s.%s", collection, k)
		}
		if (k == "id" || k == "created_at") && blank(v) {
			continue
		}
		cols = append(cols, k)
	}
	if len(cols) == 0 {
		return nil, errors.New("empty row")
	}
	sort.Strings(cols)
	return cols, nil
}

func buildInsert(collection string, row gateway.Row) (string, []interface{}, error) {
	cols, err := writable(collection, row)
	if err != nil {
		return "", nil, err
	}
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
		params[i] = "$" + itoa(i+1)
		args[i] = sqlValue(row[c])
	}
	query := "INSERT INTO " + ident(collection) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.Join(params, ", ") + ") RETURNING *"
	return query, args, nil
}

func buildUpdate(collection string, patch gateway.Row, filters []gateway.Filter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, errors.New("refusing unfiltered update")
	}
	if err := gateway.CheckFilters(collection, filters); err != nil {
		return "", nil, err
	}
	cols, err := writable(collection, patch)
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+len(filters))
	for i, c := range cols {
		args = append(args, sqlValue(patch[c]))
		sets[i] = ident(c) + " = $" + itoa(len(args))
	}
	where, args := buildWhere(filters, args)
	return "UPDATE " + ident(collection) + " SET " + strings.Join(sets, ", ") + where, args, nil
}

func buildUpsert(collection string, row gateway.Row, conflictKeys []string) (string, []interface{}, error) {
	if len(conflictKeys) == 0 {
		return "", nil, errors.New("conflict keys required")
	}
	query, args, err := buildInsert(collection, row)
	if err != nil {
		return "", nil, err
	}
	query = strings.TrimSuffix(query, " RETURNING *")

	keySet := make(map[string]bool, len(conflictKeys))
	quotedKeys := make([]string, len(conflictKeys))
	for i, k := range conflictKeys {
		if !gateway.ValidColumn(collection, k) {
			return "", nil, fmt.Errorf("unknown conflict column %s.%s", collection, k)
		}
		keySet[k] = true
		quotedKeys[i] = ident(k)
	}
	cols, _ := writable(collection, row)
	var sets []string
	for _, c := range cols {
		if keySet[c] || c == "id" {
			continue
		}
		sets = append(sets, ident(c)+" = EXCLUDED."+ident(c))
	}
	query += " ON CONFLICT (" + strings.Join(quotedKeys, ", ") + ")"
	if len(sets) == 0 {
		return query + " DO NOTHING", args, nil
	}
	return query + " DO UPDATE SET " + strings.Join(sets, ", "), args, nil
}

func buildRPC(fn string, args map[string]interface{}) (string, []interface{}, error) {
	names, ok := procedures[fn]
	if !ok {
		return "", nil, errors.New("unknown function")
	}
	parts := make([]string, len(names))
	params := make([]interface{}, len(names))
	for i, n := range names {
		parts[i] = n + " => $" + itoa(i+1)
		params[i] = sqlValue(args[n])
	}
	return "SELECT to_json(" + ident(fn) + "(" + strings.Join(parts, ", ") + "))", params, nil
}

func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case school.Date:
		return string(t)
	case school.AttendanceStatus:
		return string(t)
	case school.AssignmentStatus:
		return string(t)
	case school.Role:
		return string(t)
	}
	return v
}

func blank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	}
	return false
}

func scanRows(rows *sql.Rows) ([]gateway.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []gateway.Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(gateway.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }
