package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"edusphere/internal/school"
)

// Memory is an in-process Gateway for development and tests.
type Memory struct {
	mu    sync.Mutex
	data  map[string][]Row
	calls []string

	// Now stamps created_at on inserted rows that lack one.
	Now func() time.Time
	// Fault, when set, is consulted before every operation; a non-nil
	// return fails that operation. row is nil for select, count and delete.
	Fault func(op, collection string, row Row) error
}

var _ Gateway = (*Memory)(nil)

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]Row),
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

// Seed appends rows verbatim, filling id when missing.
func (m *Memory) Seed(collection string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r = copyRow(r)
		if isBlank(r["id"]) {
			r["id"] = uuid.NewString()
		}
		m.data[collection] = append(m.data[collection], r)
	}
}

// Calls returns the "op:collection" log of operations performed so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Memory) begin(op, collection string, row Row) error {
	m.calls = append(m.calls, op+":"+collection)
	if m.Fault != nil {
		if err := m.Fault(op, collection, row); err != nil {
			return &school.GatewayError{Op: op, Collection: collection, Err: err}
		}
	}
	if _, ok := Schema[collection]; !ok {
		return &school.GatewayError{Op: op, Collection: collection, Err: errors.New("unknown collection")}
	}
	return nil
}

// Select returns copies of the matching rows.
func (m *Memory) Select(ctx context.Context, collection string, q Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("select", collection, nil); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &school.GatewayError{Op: "select", Collection: collection, Err: err}
	}

	var out []Row
	for _, r := range m.data[collection] {
		if matches(r, q.Filters) {
			out = append(out, project(r, q.Columns))
		}
	}
	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Desc
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][col], out[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count returns the number of matching rows.
func (m *Memory) Count(ctx context.Context, collection string, filters []Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("count", collection, nil); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range m.data[collection] {
		if matches(r, filters) {
			n++
		}
	}
	return n, nil
}

// Insert stores row and returns the stored representation.
func (m *Memory) Insert(ctx context.Context, collection string, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("insert", collection, row); err != nil {
		return nil, err
	}
	stored := m.stamp(row)
	m.data[collection] = append(m.data[collection], stored)
	return copyRow(stored), nil
}

// Update applies patch to every matching row.
func (m *Memory) Update(ctx context.Context, collection string, patch Row, filters []Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("update", collection, patch); err != nil {
		return err
	}
	for _, r := range m.data[collection] {
		if matches(r, filters) {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
	return nil
}

// Upsert overwrites the row sharing all conflictKeys with row, or inserts it.
func (m *Memory) Upsert(ctx context.Context, collection string, row Row, conflictKeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("upsert", collection, row); err != nil {
		return err
	}
	filters := make([]Filter, 0, len(conflictKeys))
	for _, k := range conflictKeys {
		filters = append(filters, Eq(k, row[k]))
	}
	for _, r := range m.data[collection] {
		if len(filters) > 0 && matches(r, filters) {
			for k, v := range row {
				if k == "id" && isBlank(v) {
					continue
				}
				r[k] = v
			}
			return nil
		}
	}
	m.data[collection] = append(m.data[collection], m.stamp(row))
	return nil
}

// Delete removes every matching row.
func (m *Memory) Delete(ctx context.Context, collection string, filters []Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete", collection, nil); err != nil {
		return err
	}
	kept := m.data[collection][:0]
	for _, r := range m.data[collection] {
		if !matches(r, filters) {
			kept = append(kept, r)
		}
	}
	m.data[collection] = kept
	return nil
}

// RPC runs the procedures the hosted backend exposes.
func (m *Memory) RPC(ctx context.Context, fn string, args map[string]interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "rpc:"+fn)
	if m.Fault != nil {
		if err := m.Fault("rpc", fn, Row(args)); err != nil {
			return nil, &school.GatewayError{Op: "rpc", Collection: fn, Err: err}
		}
	}

	switch fn {
	case LinkParentToStudent:
		parentID, _ := args["p_parent_user_id"].(string)
		code, _ := args["p_student_id"].(string)
		var student Row
		for _, r := range m.data[Students] {
			if fmt.Sprint(r["student_id"]) == code {
				student = r
				break
			}
		}
		if student == nil {
			return nil, &school.GatewayError{Op: "rpc", Collection: fn, Err: fmt.Errorf("student %s not found", code)}
		}
		m.data[ParentStudents] = append(m.data[ParentStudents], m.stamp(Row{
			"parent_user_id": parentID,
			"student_id":     student["id"],
		}))
		return json.RawMessage("true"), nil
	}
	return nil, &school.GatewayError{Op: "rpc", Collection: fn, Err: errors.New("unknown function")}
}

func (m *Memory) stamp(row Row) Row {
	r := copyRow(row)
	if isBlank(r["id"]) {
		r["id"] = uuid.NewString()
	}
	if isBlank(r["created_at"]) {
		r["created_at"] = m.Now()
	}
	return r
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func project(r Row, cols []string) Row {
	if len(cols) == 0 {
		return copyRow(r)
	}
	out := make(Row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if t, ok := v.(time.Time); ok {
		return t.IsZero()
	}
	return false
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		v, present := r[f.Column]
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				if present && v != nil {
					return false
				}
				continue
			}
			if v == nil || compareValues(v, f.Value) != 0 {
				return false
			}
		case OpIn:
			vals, _ := f.Value.([]string)
			found := false
			for _, want := range vals {
				if v != nil && compareValues(v, want) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpGte:
			if v == nil || compareValues(v, f.Value) < 0 {
				return false
			}
		case OpLte:
			if v == nil || compareValues(v, f.Value) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders timestamps chronologically, numbers numerically and
// everything else by its string form. nil sorts after every value.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if p, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return p, true
		}
		if p, err := time.Parse(school.DateLayout, t); err == nil {
			return p, true
		}
	case school.Date:
		if p, err := t.Time(); err == nil {
			return p, true
		}
	}
	return time.Time{}, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
