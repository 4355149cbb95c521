// Package supabase implements gateway.Gateway over the hosted backend's
// PostgREST interface.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"edusphere/internal/gateway"
	"edusphere/internal/school"
)

// Client calls {BaseURL}/rest/v1 with the service key.
type Client struct {
	BaseURL    string
	ServiceKey string
	HTTP       *http.Client
}

var _ gateway.Gateway = (*Client)(nil)

// New creates a client with a bounded request timeout.
func New(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTP:       &http.Client{Timeout: 20 * time.Second},
	}
}

// Select issues GET /rest/v1/{collection}.
func (c *Client) Select(ctx context.Context, collection string, q gateway.Query) ([]gateway.Row, error) {
	if err := gateway.CheckQuery(collection, q); err != nil {
		return nil, gwErr("select", collection, err)
	}
	params := filterParams(q.Filters)
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	} else {
		params.Set("select", "*")
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Desc {
			dir = "desc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []gateway.Row
	if _, err := c.do(ctx, http.MethodGet, collection, params, nil, nil, &rows); err != nil {
		return nil, gwErr("select", collection, err)
	}
	return rows, nil
}

// Count asks for an exact count and reads it from Content-Range.
func (c *Client) Count(ctx context.Context, collection string, filters []gateway.Filter) (int, error) {
	if err := gateway.CheckQuery(collection, gateway.Query{Filters: filters}); err != nil {
		return 0, gwErr("count", collection, err)
	}
	params := filterParams(filters)
	params.Set("select", "id")
	headers := map[string]string{"Prefer": "count=exact", "Range-Unit": "items", "Range": "0-0"}
	resp, err := c.do(ctx, http.MethodGet, collection, params, headers, nil, nil)
	if err != nil {
		return 0, gwErr("count", collection, err)
	}
	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, gwErr("count", collection, err)
	}
	return n, nil
}

// Insert posts row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, collection string, row gateway.Row) (gateway.Row, error) {
	if err := checkRow(collection, row); err != nil {
		return nil, gwErr("insert", collection, err)
	}
	var rows []gateway.Row
	headers := map[string]string{"Prefer": "return=representation"}
	if _, err := c.do(ctx, http.MethodPost, collection, nil, headers, clean(row), &rows); err != nil {
		return nil, gwErr("insert", collection, err)
	}
	if len(rows) == 0 {
		return nil, gwErr("insert", collection, errors.New("no row returned"))
	}
	return rows[0], nil
}

// Update patches every matching row.
func (c *Client) Update(ctx context.Context, collection string, patch gateway.Row, filters []gateway.Filter) error {
	if len(filters) == 0 {
		return gwErr("update", collection, errors.New("refusing unfiltered update"))
	}
	if err := gateway.CheckFilters(collection, filters); err != nil {
		return gwErr("update", collection, err)
	}
	if err := checkRow(collection, patch); err != nil {
		return gwErr("update", collection, err)
	}
	if _, err := c.do(ctx, http.MethodPatch, collection, filterParams(filters), nil, clean(patch), nil); err != nil {
		return gwErr("update", collection, err)
	}
	return nil
}

// Upsert posts row with merge-duplicates resolution on conflictKeys.
func (c *Client) Upsert(ctx context.Context, collection string, row gateway.Row, conflictKeys []string) error {
	if len(conflictKeys) == 0 {
		return gwErr("upsert", collection, errors.New("conflict keys required"))
	}
	if err := checkRow(collection, row); err != nil {
		return gwErr("upsert", collection, err)
	}
	for _, k := range conflictKeys {
		if !gateway.ValidColumn(collection, k) {
			return gwErr("upsert", collection, fmt.Errorf("unknown conflict column %s.%s", collection, k))
		}
	}
	params := url.Values{}
	params.Set("on_conflict", strings.Join(conflictKeys, ","))
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	if _, err := c.do(ctx, http.MethodPost, collection, params, headers, clean(row), nil); err != nil {
		return gwErr("upsert", collection, err)
	}
	return nil
}

// Delete removes matching rows. An empty filter list is refused.
func (c *Client) Delete(ctx context.Context, collection string, filters []gateway.Filter) error {
	if len(filters) == 0 {
		return gwErr("delete", collection, errors.New("refusing unfiltered delete"))
	}
	if err := gateway.CheckQuery(collection, gateway.Query{Filters: filters}); err != nil {
		return gwErr("delete", collection, err)
	}
	if _, err := c.do(ctx, http.MethodDelete, collection, filterParams(filters), nil, nil, nil); err != nil {
		return gwErr("delete", collection, err)
	}
	return nil
}

// RPC posts args to /rest/v1/rpc/{fn}.
func (c *Client) RPC(ctx context.Context, fn string, args map[string]interface{}) (json.RawMessage, error) {
	if fn != gateway.LinkParentToStudent {
		return nil, gwErr("rpc", fn, errors.New("unknown function"))
	}
	var out json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, "rpc/"+fn, nil, nil, args, &out); err != nil {
		return nil, gwErr("rpc", fn, err)
	}
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	return out, nil
}

// Health reports whether the REST root answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, headers map[string]string, body, out interface{}) (*http.Response, error) {
	u := c.BaseURL + "/rest/v1/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp, fmt.Errorf("backend error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp, fmt.Errorf("read response: %w", err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return resp, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp, nil
}

func filterParams(filters []gateway.Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, filterValue(f))
	}
	return params
}

func filterValue(f gateway.Filter) string {
	switch f.Op {
	case gateway.OpEq:
		if f.Value == nil {
			return "is.null"
		}
		return "eq." + literal(f.Value)
	case gateway.OpIn:
		vals, _ := f.Value.([]string)
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = quote(v)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	case gateway.OpGte:
		return "gte." + literal(f.Value)
	case gateway.OpLte:
		return "lte." + literal(f.Value)
	}
	return string(f.Op) + "." + literal(f.Value)
}

func literal(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case school.Date:
		return string(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// quote wraps list members that contain reserved characters in double quotes.
func quote(s string) string {
	if strings.ContainsAny(s, `,()"\ `) {
		return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
	}
	return s
}

func parseContentRange(h string) (int, error) {
	i := strings.LastIndex(h, "/")
	if i < 0 || i == len(h)-1 {
		return 0, fmt.Errorf("missing count in content-range %q", h)
	}
	total := h[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not provided in content-range %q", h)
	}
	return strconv.Atoi(total)
}

func checkRow(collection string, row gateway.Row) error {
	if _, ok := gateway.Schema[collection]; !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	if len(row) == 0 {
		return errors.New("empty row")
	}
	for k := range row {
		if !gateway.ValidColumn(collection, k) {
			return fmt.Errorf("unknown column %s.%s", collection, k)
		}
	}
	return nil
}

// clean drops blank ids and timestamps so that column defaults apply.
func clean(row gateway.Row) gateway.Row {
	out := make(gateway.Row, len(row))
	for k, v := range row {
		if k == "id" || k == "created_at" {
			switch t := v.(type) {
			case nil:
				continue
			case string:
				if t == "" {
					continue
				}
			case time.Time:
				if t.IsZero() {
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func gwErr(op, collection string, err error) error {
	return &school.GatewayError{Op: op, Collection: collection, Err: err}
}
