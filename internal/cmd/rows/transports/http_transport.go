package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	"github.com/rzbill/rowlease/internal/item"
)

// HTTPTransport implements RowsTransport against the rowlease HTTP API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport targets base, e.g. http://127.0.0.1:8080. A nil client
// uses one with a 30s timeout.
func NewHTTPTransport(base string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{base: strings.TrimRight(base, "/"), client: client}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e rowleasev1.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (t *HTTPTransport) itemCall(ctx context.Context, method, path string, in any) (*item.WorkItem, error) {
	var out rowleasev1.ItemResponse
	if err := t.do(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return out.Item, nil
}

func rowPath(row int, action string) string {
	p := "/v1/rows/" + strconv.Itoa(row)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (t *HTTPTransport) Claim(ctx context.Context, req rowleasev1.ClaimRequest) (*item.WorkItem, error) {
	if _, err := parseLeaseAge(req.MaxLeaseAge); err != nil {
		return nil, err
	}
	return t.itemCall(ctx, http.MethodPost, "/v1/claim", req)
}

func (t *HTTPTransport) Row(ctx context.Context, row int) (*item.WorkItem, error) {
	return t.itemCall(ctx, http.MethodGet, rowPath(row, ""), nil)
}

func (t *HTTPTransport) Find(ctx context.Context, field, value string) (*item.WorkItem, error) {
	q := url.Values{"field": {field}, "value": {value}}
	return t.itemCall(ctx, http.MethodGet, "/v1/rows?"+q.Encode(), nil)
}

func (t *HTTPTransport) Update(ctx context.Context, row int, fields map[string]string) (*item.WorkItem, error) {
	return t.itemCall(ctx, http.MethodPost, rowPath(row, ""), rowleasev1.UpdateRequest{Fields: fields})
}

func (t *HTTPTransport) Release(ctx context.Context, row int, status string) (*item.WorkItem, error) {
	return t.itemCall(ctx, http.MethodPost, rowPath(row, "release"), rowleasev1.StatusRequest{Status: status})
}

func (t *HTTPTransport) Complete(ctx context.Context, row int, status string, fields map[string]string) (*item.WorkItem, error) {
	return t.itemCall(ctx, http.MethodPost, rowPath(row, "complete"), rowleasev1.StatusRequest{Status: status, Fields: fields})
}

func (t *HTTPTransport) Fail(ctx context.Context, row int, status, msg string) (*item.WorkItem, error) {
	return t.itemCall(ctx, http.MethodPost, rowPath(row, "fail"), rowleasev1.FailRequest{Status: status, Error: msg})
}

func (t *HTTPTransport) Append(ctx context.Context, fields map[string]string) (int, error) {
	var out rowleasev1.AppendResponse
	if err := t.do(ctx, http.MethodPost, "/v1/rows", rowleasev1.AppendRequest{Fields: fields}, &out); err != nil {
		return 0, err
	}
	return out.Row, nil
}

func (t *HTTPTransport) InitHeader(ctx context.Context, headers []string) error {
	return t.do(ctx, http.MethodPut, "/v1/header", rowleasev1.HeaderRequest{Headers: headers}, nil)
}

func (t *HTTPTransport) Schema(ctx context.Context) (map[string]int, error) {
	var out rowleasev1.SchemaResponse
	if err := t.do(ctx, http.MethodGet, "/v1/schema", nil, &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

func (t *HTTPTransport) DeadLetter(ctx context.Context, req rowleasev1.DeadLetterRequest) (rowleasev1.DeadLetterResponse, error) {
	var out rowleasev1.DeadLetterResponse
	err := t.do(ctx, http.MethodPost, "/v1/deadletter", req, &out)
	return out, err
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
