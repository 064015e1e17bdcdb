// Package client wraps the off-the-shelf HTTP client (go-resty/resty) with
// a get(path)/post(path, form) capability, and reports every outcome, as a
// stats.Record, to a Reporter without blocking on it.
package client

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/google/uuid"
	resty "github.com/go-resty/resty/v2"

	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/task"
)

// Reporter receives completed request records. internal/stats.Aggregator
// implements it; tests may supply a fake.
type Reporter interface {
	Report(stats.Record)
}

// Client issues HTTP requests against a base host and reports every
// outcome to a Reporter. One Client is shared read-only across a run;
// resty.Client itself is safe for concurrent use.
type Client struct {
	http     *resty.Client
	host     string
	reporter Reporter
}

// New creates a Client whose relative paths resolve against host, with
// the given per-request timeout. reporter receives every completed
// request's stats.Record.
func New(host string, timeout time.Duration, reporter Reporter) *Client {
	h := resty.New().
		SetTimeout(timeout).
		SetHeader(headers.UserAgent, "goose-load-test")
	return &Client{http: h, host: host, reporter: reporter}
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.host, "/") + "/" + strings.TrimLeft(path, "/")
}

// Get issues a GET request against path, recorded under name.
func (c *Client) Get(path, name string) (*task.Response, error) {
	return c.do("GET", path, name, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(c.resolve(path))
	})
}

// Post issues a form-encoded POST request against path, recorded under
// name.
func (c *Client) Post(path, name string, form url.Values) (*task.Response, error) {
	return c.do("POST", path, name, func(req *resty.Request) (*resty.Response, error) {
		return req.SetFormDataFromValues(form).Post(c.resolve(path))
	})
}

func (c *Client) do(method, path, name string, issue func(*resty.Request) (*resty.Response, error)) (*task.Response, error) {
	id := uuid.New()
	start := time.Now()
	resp, err := issue(c.http.R())
	elapsed := time.Since(start)

	rec := stats.Record{
		ID:          id,
		Method:      method,
		RequestName: effectiveName(name, path),
		URL:         c.resolve(path),
		Elapsed:     elapsed,
		Start:       start,
	}

	if err != nil {
		rec.Success = false
		rec.Error = err.Error()
		c.reporter.Report(rec)
		return nil, err
	}

	rec.Status = resp.StatusCode()
	rec.Success = !resp.IsError()
	c.reporter.Report(rec)

	return &task.Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Header:     map[string][]string(resp.Header()),
	}, nil
}

func effectiveName(name, path string) string {
	if name != "" {
		return name
	}
	return path
}
