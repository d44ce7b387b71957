package fakeweb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"goa.design/clue/log"
)

// StubbedConnection replays a registered response without network I/O.
type StubbedConnection struct {
	url  string
	opts RequestOptions
	reg  Registration
	now  func() time.Time

	headers ResponseHeaders
	cursor
}

// NewStubbedConnection returns a connection replaying reg for rawURL.
func NewStubbedConnection(rawURL string, opts RequestOptions, reg Registration) *StubbedConnection {
	reg.Response = reg.Response.withDefaults()
	return &StubbedConnection{
		url:     rawURL,
		opts:    opts,
		reg:     reg,
		now:     time.Now,
		headers: ResponseHeaders{StatusCode: StatusUnknown},
	}
}

// Open verifies the request against the registration hook and synthesizes
// the response headers. It fails with a *StatusError when the registered
// status is outside [200, 299]; headers and body stay readable in that case.
func (c *StubbedConnection) Open(ctx context.Context) error {
	t, err := parseTarget(c.url)
	if err != nil {
		return err
	}
	d, err := buildDescriptor(t, c.opts)
	if err != nil {
		return err
	}
	log.Debug(ctx, log.KV{K: "msg", V: "faking access"}, log.KV{K: "fakeweb.url", V: c.url})

	if err := c.reg.verify(d); err != nil {
		return err
	}

	resp := c.reg.Response
	lines := []string{
		fmt.Sprintf("HTTP/1.1 %d", resp.StatusCode),
		"Date: " + c.now().UTC().Format(http.TimeFormat),
		"Server: fakeweb/1.0",
		"Connection: close",
		"Content-Type: text/html",
	}
	lines = append(lines, resp.Headers...)
	h, err := ParseResponseHeaderLines(lines)
	if err != nil {
		return err
	}
	c.headers = h
	c.reset(truncate(resp.Body, c.opts.MaxResponseSize))

	if !successful(resp.StatusCode, 299) {
		return &StatusError{Code: resp.StatusCode, URL: c.url}
	}
	return nil
}

func (c *StubbedConnection) StatusCode() int { return c.headers.StatusCode }

func (c *StubbedConnection) ResponseHeaders() []string { return c.headers.Lines }

func (c *StubbedConnection) Close() error { return nil }

// location returns the redirect target announced by the stub, if any.
func (c *StubbedConnection) location() string { return c.headers.Get("location") }
