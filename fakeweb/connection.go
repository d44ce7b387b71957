package fakeweb

import (
	"context"
	"io"
)

// Connection is a single intercepted request. Open performs the exchange (or
// replays a stub); the response body is then consumed through Read.
type Connection interface {
	io.ReadCloser
	// Open sends the request and fails if the response status is outside
	// the range the connection accepts as success.
	Open(ctx context.Context) error
	// EOF reports whether the whole response body has been read.
	EOF() bool
	// StatusCode is StatusUnknown until Open has parsed a status line.
	StatusCode() int
	// ResponseHeaders returns the raw response header lines, status line
	// first, as seen after Open.
	ResponseHeaders() []string
}

// cursor serves a response body. The position only grows: it advances by the
// full requested length on every read, even past the end of the body.
type cursor struct {
	body []byte
	pos  int
}

func (c *cursor) Read(p []byte) (int, error) {
	if c.pos >= len(c.body) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, c.body[c.pos:])
	c.pos += len(p)
	return n, nil
}

func (c *cursor) EOF() bool {
	return c.pos >= len(c.body)
}

func (c *cursor) reset(body []byte) {
	c.body = body
	c.pos = 0
}

func truncate(body []byte, max int) []byte {
	if max > 0 && len(body) > max {
		return body[:max]
	}
	return body
}

func isRedirect(code int) bool {
	return code == 301 || code == 302
}
