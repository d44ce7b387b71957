package fakeweb

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strings"

	"goa.design/clue/log"
)

// Unbounded disables the redirect limit.
const Unbounded = -1

// RedirectState counts the redirects followed by one logical request,
// including every hop of its redirect chain.
type RedirectState struct {
	Count int
	// Max is the number of redirects allowed, or Unbounded.
	Max int
}

// follow consumes one redirect and resolves location against from.
func (s *RedirectState) follow(ctx context.Context, from, location string) (string, error) {
	if s.Max != Unbounded && s.Count >= s.Max {
		log.Warn(ctx,
			log.KV{K: "msg", V: "too many redirects"},
			log.KV{K: "fakeweb.url", V: from},
			log.KV{K: "fakeweb.max_redirects", V: s.Max},
		)
		return "", fmt.Errorf("%w for %s", ErrTooManyRedirects, from)
	}
	s.Count++
	base, err := url.Parse(from)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: redirect location %q: %w", ErrInvalidURL, location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// RealConnection performs the request over a raw socket. It writes the request
// framing itself, reads the response until the peer closes the stream, and
// follows 301/302 redirects.
//
// Responses are read to end of stream: only servers that close the connection
// after responding (Connection: close) are supported.
type RealConnection struct {
	url       string
	opts      RequestOptions
	dialer    Dialer
	tlsConfig *tls.Config
	redirects *RedirectState

	headers ResponseHeaders
	cursor
}

// NewRealConnection returns a connection to rawURL dialed through d. A nil
// state allows unbounded redirects.
func NewRealConnection(rawURL string, opts RequestOptions, d Dialer, state *RedirectState) *RealConnection {
	if d == nil {
		d = NewSystemDialer()
	}
	if state == nil {
		state = &RedirectState{Max: Unbounded}
	}
	return &RealConnection{
		url:       rawURL,
		opts:      opts,
		dialer:    d,
		redirects: state,
		headers:   ResponseHeaders{StatusCode: StatusUnknown},
	}
}

// Open performs the exchange, following redirects, and fails with a
// *StatusError when the final status is outside [200, 399].
func (c *RealConnection) Open(ctx context.Context) error {
	log.Debug(ctx, log.KV{K: "msg", V: "actually accessing"}, log.KV{K: "fakeweb.url", V: c.url})

	rawURL := c.url
	for {
		ex, err := c.exchange(ctx, rawURL)
		if err != nil {
			return err
		}
		location := ex.headers.Get("location")
		if isRedirect(ex.headers.StatusCode) && location != "" {
			if rawURL, err = c.redirects.follow(ctx, rawURL, location); err != nil {
				return err
			}
			continue
		}
		c.headers = ex.headers
		c.reset(truncate(ex.body, c.opts.MaxResponseSize))
		if !successful(ex.headers.StatusCode, 399) {
			return &StatusError{Code: ex.headers.StatusCode, URL: rawURL}
		}
		return nil
	}
}

func (c *RealConnection) StatusCode() int { return c.headers.StatusCode }

func (c *RealConnection) ResponseHeaders() []string { return c.headers.Lines }

func (c *RealConnection) Close() error { return nil }

type exchange struct {
	headers ResponseHeaders
	body    []byte
}

// exchange performs a single request/response round trip.
func (c *RealConnection) exchange(ctx context.Context, rawURL string) (*exchange, error) {
	t, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	d, err := buildDescriptor(t, c.opts)
	if err != nil {
		return nil, err
	}

	conn, err := dialTarget(ctx, c.dialer, c.tlsConfig, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, t.address(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var req strings.Builder
	req.WriteString(d.Header)
	if d.PostBody != "" {
		req.WriteString("\r\n")
		req.WriteString(d.PostBody)
	}
	req.WriteString("\r\n\r\n")
	if _, err := io.WriteString(conn, req.String()); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrConnect, t.address(), err)
	}

	raw, err := io.ReadAll(conn)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConnect, t.address(), err)
	}

	head, body, ok := strings.Cut(string(raw), "\r\n\r\n")
	if !ok {
		return nil, fmt.Errorf("%w: no header terminator in response from %s", ErrMalformedResponse, rawURL)
	}
	h, err := ParseResponseHeaders(head)
	if err != nil {
		return nil, err
	}
	return &exchange{headers: h, body: []byte(body)}, nil
}
