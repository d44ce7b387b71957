package fakeweb

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealConnection_GetFraming(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nhello")

	c := NewRealConnection("http://example.com/x?y=1", RequestOptions{}, d, nil)
	require.NoError(t, c.Open(context.Background()))

	assert.Equal(t, 200, c.StatusCode())
	assert.Equal(t, []string{"HTTP/1.1 200 OK", "Content-Type: text/plain", "Connection: close"}, c.ResponseHeaders())
	assert.Equal(t, "hello", readAll(t, c))
	assert.True(t, c.EOF())

	addr, req := d.request(t, 0)
	assert.Equal(t, "example.com:80", addr)
	assert.Equal(t, "GET /x?y=1 HTTP/1.1\r\nHost: example.com\r\n\r\n\r\n", req)
}

func TestRealConnection_PostFraming(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 200 OK\r\n\r\nok")

	c := NewRealConnection("http://example.com:8080/submit", RequestOptions{
		Method:  "POST",
		Headers: []string{"Content-Type: application/x-www-form-urlencoded", "Content-Length: 7"},
		Body:    "a=1&b=2",
	}, d, nil)
	require.NoError(t, c.Open(context.Background()))

	addr, req := d.request(t, 0)
	assert.Equal(t, "example.com:8080", addr)
	assert.Equal(t,
		"POST /submit HTTP/1.1\r\n"+
			"Host: example.com:8080\r\n"+
			"Content-Type: application/x-www-form-urlencoded\r\n"+
			"Content-Length: 7\r\n"+
			"\r\n"+
			"a=1&b=2"+
			"\r\n\r\n",
		req)
}

func TestRealConnection_FollowsRedirects(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 301 Moved Permanently\r\nLocation: http://b.example.com/two\r\n\r\n")
	d.respond("HTTP/1.1 302 Found\r\nLocation: /three?z=9\r\n\r\n")
	d.respond("HTTP/1.1 200 OK\r\n\r\nterminal")

	state := &RedirectState{Max: 2}
	c := NewRealConnection("http://a.example.com/one", RequestOptions{}, d, state)
	require.NoError(t, c.Open(context.Background()))

	assert.Equal(t, "terminal", readAll(t, c))
	assert.Equal(t, 2, state.Count)

	addr, req := d.request(t, 2)
	assert.Equal(t, "b.example.com:80", addr)
	assert.Equal(t, "GET /three?z=9 HTTP/1.1\r\nHost: b.example.com\r\n\r\n\r\n", req)
}

func TestRealConnection_TooManyRedirects(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 302 Found\r\nLocation: http://example.com/2\r\n\r\n")
	d.respond("HTTP/1.1 302 Found\r\nLocation: http://example.com/3\r\n\r\n")
	d.respond("HTTP/1.1 200 OK\r\n\r\nterminal")

	c := NewRealConnection("http://example.com/1", RequestOptions{}, d, &RedirectState{Max: 1})
	err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.Equal(t, 2, d.count(), "terminal request is never made")
}

func TestRealConnection_RedirectWithoutLocationIsFinal(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 302 Found\r\n\r\nmoved")

	c := NewRealConnection("http://example.com/1", RequestOptions{}, d, nil)
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 302, c.StatusCode())
	assert.Equal(t, "moved", readAll(t, c))
}

func TestRealConnection_StatusOutsideRange(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code int
	}{
		{"not found", "HTTP/1.1 404 Not Found\r\n\r\nmissing", 404},
		{"server error", "HTTP/1.0 500 Internal Server Error\r\n\r\n", 500},
		{"unknown status line", "SPDY/3 200 OK\r\n\r\n", StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newScriptedDialer()
			d.respond(tt.raw)

			c := NewRealConnection("http://example.com/", RequestOptions{}, d, nil)
			var serr *StatusError
			require.ErrorAs(t, c.Open(context.Background()), &serr)
			assert.Equal(t, tt.code, serr.Code)
		})
	}
}

func TestRealConnection_Accepts3xx(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 304 Not Modified\r\n\r\n")

	c := NewRealConnection("http://example.com/", RequestOptions{}, d, nil)
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 304, c.StatusCode())
	assert.True(t, c.EOF())
}

func TestRealConnection_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no header terminator", "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n", ErrMalformedResponse},
		{"empty", "", ErrMalformedResponse},
		{"bad header line", "HTTP/1.1 200 OK\r\nnot-a-header\r\n\r\nbody", ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newScriptedDialer()
			d.respond(tt.raw)

			c := NewRealConnection("http://example.com/", RequestOptions{}, d, nil)
			assert.ErrorIs(t, c.Open(context.Background()), tt.want)
		})
	}
}

func TestRealConnection_DialFailure(t *testing.T) {
	refused := errors.New("connection refused")
	d := newScriptedDialer()
	d.refuse(refused)

	c := NewRealConnection("http://example.com/", RequestOptions{}, d, nil)
	err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, refused)
}

func TestRealConnection_MaxResponseSize(t *testing.T) {
	d := newScriptedDialer()
	d.respond("HTTP/1.1 200 OK\r\n\r\n0123456789")

	c := NewRealConnection("http://example.com/", RequestOptions{MaxResponseSize: 4}, d, nil)
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "0123", readAll(t, c))
}

func TestRealConnection_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	clientTLS := srv.Client().Transport.(*http.Transport).TLSClientConfig

	ln, err := tls.Listen("tcp", "127.0.0.1:0", srv.TLS)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			received <- err.Error()
			return
		}
		received <- req.Method + " " + req.Host + req.URL.String()
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\nsecret"))
	}()

	var dialed string
	d := newScriptedDialer()
	d.m.Add("DialContext", dialFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
		dialed = address
		var nd net.Dialer
		return nd.DialContext(ctx, network, ln.Addr().String())
	}))

	c := NewRealConnection("https://example.com/private", RequestOptions{}, d, nil)
	c.tlsConfig = clientTLS
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "secret", readAll(t, c))
	assert.Equal(t, "example.com:443", dialed)
	assert.Equal(t, "GET example.com/private", <-received)
}

func TestRealConnection_SystemDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nover tcp"))
	}()

	c := NewRealConnection("http://"+ln.Addr().String()+"/", RequestOptions{}, nil, nil)
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "over tcp", readAll(t, c))
}

func TestRealConnection_ContextCancel(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	d := newScriptedDialer()
	d.m.Add("DialContext", dialFunc(func(context.Context, string, string) (net.Conn, error) {
		return client, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := NewRealConnection("http://example.com/", RequestOptions{}, d, nil)
	assert.ErrorIs(t, c.Open(ctx), context.DeadlineExceeded)
}
