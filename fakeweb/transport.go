package fakeweb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Transport is an http.RoundTripper that sends every request through an
// Interceptor, so code built on net/http is intercepted transparently.
//
// Requests are sent with "Connection: close" unless the caller set a
// Connection header, since real connections read responses to end of stream.
// Responses whose status fails the connection's success range are still
// returned; only transport failures are reported as errors.
type Transport struct {
	interceptor *Interceptor
}

// Transport returns a RoundTripper backed by i.
func (i *Interceptor) Transport() *Transport {
	return &Transport{interceptor: i}
}

// Client returns an *http.Client backed by i. Redirects are followed by the
// interceptor, not by the client.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{
		Transport: i.Transport(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t == nil || t.interceptor == nil || req == nil || req.URL == nil {
		return nil, errors.New("fakeweb: invalid transport")
	}
	ctx := req.Context()
	if req.Header.Get(BypassHeader) != "" {
		ctx = WithBypass(ctx)
	}

	opts, err := requestOptions(req)
	if err != nil {
		return nil, err
	}

	conn, err := t.interceptor.open(ctx, req.URL.String(), opts)
	var serr *StatusError
	if err != nil && (conn == nil || !errors.As(err, &serr)) {
		return nil, err
	}
	defer conn.Close()

	h, err := ParseResponseHeaderLines(conn.ResponseHeaders())
	if err != nil {
		return nil, err
	}
	if h.StatusCode == StatusUnknown {
		return nil, fmt.Errorf("%w: unknown status line from %s", ErrMalformedResponse, req.URL)
	}
	header := make(http.Header, len(h.Lines))
	for _, line := range h.Lines[1:] {
		name, value, _ := strings.Cut(line, ": ")
		header.Add(name, strings.TrimSpace(value))
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Del("Transfer-Encoding")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", h.StatusCode, http.StatusText(h.StatusCode)),
		StatusCode:    h.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         true,
		Request:       req,
	}, nil
}

// requestOptions maps req onto RequestOptions. Header lines are emitted in
// sorted name order so the request framing is deterministic. Repeated values
// share one line; Cookie values are joined with "; ".
func requestOptions(req *http.Request) (RequestOptions, error) {
	opts := RequestOptions{Method: req.Method}

	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return RequestOptions{}, fmt.Errorf("read request body: %w", err)
		}
		opts.Body = string(b)
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		switch http.CanonicalHeaderKey(name) {
		case "Host", "Content-Length", BypassHeader:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sep := ", "
		if http.CanonicalHeaderKey(name) == "Cookie" {
			sep = "; "
		}
		opts.Headers = append(opts.Headers, name+": "+strings.Join(req.Header[name], sep))
	}
	if opts.Body != "" {
		opts.Headers = append(opts.Headers, "Content-Length: "+strconv.Itoa(len(opts.Body)))
	}
	if req.Header.Get("Connection") == "" {
		opts.Headers = append(opts.Headers, "Connection: close")
	}
	return opts, nil
}
