package fakeweb

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

type (
	// RequestOptions describes how a caller issues a request: the parts of an
	// HTTP request that are not in the URL.
	RequestOptions struct {
		// Method defaults to GET.
		Method string
		// Header is a raw header block, one "Name: value" line per CRLF.
		Header string
		// Headers are appended after Header, one "Name: value" line each.
		Headers []string
		// Body is sent unchanged as the request body.
		Body string
		// MaxResponseSize truncates the response body when positive.
		MaxResponseSize int
	}

	// RequestDescriptor is the normalized shape of an outgoing request. It is
	// built the same way for stubbed and real connections so verify hooks see
	// an identical value regardless of the interception outcome.
	RequestDescriptor struct {
		Method string
		// URI is the request target: path plus raw query, if any.
		URI string
		// Header is the raw header block starting with the request line, each
		// line CRLF terminated.
		Header string
		// Query holds the decoded query string; the last value wins on
		// duplicate keys.
		Query map[string]string
		// PostBody is the request body as supplied by the caller.
		PostBody string

		values map[string]string
	}

	// target is a parsed request URL.
	target struct {
		url      *url.URL
		scheme   string
		hostname string
		port     string
		path     string
	}
)

// HeaderValue returns the trimmed value of the named request header. Names are
// matched case-insensitively.
func (d RequestDescriptor) HeaderValue(name string) string {
	return d.values[strings.ToLower(name)]
}

// BuildDescriptor parses rawURL and assembles the request line and header
// block the connection would send.
func BuildDescriptor(rawURL string, opts RequestOptions) (RequestDescriptor, error) {
	t, err := parseTarget(rawURL)
	if err != nil {
		return RequestDescriptor{}, err
	}
	return buildDescriptor(t, opts)
}

func buildDescriptor(t *target, opts RequestOptions) (RequestDescriptor, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	uri := t.path
	if t.url.RawQuery != "" {
		uri += "?" + t.url.RawQuery
	}

	lines := []string{fmt.Sprintf("%s %s HTTP/1.1", method, uri), "Host: " + t.url.Host}
	keys := []string{"", "host"}
	values := map[string]string{"host": t.url.Host}

	callerLines, err := headerLines(opts)
	if err != nil {
		return RequestDescriptor{}, err
	}
	for _, line := range callerLines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || !httpguts.ValidHeaderFieldName(name) {
			return RequestDescriptor{}, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		key := strings.ToLower(name)
		values[key] = strings.TrimSpace(value)
		replaced := false
		for i, k := range keys {
			if k == key {
				lines[i] = line
				replaced = true
				break
			}
		}
		if !replaced {
			keys = append(keys, key)
			lines = append(lines, line)
		}
	}

	return RequestDescriptor{
		Method:   method,
		URI:      uri,
		Header:   strings.Join(lines, "\r\n") + "\r\n",
		Query:    parseQuery(t.url.RawQuery),
		PostBody: opts.Body,
		values:   values,
	}, nil
}

func headerLines(opts RequestOptions) ([]string, error) {
	var lines []string
	if block := strings.TrimSpace(opts.Header); block != "" {
		lines = append(lines, strings.Split(block, "\r\n")...)
	}
	for _, line := range opts.Headers {
		if strings.ContainsAny(line, "\r\n") {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseQuery(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	// Undecodable pairs are skipped; the rest is kept.
	values, _ := url.ParseQuery(raw)
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

func parseTarget(rawURL string) (*target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, rawURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	t := &target{
		url:      u,
		scheme:   u.Scheme,
		hostname: strings.ToLower(u.Hostname()),
		port:     u.Port(),
		path:     u.EscapedPath(),
	}
	if t.port == "" {
		t.port = defaultPort(u.Scheme)
	}
	if t.path == "" {
		t.path = "/"
	}
	return t, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// key returns the registry key for t: scheme, host, non-default port and
// path. Query and fragment never participate.
func (t *target) key() string {
	return t.origin() + t.path
}

func (t *target) origin() string {
	host := t.hostname
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if t.port != defaultPort(t.scheme) {
		host += ":" + t.port
	}
	return t.scheme + "://" + host
}

func (t *target) address() string {
	return net.JoinHostPort(t.hostname, t.port)
}

func (t *target) secure() bool {
	return t.scheme == "https" || t.port == "443"
}

// NormalizeURL returns the key under which rawURL is registered and looked up.
func NormalizeURL(rawURL string) (string, error) {
	t, err := parseTarget(rawURL)
	if err != nil {
		return "", err
	}
	return t.key(), nil
}
