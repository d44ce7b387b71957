package fakeweb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"goa.design/clue/log"
)

// Register maps url to a canned response, replacing any earlier registration
// for the same key. verify may be nil. Registering enables interception
// unless Enable or Disable was called explicitly.
func (i *Interceptor) Register(method, rawURL string, resp ResponseSpec, verify VerifyFunc) {
	reg := Registration{
		Method:   normalizeMethod(method),
		URL:      rawURL,
		Response: resp.withDefaults(),
		Verify:   verify,
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.autoEnable()
	i.entries[i.registryKey(reg.Method, rawURL)] = reg
}

// RegisterPattern registers a response for every URL of the pattern's origin
// whose path matches the Goa-style path pattern, e.g.
// "http://example.com/things/{id}". Pattern registrations always match on
// method and are consulted only when no exact registration matches.
func (i *Interceptor) RegisterPattern(method, pattern string, resp ResponseSpec, verify VerifyFunc) error {
	t, err := parseTarget(pattern)
	if err != nil {
		return err
	}
	path, err := url.PathUnescape(t.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if err := checkPattern(path); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidURL, pattern, err)
	}
	reg := Registration{
		Method:   normalizeMethod(method),
		URL:      pattern,
		Response: resp.withDefaults(),
		Verify:   verify,
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	rm := i.routes[t.origin()]
	if rm == nil {
		rm = newRouteMatcher()
	}
	if err := rm.add(reg.Method, path, reg); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidURL, pattern, err)
	}
	i.routes[t.origin()] = rm
	i.autoEnable()
	return nil
}

// Lookup returns the exact registration for url. The method only participates
// when the interceptor was created WithMethodMatching.
func (i *Interceptor) Lookup(method, rawURL string) (Registration, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	reg, ok := i.entries[i.registryKey(normalizeMethod(method), rawURL)]
	return reg, ok
}

// Reset removes every registration. Flags are left untouched.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reset()
}

func (i *Interceptor) reset() {
	i.entries = map[string]Registration{}
	i.routes = map[string]*routeMatcher{}
}

// Enable turns interception on.
func (i *Interceptor) Enable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.toggled = true
	i.enabled = true
}

// Disable turns interception off and removes every registration. While
// disabled every connection is real, and later registrations do not turn
// interception back on.
func (i *Interceptor) Disable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.toggled = true
	i.enabled = false
	i.reset()
}

func (i *Interceptor) autoEnable() {
	if !i.toggled {
		i.enabled = true
	}
}

// Enabled reports whether interception is on.
func (i *Interceptor) Enabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.enabled
}

// SetAllowNetConnect sets whether unregistered URLs may reach the network.
func (i *Interceptor) SetAllowNetConnect(allow bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.allowNetConnect = allow
}

// AllowNetConnect reports whether unregistered URLs may reach the network.
func (i *Interceptor) AllowNetConnect() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.allowNetConnect
}

// resolve finds the registration serving rawURL: an exact registration first,
// then pattern routes of the URL's origin.
func (i *Interceptor) resolve(ctx context.Context, method, rawURL string) (Registration, bool, error) {
	t, err := parseTarget(rawURL)
	if err != nil {
		return Registration{}, false, err
	}
	method = normalizeMethod(method)

	i.mu.RLock()
	defer i.mu.RUnlock()
	if reg, ok := i.entries[i.keyFor(method, t.key())]; ok {
		return reg, true, nil
	}
	reg, vars, ok := i.routes[t.origin()].match(ctx, method, t.url)
	if ok {
		log.Debug(ctx,
			log.KV{K: "msg", V: "pattern route matched"},
			log.KV{K: "fakeweb.route", V: reg.URL},
			log.KV{K: "fakeweb.route.vars", V: vars},
		)
	}
	return reg, ok, nil
}

// registryKey normalizes url into a registry key. URLs that cannot be parsed
// are used verbatim.
func (i *Interceptor) registryKey(method, rawURL string) string {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = rawURL
	}
	return i.keyFor(method, key)
}

func (i *Interceptor) keyFor(method, key string) string {
	if !i.matchMethod {
		return key
	}
	return method + " " + key
}

func normalizeMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}
