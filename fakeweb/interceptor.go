package fakeweb

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

type (
	// Interceptor owns the stub registry and decides, per request, whether a
	// connection replays a stub or reaches the real network.
	Interceptor struct {
		mu              sync.RWMutex
		entries         map[string]Registration
		routes          map[string]*routeMatcher
		enabled         bool
		allowNetConnect bool
		// toggled is set once Enable or Disable has been called. From then
		// on registering no longer enables interception.
		toggled bool

		matchMethod  bool
		maxRedirects int
		dialer       Dialer
		tlsConfig    *tls.Config
		now          func() time.Time
	}

	// Option configures an Interceptor.
	Option func(*Interceptor)
)

// WithAllowNetConnect sets whether unregistered URLs may reach the network.
func WithAllowNetConnect(allow bool) Option {
	return func(i *Interceptor) { i.allowNetConnect = allow }
}

// WithMaxRedirects limits the redirects followed by one request. Use
// Unbounded to follow redirects without limit.
func WithMaxRedirects(n int) Option {
	return func(i *Interceptor) { i.maxRedirects = n }
}

// WithMethodMatching makes registrations match on method as well as URL. By
// default the method of a registration is advisory and any method matches.
func WithMethodMatching() Option {
	return func(i *Interceptor) { i.matchMethod = true }
}

// WithDialer sets the dialer used by real connections.
func WithDialer(d Dialer) Option {
	return func(i *Interceptor) { i.dialer = d }
}

// WithTLSConfig sets the TLS configuration of real https connections.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(i *Interceptor) { i.tlsConfig = cfg }
}

// WithClock sets the clock used for the Date header of stubbed responses.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

// New returns an enabled interceptor with an empty registry. Real network
// connections are allowed and redirects are unbounded unless configured
// otherwise.
func New(opts ...Option) *Interceptor {
	i := &Interceptor{
		entries:         map[string]Registration{},
		routes:          map[string]*routeMatcher{},
		enabled:         true,
		allowNetConnect: true,
		maxRedirects:    Unbounded,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.dialer == nil {
		i.dialer = NewSystemDialer()
	}
	return i
}

// Connect selects the connection for rawURL without opening it. It fails with
// ErrRealConnectionForbidden when no stub matches and real connections are
// disallowed.
func (i *Interceptor) Connect(ctx context.Context, rawURL string, opts RequestOptions) (Connection, error) {
	return i.connect(ctx, rawURL, opts, &RedirectState{Max: i.maxRedirects})
}

// Open connects to rawURL and opens the connection. Redirects announced by
// stubs are dispatched through the registry again, sharing one redirect budget
// with any real hops. The connection is discarded on failure.
func (i *Interceptor) Open(ctx context.Context, rawURL string, opts RequestOptions) (Connection, error) {
	conn, err := i.open(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// open is Open but keeps the connection when it failed on its status so the
// response can still be surfaced.
func (i *Interceptor) open(ctx context.Context, rawURL string, opts RequestOptions) (Connection, error) {
	ctx = log.With(ctx, log.KV{K: "fakeweb.request.id", V: uuid.NewString()})
	state := &RedirectState{Max: i.maxRedirects}
	for {
		conn, err := i.connect(ctx, rawURL, opts, state)
		if err != nil {
			return nil, err
		}
		err = conn.Open(ctx)
		if err == nil {
			return conn, nil
		}
		var serr *StatusError
		if !errors.As(err, &serr) {
			return nil, err
		}
		stub, ok := conn.(*StubbedConnection)
		if !ok || !isRedirect(serr.Code) || stub.location() == "" {
			return conn, err
		}
		if rawURL, err = state.follow(ctx, rawURL, stub.location()); err != nil {
			return nil, err
		}
	}
}

func (i *Interceptor) connect(ctx context.Context, rawURL string, opts RequestOptions, state *RedirectState) (Connection, error) {
	i.mu.RLock()
	enabled, allow := i.enabled, i.allowNetConnect
	i.mu.RUnlock()

	if enabled && !IsBypassed(ctx) {
		reg, ok, err := i.resolve(ctx, opts.Method, rawURL)
		if err != nil {
			return nil, err
		}
		if ok {
			c := NewStubbedConnection(rawURL, opts, reg)
			c.now = i.now
			return c, nil
		}
	}
	if !allow {
		return nil, fmt.Errorf("%w: %s", ErrRealConnectionForbidden, rawURL)
	}
	c := NewRealConnection(rawURL, opts, i.dialer, state)
	c.tlsConfig = i.tlsConfig
	return c, nil
}
