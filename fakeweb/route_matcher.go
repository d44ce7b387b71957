package fakeweb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	goahttp "goa.design/goa/v3/http"
)

// routeMatcher resolves requests against registrations whose URL path is a
// Goa-style pattern such as /things/{id}. One matcher serves one origin.
type routeMatcher struct {
	mux     goahttp.Muxer
	entries []Registration
	index   map[string]int
}

type routeMatchState struct {
	index *int
	vars  *map[string]string
}

type routeMatchKey struct{}

func newRouteMatcher() *routeMatcher {
	mux := goahttp.NewMuxer()
	if chiMux, ok := mux.(interface{ NotFound(http.HandlerFunc) }); ok {
		chiMux.NotFound(func(http.ResponseWriter, *http.Request) {})
	}
	return &routeMatcher{mux: mux, index: map[string]int{}}
}

// add registers reg under method and pattern. Registering the same method and
// pattern again replaces the earlier registration. A pattern the muxer
// rejects leaves the matcher unchanged.
func (rm *routeMatcher) add(method, pattern string, reg Registration) (err error) {
	key := method + " " + pattern
	if i, ok := rm.index[key]; ok {
		rm.entries[i] = reg
		return nil
	}
	i := len(rm.entries)

	mux := rm.mux
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("route %s: %v", key, p)
		}
	}()
	mux.Handle(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		st, _ := r.Context().Value(routeMatchKey{}).(*routeMatchState)
		if st == nil || st.index == nil || *st.index >= 0 {
			return
		}
		*st.index = i
		if st.vars != nil {
			*st.vars = mux.Vars(r)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	rm.entries = append(rm.entries, reg)
	rm.index[key] = i
	return nil
}

// checkPattern rejects path patterns with unbalanced or nested braces, or an
// empty variable name.
func checkPattern(path string) error {
	open := -1
	for n, r := range path {
		switch r {
		case '{':
			if open >= 0 {
				return fmt.Errorf("nested '{' at offset %d", n)
			}
			open = n
		case '}':
			if open < 0 {
				return fmt.Errorf("unmatched '}' at offset %d", n)
			}
			if n == open+1 {
				return fmt.Errorf("empty variable at offset %d", open)
			}
			open = -1
		}
	}
	if open >= 0 {
		return fmt.Errorf("missing '}' for '{' at offset %d", open)
	}
	return nil
}

func (rm *routeMatcher) match(ctx context.Context, method string, u *url.URL) (Registration, map[string]string, bool) {
	if rm == nil || len(rm.entries) == 0 {
		return Registration{}, nil, false
	}
	r, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return Registration{}, nil, false
	}
	idx := -1
	var vars map[string]string
	st := &routeMatchState{index: &idx, vars: &vars}
	rm.mux.ServeHTTP(noopResponseWriter{}, r.WithContext(context.WithValue(ctx, routeMatchKey{}, st)))
	if idx < 0 {
		return Registration{}, nil, false
	}
	return rm.entries[idx], vars, true
}

type noopResponseWriter struct{}

func (noopResponseWriter) Header() http.Header       { return http.Header{} }
func (noopResponseWriter) Write([]byte) (int, error) { return 0, nil }
func (noopResponseWriter) WriteHeader(int)           {}
