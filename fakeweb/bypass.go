package fakeweb

import "context"

// BypassHeader marks a request sent through Transport as bypassing the stub
// registry. The header is stripped before the request is sent.
const BypassHeader = "X-Fakeweb-Bypass"

type bypassKey struct{}

// WithBypass marks ctx so that connections made with it skip the stub
// registry and go to the network. Real connections must still be allowed.
func WithBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassKey{}, true)
}

// IsBypassed reports whether ctx was marked with WithBypass.
func IsBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}
