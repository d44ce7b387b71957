// Package fakeweb intercepts outbound HTTP requests so that HTTP-client code
// can be tested deterministically. An Interceptor replays registered canned
// responses, optionally verifying the shape of each request first, and lets
// unregistered requests through to the real network over a raw socket when
// allowed.
package fakeweb
