// Package middleware implements vixgo's prefix-scoped middleware pipeline:
// entries are collected for a route's path at registration time and run as
// a call-once continuation chain, so a middleware that forgets (or chooses
// not) to call Next simply stops the chain rather than double-running the
// handler.
package middleware

import (
	"strings"

	"go.uber.org/atomic"

	"github.com/vixgo/vixgo/httpx"
)

// Next is the continuation a middleware calls to run the rest of the
// chain. Invoking it more than once is a no-op after the first call,
// guarded by an atomic called flag.
type Next struct {
	fn     func()
	called atomic.Bool
}

// newNext wraps fn in a call-once guard.
func newNext(fn func()) *Next {
	return &Next{fn: fn}
}

// Call invokes the continuation if it has not already run.
func (n *Next) Call() {
	if n.called.CompareAndSwap(false, true) {
		n.fn()
	}
}

// Called reports whether the continuation has already run.
func (n *Next) Called() bool {
	return n.called.Load()
}

// Func is the middleware signature: given the request, response, and a
// call-once continuation, it decides whether/when to invoke next.
type Func func(req *httpx.Request, res *httpx.Response, next *Next)

// Entry binds a middleware to the path prefix it is scoped to ("" means
// global).
type Entry struct {
	Prefix string
	Fn     Func
}

// NormalizePrefix ensures a leading slash and strips any trailing slash
// (except for the root "/"), matching Group::normalize_prefix.
func NormalizePrefix(p string) string {
	if p == "" {
		return ""
	}
	if p[0] != '/' {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// JoinPrefix joins a base prefix and a sub-path, normalizing both.
func JoinPrefix(base, sub string) string {
	base = NormalizePrefix(base)
	if sub == "" {
		return base
	}
	if sub[0] != '/' {
		sub = "/" + sub
	}
	for len(sub) > 1 && strings.HasSuffix(sub, "/") {
		sub = sub[:len(sub)-1]
	}
	if base == "" {
		return sub
	}
	return base + sub
}

// matchesPrefix reports whether path falls under prefix: prefix "" (or "/")
// matches everything; otherwise path must equal prefix or start with
// prefix + "/" — so "/api" matches "/api", "/api/x", "/api/x/y" but not
// "/apix".
func matchesPrefix(prefix, path string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Collect returns, in registration order, every entry whose prefix matches
// path.
func Collect(entries []Entry, path string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if matchesPrefix(e.Prefix, path) {
			out = append(out, e)
		}
	}
	return out
}

// Run executes chain in order, then final, via index-based recursion — each
// step allocates one call-once Next wrapping the advance to the next index.
func Run(chain []Entry, req *httpx.Request, res *httpx.Response, final func()) {
	runFrom(chain, 0, req, res, final)
}

func runFrom(chain []Entry, i int, req *httpx.Request, res *httpx.Response, final func()) {
	if i >= len(chain) {
		final()
		return
	}
	next := newNext(func() {
		runFrom(chain, i+1, req, res, final)
	})
	chain[i].Fn(req, res, next)
}
