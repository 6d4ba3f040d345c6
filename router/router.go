package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/vixgo/vixgo/httpx"
	"github.com/vixgo/vixgo/internal/metrics"
)

// NotFoundHandler is invoked when no route matches a request, receiving
// the method and path that failed to match so it can render its own body.
type NotFoundHandler func(req *httpx.Request, res *httpx.Response)

// Router is a trie-backed method+path route table. Registration and
// dispatch are guarded by an RWMutex, so dispatch is safe to call
// concurrently; once Freeze has been called, any further AddRoute panics.
type Router struct {
	mu       sync.RWMutex
	root     *node
	notFound NotFoundHandler
	records  []Record
	frozen   bool
}

// New returns an empty Router.
func New() *Router {
	return &Router{root: newNode()}
}

// SetNotFound installs a custom 404 handler; otherwise Dispatch renders
// the default JSON 404 body.
func (r *Router) SetNotFound(h NotFoundHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = h
}

// Freeze forbids further registration. Called by the owning App right
// before it starts accepting connections, avoiding concurrent trie
// mutation during dispatch the same way
// rivaas-dev-rivaas's router freezes its trie on first request — except
// here registration is cut off at listen time rather than lazily.
func (r *Router) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// AddRoute registers handler for (method, path) with the given options and
// documentation metadata.
func (r *Router) AddRoute(method, path string, handler Handler, opt Options, doc Doc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("router: AddRoute called after Freeze")
	}

	full := strings.ToUpper(method) + path
	n := r.root
	for _, segment := range strings.Split(full, "/") {
		n, _ = n.child(segment)
	}
	n.handler = handler
	n.heavy = opt.Heavy
	n.doc = doc
	n.pattern = path
	r.records = append(r.records, Record{Method: strings.ToUpper(method), Path: path, Heavy: opt.Heavy, Doc: doc})
}

// Routes returns every registered route, for documentation generation or
// introspection.
func (r *Router) Routes() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// HasRoute reports whether a handler exists for (method, path).
func (r *Router) HasRoute(method, path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.matchNode(method, stripQuery(path))
	return n != nil
}

// IsHeavy reports whether the route matching (method, path) was registered
// as heavy.
func (r *Router) IsHeavy(method, path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.matchNode(method, stripQuery(path))
	return n != nil && n.heavy
}

func stripQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

// matchNode walks the trie for (method, path), preferring literal children
// over a "*" (param) child at every level. Caller must hold r.mu.
func (r *Router) matchNode(method, path string) *node {
	full := strings.ToUpper(method) + path
	n := r.root
	for _, segment := range strings.Split(full, "/") {
		if c, ok := n.children[segment]; ok {
			n = c
			continue
		}
		if c, ok := n.children["*"]; ok {
			n = c
			continue
		}
		return nil
	}
	if n.handler != nil {
		return n
	}
	return nil
}

// bindParams re-walks the trie for (method, path), this time collecting
// the values bound to each "*" node's paramName.
func (r *Router) bindParams(method, path string) map[string]string {
	full := strings.ToUpper(method) + path
	n := r.root
	params := map[string]string{}
	for _, segment := range strings.Split(full, "/") {
		if c, ok := n.children[segment]; ok {
			n = c
			continue
		}
		if c, ok := n.children["*"]; ok {
			params[c.paramName] = segment
			n = c
			continue
		}
		return params
	}
	return params
}

// Dispatch matches method+target against the trie and invokes the bound
// handler, applying HEAD→GET fallback, OPTIONS auto-204, default 404 JSON,
// and 204/304 body clearing.
func (r *Router) Dispatch(method, target string, body []byte, headers http.Header, rawReq *http.Request) *httpx.Response {
	path := stripQuery(target)
	isHead := strings.EqualFold(method, http.MethodHead)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.EqualFold(method, http.MethodOptions) {
		if r.matchNode(http.MethodOptions, path) == nil {
			res := httpx.NewResponse()
			res.Status(http.StatusNoContent)
			res.SetHeader("Connection", "close")
			return res.Send()
		}
	}

	n := r.matchNode(method, path)
	effectiveMethod := method
	if n == nil && isHead {
		n = r.matchNode(http.MethodGet, path)
		effectiveMethod = http.MethodGet
	}

	if n != nil && n.handler != nil {
		metrics.RouterRequests.WithLabelValues(strings.ToUpper(effectiveMethod), n.pattern).Inc()
		params := r.bindParams(effectiveMethod, path)
		req := httpx.NewRequest(rawReq, params, body)
		res := httpx.NewResponse()
		ret := n.handler(req, res)
		httpx.AutoSend(res, ret)
		return postProcess(res, isHead)
	}

	res := httpx.NewResponse()
	if r.notFound != nil {
		req := httpx.NewRequest(rawReq, nil, body)
		r.notFound(req, res)
		return res
	}
	res.Status(http.StatusNotFound)
	payload, _ := json.Marshal(map[string]string{
		"error":  "Route not found",
		"method": method,
		"path":   target,
	})
	res.Type("application/json; charset=utf-8")
	res.Body = payload
	res.SetHeader("Connection", "close")
	return res.Send()
}

// postProcess applies dispatch-time HEAD/204/304 adjustments without
// expanding the trie itself.
func postProcess(res *httpx.Response, isHead bool) *httpx.Response {
	if res.StatusCode == 204 || res.StatusCode == 304 {
		res.Body = nil
		res.SetHeader("Content-Length", "0")
		return res
	}
	if isHead {
		bodyLen := len(res.Body)
		res.Body = nil
		res.SetHeader("Content-Length", strconv.Itoa(bodyLen))
		return res
	}
	if len(res.Body) == 0 && res.Header.Get("Content-Length") == "" {
		res.SetHeader("Content-Length", "0")
	}
	return res
}

