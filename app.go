// Package vix is the embeddable HTTP/1.1 application facade: it wires the
// router, middleware pipeline, executor, and server packages behind the
// Express-like App/Group surface described by the embedding API, with a
// signal-aware Run/Listen/Wait/Close lifecycle.
package vix

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/vixgo/vixgo/executor"
	"github.com/vixgo/vixgo/httpx"
	"github.com/vixgo/vixgo/internal/config"
	"github.com/vixgo/vixgo/middleware"
	"github.com/vixgo/vixgo/pkg/logger"
	"github.com/vixgo/vixgo/router"
	"github.com/vixgo/vixgo/server"
	"github.com/vixgo/vixgo/session"
	"github.com/vixgo/vixgo/waf"
)

// Handler is the signature every route registration method expects.
type Handler = router.Handler

// Middleware is the signature Use/Protect/ProtectExact and Group methods
// expect — a request/response pair plus a call-once continuation.
type Middleware = middleware.Func

// Next is the call-once continuation passed to a Middleware.
type Next = middleware.Next

// ShutdownCallback runs once during the shutdown sequence, before
// connections are drained and the executor is stopped.
type ShutdownCallback func()

// ListenCallback receives the port actually bound once the server starts
// accepting connections — useful when Listen was given port 0.
type ListenCallback func(port int)

// Option configures an App at construction time.
type Option func(*App)

// WithExecutor supplies a pre-built executor.Pool instead of the one App
// would otherwise construct from config, letting callers share one pool
// across multiple Apps or tune it directly.
func WithExecutor(ex *executor.Pool) Option {
	return func(a *App) { a.exec = ex }
}

// WithConfig supplies an already-loaded configuration instead of having
// App call config.Load itself.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.cfg = cfg }
}

// App owns the router, the executor, and the listening server, and
// exposes the route/middleware registration surface embedding code uses.
type App struct {
	cfg    *config.Config
	router *router.Router
	exec   *executor.Pool
	srv    *server.Server

	mu          sync.Mutex
	middlewares []middleware.Entry

	shutdownCb ShutdownCallback
	devMode    bool

	started      atomic.Bool
	stopCh       chan struct{}
	signalOnce   sync.Once
	shutdownOnce sync.Once
}

// New builds an App, loading configuration and constructing an executor
// pool unless overridden via WithConfig/WithExecutor.
func New(opts ...Option) *App {
	a := &App{router: router.New(), stopCh: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal("vix: failed to load configuration: %v", err)
		}
		a.cfg = cfg
	}
	if a.exec == nil {
		a.exec = executor.New(executor.Options{
			MinThreads:  a.cfg.ExecutorMinThreads,
			MaxThreads:  a.cfg.ExecutorMaxThreads,
			MaxPeriodic: a.cfg.ExecutorMaxPeriodic,
		})
	}
	return a
}

// Config returns the App's resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Router returns the underlying router, for introspection (e.g. route
// listing for documentation generation).
func (a *App) Router() *router.Router { return a.router }

// Executor returns the App's executor pool.
func (a *App) Executor() *executor.Pool { return a.exec }

// IsRunning reports whether Listen has started accepting connections.
func (a *App) IsRunning() bool { return a.started.Load() }

// SetDevMode toggles development-mode behavior (currently: a recovered
// handler panic renders an HTML page naming the route and panic value
// instead of a terse JSON error).
func (a *App) SetDevMode(v bool) { a.devMode = v }

// IsDevMode reports whether development mode is enabled.
func (a *App) IsDevMode() bool { return a.devMode }

// SetShutdownCallback installs a callback executed once during shutdown,
// before the listener is closed and connections are drained.
func (a *App) SetShutdownCallback(cb ShutdownCallback) { a.shutdownCb = cb }

// --- route registration -----------------------------------------------

// RouteOption customizes a single route's registration.
type RouteOption func(*router.Options)

// WithDoc attaches documentation metadata to the route it's passed to,
// surfaced later via App.Router().Routes() for an external OpenAPI
// generator to consume.
func WithDoc(d router.Doc) RouteOption {
	return func(o *router.Options) { o.Doc = d }
}

func routeOptions(heavy bool, opts []RouteOption) router.Options {
	o := router.Options{Heavy: heavy}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func (a *App) addRoute(method, path string, handler Handler, opt router.Options) {
	a.mu.Lock()
	chain := middleware.Collect(a.middlewares, path)
	a.mu.Unlock()

	wrapped := func(req *httpx.Request, res *httpx.Response) (ret interface{}) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("vix: handler panic at %s %s: %v", method, path, r)
				a.writePanicResponse(res, method, path, r)
				ret = nil
			}
		}()
		middleware.Run(chain, req, res, func() { ret = handler(req, res) })
		return ret
	}
	a.router.AddRoute(method, path, wrapped, opt, opt.Doc)

	if !strings.EqualFold(method, http.MethodOptions) {
		a.ensureOptionsRoute(path)
	}
}

// writePanicResponse renders the 500 a recovered handler panic produces:
// an HTML page naming the route and panic value in dev mode, or a terse
// JSON error otherwise. This is the per-route adapter frame the panic is
// caught at — the session/server layers never see it.
func (a *App) writePanicResponse(res *httpx.Response, method, path string, r interface{}) {
	res.Header.Del("Content-Length")
	res.Header.Del("Content-Type")
	if a.devMode {
		res.Status(http.StatusInternalServerError)
		res.Type("text/html; charset=utf-8")
		res.Body = []byte(fmt.Sprintf(
			"<!doctype html><html><head><meta charset=\"utf-8\"></head><body>"+
				"<h1>500 Internal Server Error</h1><p>%s %s</p><pre>%v</pre></body></html>",
			method, path, r,
		))
		res.Send()
		return
	}
	res.Status(http.StatusInternalServerError)
	res.JSON(map[string]string{
		"error": "internal server error",
		"hint":  "the request handler panicked; check server logs for details",
	})
}

// ensureOptionsRoute auto-registers a 204 OPTIONS handler for path if one
// was not explicitly registered, running its own independent copy of the
// middleware chain collected at this call time — see DESIGN.md's decision
// on whether auto-OPTIONS should share the route's middleware instance.
func (a *App) ensureOptionsRoute(path string) {
	if a.router.HasRoute(http.MethodOptions, path) {
		return
	}
	a.mu.Lock()
	chain := middleware.Collect(a.middlewares, path)
	a.mu.Unlock()

	wrapped := func(req *httpx.Request, res *httpx.Response) interface{} {
		middleware.Run(chain, req, res, func() {
			res.SendStatus(http.StatusNoContent)
		})
		return nil
	}
	a.router.AddRoute(http.MethodOptions, path, wrapped, router.Options{}, router.Doc{})
}

// Get registers a GET handler. Pass WithDoc to attach documentation
// metadata for later OpenAPI generation off App.Router().Routes().
func (a *App) Get(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodGet, path, h, routeOptions(false, opts))
}

// Post registers a POST handler.
func (a *App) Post(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPost, path, h, routeOptions(false, opts))
}

// Put registers a PUT handler.
func (a *App) Put(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPut, path, h, routeOptions(false, opts))
}

// Patch registers a PATCH handler.
func (a *App) Patch(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPatch, path, h, routeOptions(false, opts))
}

// Delete registers a DELETE handler.
func (a *App) Delete(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodDelete, path, h, routeOptions(false, opts))
}

// Head registers a HEAD handler. GET routes already serve HEAD
// automatically; use this only to override that default.
func (a *App) Head(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodHead, path, h, routeOptions(false, opts))
}

// Options registers an explicit OPTIONS handler, opting out of the
// auto-204 synthesis for this path.
func (a *App) Options(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodOptions, path, h, routeOptions(false, opts))
}

// GetHeavy registers a GET handler that runs on the executor rather than
// the accepting goroutine.
func (a *App) GetHeavy(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodGet, path, h, routeOptions(true, opts))
}

// PostHeavy registers a POST handler that runs on the executor.
func (a *App) PostHeavy(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPost, path, h, routeOptions(true, opts))
}

// PutHeavy registers a PUT handler that runs on the executor.
func (a *App) PutHeavy(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPut, path, h, routeOptions(true, opts))
}

// PatchHeavy registers a PATCH handler that runs on the executor.
func (a *App) PatchHeavy(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodPatch, path, h, routeOptions(true, opts))
}

// DeleteHeavy registers a DELETE handler that runs on the executor.
func (a *App) DeleteHeavy(path string, h Handler, opts ...RouteOption) {
	a.addRoute(http.MethodDelete, path, h, routeOptions(true, opts))
}

// --- middleware ----------------------------------------------------------

// Use attaches a global middleware, run for every request regardless of
// path.
func (a *App) Use(mw Middleware) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middlewares = append(a.middlewares, middleware.Entry{Prefix: "", Fn: mw})
}

// UsePrefix attaches a middleware scoped to every path under prefix.
func (a *App) UsePrefix(prefix string, mw Middleware) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middlewares = append(a.middlewares, middleware.Entry{Prefix: middleware.NormalizePrefix(prefix), Fn: mw})
}

// Protect is an alias for UsePrefix, matching the embedding API's naming.
func (a *App) Protect(prefix string, mw Middleware) { a.UsePrefix(prefix, mw) }

// ProtectExact attaches a middleware that only runs when the request path
// equals path exactly (not merely prefixed by it).
func (a *App) ProtectExact(path string, mw Middleware) {
	match := middleware.NormalizePrefix(path)
	a.UsePrefix(match, func(req *httpx.Request, res *httpx.Response, next *Next) {
		if req.Path == match {
			mw(req, res, next)
		} else {
			next.Call()
		}
	})
}

// --- groups ----------------------------------------------------------

// Group is a route/middleware registration scope prefixed under a common
// path segment.
type Group struct {
	app    *App
	prefix string
}

// Group returns a new Group rooted at prefix.
func (a *App) Group(prefix string) *Group {
	return &Group{app: a, prefix: middleware.NormalizePrefix(prefix)}
}

// Group returns a nested Group under this group's prefix.
func (g *Group) Group(sub string) *Group {
	return &Group{app: g.app, prefix: middleware.JoinPrefix(g.prefix, sub)}
}

// Use attaches a middleware scoped to this group's prefix.
func (g *Group) Use(mw Middleware) *Group {
	g.app.UsePrefix(g.prefix, mw)
	return g
}

// Protect attaches a middleware scoped to a sub-prefix under this group.
func (g *Group) Protect(subPrefix string, mw Middleware) *Group {
	g.app.Protect(middleware.JoinPrefix(g.prefix, subPrefix), mw)
	return g
}

// ProtectExact attaches a middleware that runs only for an exact sub-path
// under this group.
func (g *Group) ProtectExact(subPath string, mw Middleware) *Group {
	g.app.ProtectExact(middleware.JoinPrefix(g.prefix, subPath), mw)
	return g
}

// Get registers a GET handler under this group's prefix.
func (g *Group) Get(path string, h Handler, opts ...RouteOption) {
	g.app.Get(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// Post registers a POST handler under this group's prefix.
func (g *Group) Post(path string, h Handler, opts ...RouteOption) {
	g.app.Post(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// Put registers a PUT handler under this group's prefix.
func (g *Group) Put(path string, h Handler, opts ...RouteOption) {
	g.app.Put(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// Patch registers a PATCH handler under this group's prefix.
func (g *Group) Patch(path string, h Handler, opts ...RouteOption) {
	g.app.Patch(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// Delete registers a DELETE handler under this group's prefix.
func (g *Group) Delete(path string, h Handler, opts ...RouteOption) {
	g.app.Delete(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// GetHeavy registers an executor-dispatched GET handler under this
// group's prefix.
func (g *Group) GetHeavy(path string, h Handler, opts ...RouteOption) {
	g.app.GetHeavy(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// PostHeavy registers an executor-dispatched POST handler under this
// group's prefix.
func (g *Group) PostHeavy(path string, h Handler, opts ...RouteOption) {
	g.app.PostHeavy(middleware.JoinPrefix(g.prefix, path), h, opts...)
}

// Metrics registers a GET route at path serving Prometheus text exposition
// for the process's collectors (executor, router, session — see
// internal/metrics), via promhttp.Handler adapted onto an
// httptest.ResponseRecorder since httpx.Response does not itself implement
// http.ResponseWriter.
func (a *App) Metrics(path string) {
	h := promhttp.Handler()
	a.Get(path, func(req *httpx.Request, res *httpx.Response) interface{} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.Raw())

		for key, values := range rec.Header() {
			for _, v := range values {
				res.AppendHeader(key, v)
			}
		}
		res.Status(rec.Code)
		res.Body = rec.Body.Bytes()
		res.Send()
		return nil
	})
}

// --- lifecycle ----------------------------------------------------------

func (a *App) sessionOptions() session.Options {
	return session.Options{
		MaxBodyBytes:   a.cfg.WAFMaxBodyBytes,
		RequestTimeout: time.Duration(a.cfg.SessionTimeoutSec) * time.Second,
		WAF: waf.Options{
			Mode:         waf.Mode(a.cfg.WAFMode),
			MaxTargetLen: a.cfg.WAFMaxTargetLen,
			MaxBodyBytes: a.cfg.WAFMaxBodyBytes,
		},
	}
}

// Listen freezes the route table, binds port (0 for ephemeral), and
// starts accepting connections in the background. onListen, if non-nil,
// receives the port actually bound.
func (a *App) Listen(port int, onListen ListenCallback) error {
	a.router.Freeze()

	a.srv = server.New(a.router, a.exec, server.Options{
		Port:      port,
		Acceptors: a.cfg.ServerIOThreads,
		Session:   a.sessionOptions(),
	})
	if err := a.srv.Listen(); err != nil {
		return err
	}

	a.started.Store(true)
	if onListen != nil {
		onListen(a.srv.BoundPort())
	}

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-a.stopCh
			cancel()
		}()
		if err := a.srv.Serve(ctx); err != nil {
			logger.Error("vix: server error: %v", err)
		}
	}()

	return nil
}

// Wait blocks until a shutdown is requested — either via an OS interrupt
// signal (SIGINT/SIGTERM) or an explicit Close call — and then drives the
// graceful shutdown sequence: stop callback, drain connections, stop the
// executor.
func (a *App) Wait() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	logger.Info("vixgo ready, waiting for interrupt signal...")

	select {
	case <-quit:
	case <-a.stopCh:
	}
	a.shutdown()
}

// shutdown runs the drain-and-stop sequence exactly once, regardless of
// whether it was triggered by Wait observing a signal or by an explicit
// Close call racing it.
func (a *App) shutdown() {
	a.signalOnce.Do(func() {
		close(a.stopCh)
	})

	a.shutdownOnce.Do(func() {
		if a.shutdownCb != nil {
			a.shutdownCb()
		}

		if a.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ServerRequestTimeout)*time.Millisecond+5*time.Second)
			defer cancel()
			if err := a.srv.Close(ctx); err != nil {
				logger.Error("vix: error draining connections: %v", err)
			}
		}

		a.exec.Stop()
		logger.Info("vixgo stopped gracefully")
	})
}

// Close requests the server to stop and runs the shutdown sequence. Safe
// to call multiple times, from a signal handler, or concurrently with
// Wait observing an OS signal.
func (a *App) Close() {
	a.shutdown()
}

// Run is a convenience wrapper: Listen then Wait, blocking until shutdown
// completes. Mirrors the original embedding API's App::run.
func (a *App) Run(port int) error {
	if err := a.Listen(port, nil); err != nil {
		return err
	}
	a.Wait()
	return nil
}
