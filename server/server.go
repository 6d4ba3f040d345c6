// Package server implements vixgo's listener and accept loop: it binds a
// TCP port (0 for an ephemeral one), runs N acceptor goroutines handing
// each connection off to its own session, and supports a graceful
// shutdown that stops accepting and waits for in-flight connections to
// finish.
package server

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/vixgo/vixgo/executor"
	"github.com/vixgo/vixgo/pkg/logger"
	"github.com/vixgo/vixgo/router"
	"github.com/vixgo/vixgo/session"
)

// Options configures a Server. Port 0 binds an ephemeral port, retrievable
// afterward via BoundPort.
type Options struct {
	Port      int
	Acceptors int
	Session   session.Options
}

func (o Options) resolved() Options {
	if o.Acceptors <= 0 {
		o.Acceptors = maxInt(1, runtime.NumCPU()/2)
	}
	return o
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Server owns a bound listener and dispatches accepted connections to
// vixgo's session state machine.
type Server struct {
	router *router.Router
	exec   *executor.Pool
	opts   Options

	mu sync.Mutex
	ln net.Listener

	closed atomic.Bool
	conns  sync.WaitGroup
}

// New returns a Server bound to r for routing and ex (may be nil) for
// heavy-route dispatch. Call Listen before Serve.
func New(r *router.Router, ex *executor.Pool, opts Options) *Server {
	return &Server{router: r, exec: ex, opts: opts.resolved()}
}

// Listen binds the configured port, matching the original's
// reuse-address-then-bind-then-listen sequence (Go's net package handles
// SO_REUSEADDR semantics internally for this case).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.opts.Port, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	logger.Info("acceptor initialized on port %d", s.BoundPort())
	return nil
}

// BoundPort returns the port actually bound, resolving an ephemeral (0)
// request to the OS-assigned value. Listen must have succeeded first.
func (s *Server) BoundPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Serve runs Acceptors concurrent accept loops until ctx is canceled or
// Close is called, coordinating their shutdown errors via errgroup —
// vixgo's equivalent of running N io_context worker threads, except here
// each accepted connection gets its own goroutine rather than sharing a
// fixed set of reactor threads, which is the idiomatic Go substitute for
// an ASIO io_context pool.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Acceptors; i++ {
		g.Go(func() error {
			return s.acceptLoop(gctx)
		})
	}
	logger.Info("vixgo running at http://127.0.0.1:%d using %d acceptors", s.BoundPort(), s.opts.Acceptors)
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logger.Error("error accepting connection: %v", err)
			return err
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			// Last-resort safety net: handler panics are already caught and
			// turned into a 500 at the per-route adapter frame (see
			// App.addRoute), so reaching here means something below the
			// route layer itself panicked — still don't take the process
			// down with it.
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic handling connection: %v", r)
				}
			}()
			sess := session.New(conn, s.router, s.exec, s.opts.Session)
			sess.Serve()
		}()
	}
}

// Close stops accepting new connections and waits for in-flight sessions
// to finish, up to ctx's deadline — the graceful drain step of shutdown.
func (s *Server) Close(ctx context.Context) error {
	s.closed.Store(true)
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all connections drained")
		return nil
	case <-ctx.Done():
		logger.Warn("shutdown deadline exceeded waiting for connections to drain")
		return ctx.Err()
	}
}
