// Package session implements vixgo's per-connection state machine:
// Reading → Dispatching → Writing → {Reading, Closed}. It owns request
// parsing, the WAF gate, heavy-route dispatch onto the executor, and a
// per-connection write strand so dispatch (possibly on an executor
// goroutine) never races a keep-alive response against the next request's
// write.
package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vixgo/vixgo/executor"
	"github.com/vixgo/vixgo/internal/metrics"
	"github.com/vixgo/vixgo/pkg/logger"
	"github.com/vixgo/vixgo/router"
	"github.com/vixgo/vixgo/waf"
)

// State is one of a connection's lifecycle states.
type State int32

const (
	Reading State = iota
	Dispatching
	Writing
	Closed
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Dispatching:
		return "dispatching"
	case Writing:
		return "writing"
	default:
		return "closed"
	}
}

// Product/Version identify vixgo in the Server response header, which the
// session adds to every outgoing response.
const (
	Product = "vixgo"
	Version = "0.1"
)

// Options configures a Session's limits and behavior.
type Options struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	WAF            waf.Options
}

func (o Options) resolved() Options {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 10 * 1024 * 1024
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	return o
}

// Session drives one accepted connection through its full lifecycle.
type Session struct {
	conn   net.Conn
	router *router.Router
	exec   *executor.Pool
	opts   Options

	state   State
	stateMu sync.Mutex

	writeMu sync.Mutex // the "strand": every write to conn goes through here
}

// New creates a Session for an accepted connection. ex may be nil if the
// owning server was not configured with heavy routes in mind — any route
// marked heavy then runs inline; nothing is logged for the fallback.
func New(conn net.Conn, r *router.Router, ex *executor.Pool, opts Options) *Session {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Session{conn: conn, router: r, exec: ex, opts: opts.resolved()}
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Serve runs the session's read/dispatch/write loop until the connection
// closes, synchronously on the calling I/O goroutine.
func (s *Session) Serve() {
	metrics.SessionConnections.Inc()
	defer metrics.SessionConnections.Dec()
	defer s.closeSocket()

	reader := bufio.NewReader(s.conn)
	for {
		s.setState(Reading)
		req, ok := s.readRequest(reader)
		if !ok {
			return
		}

		s.setState(Dispatching)
		keepAlive := s.handle(req)

		s.setState(Writing)
		if !keepAlive {
			return
		}
	}
}

// readRequest parses one HTTP/1.1 request, enforcing the per-request read
// timeout. A timeout logs at warn and closes the connection with no
// response; EOF or a peer-closed error closes it silently.
func (s *Session) readRequest(reader *bufio.Reader) (*http.Request, bool) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.RequestTimeout))
	req, err := http.ReadRequest(reader)
	if err != nil {
		if err != io.EOF && !isClosedConnErr(err) {
			logger.Warn("session: read error: %v", err)
		}
		return nil, false
	}
	_ = s.conn.SetReadDeadline(time.Time{})
	return req, true
}

func isClosedConnErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// handle runs the WAF gate, dispatches to the router (inline or via the
// executor for heavy routes), writes the response, and reports whether the
// connection should stay open for another request.
func (s *Session) handle(req *http.Request) bool {
	body, oversized := s.readBody(req)
	if oversized {
		res := errorResponse(http.StatusRequestEntityTooLarge, "Request too large")
		s.writeResponse(req, res)
		return false
	}

	verdict := waf.Check(waf.Request{Method: req.Method, Target: req.URL.RequestURI(), Body: body}, s.opts.WAF)
	if !verdict.Allowed {
		metrics.SessionWAFRejections.Inc()
		logger.Warn("session: WAF rejected request %s %s: %s", req.Method, req.URL.Path, verdict.Reason)
		res := errorResponse(http.StatusBadRequest, "Request blocked (security)")
		return s.writeResponse(req, res)
	}

	heavy := s.router != nil && s.router.IsHeavy(req.Method, req.URL.Path)
	var res *responseEnvelope
	if heavy && s.exec != nil {
		res = s.dispatchHeavy(req, body)
	} else {
		res = s.dispatchInline(req, body)
	}

	return s.writeResponse(req, res)
}

// readBody reads the request body up to MaxBodyBytes+1; returning true for
// oversized if the limit was exceeded.
func (s *Session) readBody(req *http.Request) (body []byte, oversized bool) {
	if req.Body == nil {
		return nil, false
	}
	defer req.Body.Close()
	limited := io.LimitReader(req.Body, s.opts.MaxBodyBytes+1)
	b, err := io.ReadAll(limited)
	if err != nil {
		return nil, false
	}
	if int64(len(b)) > s.opts.MaxBodyBytes {
		return nil, true
	}
	return b, false
}

type responseEnvelope struct {
	status int
	header http.Header
	body   []byte
}

func errorResponse(status int, message string) *responseEnvelope {
	return &responseEnvelope{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		body:   []byte(fmt.Sprintf(`{"error":%q}`, message)),
	}
}

func (s *Session) dispatchInline(req *http.Request, body []byte) *responseEnvelope {
	res := s.router.Dispatch(req.Method, req.URL.RequestURI(), body, req.Header, req)
	return &responseEnvelope{status: res.StatusCode, header: res.Header, body: res.Body}
}

// dispatchHeavy submits the handler run to the executor and blocks until it
// completes, so the session's Reading/Dispatching/Writing sequencing stays
// intact even though the work ran off the I/O goroutine. A rejected
// submission (the pool has been stopped) yields 503.
func (s *Session) dispatchHeavy(req *http.Request, body []byte) *responseEnvelope {
	done := make(chan *responseEnvelope, 1)
	err := s.exec.Post(executor.Default, func() {
		res := s.router.Dispatch(req.Method, req.URL.RequestURI(), body, req.Header, req)
		done <- &responseEnvelope{status: res.StatusCode, header: res.Header, body: res.Body}
	})
	if err != nil {
		logger.Warn("session: executor rejected heavy route %s %s: %v", req.Method, req.URL.Path, err)
		return &responseEnvelope{status: http.StatusServiceUnavailable, header: make(http.Header), body: nil}
	}
	return <-done
}

// writeResponse serializes env to the wire, adding the Server/Date headers
// every response carries, through the session's write strand. It returns
// whether the connection should be kept open for a subsequent request.
func (s *Session) writeResponse(req *http.Request, env *responseEnvelope) bool {
	keepAlive := wantsKeepAlive(req)
	if env.header == nil {
		env.header = make(http.Header)
	}
	if keepAlive {
		env.header.Set("Connection", "keep-alive")
	} else {
		env.header.Set("Connection", "close")
	}
	env.header.Set("Server", Product+"/"+Version)
	env.header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	if env.header.Get("Content-Length") == "" {
		env.header.Set("Content-Length", strconv.Itoa(len(env.body)))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.RequestTimeout))
	w := bufio.NewWriter(s.conn)
	fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", env.status, http.StatusText(env.status))
	for k, vs := range env.header {
		for _, v := range vs {
			fmt.Fprintf(w, "%s: %s\r\n", k, v)
		}
	}
	w.WriteString("\r\n")
	w.Write(env.body)

	if err := w.Flush(); err != nil {
		if !isClosedConnErr(err) {
			logger.Warn("session: write error: %v", err)
		}
		return false
	}
	_ = s.conn.SetWriteDeadline(time.Time{})
	metrics.RouterStatus.WithLabelValues(strconv.Itoa(env.status)).Inc()
	return keepAlive
}

// wantsKeepAlive honors an explicit Connection header, or defaults to
// keep-alive when the version is 1.1 and Connection is
// absent.
func wantsKeepAlive(req *http.Request) bool {
	conn := req.Header.Get("Connection")
	switch strings.ToLower(conn) {
	case "close":
		return false
	case "keep-alive":
		return true
	default:
		return req.ProtoAtLeast(1, 1)
	}
}

// closeSocket performs a best-effort graceful shutdown: errors from an
// already-disconnected socket are swallowed, others logged at warn.
func (s *Session) closeSocket() {
	s.setState(Closed)
	if tc, ok := s.conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil && !isClosedConnErr(err) {
			logger.Warn("session: shutdown error: %v", err)
		}
	}
	if err := s.conn.Close(); err != nil && !isClosedConnErr(err) {
		logger.Warn("session: close error: %v", err)
	}
}
