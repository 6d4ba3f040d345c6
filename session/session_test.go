package session

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vixgo/vixgo/executor"
	"github.com/vixgo/vixgo/httpx"
	"github.com/vixgo/vixgo/router"
	"github.com/vixgo/vixgo/waf"
)

func newTestRouter() *router.Router {
	r := router.New()
	r.AddRoute(http.MethodGet, "/hello", func(req *httpx.Request, res *httpx.Response) interface{} {
		res.Text("hi")
		return nil
	}, router.Options{}, router.Doc{})
	r.AddRoute(http.MethodPost, "/echo", func(req *httpx.Request, res *httpx.Response) interface{} {
		res.Text(string(req.Body()))
		return nil
	}, router.Options{}, router.Doc{})
	r.AddRoute(http.MethodGet, "/heavy", func(req *httpx.Request, res *httpx.Response) interface{} {
		res.Text("heavy-done")
		return nil
	}, router.Options{Heavy: true}, router.Doc{})
	return r
}

func writeAndRead(t *testing.T, client net.Conn, raw string) *http.Response {
	t.Helper()
	if _, err := client.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return string(b)
}

func TestInlineRouteRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, newTestRouter(), nil, Options{WAF: waf.Options{Mode: waf.Off}, RequestTimeout: time.Second})
	go s.Serve()

	resp := writeAndRead(t, client, "GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "hi" {
		t.Fatalf("body = %q, want %q", body, "hi")
	}
}

func TestWAFRejectsMaliciousBody(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := Options{
		WAF:            waf.Options{Mode: waf.Strict, MaxTargetLen: 8192, MaxBodyBytes: 1 << 20},
		RequestTimeout: time.Second,
	}
	s := New(server, newTestRouter(), nil, opts)
	go s.Serve()

	payload := "UNION SELECT * FROM users"
	req := "POST /echo HTTP/1.1\r\nHost: x\r\nConnection: close\r\nContent-Length: " +
		strconv.Itoa(len(payload)) + "\r\n\r\n" + payload
	resp := writeAndRead(t, client, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOversizedBodyRejectedWith413(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := Options{
		WAF:            waf.Options{Mode: waf.Off},
		MaxBodyBytes:   4,
		RequestTimeout: time.Second,
	}
	s := New(server, newTestRouter(), nil, opts)
	go s.Serve()

	payload := "this body is way too big"
	req := "POST /echo HTTP/1.1\r\nHost: x\r\nConnection: close\r\nContent-Length: " +
		strconv.Itoa(len(payload)) + "\r\n\r\n" + payload
	resp := writeAndRead(t, client, req)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHeavyRouteDispatchesViaExecutor(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	pool := executor.New(executor.Options{MinThreads: 1, MaxThreads: 2})
	defer pool.Stop()

	opts := Options{WAF: waf.Options{Mode: waf.Off}, RequestTimeout: time.Second}
	s := New(server, newTestRouter(), pool, opts)
	go s.Serve()

	resp := writeAndRead(t, client, "GET /heavy HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "heavy-done" {
		t.Fatalf("body = %q, want %q", body, "heavy-done")
	}
}

func TestHeavyRouteRejectionYields503(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	pool := executor.New(executor.Options{MinThreads: 1, MaxThreads: 1})
	pool.Stop() // a stopped pool rejects every submission

	opts := Options{WAF: waf.Options{Mode: waf.Off}, RequestTimeout: time.Second}
	s := New(server, newTestRouter(), pool, opts)
	go s.Serve()

	resp := writeAndRead(t, client, "GET /heavy HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestKeepAliveServesSecondRequestOnSameConnection(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, newTestRouter(), nil, Options{WAF: waf.Options{Mode: waf.Off}, RequestTimeout: time.Second})
	go s.Serve()

	resp1 := writeAndRead(t, client, "GET /hello HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp1.StatusCode != 200 {
		t.Fatalf("first status = %d, want 200", resp1.StatusCode)
	}
	if got := resp1.Header.Get("Connection"); !strings.EqualFold(got, "keep-alive") {
		t.Fatalf("Connection header = %q, want keep-alive", got)
	}
	readBody(t, resp1)

	resp2 := writeAndRead(t, client, "GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if resp2.StatusCode != 200 {
		t.Fatalf("second status = %d, want 200", resp2.StatusCode)
	}
	readBody(t, resp2)
}
