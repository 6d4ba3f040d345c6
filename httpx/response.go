package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var mimeByExt = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".txt":   "text/plain; charset=utf-8",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// mimeFromExt returns a best-effort MIME type for a file extension
// (including the leading dot), defaulting to application/octet-stream.
func mimeFromExt(ext string) string {
	if m, ok := mimeByExt[strings.ToLower(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

var statusText = map[int]string{
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout", 413: "Payload Too Large",
	500: "Internal Server Error", 501: "Not Implemented", 503: "Service Unavailable",
}

func defaultStatusMessage(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return http.StatusText(code)
}

// Response is vixgo's chainable response builder. Method calls return the
// receiver so call sites can chain (`res.Status(201).JSON(v)`), mirroring
// ResponseWrapper's fluent interface.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	sent       bool
}

// NewResponse returns an empty Response defaulting to 200 OK, the way
// ResponseWrapper's constructor seeds an "unknown" result to OK.
func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK, Header: make(http.Header)}
}

// Sent reports whether the response has already been finalized by Send,
// Text, JSON, File, Redirect, or SendStatus.
func (r *Response) Sent() bool { return r.sent }

// WithStatus pairs a status code with a payload: returning one from a
// Handler sets the status, then auto-sends payload using the same rules
// AutoSend applies to a bare return value.
type WithStatus struct {
	Code    int
	Payload interface{}
}

// AutoSend implements the handler auto-send convention: if ret is
// non-nil, the response has not already been sent, and its body is still
// empty with no Content-Length set, ret is sent as the response — a
// string becomes a Text response, a WithStatus sets the status then
// resends its Payload, and anything else is marshaled as JSON.
func AutoSend(res *Response, ret interface{}) {
	if ret == nil || res.Sent() || len(res.Body) != 0 || res.HasHeader("Content-Length") {
		return
	}
	switch v := ret.(type) {
	case WithStatus:
		if v.Payload == nil {
			res.SendStatus(v.Code)
			return
		}
		res.Status(v.Code)
		AutoSend(res, v.Payload)
	case string:
		res.Text(v)
	default:
		res.JSON(v)
	}
}

// Status sets the HTTP status code. A code outside [100,599] is an
// invalid-status error: release behavior substitutes 500
// with E_INVALID_STATUS, matching the non-debug build path of the original.
func (r *Response) Status(code int) *Response {
	if code < 100 || code > 599 {
		r.StatusCode = http.StatusInternalServerError
		r.Header.Set("X-Error-Code", "E_INVALID_STATUS")
		return r
	}
	r.StatusCode = code
	return r
}

// HasHeader reports whether a header has already been set.
func (r *Response) HasHeader(key string) bool {
	return r.Header.Get(key) != ""
}

// SetHeader sets or replaces a header.
func (r *Response) SetHeader(key, value string) *Response {
	r.Header.Set(key, value)
	return r
}

// AppendHeader appends a value to a header as a comma-separated list.
func (r *Response) AppendHeader(key, value string) *Response {
	if existing := r.Header.Get(key); existing != "" {
		r.Header.Set(key, existing+", "+value)
	} else {
		r.Header.Set(key, value)
	}
	return r
}

// Type sets the Content-Type header.
func (r *Response) Type(mime string) *Response {
	r.Header.Set("Content-Type", mime)
	return r
}

// Redirect sends a redirect response with the given status code; a code
// outside [100,599] becomes 500 as in Status. Redirect302 is the 302 Found
// shorthand.
func (r *Response) Redirect(code int, url string) *Response {
	r.Status(code)
	r.SetHeader("Location", url)
	if !r.HasHeader("Content-Type") {
		r.Type("text/html; charset=utf-8")
		r.SetHeader("X-Content-Type-Options", "nosniff")
	}
	body := "<!doctype html><html><head><meta charset=\"utf-8\"></head><body>Redirecting to " + url + "</body></html>"
	return r.Text(body)
}

// Redirect302 sends a 302 Found redirect, the common case.
func (r *Response) Redirect302(url string) *Response {
	return r.Redirect(http.StatusFound, url)
}

// SendStatus sends an empty body for no-content-bearing statuses (204, 304)
// or the status's default text otherwise.
func (r *Response) SendStatus(code int) *Response {
	r.Status(code)
	if r.StatusCode == 204 || r.StatusCode == 304 {
		return r.Send()
	}
	return r.Text(defaultStatusMessage(r.StatusCode))
}

// Text sends a plain-text body, inferring Content-Type if not already set.
func (r *Response) Text(data string) *Response {
	if r.StatusCode == 204 || r.StatusCode == 304 {
		return r.Send()
	}
	if !r.HasHeader("Content-Type") {
		r.Type("text/plain; charset=utf-8")
		r.SetHeader("X-Content-Type-Options", "nosniff")
	}
	r.Body = []byte(data)
	return r.Send()
}

// JSON marshals v and sends it as the response body, inferring
// Content-Type if not already set.
func (r *Response) JSON(v interface{}) *Response {
	if r.StatusCode == 204 || r.StatusCode == 304 {
		return r.Send()
	}
	if !r.HasHeader("Content-Type") {
		r.Type("application/json; charset=utf-8")
		r.SetHeader("X-Content-Type-Options", "nosniff")
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.Status(http.StatusInternalServerError)
		r.Body = []byte(fmt.Sprintf(`{"error":"json marshal failed: %s"}`, err))
		return r.Send()
	}
	r.Body = b
	return r.Send()
}

// File serves a file from disk, rejecting path traversal, serving
// index.html for directories, and inferring the MIME type from the file
// extension (falling back to sniffing an HTML prefix when there is none).
func (r *Response) File(path string) *Response {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return r.Status(http.StatusBadRequest).Text("Bad path")
	}

	info, err := os.Stat(clean)
	if err == nil && info.IsDir() {
		clean = filepath.Join(clean, "index.html")
		info, err = os.Stat(clean)
	}
	if err != nil || info.IsDir() {
		return r.Status(http.StatusNotFound).Text("Not Found")
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return r.Status(http.StatusInternalServerError).Text("File read error")
	}

	ext := strings.ToLower(filepath.Ext(clean))
	mime := ""
	if ext != "" {
		mime = mimeFromExt(ext)
	} else if strings.HasPrefix(string(data), "<!doctype html") || strings.HasPrefix(string(data), "<html") {
		mime = "text/html; charset=utf-8"
	} else {
		mime = "application/octet-stream"
	}

	r.Type(mime)
	r.SetHeader("X-Content-Type-Options", "nosniff")
	if !r.HasHeader("Cache-Control") {
		r.SetHeader("Cache-Control", "public, max-age=3600")
	}
	r.Body = data
	return r.Send()
}

// Send finalizes the response: 204/304 clear any body and force
// Content-Length: 0, otherwise a missing Content-Length is filled in from
// the body length.
func (r *Response) Send() *Response {
	r.sent = true
	if r.StatusCode == 204 || r.StatusCode == 304 {
		r.Body = nil
		r.Header.Set("Content-Length", "0")
		return r
	}
	if r.Header.Get("Content-Length") == "" {
		r.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	return r
}
