package httpx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTextSetsDefaultContentType(t *testing.T) {
	r := NewResponse()
	r.Text("hello")
	if got := r.Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := r.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := r.Header.Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q, want 5", got)
	}
}

func TestJSONSetsDefaultContentType(t *testing.T) {
	r := NewResponse()
	r.JSON(map[string]int{"a": 1})
	if got := r.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if string(r.Body) != `{"a":1}` {
		t.Errorf("Body = %s", r.Body)
	}
}

func TestSendStatusNoContentClearsBody(t *testing.T) {
	r := NewResponse()
	r.Body = []byte("should be cleared")
	r.SendStatus(204)
	if len(r.Body) != 0 {
		t.Errorf("Body = %q, want empty", r.Body)
	}
	if got := r.Header.Get("Content-Length"); got != "0" {
		t.Errorf("Content-Length = %q, want 0", got)
	}
}

func TestSendStatusWithText(t *testing.T) {
	r := NewResponse()
	r.SendStatus(404)
	if string(r.Body) != "Not Found" {
		t.Errorf("Body = %q", r.Body)
	}
}

func TestStatusOutOfRangeIsInvalid(t *testing.T) {
	r := NewResponse()
	r.Status(999)
	if r.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", r.StatusCode)
	}
	if r.Header.Get("X-Error-Code") != "E_INVALID_STATUS" {
		t.Error("expected E_INVALID_STATUS header")
	}
}

func TestAutoSendString(t *testing.T) {
	r := NewResponse()
	AutoSend(r, "hello")
	if string(r.Body) != "hello" {
		t.Errorf("Body = %q, want hello", r.Body)
	}
	if !r.Sent() {
		t.Error("expected AutoSend to mark the response sent")
	}
}

func TestAutoSendJSONLikeValue(t *testing.T) {
	r := NewResponse()
	AutoSend(r, map[string]int{"a": 1})
	if string(r.Body) != `{"a":1}` {
		t.Errorf("Body = %s", r.Body)
	}
}

func TestAutoSendWithStatus(t *testing.T) {
	r := NewResponse()
	AutoSend(r, WithStatus{Code: 201, Payload: "created"})
	if r.StatusCode != 201 {
		t.Errorf("StatusCode = %d, want 201", r.StatusCode)
	}
	if string(r.Body) != "created" {
		t.Errorf("Body = %q, want created", r.Body)
	}
}

func TestAutoSendWithStatusNoPayload(t *testing.T) {
	r := NewResponse()
	AutoSend(r, WithStatus{Code: 204})
	if r.StatusCode != 204 {
		t.Errorf("StatusCode = %d, want 204", r.StatusCode)
	}
	if !r.Sent() {
		t.Error("expected AutoSend to mark the response sent")
	}
}

func TestAutoSendSkipsWhenAlreadySent(t *testing.T) {
	r := NewResponse()
	r.Text("explicit")
	AutoSend(r, "should be ignored")
	if string(r.Body) != "explicit" {
		t.Errorf("Body = %q, want explicit untouched", r.Body)
	}
}

func TestAutoSendSkipsNilReturn(t *testing.T) {
	r := NewResponse()
	AutoSend(r, nil)
	if r.Sent() {
		t.Error("expected AutoSend to leave a nil return unsent")
	}
}

func TestFileRejectsPathTraversal(t *testing.T) {
	r := NewResponse()
	r.File("../../etc/passwd")
	if r.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want 400", r.StatusCode)
	}
}

func TestFileServesIndexForDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewResponse()
	r.File(dir)
	if r.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", r.StatusCode)
	}
	if got := r.Header.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestFileMissingIsNotFound(t *testing.T) {
	r := NewResponse()
	r.File(filepath.Join(t.TempDir(), "missing.txt"))
	if r.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", r.StatusCode)
	}
}
