package waf

import "testing"

func TestOffModeAllowsEverything(t *testing.T) {
	r := Check(Request{Method: "POST", Target: "/x", Body: []byte("UNION SELECT * FROM users")}, Options{Mode: Off})
	if !r.Allowed {
		t.Fatal("off mode should allow everything")
	}
}

func TestStrictModeRejectsSQLInjectionBody(t *testing.T) {
	r := Check(Request{
		Method: "POST",
		Target: "/submit",
		Body:   []byte("UNION SELECT * FROM users"),
	}, Options{Mode: Strict, MaxTargetLen: 8192, MaxBodyBytes: 1 << 20})
	if r.Allowed {
		t.Fatal("expected strict mode to reject SQL injection payload")
	}
}

func TestBasicModeAllowsNonTriggeringBody(t *testing.T) {
	r := Check(Request{
		Method: "POST",
		Target: "/submit",
		Body:   []byte(`{"name":"alice"}`),
	}, Options{Mode: Basic, MaxTargetLen: 8192, MaxBodyBytes: 1 << 20})
	if !r.Allowed {
		t.Fatal("expected basic mode to allow a clean body")
	}
}

func TestNonMutatingMethodsBypassBodyCheck(t *testing.T) {
	r := Check(Request{
		Method: "GET",
		Target: "/safe",
		Body:   []byte("UNION SELECT * FROM users"), // irrelevant for GET
	}, Options{Mode: Strict, MaxTargetLen: 8192, MaxBodyBytes: 1 << 20})
	if !r.Allowed {
		t.Fatal("GET should bypass the body check entirely")
	}
}

func TestOversizedTargetRejected(t *testing.T) {
	longTarget := "/" + string(make([]byte, 100))
	r := Check(Request{Method: "GET", Target: longTarget}, Options{Mode: Basic, MaxTargetLen: 10})
	if r.Allowed {
		t.Fatal("expected rejection for oversized target")
	}
}

func TestTargetWithControlBytesRejected(t *testing.T) {
	r := Check(Request{Method: "GET", Target: "/foo\r\nbar"}, Options{Mode: Basic, MaxTargetLen: 8192})
	if r.Allowed {
		t.Fatal("expected rejection for CR/LF in target")
	}
}

func TestSuspiciousTargetXSSRejected(t *testing.T) {
	r := Check(Request{Method: "GET", Target: "/search?q=<script>alert(1)</script>"}, Options{Mode: Basic, MaxTargetLen: 8192})
	if r.Allowed {
		t.Fatal("expected rejection for XSS in target")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	r := Check(Request{Method: "POST", Target: "/x", Body: make([]byte, 100)}, Options{Mode: Basic, MaxTargetLen: 8192, MaxBodyBytes: 10})
	if r.Allowed {
		t.Fatal("expected rejection for oversized body")
	}
}
