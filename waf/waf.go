// Package waf implements vixgo's layer-7 request filter, run after read and
// before dispatch. It is fail-closed: any internal error (e.g. a regex
// panic) rejects the request rather than letting it through.
package waf

import (
	"regexp"
	"strings"
)

// Mode selects how aggressively the gate inspects requests.
type Mode string

const (
	Off    Mode = "off"
	Basic  Mode = "basic"
	Strict Mode = "strict"
)

var (
	xssRegex = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	sqlRegex = regexp.MustCompile(`(?i)\b(UNION|SELECT|INSERT|DELETE|UPDATE|DROP)\b`)
)

// Request is the minimal view of an HTTP request the gate inspects — just
// enough that session doesn't have to depend on httpx before the request
// has even been routed.
type Request struct {
	Method string
	Target string
	Body   []byte
}

// Options configures the gate's thresholds, sourced from the
// waf_max_target_len / waf_max_body_bytes configuration keys.
type Options struct {
	Mode         Mode
	MaxTargetLen int
	MaxBodyBytes int64
}

// Result reports the gate's verdict.
type Result struct {
	Allowed bool
	Reason  string
}

func allow() Result { return Result{Allowed: true} }

func reject(reason string) Result { return Result{Allowed: false, Reason: reason} }

// Check runs target checks first regardless of method, then a body
// inspection gated by method and mode. Any panic from the regex engine is
// recovered and treated as a rejection (fail-closed).
func Check(req Request, opts Options) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = reject("internal filter error")
		}
	}()

	if opts.Mode == Off {
		return allow()
	}

	if (opts.MaxTargetLen > 0 && len(req.Target) > opts.MaxTargetLen) || containsControlBytes(req.Target) {
		return reject("invalid target")
	}

	lowerTarget := strings.ToLower(req.Target)
	if looksSuspicious(lowerTarget) && xssRegex.MatchString(req.Target) {
		return reject("suspicious target")
	}

	if !isMutating(req.Method) {
		return allow()
	}
	if len(req.Body) == 0 {
		return allow()
	}
	if opts.MaxBodyBytes > 0 && int64(len(req.Body)) > opts.MaxBodyBytes {
		return reject("body too large")
	}

	triggered := looksSuspicious(strings.ToLower(string(req.Body)))
	if opts.Mode == Basic && !triggered {
		return allow()
	}
	if sqlRegex.Match(req.Body) || xssRegex.Match(req.Body) {
		return reject("request blocked (security)")
	}
	return allow()
}

func containsControlBytes(s string) bool {
	return strings.ContainsAny(s, "\x00\r\n")
}

// looksSuspicious is the cheap pre-check gating the more expensive regex
// match.
func looksSuspicious(lower string) bool {
	for _, token := range []string{"<", "script", "union", "select", "drop", "insert", "delete", "update"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func isMutating(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}
