// Command example is a minimal demonstration of embedding vixgo: a couple
// of plain routes, a group with its own middleware, and a heavy route
// that runs on the executor instead of the accepting goroutine.
package main

import (
	"net/http"
	"time"

	vix "github.com/vixgo/vixgo"
	"github.com/vixgo/vixgo/httpx"
	"github.com/vixgo/vixgo/pkg/logger"
	"github.com/vixgo/vixgo/router"
)

func main() {
	app := vix.New()

	app.Get("/healthz", func(req *httpx.Request, res *httpx.Response) interface{} {
		return map[string]string{"status": "ok"}
	})
	app.Metrics("/metrics")

	app.Use(func(req *httpx.Request, res *httpx.Response, next *vix.Next) {
		start := time.Now()
		next.Call()
		logger.Info("%s %s -> %d (%v)", req.Method, req.Path, res.StatusCode, time.Since(start))
	})

	api := app.Group("/api")
	api.Protect("/admin", func(req *httpx.Request, res *httpx.Response, next *vix.Next) {
		if req.Header("X-Admin-Token") == "" {
			res.Status(http.StatusUnauthorized).JSON(map[string]string{"error": "missing admin token"})
			return
		}
		next.Call()
	})

	api.Get("/users/{id}", func(req *httpx.Request, res *httpx.Response) interface{} {
		return map[string]string{"id": req.Param("id", "")}
	}, vix.WithDoc(router.Doc{Summary: "fetch a user by id", Tags: []string{"users"}}))

	api.PostHeavy("/reports", func(req *httpx.Request, res *httpx.Response) interface{} {
		time.Sleep(50 * time.Millisecond) // stand-in for a slow, CPU-bound report render
		return httpx.WithStatus{Code: http.StatusCreated, Payload: map[string]string{"status": "generated"}}
	})

	if err := app.Run(app.Config().ServerPort); err != nil {
		logger.Fatal("server error: %v", err)
	}
}
