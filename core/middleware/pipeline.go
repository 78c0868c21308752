package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/searchktools/tiny-server/core/http"
)

// Middleware wraps a handler
type Middleware func(next http.HandlerFunc) http.HandlerFunc

// Pipeline is an ordered list of middlewares. The first one added is the
// outermost.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]Middleware, 0, 8),
	}
}

// Use adds a middleware to the pipeline
func (p *Pipeline) Use(mw Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, mw)
	return p
}

// Len returns the number of middlewares
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Then wraps final with every middleware. The result is fixed; later Use
// calls do not affect it.
func (p *Pipeline) Then(final http.HandlerFunc) http.HandlerFunc {
	h := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		h = p.middlewares[i](h)
	}
	return h
}

// Common middleware implementations

// Recovery recovers from handler panics and answers 500 if nothing has been
// sent yet.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request, res *http.Response) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						slog.String("method", req.Method),
						slog.String("path", req.Path),
						slog.Any("panic", err),
						slog.String("stack", string(debug.Stack())))
					if !res.Sent() {
						res.Status(500).Send()
					}
				}
			}()
			next(req, res)
		}
	}
}

// AccessLog logs one line per request after the handler returns
func AccessLog(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request, res *http.Response) {
			start := time.Now()
			next(req, res)
			logger.Info("request",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.String("route", req.Pattern),
				slog.Int("status", res.StatusCode()),
				slog.Duration("duration", time.Since(start)))
		}
	}
}

// RequestID adds a unique X-Request-ID response header
func RequestID() Middleware {
	var counter atomic.Uint64

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request, res *http.Response) {
			id := counter.Add(1)
			res.AddHeader("X-Request-ID", fmt.Sprintf("%d", id))
			next(req, res)
		}
	}
}
