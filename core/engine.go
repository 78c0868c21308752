package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/searchktools/tiny-server/core/http"
	"github.com/searchktools/tiny-server/core/middleware"
	"github.com/searchktools/tiny-server/core/observability"
	"github.com/searchktools/tiny-server/core/pools"
	"github.com/searchktools/tiny-server/core/router"
	"github.com/searchktools/tiny-server/core/sockopt"
	"github.com/searchktools/tiny-server/core/static"
)

// DefaultBodyLimit is the most bytes read from a connection.
const DefaultBodyLimit = 100 * 1024

// acceptRetryDelay is how long Serve waits after a failed Accept.
const acceptRetryDelay = 5 * time.Millisecond

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Workers   int
	BodyLimit int

	// Deadlines applied to each connection; zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger  *slog.Logger
	Monitor *observability.Monitor
}

// Engine accepts connections and runs each one on the worker pool: one read,
// one request, one response, then close.
type Engine struct {
	router   *router.Router
	pipeline *middleware.Pipeline
	parser   *http.Parser
	bytePool *pools.BytePool
	workers  *pools.WorkerPool
	monitor  *observability.Monitor
	logger   *slog.Logger

	bodyLimit    int
	readTimeout  time.Duration
	writeTimeout time.Duration

	staticDir string

	// The route list and pipeline are frozen into handler on first use.
	freeze  sync.Once
	frozen  atomic.Bool
	handler http.HandlerFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	accepted  atomic.Uint64
	malformed atomic.Uint64
}

// NewEngine creates an engine and starts its worker pool.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}

	monitor := opts.Monitor
	if monitor == nil {
		m, err := observability.NewMonitor(nil, nil)
		if err != nil {
			logger.Warn("global telemetry unavailable, metrics disabled", slog.Any("error", err))
			m, _ = observability.NewMonitor(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
		}
		monitor = m
	}

	e := &Engine{
		router:       router.New(),
		pipeline:     middleware.NewPipeline(),
		parser:       http.NewParser(logger),
		bytePool:     pools.NewBytePool(),
		workers:      pools.NewWorkerPool(opts.Workers, logger),
		monitor:      monitor,
		logger:       logger,
		bodyLimit:    opts.BodyLimit,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}

	logger.Debug("engine initialized",
		slog.Int("workers", e.workers.Stats().NumWorkers),
		slog.Int("body_limit", e.bodyLimit))
	return e
}

// Handle registers a route. Routes match in registration order. It panics if
// the pattern is invalid or serving has already started.
func (e *Engine) Handle(method, pattern string, handler http.HandlerFunc) {
	if e.frozen.Load() {
		panic(fmt.Sprintf("core: route %s %s registered after serving started", method, pattern))
	}
	if err := e.router.Add(method, pattern, handler); err != nil {
		panic(err)
	}
}

// GET registers a GET route
func (e *Engine) GET(pattern string, handler http.HandlerFunc) {
	e.Handle("GET", pattern, handler)
}

// POST registers a POST route
func (e *Engine) POST(pattern string, handler http.HandlerFunc) {
	e.Handle("POST", pattern, handler)
}

// PUT registers a PUT route
func (e *Engine) PUT(pattern string, handler http.HandlerFunc) {
	e.Handle("PUT", pattern, handler)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(pattern string, handler http.HandlerFunc) {
	e.Handle("DELETE", pattern, handler)
}

// PATCH registers a PATCH route
func (e *Engine) PATCH(pattern string, handler http.HandlerFunc) {
	e.Handle("PATCH", pattern, handler)
}

// HEAD registers a HEAD route
func (e *Engine) HEAD(pattern string, handler http.HandlerFunc) {
	e.Handle("HEAD", pattern, handler)
}

// OPTIONS registers an OPTIONS route
func (e *Engine) OPTIONS(pattern string, handler http.HandlerFunc) {
	e.Handle("OPTIONS", pattern, handler)
}

// Use appends a middleware. The first one added runs outermost.
func (e *Engine) Use(mw middleware.Middleware) {
	if e.frozen.Load() {
		panic("core: middleware added after serving started")
	}
	e.pipeline.Use(mw)
}

// Static mounts dir under prefix and makes it the directory handed to
// handlers through Request.StaticDir. Only one mount is allowed; later calls
// are logged and return ErrStaticMounted.
func (e *Engine) Static(prefix, dir string) error {
	if e.staticDir != "" {
		e.logger.Warn("static directory already mounted, ignoring",
			slog.String("mounted", e.staticDir),
			slog.String("dir", dir))
		return ErrStaticMounted
	}

	if _, err := static.Mount(e, prefix, dir, e.logger); err != nil {
		return err
	}
	e.staticDir = dir
	return nil
}

// StaticDir returns the mounted static directory, or "".
func (e *Engine) StaticDir() string {
	return e.staticDir
}

// Monitor returns the request monitor.
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Listen opens a TCP listener with the engine's socket options.
func (e *Engine) Listen(addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: sockopt.Control}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Run listens on addr and serves until Shutdown.
func (e *Engine) Run(addr string) error {
	ln, err := e.Listen(addr)
	if err != nil {
		return err
	}
	return e.Serve(ln)
}

// Serve accepts connections from ln and submits each to the worker pool. It
// returns nil once the listener is closed by Shutdown.
func (e *Engine) Serve(ln net.Listener) error {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		ln.Close()
		return ErrEngineClosed
	case e.listener != nil:
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.listener = ln
	e.mu.Unlock()

	e.frozenHandler()
	e.logger.Info("server listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("workers", e.workers.Stats().NumWorkers))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			e.logger.Error("accept failed", slog.Any("error", err))
			time.Sleep(acceptRetryDelay)
			continue
		}

		e.accepted.Add(1)
		if !e.workers.Submit(func() { e.ServeConn(conn) }) {
			conn.Close()
			return nil
		}
	}
}

// ServeConn handles a single connection on the calling goroutine and closes
// it before returning.
func (e *Engine) ServeConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	if err := sockopt.TuneConn(conn); err != nil {
		e.logger.Debug("socket tuning failed", slog.Any("error", err))
	}
	if e.readTimeout > 0 {
		conn.SetReadDeadline(start.Add(e.readTimeout))
	}
	if e.writeTimeout > 0 {
		conn.SetWriteDeadline(start.Add(e.writeTimeout))
	}

	buf := e.bytePool.Get(e.bodyLimit)
	defer e.bytePool.Put(buf)

	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			e.logger.Debug("read failed", slog.String("remote", remoteAddr(conn)), slog.Any("error", err))
		}
		return
	}

	req, err := e.parser.Parse(buf[:n])
	if err != nil {
		e.malformed.Add(1)
		e.logger.Warn("dropping connection",
			slog.String("remote", remoteAddr(conn)),
			slog.Any("error", err))
		return
	}
	req.StaticDir = e.staticDir

	ctx, span := e.monitor.StartSpan(context.Background(), req.Method)
	req.WithContext(ctx)
	res := http.NewResponse(conn, req)

	e.frozenHandler()(req, res)

	if !res.Sent() {
		e.logger.Error("handler returned without sending a response",
			slog.String("method", req.Method),
			slog.String("path", req.Path))
		if err := res.Status(500).Send(); err != nil {
			e.logger.Debug("write failed", slog.Any("error", err))
		}
	}

	status := res.StatusCode()
	e.monitor.EndSpan(span, req.Method, req.Pattern, status)
	e.monitor.RecordRequest(ctx, req.Method, req.Pattern, status, time.Since(start))
}

// frozenHandler builds the middleware chain around the router once.
func (e *Engine) frozenHandler() http.HandlerFunc {
	e.freeze.Do(func() {
		e.frozen.Store(true)
		e.handler = e.pipeline.Then(e.router.Dispatch)
	})
	return e.handler
}

// Shutdown stops accepting connections and waits for queued and running
// connections to finish, or for ctx to be done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ln := e.listener
	e.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}

	done := make(chan struct{})
	go func() {
		e.workers.Close()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("server stopped")
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
