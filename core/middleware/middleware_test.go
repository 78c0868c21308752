package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/searchktools/tiny-server/core/http"
)

type bufConn struct {
	bytes.Buffer
}

func (c *bufConn) Close() error { return nil }

func newExchange() (*http.Request, *http.Response, *bufConn) {
	conn := &bufConn{}
	req := http.NewRequest("GET", "/test", "HTTP/1.1")
	return req, http.NewResponse(conn, req), conn
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineOrder tests middleware execution order
func TestPipelineOrder(t *testing.T) {
	pipeline := NewPipeline()

	order := []int{}
	mark := func(n int) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(req *http.Request, res *http.Response) {
				order = append(order, n)
				next(req, res)
			}
		}
	}

	pipeline.Use(mark(1)).Use(mark(2)).Use(mark(3))

	h := pipeline.Then(func(req *http.Request, res *http.Response) {
		order = append(order, 0)
		res.Send()
	})

	req, res, _ := newExchange()
	h(req, res)

	want := []int{1, 2, 3, 0}
	if len(order) != len(want) {
		t.Fatalf("Expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected order %v, got %v", want, order)
			break
		}
	}
}

// TestPipelineShortCircuit tests a middleware answering without calling next
func TestPipelineShortCircuit(t *testing.T) {
	pipeline := NewPipeline()

	finalExecuted := false
	pipeline.Use(func(next http.HandlerFunc) http.HandlerFunc {
		return func(req *http.Request, res *http.Response) {
			res.Status(404).Send()
		}
	})

	h := pipeline.Then(func(req *http.Request, res *http.Response) {
		finalExecuted = true
	})

	req, res, conn := newExchange()
	h(req, res)

	if finalExecuted {
		t.Error("Final handler should not be executed after short circuit")
	}
	if conn.String() != "HTTP/1.1 404 Not Found\r\n\r\n" {
		t.Errorf("Unexpected response %q", conn.String())
	}
}

func TestPipelineEmpty(t *testing.T) {
	executed := false
	h := NewPipeline().Then(func(req *http.Request, res *http.Response) {
		executed = true
	})

	req, res, _ := newExchange()
	h(req, res)

	if !executed {
		t.Error("Final handler was not executed")
	}
}

func TestRecovery(t *testing.T) {
	h := NewPipeline().Use(Recovery(quietLogger())).Then(func(req *http.Request, res *http.Response) {
		panic("handler bug")
	})

	req, res, conn := newExchange()
	h(req, res)

	if conn.String() != "HTTP/1.1 500 Internal Server Error\r\n\r\n" {
		t.Errorf("Expected 500 after panic, got %q", conn.String())
	}
}

func TestRecoveryAfterSend(t *testing.T) {
	h := NewPipeline().Use(Recovery(quietLogger())).Then(func(req *http.Request, res *http.Response) {
		res.SendText("ok")
		panic("late bug")
	})

	req, res, conn := newExchange()
	h(req, res)

	if !strings.HasPrefix(conn.String(), "HTTP/1.1 200 OK\r\n") || strings.Count(conn.String(), "HTTP/1.1") != 1 {
		t.Errorf("Expected the original response only, got %q", conn.String())
	}
}

func TestAccessLog(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	h := NewPipeline().Use(AccessLog(logger)).Then(func(req *http.Request, res *http.Response) {
		res.Status(201).Send()
	})

	req, res, _ := newExchange()
	h(req, res)

	out := logs.String()
	for _, want := range []string{"method=GET", "path=/test", "status=201"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected access log to contain %q, got %q", want, out)
		}
	}
}

func TestRequestID(t *testing.T) {
	h := NewPipeline().Use(RequestID()).Then(func(req *http.Request, res *http.Response) {
		res.Send()
	})

	for _, want := range []string{"X-Request-ID: 1\r\n", "X-Request-ID: 2\r\n"} {
		req, res, conn := newExchange()
		h(req, res)
		if !strings.Contains(conn.String(), want) {
			t.Errorf("Expected %q in %q", want, conn.String())
		}
	}
}
