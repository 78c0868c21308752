package http

import (
	"context"
	"strings"
)

// HandlerFunc handles one request. It must finish with exactly one terminal
// Response operation (Send, SendText or SendBinary).
type HandlerFunc func(req *Request, res *Response)

// Request is one parsed HTTP request. It lives for a single connection.
type Request struct {
	Method string
	Path   string
	Proto  string

	// Headers are keyed by lower-cased name.
	Headers map[string]string

	// Params holds path captures; filled by the router after a match.
	Params map[string]string

	// Pattern is the route pattern that matched, empty until dispatch.
	Pattern string

	// Body is nil when the request carried none.
	Body []byte

	// StaticDir is the static mount directory, if the server has one.
	StaticDir string

	ctx context.Context
}

// NewRequest returns a request with empty header and param maps.
func NewRequest(method, path, proto string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Proto:   proto,
		Headers: make(map[string]string),
		Params:  make(map[string]string),
	}
}

// Header looks a header up case-insensitively.
func (r *Request) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// SetHeader stores a header under its lower-cased name.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// Param returns a path parameter, or "" if absent.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext sets the request context in place and returns r.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("nil context")
	}
	r.ctx = ctx
	return r
}
