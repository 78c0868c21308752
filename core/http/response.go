package http

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// Header names emitted by the framework
const (
	HeaderContentType     = "Content-Type"
	HeaderContentLength   = "Content-Length"
	HeaderContentEncoding = "Content-Encoding"
	HeaderAcceptEncoding  = "Accept-Encoding"
)

// Content types used by the terminal operations
const (
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// ErrResponseSent is returned by a terminal operation on a response that has
// already been written.
var ErrResponseSent = errors.New("response already sent")

// Encodings advertised back when the client accepts them. Nothing is
// compressed; the header is only echoed.
var supportedEncodings = []string{"gzip", "br"}

type header struct {
	name  string
	value string
}

// Response accumulates a status and headers and writes them, with an
// optional body, to the connection in one terminal operation.
type Response struct {
	status  int
	headers []header
	conn    io.WriteCloser
	req     *Request
	sent    bool

	buf []byte
}

// NewResponse creates a 200 response bound to conn. req is only read, for
// content negotiation, and may be nil.
func NewResponse(conn io.WriteCloser, req *Request) *Response {
	return &Response{
		status: 200,
		conn:   conn,
		req:    req,
	}
}

// Status sets the status code. Codes other than 200, 201 and 404 are
// rendered as 500.
func (r *Response) Status(code int) *Response {
	switch code {
	case 200, 201, 404:
		r.status = code
	default:
		r.status = 500
	}
	return r
}

// StatusCode returns the status that will be (or was) written.
func (r *Response) StatusCode() int {
	return r.status
}

// AddHeader appends a header. Repeated names are all emitted, in order.
func (r *Response) AddHeader(name, value string) *Response {
	r.headers = append(r.headers, header{name: name, value: value})
	return r
}

// Header returns the headers added so far as "Name: Value" lines.
func (r *Response) Header() []string {
	lines := make([]string, len(r.headers))
	for i, h := range r.headers {
		lines[i] = h.name + ": " + h.value
	}
	return lines
}

// Sent reports whether a terminal operation has run.
func (r *Response) Sent() bool {
	return r.sent
}

// Send writes the status line and headers with no body, then closes the
// connection.
func (r *Response) Send() error {
	return r.write(nil)
}

// SendText writes body as text/plain, then closes the connection.
func (r *Response) SendText(body string) error {
	if r.sent {
		return ErrResponseSent
	}
	r.AddHeader(HeaderContentType, ContentTypeText)
	r.AddHeader(HeaderContentLength, strconv.Itoa(len(body)))
	return r.write([]byte(body))
}

// SendBinary writes body as application/octet-stream, then closes the
// connection.
func (r *Response) SendBinary(body []byte) error {
	if r.sent {
		return ErrResponseSent
	}
	r.AddHeader(HeaderContentType, ContentTypeBinary)
	r.AddHeader(HeaderContentLength, strconv.Itoa(len(body)))
	return r.write(body)
}

func (r *Response) write(body []byte) error {
	if r.sent {
		return ErrResponseSent
	}
	r.sent = true

	if enc := negotiateEncoding(r.req.Header(HeaderAcceptEncoding)); enc != "" {
		r.AddHeader(HeaderContentEncoding, enc)
	}

	r.buf = r.buf[:0]
	r.buf = append(r.buf, statusLine(r.status)...)
	for _, h := range r.headers {
		r.buf = append(r.buf, h.name...)
		r.buf = append(r.buf, ": "...)
		r.buf = append(r.buf, h.value...)
		r.buf = append(r.buf, "\r\n"...)
	}
	r.buf = append(r.buf, "\r\n"...)
	r.buf = append(r.buf, body...)

	_, err := r.conn.Write(r.buf)
	return errors.Join(err, r.conn.Close())
}

// negotiateEncoding returns the first supported token of an Accept-Encoding
// list, in the client's order.
func negotiateEncoding(accept string) string {
	if accept == "" {
		return ""
	}
	for _, token := range strings.Split(accept, ",") {
		token = strings.TrimSpace(token)
		for _, enc := range supportedEncodings {
			if token == enc {
				return enc
			}
		}
	}
	return ""
}

// statusLine returns the full status line, CRLF included.
func statusLine(code int) string {
	switch code {
	case 200:
		return "HTTP/1.1 200 OK\r\n"
	case 201:
		return "HTTP/1.1 201 Created\r\n"
	case 404:
		return "HTTP/1.1 404 Not Found\r\n"
	default:
		return "HTTP/1.1 500 Internal Server Error\r\n"
	}
}
