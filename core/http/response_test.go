package http

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// recordConn captures what a Response writes.
type recordConn struct {
	bytes.Buffer
	closed int
}

func (c *recordConn) Close() error {
	c.closed++
	return nil
}

type failConn struct{ closed bool }

var errWrite = errors.New("write failed")

func (c *failConn) Write(p []byte) (int, error) { return 0, errWrite }
func (c *failConn) Close() error               { c.closed = true; return nil }

func TestResponseSendText(t *testing.T) {
	conn := &recordConn{}
	res := NewResponse(conn, NewRequest("GET", "/echo/hi", "HTTP/1.1"))

	if err := res.SendText("hi"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 2\r\n" +
		"\r\n" +
		"hi"
	if got := conn.String(); got != want {
		t.Errorf("Unexpected response:\n got %q\nwant %q", got, want)
	}
	if conn.closed != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closed)
	}
	if !res.Sent() {
		t.Error("Expected Sent() after a terminal operation")
	}
}

func TestResponseSendBinary(t *testing.T) {
	conn := &recordConn{}
	res := NewResponse(conn, nil)

	if err := res.Status(201).SendBinary([]byte{0x00, 0x01, 0xff}); err != nil {
		t.Fatalf("SendBinary failed: %v", err)
	}

	want := "HTTP/1.1 201 Created\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Length: 3\r\n" +
		"\r\n" +
		"\x00\x01\xff"
	if got := conn.String(); got != want {
		t.Errorf("Unexpected response:\n got %q\nwant %q", got, want)
	}
}

func TestResponseSend(t *testing.T) {
	conn := &recordConn{}
	res := NewResponse(conn, nil)

	if err := res.Status(404).Send(); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := conn.String(); got != "HTTP/1.1 404 Not Found\r\n\r\n" {
		t.Errorf("Unexpected response %q", got)
	}
}

func TestResponseStatus(t *testing.T) {
	tests := []struct {
		code int
		want int
		line string
	}{
		{200, 200, "HTTP/1.1 200 OK\r\n"},
		{201, 201, "HTTP/1.1 201 Created\r\n"},
		{404, 404, "HTTP/1.1 404 Not Found\r\n"},
		{500, 500, "HTTP/1.1 500 Internal Server Error\r\n"},
		{418, 500, "HTTP/1.1 500 Internal Server Error\r\n"},
		{302, 500, "HTTP/1.1 500 Internal Server Error\r\n"},
		{-1, 500, "HTTP/1.1 500 Internal Server Error\r\n"},
	}

	for _, tt := range tests {
		conn := &recordConn{}
		res := NewResponse(conn, nil).Status(tt.code)
		if res.StatusCode() != tt.want {
			t.Errorf("Status(%d): expected %d, got %d", tt.code, tt.want, res.StatusCode())
		}
		res.Send()
		if !strings.HasPrefix(conn.String(), tt.line) {
			t.Errorf("Status(%d): expected status line %q, got %q", tt.code, tt.line, conn.String())
		}
	}
}

func TestResponseHeadersKeepOrderAndDuplicates(t *testing.T) {
	conn := &recordConn{}
	res := NewResponse(conn, nil).
		AddHeader("X-B", "2").
		AddHeader("X-A", "1").
		AddHeader("X-B", "3")

	res.Send()

	want := "HTTP/1.1 200 OK\r\nX-B: 2\r\nX-A: 1\r\nX-B: 3\r\n\r\n"
	if got := conn.String(); got != want {
		t.Errorf("Unexpected response:\n got %q\nwant %q", got, want)
	}
}

func TestResponseContentEncoding(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"deflate, gzip", "gzip"},
		{"br, gzip", "br"},
		{" gzip ", "gzip"},
		{"deflate", ""},
		{"gzipx, identity", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := NewRequest("GET", "/", "HTTP/1.1")
		if tt.accept != "" {
			req.SetHeader("Accept-Encoding", tt.accept)
		}

		conn := &recordConn{}
		NewResponse(conn, req).SendText("x")

		got := conn.String()
		has := strings.Contains(got, "Content-Encoding: ")
		if tt.want == "" {
			if has {
				t.Errorf("Accept-Encoding %q: expected no Content-Encoding, got %q", tt.accept, got)
			}
			continue
		}
		if !strings.Contains(got, "\r\nContent-Encoding: "+tt.want+"\r\n") {
			t.Errorf("Accept-Encoding %q: expected Content-Encoding %s, got %q", tt.accept, tt.want, got)
		}
	}
}

func TestResponseSingleTerminalOperation(t *testing.T) {
	conn := &recordConn{}
	res := NewResponse(conn, nil)

	if err := res.SendText("first"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	written := conn.Len()

	for _, send := range []func() error{
		res.Send,
		func() error { return res.SendText("again") },
		func() error { return res.SendBinary([]byte("again")) },
	} {
		if err := send(); !errors.Is(err, ErrResponseSent) {
			t.Errorf("Expected ErrResponseSent, got %v", err)
		}
	}

	if conn.Len() != written || conn.closed != 1 {
		t.Errorf("Expected nothing written after the first terminal operation")
	}
	if got := len(res.Header()); got != 2 {
		t.Errorf("Expected headers untouched by rejected sends, got %d", got)
	}
}

func TestResponseWriteError(t *testing.T) {
	conn := &failConn{}
	err := NewResponse(conn, nil).SendText("x")

	if !errors.Is(err, errWrite) {
		t.Errorf("Expected write error, got %v", err)
	}
	if !conn.closed {
		t.Error("Expected connection closed even when the write fails")
	}
}
