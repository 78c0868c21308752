package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	// ErrMalformedRequestLine is returned when the first line does not hold
	// METHOD, PATH and PROTOCOL. It is fatal for the connection.
	ErrMalformedRequestLine = errors.New("malformed request line")

	// ErrMalformedHeaderLine marks a header line that is not "Name: Value".
	// Such lines are logged and skipped.
	ErrMalformedHeaderLine = errors.New("malformed header line")
)

// Parser turns a raw buffer read from a connection into a Request.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that reports skipped header lines to logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseRequest parses data with a parser logging to slog.Default().
func ParseRequest(data []byte) (*Request, error) {
	return (&Parser{}).Parse(data)
}

// Parse parses one request. The returned Request does not alias data, so the
// caller may reuse the buffer.
//
// The body is the Content-Length bytes following the blank line when that
// header is present and valid. Without it, the last non-empty line after the
// blank line is taken as the body, which only works for single-line bodies.
func (p *Parser) Parse(data []byte) (*Request, error) {
	line, rest := nextLine(data)

	// Parse METHOD SP PATH SP PROTO; tokens past the third are ignored
	parts := strings.Split(string(line), " ")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	req := NewRequest(parts[0], parts[1], parts[2])

	// Parse headers up to the first blank line
	terminated := false
	for len(rest) > 0 {
		line, rest = nextLine(rest)
		if len(line) == 0 {
			terminated = true
			break
		}
		if err := parseHeader(req, line); err != nil {
			p.log().Warn("skipping header line", slog.Any("error", err))
		}
	}

	if terminated && len(rest) > 0 {
		req.Body = parseBody(req, rest)
	}

	return req, nil
}

func (p *Parser) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// nextLine splits off the first line, without its "\n" or "\r\n" ending.
func nextLine(data []byte) (line, rest []byte) {
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		line = data
	} else {
		line, rest = data[:lineEnd], data[lineEnd+1:]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, rest
}

// parseHeader parses a "Name: Value" line into req. The line must split on
// ": " into exactly two parts.
func parseHeader(req *Request, line []byte) error {
	parts := strings.Split(string(line), ": ")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q", ErrMalformedHeaderLine, line)
	}
	name, value := parts[0], strings.TrimSpace(parts[1])

	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w: %q", ErrMalformedHeaderLine, line)
	}

	req.Headers[strings.ToLower(name)] = value
	return nil
}

// parseBody extracts the body from whatever follows the header block.
func parseBody(req *Request, data []byte) []byte {
	if cl, ok := req.Headers["content-length"]; ok {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			// Requests longer than the read buffer are truncated.
			n = min(n, len(data))
			if n == 0 {
				return nil
			}
			return bytes.Clone(data[:n])
		}
	}

	var last []byte
	for len(data) > 0 {
		var line []byte
		line, data = nextLine(data)
		if len(line) > 0 {
			last = line
		}
	}
	if last == nil {
		return nil
	}
	return bytes.Clone(last)
}
