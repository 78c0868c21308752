package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/tiny-server/core/http"
)

type bufConn struct {
	bytes.Buffer
}

func (c *bufConn) Close() error { return nil }

func TestCodecFor(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"", "json"},
		{"*/*", "json"},
		{"application/x-protobuf", "protobuf"},
		{"text/plain, application/x-protobuf;q=0.9", "protobuf"},
		{"Application/X-Protobuf", "protobuf"},
	}

	for _, tt := range tests {
		if got := CodecFor(tt.accept).Name(); got != tt.want {
			t.Errorf("CodecFor(%q): expected %s, got %s", tt.accept, tt.want, got)
		}
	}
}

func TestEncodeStatsRoundTrip(t *testing.T) {
	snap := Snapshot{
		TotalRequests: 3,
		TotalErrors:   1,
		Routes: []RouteStats{
			{Route: "GET /", Count: 3, Errors: 1, AvgDuration: 2 * time.Millisecond},
		},
	}

	for _, codec := range []Codec{ProtobufCodec{}, JSONCodec{}} {
		data, err := EncodeStats(codec, snap.Fields())
		if err != nil {
			t.Fatalf("%s: EncodeStats failed: %v", codec.Name(), err)
		}

		var decoded structpb.Struct
		if err := codec.Decode(data, &decoded); err != nil {
			t.Fatalf("%s: Decode failed: %v", codec.Name(), err)
		}

		fields := decoded.AsMap()
		if fields["total_requests"] != float64(3) {
			t.Errorf("%s: expected total_requests 3, got %v", codec.Name(), fields["total_requests"])
		}
		routes, ok := fields["routes"].([]any)
		if !ok || len(routes) != 1 {
			t.Fatalf("%s: expected one route, got %v", codec.Name(), fields["routes"])
		}
		route := routes[0].(map[string]any)
		if route["route"] != "GET /" || route["avg_duration_ms"] != float64(2) {
			t.Errorf("%s: unexpected route %v", codec.Name(), route)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	source := func() map[string]any {
		return map[string]any{"workers": 4}
	}
	h := StatsHandler(source, nil)

	// JSON text by default
	conn := &bufConn{}
	req := http.NewRequest("GET", "/debug/stats", "HTTP/1.1")
	h(req, http.NewResponse(conn, req))

	out := conn.String()
	if !strings.Contains(out, "Content-Type: text/plain\r\n") || !strings.Contains(out, `"workers"`) {
		t.Errorf("Unexpected JSON stats response %q", out)
	}

	// Protobuf when asked for
	conn = &bufConn{}
	req = http.NewRequest("GET", "/debug/stats", "HTTP/1.1")
	req.SetHeader("Accept", ContentTypeProtobuf)
	h(req, http.NewResponse(conn, req))

	head, body, found := strings.Cut(conn.String(), "\r\n\r\n")
	if !found || !strings.Contains(head, "Content-Type: application/octet-stream") {
		t.Fatalf("Unexpected protobuf stats response %q", conn.String())
	}

	var decoded structpb.Struct
	if err := (ProtobufCodec{}).Decode([]byte(body), &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.AsMap()["workers"] != float64(4) {
		t.Errorf("Expected workers=4, got %v", decoded.AsMap())
	}
}

func TestStatsHandlerEncodingError(t *testing.T) {
	h := StatsHandler(func() map[string]any {
		return map[string]any{"bad": make(chan int)}
	}, nil)

	conn := &bufConn{}
	req := http.NewRequest("GET", "/debug/stats", "HTTP/1.1")
	h(req, http.NewResponse(conn, req))

	if conn.String() != "HTTP/1.1 500 Internal Server Error\r\n\r\n" {
		t.Errorf("Expected 500, got %q", conn.String())
	}
}
