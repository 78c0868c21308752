package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/tiny-server/config"
	"github.com/searchktools/tiny-server/core/http"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.LogLevel = "error"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = config.LogFormatJSON

	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("hello", "port", 4221)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected a JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["port"] != float64(4221) {
		t.Errorf("Unexpected record %v", record)
	}

	buf.Reset()
	cfg.LogFormat = config.LogFormatText
	cfg.LogLevel = "warn"
	NewLogger(cfg, &buf).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}
}

// runApp starts application in the background. The returned stop function
// cancels it and checks that it shut down cleanly.
func runApp(t *testing.T, application *App) (addr string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.RunContext(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for application.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if application.Addr() == nil {
		cancel()
		t.Fatal("server did not start")
	}

	stop = func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("RunContext returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("RunContext did not return after cancel")
		}
	}
	return application.Addr().String(), stop
}

func get(t *testing.T, addr, path string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	io.WriteString(conn, "GET "+path+" HTTP/1.1\r\n\r\n")
	data, _ := io.ReadAll(conn)
	return string(data)
}

func okHandler(req *http.Request, res *http.Response) {
	res.SendText("ok")
}

func TestRunContext(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.Directory = dir
	application := New(cfg)
	application.Engine().GET("/", okHandler)

	addr, stop := runApp(t, application)
	defer stop()

	// Only the framework's own headers by default
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nok"
	if got := get(t, addr, "/"); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if got := get(t, addr, "/files/a.txt"); !strings.HasSuffix(got, "\r\n\r\nA") {
		t.Errorf("Expected the static file, got %q", got)
	}
}

func TestRunContextRequestID(t *testing.T) {
	cfg := testConfig(t)
	cfg.RequestID = true
	application := New(cfg)
	application.Engine().GET("/", okHandler)

	addr, stop := runApp(t, application)
	defer stop()

	if got := get(t, addr, "/"); !strings.Contains(got, "\r\nX-Request-ID: ") {
		t.Errorf("Expected an X-Request-ID header, got %q", got)
	}
}

func TestNewStaticMountFailures(t *testing.T) {
	tests := []struct {
		name      string
		directory string
		prefix    string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "missing"), "/files"},
		{"relative prefix", t.TempDir(), "files"},
	}

	for _, tt := range tests {
		cfg := testConfig(t)
		cfg.Directory = tt.directory
		cfg.StaticPrefix = tt.prefix

		// Best effort: the failed mount is logged and startup continues
		application := New(cfg)
		if dir := application.Engine().StaticDir(); dir != "" {
			t.Errorf("%s: expected no static directory, got %q", tt.name, dir)
		}
		application.Engine().Shutdown(context.Background())
	}
}

func TestRunContextListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	if err := New(cfg).RunContext(context.Background()); err == nil {
		t.Error("Expected an error for a port in use")
	}
}
