// Package static serves files from a directory.
//
// Mount registers one GET route per file found at startup. FileHandler and
// UploadHandler work on a route parameter instead, against the directory the
// server injects into Request.StaticDir, so files created after startup are
// reachable too.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/searchktools/tiny-server/core/http"
	"github.com/searchktools/tiny-server/core/router"
)

var (
	ErrNotDirectory = errors.New("static: not a directory")
	ErrUnsafePath   = errors.New("static: path escapes directory")
)

// Registrar accepts route registrations.
type Registrar interface {
	Handle(method, pattern string, handler http.HandlerFunc)
}

// Mount registers GET <prefix>/<name> for every regular file directly inside
// dir and returns how many routes were added. Each handler reads its file in
// full on every request.
func Mount(r Registrar, prefix, dir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("static: resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("static: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return 0, fmt.Errorf("static: list %s: %w", abs, err)
	}

	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" {
		// Registrars panic on bad patterns; reject the prefix up front.
		if _, err := router.Compile(prefix); err != nil {
			return 0, fmt.Errorf("static: prefix: %w", err)
		}
	}
	count := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ":") {
			// Would be read as a route parameter.
			logger.Warn("static file skipped", slog.String("file", name))
			continue
		}

		r.Handle("GET", prefix+"/"+name, serveFile(filepath.Join(abs, name), logger))
		count++
	}

	logger.Info("static directory mounted",
		slog.String("prefix", prefix),
		slog.String("dir", abs),
		slog.Int("files", count))
	return count, nil
}

// serveFile returns a handler bound to one file path.
func serveFile(path string, logger *slog.Logger) http.HandlerFunc {
	return func(req *http.Request, res *http.Response) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("static file missing", slog.String("file", path))
			} else {
				logger.Error("static file read failed", slog.String("file", path), slog.Any("error", err))
			}
			res.Status(500).Send()
			return
		}
		res.SendBinary(data)
	}
}

// FileHandler serves <req.StaticDir>/<value of param>. The value may contain
// slashes. Unknown or unsafe names answer 404.
func FileHandler(param string, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(req *http.Request, res *http.Response) {
		if req.StaticDir == "" {
			res.Status(404).Send()
			return
		}

		path, err := Resolve(req.StaticDir, req.Param(param))
		if err != nil {
			res.Status(404).Send()
			return
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				res.Status(404).Send()
				return
			}
			logger.Error("file read failed", slog.String("file", path), slog.Any("error", err))
			res.Status(500).Send()
			return
		}
		res.SendBinary(data)
	}
}

// UploadHandler writes the request body to <req.StaticDir>/<value of param>
// and answers 201.
func UploadHandler(param string, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(req *http.Request, res *http.Response) {
		if req.StaticDir == "" {
			res.Status(404).Send()
			return
		}

		path, err := Resolve(req.StaticDir, req.Param(param))
		if err != nil {
			res.Status(404).Send()
			return
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Error("file upload failed", slog.String("file", path), slog.Any("error", err))
			res.Status(500).Send()
			return
		}
		if err := os.WriteFile(path, req.Body, 0o644); err != nil {
			logger.Error("file upload failed", slog.String("file", path), slog.Any("error", err))
			res.Status(500).Send()
			return
		}
		res.Status(201).Send()
	}
}

// Resolve joins a slash-separated name onto dir, rejecting names that are
// empty, absolute or climb out of dir.
func Resolve(dir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, local), nil
}
