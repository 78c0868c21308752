package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "TINY"

// Log formats accepted by LogFormat
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
	LogFormatOTel = "otel"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Host      string `config:"host"`
	Port      int    `config:"port"`
	Workers   int    `config:"workers"`
	BodyLimit int    `config:"body.limit"`

	// Directory is mounted under StaticPrefix when set.
	Directory    string `config:"directory"`
	StaticPrefix string `config:"static.prefix"`

	ReadTimeout     time.Duration `config:"read.timeout"`
	WriteTimeout    time.Duration `config:"write.timeout"`
	ShutdownTimeout time.Duration `config:"shutdown.timeout"`

	Env       string `config:"env"`
	LogFormat string `config:"log.format"`
	LogLevel  string `config:"log.level"`

	// Telemetry enables OTLP export of traces, metrics and logs.
	Telemetry bool `config:"telemetry"`

	// RequestID adds an X-Request-ID header to every response.
	RequestID bool `config:"request.id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            4221,
		Workers:         4,
		BodyLimit:       100 * 1024,
		StaticPrefix:    "/files",
		ShutdownTimeout: 10 * time.Second,
		Env:             "development",
		LogFormat:       LogFormatText,
		LogLevel:        "info",
	}
}

// New loads configuration from os.Args and the environment, exiting on
// error the way flag.ExitOnError does.
func New() *Config {
	cfg, err := Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load builds the configuration from, in increasing priority: defaults, the
// JSON file named by -config or TINY_CONFIG, TINY_* environment variables
// and command-line flags.
func Load(args []string) (*Config, error) {
	// First pass only finds the config file.
	scratch := Default()
	pre := flag.NewFlagSet("tiny-server", flag.ContinueOnError)
	path := bindFlags(pre, scratch)
	if err := pre.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if *path != "" {
		if err := m.LoadFromJSON(*path); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	cfg := Default()
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Flags left unset keep the file and environment values.
	fs := flag.NewFlagSet("tiny-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) *string {
	path := fs.String("config", os.Getenv(EnvPrefix+"_CONFIG"), "JSON configuration file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker pool size")
	fs.IntVar(&cfg.BodyLimit, "body-limit", cfg.BodyLimit, "Maximum bytes read per request")
	fs.StringVar(&cfg.Directory, "directory", cfg.Directory, "Static file directory")
	fs.StringVar(&cfg.StaticPrefix, "static-prefix", cfg.StaticPrefix, "URL prefix for static files")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Connection read deadline (0 = none)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Connection write deadline (0 = none)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown limit")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text/json/otel)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")
	fs.BoolVar(&cfg.Telemetry, "telemetry", cfg.Telemetry, "Export telemetry over OTLP")
	fs.BoolVar(&cfg.RequestID, "request-id", cfg.RequestID, "Add an X-Request-ID response header")
	return path
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("body limit must be positive, got %d", c.BodyLimit))
	}
	if c.StaticPrefix != "" && !strings.HasPrefix(c.StaticPrefix, "/") {
		errs = append(errs, fmt.Errorf("static prefix %q must begin with '/'", c.StaticPrefix))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON, LogFormatOTel:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.LogFormat == LogFormatOTel && !c.Telemetry {
		errs = append(errs, errors.New("otel log format requires telemetry"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, info if invalid.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
