// Package config resolves the relay's configuration: the three
// positional CLI arguments spec'd in spec.md §6 (`relay <ip> <port>
// [<host>]`), plus the ambient env-var knobs the teacher carries
// (heartbeat, buffers, TLS, rate limits).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the relay's full runtime configuration.
type Config struct {
	Host string // bind address (CLI <ip>)
	Port int    // bind port (CLI <port>)

	// OriginSuffix is the CLI's optional <host> argument: a WebSocket
	// upgrade is rejected unless its Origin header's hostname ends
	// with this suffix. Empty means accept any Origin.
	OriginSuffix string

	Heartbeat    time.Duration
	Handshake    time.Duration
	MetricsRoute string
	LogLevel     string

	WSReadBuf int
	WSWriteBuf int
	WSMaxMsg  int64

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// TLS (if both set -> serve HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Simple per-minute rate limits (0 disables)
	WSRatePerMin   int
	HTTPRatePerMin int
}

// BindAddr returns the "host:port" address to listen on.
func (c Config) BindAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// FromArgs parses `relay <ip> <port> [<host>]` (spec §6) and layers
// the ambient env-var knobs (below) on top. args is os.Args[1:].
func FromArgs(args []string) (Config, error) {
	if len(args) < 2 || len(args) > 3 {
		return Config{}, fmt.Errorf("usage: relay <ip> <port> [<host>]")
	}
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", args[1], err)
	}

	cfg := fromEnv()
	cfg.Host = args[0]
	cfg.Port = port
	if len(args) == 3 {
		cfg.OriginSuffix = strings.TrimSpace(args[2])
	}
	return cfg, nil
}

func fromEnv() Config {
	return Config{
		Heartbeat:         getenvDur("WS_HEARTBEAT", 60*time.Second),
		Handshake:         getenvDur("WS_HANDSHAKE", 10*time.Second),
		MetricsRoute:      getenv("METRICS_ROUTE", "/metrics"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		WSReadBuf:         getenvInt("WS_READ_BUFFER", 32<<10),
		WSWriteBuf:        getenvInt("WS_WRITE_BUFFER", 32<<10),
		WSMaxMsg:          int64(getenvInt("WS_MAX_MSG", 1<<20)),
		ReadHeaderTimeout: getenvDur("READ_HEADER_TIMEOUT", 5*time.Second),
		WriteTimeout:      getenvDur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getenvDur("IDLE_TIMEOUT", 0),
		TLSCertFile:       getenv("TLS_CERT_FILE", ""),
		TLSKeyFile:        getenv("TLS_KEY_FILE", ""),
		WSRatePerMin:      getenvInt("WS_RATE_PER_MIN", 0),
		HTTPRatePerMin:    getenvInt("HTTP_RATE_PER_MIN", 0),
	}
}

// Validate reports a configuration error worth aborting startup over.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.WSMaxMsg <= 1024 {
		return fmt.Errorf("WS_MAX_MSG too small: %d", c.WSMaxMsg)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("WS_HEARTBEAT must be >0")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set, or none")
	}
	return nil
}

// AllowOrigin implements spec §6's Origin-suffix whitelist: absent or
// blank OriginSuffix accepts any Origin; otherwise the Origin
// header's hostname must end with OriginSuffix.
func (c Config) AllowOrigin(origin string) bool {
	if c.OriginSuffix == "" {
		return true
	}
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Hostname(), c.OriginSuffix)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func getenvDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
