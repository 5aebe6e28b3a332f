package server

import (
	"net/http"
	"strconv"
	"time"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config defines fields used for configuring Server instance
type config struct {
	httpServer      *http.Server
	allowedOrigins  []string
	maxUploadSize   int64
	shutdownTimeout time.Duration
	afterShutdown   []func()
}

func defaultConfig() config {
	return config{
		httpServer:      &http.Server{Addr: "0.0.0.0:8000"},
		maxUploadSize:   25 << 20,
		shutdownTimeout: 10 * time.Second,
	}
}

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            uint16        `env:"PORT" envDefault:"8000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadSize   int64         `env:"MAX_UPLOAD_SIZE" envDefault:"26214400"`
}

// WithEnvConfig enables processing exported EnvConfig struct to acts as a source of config parameters for http.Server
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
		c.httpServer.ReadTimeout = cfg.ReadTimeout
		c.allowedOrigins = cfg.AllowedOrigins
		c.shutdownTimeout = cfg.ShutdownTimeout
		c.maxUploadSize = cfg.MaxUploadSize
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// AllowedOrigins sets the origins accepted by CORS and the websocket upgrade, "*" accepts any
func AllowedOrigins(origins ...string) Option {
	return optionFunc(func(c *config) {
		c.allowedOrigins = origins
	})
}

// MaxUploadSize bounds the body of multipart requests
func MaxUploadSize(n int64) Option {
	return optionFunc(func(c *config) {
		c.maxUploadSize = n
	})
}

// RegisterAfterShutdown registers a function to call after http.Server shutdown
// f will not be called in separated goroutine
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(c *config) {
		c.afterShutdown = append(c.afterShutdown, f)
	})
}
