package httpserver

import "time"

// Config carries the listener settings, loaded from the environment.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// NewFromConfig builds a Server from cfg. Zero config values are skipped so
// package defaults apply; explicit options win over config fields.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	fromCfg := make([]Option, 0, 5)
	if cfg.Addr != "" {
		fromCfg = append(fromCfg, WithAddr(cfg.Addr))
	}
	if cfg.ReadTimeout > 0 {
		fromCfg = append(fromCfg, WithReadTimeout(cfg.ReadTimeout))
	}
	if cfg.WriteTimeout > 0 {
		fromCfg = append(fromCfg, WithWriteTimeout(cfg.WriteTimeout))
	}
	if cfg.IdleTimeout > 0 {
		fromCfg = append(fromCfg, WithIdleTimeout(cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		fromCfg = append(fromCfg, WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	return New(append(fromCfg, opts...)...)
}
