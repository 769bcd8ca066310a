// Package config loads environment variables into typed configuration
// structs. Each unique struct type is parsed once per process and cached, so
// packages can load their own Config independently without re-reading the
// environment. A .env file is loaded on first use when present.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("config: nil pointer provided")
	ErrParsingConfig = errors.New("config: failed to parse environment variables")
)

var (
	mu     sync.Mutex
	cache  = make(map[string]any)
	dotenv sync.Once
)

// Load parses environment variables into v based on `env` field tags.
// The first successfully parsed value per struct type is cached and returned
// on subsequent calls.
//
// Example:
//
//	type Config struct {
//		Secret string        `env:"CSRF_SECRET,required"`
//		TTL    time.Duration `env:"CSRF_TOKEN_TTL" envDefault:"1h"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenv.Do(func() {
		// The .env file is optional; missing files are fine.
		_ = godotenv.Load()
	})

	name := typeName[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[name]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cache[name] = *v
	return nil
}

// MustLoad works like Load but panics on failure. Used for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
