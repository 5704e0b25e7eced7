package stereodb

import (
	"io"
	"log"
)

// Config holds engine-wide settings that do not belong to any one table or
// schema: currently just where diagnostic logging goes. Persistence,
// replication and the other non-goals named in the surrounding spec have
// no settings here because they have no implementation.
type Config struct {
	Logger *log.Logger
}

// DefaultConfig returns a Config whose Logger discards everything, so an
// Engine built with no options produces no output by default.
func DefaultConfig() Config {
	return Config{Logger: log.New(io.Discard, "", 0)}
}

// Option mutates a Config during NewEngine construction.
type Option func(*Config)

// WithLogger overrides the engine's diagnostic logger. Passing nil is
// equivalent to omitting the option.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
