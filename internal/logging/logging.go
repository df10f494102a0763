package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrInvalidFormat = errors.New("log format must be json or console")

// Config selects the logger encoding and minimum level
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig logs JSON at info level
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "json"}
}

// Validate checks the level parses and the format is known
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return ErrInvalidFormat
	}
	return nil
}

// New builds the process logger. "json" uses the production encoder,
// "console" the development one.
func New(c *Config) (*zap.Logger, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	level, _ := zapcore.ParseLevel(c.Level)

	var zc zap.Config
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
