// Package logging builds the zap logger used across webx.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum level (debug, info, warn, error).
	Level string `mapstructure:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error"`

	// Format is the terminal encoding (console or json).
	Format string `mapstructure:"format" yaml:"format" default:"console" validate:"oneof=console json"`

	// File, when set, receives JSON logs rotated by lumberjack.
	File string `mapstructure:"file" yaml:"file"`

	// MaxSize is the size in megabytes before the log file is rotated.
	MaxSize int `mapstructure:"max-size" yaml:"max-size" default:"50" validate:"gte=1"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `mapstructure:"max-backups" yaml:"max-backups" default:"3" validate:"gte=0"`

	// MaxAge is the number of days to keep rotated files.
	MaxAge int `mapstructure:"max-age" yaml:"max-age" default:"14" validate:"gte=0"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress" yaml:"compress" default:"true"`
}

// ParseLevel converts a level name to a zapcore.Level.
func ParseLevel(s string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	return ec
}

// New builds a logger writing to w (stderr when nil) and, if cfg.File is
// set, to a rotating JSON file.
func New(cfg Config, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	ec := encoderConfig()
	var enc zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		ec.TimeKey = ""
		enc = zapcore.NewConsoleEncoder(ec)
	case "json":
		enc = zapcore.NewJSONEncoder(ec)
	default:
		return nil, fmt.Errorf("log format %q: want console or json", cfg.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(w), lvl)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.MaxSize, 1),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotator), lvl))
	}
	return zap.New(zapcore.NewTee(cores...)).Named("webx"), nil
}
