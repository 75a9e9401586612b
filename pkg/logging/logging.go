/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger to provide structured logging
type Logger struct {
	*zap.SugaredLogger
	name string
}

// Config represents the logging configuration
type Config struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Level       string `yaml:"level" mapstructure:"level"`
	Caller      bool   `yaml:"caller" mapstructure:"caller"`
	Development bool   `yaml:"development" mapstructure:"development"`
	Output      string `yaml:"output" mapstructure:"output"`
	Name        string `yaml:"name" mapstructure:"name"`
}

// Log levels
const (
	Debug   string = "DEBUG"
	Info    string = "INFO"
	Warning string = "WARNING"
	Error   string = "ERROR"
)

// DefaultConfig for logging
var DefaultConfig = Config{
	Enabled:     true,
	Level:       Info,
	Caller:      true,
	Development: false,
}

var (
	registryMu sync.Mutex
	registry   []*Logger
	current    = DefaultConfig
)

// New returns a logger with the specified name. Loggers created through New
// are rebuilt by SetupWithConfig, so package-level loggers pick up the
// configured level once the process has loaded its config.
func New(name string) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	l := &Logger{name: name}
	l.rebuild(current)
	registry = append(registry, l)
	return l
}

// SetupWithConfig applies config to every logger created through New.
// It is meant to be called once at startup, before workers are spawned.
func SetupWithConfig(config *Config) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if config == nil {
		current = Config{}
	} else {
		current = *config
	}
	for _, l := range registry {
		l.rebuild(current)
	}
}

// ErrorStackTrace prints the stack trace present in the error type
func (l *Logger) ErrorStackTrace(err error) {
	if err == nil {
		return
	}
	l.WithOptions(zap.AddCallerSkip(1)).Errorf("%+v", err)
}

// WarnStackTrace prints the stack trace present in the error type as warning log
func (l *Logger) WarnStackTrace(err error) {
	if err == nil {
		return
	}
	l.WithOptions(zap.AddCallerSkip(1)).Warnf("%+v", err)
}

// Level returns the current logging level
func (l *Logger) Level() zapcore.Level {
	return l.Desugar().Level()
}

func (l *Logger) rebuild(config Config) {
	prefix := config.Name
	config.Name = l.name
	if prefix != "" {
		config.Name = prefix + "." + l.name
	}
	l.SugaredLogger = createLogger(&config).Sugar()
}

// ParseLevel maps a configured level name onto a zap level. Unknown names
// fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToUpper(name) {
	case Debug:
		return zap.DebugLevel
	case Warning, "WARN":
		return zap.WarnLevel
	case Error:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func createLogger(config *Config) *zap.Logger {
	if config == nil || !config.Enabled {
		return zap.NewNop()
	}

	level := zap.NewAtomicLevelAt(ParseLevel(config.Level))

	outputs := []string{"stderr"}
	if config.Output != "" {
		outputs = append(outputs, config.Output)
	}

	var encCfg zapcore.EncoderConfig
	if config.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeName = zapcore.FullNameEncoder

	zapConfig := zap.Config{
		Level:       level,
		Development: config.Development,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:          "console",
		EncoderConfig:     encCfg,
		DisableStacktrace: true,
		OutputPaths:       outputs,
		ErrorOutputPaths:  outputs,
	}

	logger, err := zapConfig.Build(zap.WithCaller(config.Caller))
	if err != nil {
		// An unusable output path must not take the process down.
		return zap.NewNop()
	}
	if config.Name != "" {
		logger = logger.Named(config.Name)
	}
	return logger
}
